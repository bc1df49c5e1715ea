package fraud

import (
	"context"
	"log/slog"
	"time"

	"github.com/svdesai/fraudscope/internal/syncutil"
	"github.com/svdesai/fraudscope/internal/traces"
)

// BatchResult summarizes one batch run.
type BatchResult struct {
	Processed  int `json:"processed"`  // transactions evaluated
	Skipped    int `json:"skipped"`    // malformed transactions logged and skipped
	Alerts     int `json:"alerts"`     // alerts stored (duplicates excluded)
	Duplicates int `json:"duplicates"`
}

// Runner drives the engine in batch or streaming mode. Both modes share one
// engine and one sink, so thresholds and dedup behave identically whether a
// transaction is replayed from history or scored on insert.
type Runner struct {
	engine   *Engine
	sink     *Sink
	txns     TransactionStore
	logger   *slog.Logger
	accounts syncutil.ShardedMutex // serializes streaming per account
}

// NewRunner creates a runner. txns may be nil when only streaming is used.
func NewRunner(engine *Engine, sink *Sink, txns TransactionStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: engine, sink: sink, txns: txns, logger: logger}
}

// RunBatch replays all stored transactions from since (nil = everything)
// through the engine in timestamp order. Malformed transactions are logged
// and skipped; a storage failure aborts the run so a re-run reprocesses from
// the same starting point. Re-running is idempotent under rule-level dedup.
func (r *Runner) RunBatch(ctx context.Context, since *time.Time) (*BatchResult, error) {
	ctx, span := traces.StartSpan(ctx, "fraud.batch")
	defer span.End()

	txns, err := r.txns.FetchOrdered(ctx, since)
	if err != nil {
		return nil, &StorageError{Op: "fetch transactions", Err: err}
	}
	r.logger.Info("batch run starting", "transactions", len(txns))

	res := &BatchResult{}
	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		stored, dup, err := r.process(ctx, txn)
		if err != nil {
			if IsValidation(err) {
				r.logger.Warn("skipping malformed transaction", "txn_id", txn.ID, "error", err)
				res.Skipped++
				continue
			}
			return res, err
		}
		res.Processed++
		res.Alerts += stored
		res.Duplicates += dup
	}

	r.logger.Info("batch run finished",
		"processed", res.Processed,
		"skipped", res.Skipped,
		"alerts", res.Alerts,
		"duplicates", res.Duplicates,
	)
	return res, nil
}

// Process scores one transaction in streaming mode and returns the alerts
// that were stored. Transactions for the same account are serialized; a
// StorageError leaves the account window untouched so the caller can retry
// the same transaction.
func (r *Runner) Process(ctx context.Context, txn *Transaction) ([]*Alert, error) {
	unlock := r.accounts.Lock(txn.AccountID)
	defer unlock()

	drafts, err := r.engine.Evaluate(ctx, txn)
	if err != nil {
		return nil, err
	}

	var alerts []*Alert
	for _, d := range drafts {
		alert, err := r.sink.Emit(ctx, txn, d)
		if err != nil {
			return alerts, err
		}
		if alert != nil {
			alerts = append(alerts, alert)
		}
	}

	r.engine.Advance(txn)
	return alerts, nil
}

// process is the batch path. Batch runs are single-threaded, but a replay
// sharing this runner with streaming callers still needs the account lock so
// the two paths never interleave window appends.
func (r *Runner) process(ctx context.Context, txn *Transaction) (stored, duplicates int, err error) {
	unlock := r.accounts.Lock(txn.AccountID)
	defer unlock()

	drafts, err := r.engine.Evaluate(ctx, txn)
	if err != nil {
		return 0, 0, err
	}
	for _, d := range drafts {
		alert, err := r.sink.Emit(ctx, txn, d)
		if err != nil {
			return stored, duplicates, err
		}
		if alert != nil {
			stored++
		} else {
			duplicates++
		}
	}
	r.engine.Advance(txn)
	return stored, duplicates, nil
}
