package fraud

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/svdesai/fraudscope/internal/idgen"
	"github.com/svdesai/fraudscope/internal/metrics"
	"github.com/svdesai/fraudscope/internal/traces"
)

// ErrDuplicateAlert is returned by AlertStore.Insert when an alert for the
// same (txn_id, rule_id) already exists. The Postgres store maps its unique
// index violation onto it, which closes the race between the Exists check
// and the insert.
var ErrDuplicateAlert = errors.New("alert already exists for (txn_id, rule_id)")

// ErrAlertNotFound is returned by AlertStore.Acknowledge for unknown IDs.
var ErrAlertNotFound = errors.New("alert not found")

// Notifier receives alerts as they are stored, e.g. the websocket hub.
type Notifier interface {
	AlertTriggered(alert *Alert)
}

// Sink persists alert drafts with rule-level idempotency: at most one stored
// alert per (txn_id, rule_id), no matter how often the same transaction is
// re-scored.
type Sink struct {
	store    AlertStore
	notifier Notifier
	logger   *slog.Logger
}

// NewSink creates a sink over the given alert store. notifier may be nil.
func NewSink(store AlertStore, notifier Notifier, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, notifier: notifier, logger: logger}
}

// Emit persists one draft for txn and returns the stored alert. It returns
// nil when an identical (txn_id, rule_id) alert already existed, and a
// StorageError when the store is unavailable. A duplicate is the only reason
// an alert is ever dropped.
func (s *Sink) Emit(ctx context.Context, txn *Transaction, draft *AlertDraft) (*Alert, error) {
	ctx, span := traces.StartSpan(ctx, "fraud.emit",
		traces.TxnID(txn.ID), traces.RuleID(draft.RuleID))
	defer span.End()

	exists, err := s.store.Exists(ctx, txn.ID, draft.RuleID)
	if err != nil {
		return nil, &StorageError{Op: "alert exists check", Err: err}
	}
	if exists {
		metrics.AlertsDeduplicated.Inc()
		return nil, nil
	}

	alert := &Alert{
		ID:        idgen.WithPrefix("alert_"),
		TxnID:     txn.ID,
		AccountID: txn.AccountID,
		RuleID:    draft.RuleID,
		Reason:    draft.Reason,
		Severity:  draft.Severity,
		Score:     draft.Score,
		Status:    StatusNew,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.Insert(ctx, alert); err != nil {
		if errors.Is(err, ErrDuplicateAlert) {
			metrics.AlertsDeduplicated.Inc()
			return nil, nil
		}
		return nil, &StorageError{Op: "alert insert", Err: err}
	}

	metrics.AlertsTriggered.WithLabelValues(alert.RuleID, string(alert.Severity)).Inc()
	s.logger.Info("fraud alert",
		"rule", alert.RuleID,
		"txn_id", alert.TxnID,
		"account_id", alert.AccountID,
		"severity", alert.Severity,
		"score", alert.Score,
	)

	if s.notifier != nil {
		s.notifier.AlertTriggered(alert)
	}
	return alert, nil
}
