package fraud

import (
	"context"

	"github.com/svdesai/fraudscope/internal/metrics"
	"github.com/svdesai/fraudscope/internal/traces"
)

// Engine evaluates transactions against the configured rule set.
//
// Evaluate runs the rules against the window as it existed before the
// transaction; Advance appends the transaction to the window. The two are
// split so a runner can withhold the append until the alerts were durably
// sunk: a failed transaction can then be retried without corrupting window
// state, and rule-level dedup guards the retry against double-alerting.
type Engine struct {
	rules   []Rule
	windows *WindowStore
}

// NewEngine creates an engine over the given windows and rules.
// Rules run in the order given, for every transaction.
func NewEngine(windows *WindowStore, rules []Rule) *Engine {
	return &Engine{rules: rules, windows: windows}
}

// Evaluate validates the transaction and runs every rule against it and the
// account's prior window, in fixed order. It does not mutate the window.
func (e *Engine) Evaluate(ctx context.Context, txn *Transaction) ([]*AlertDraft, error) {
	if err := Validate(txn); err != nil {
		return nil, err
	}

	_, span := traces.StartSpan(ctx, "fraud.evaluate",
		traces.TxnID(txn.ID), traces.AccountID(txn.AccountID))
	defer span.End()

	timer := metrics.EvaluationTimer()
	defer timer.ObserveDuration()

	window := e.windows.Get(txn.AccountID)

	var drafts []*AlertDraft
	for _, rule := range e.rules {
		if d := rule.Evaluate(txn, window); d != nil {
			drafts = append(drafts, d)
		}
	}

	metrics.TransactionsEvaluated.Inc()
	return drafts, nil
}

// Advance appends the transaction to its account's window. Call exactly once
// per evaluated transaction, after its alerts were sunk.
func (e *Engine) Advance(txn *Transaction) {
	e.windows.Append(txn.AccountID, EntryFor(txn))
}
