package fraud

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/svdesai/fraudscope/internal/pagination"
)

// MemoryTransactionStore is an in-memory TransactionStore for demo/test use.
type MemoryTransactionStore struct {
	mu   sync.RWMutex
	txns []*Transaction
}

// NewMemoryTransactionStore creates an empty in-memory transaction store.
func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{}
}

func (s *MemoryTransactionStore) Insert(_ context.Context, txn *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *txn
	s.txns = append(s.txns, &cp)
	return nil
}

func (s *MemoryTransactionStore) FetchOrdered(_ context.Context, since *time.Time) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Transaction, 0, len(s.txns))
	for _, t := range s.txns {
		if since != nil && t.Timestamp.Before(*since) {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	// Timestamp ascending, txn id as the deterministic tiebreak.
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID < result[j].ID
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// MemoryAlertStore is an in-memory AlertStore for demo/test use.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts []*Alert
	keys   map[string]bool // txnID + "\x00" + ruleID
}

// NewMemoryAlertStore creates an empty in-memory alert store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{keys: make(map[string]bool)}
}

func alertKey(txnID, ruleID string) string { return txnID + "\x00" + ruleID }

func (s *MemoryAlertStore) Exists(_ context.Context, txnID, ruleID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[alertKey(txnID, ruleID)], nil
}

func (s *MemoryAlertStore) Insert(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey(alert.TxnID, alert.RuleID)
	if s.keys[key] {
		return ErrDuplicateAlert
	}
	s.keys[key] = true
	cp := *alert
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *MemoryAlertStore) ListByAccount(_ context.Context, accountID string, limit int) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var result []*Alert
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		if s.alerts[i].AccountID == accountID {
			cp := *s.alerts[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryAlertStore) ListRecent(_ context.Context, limit int, before *pagination.Cursor) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var result []*Alert
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		a := s.alerts[i]
		if before != nil && !beforeCursor(a, before) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

// beforeCursor reports whether a sorts strictly after the cursor position in
// newest-first order, i.e. (created_at, id) < (cursor.CreatedAt, cursor.ID).
func beforeCursor(a *Alert, c *pagination.Cursor) bool {
	if a.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return a.CreatedAt.Equal(c.CreatedAt) && a.ID < c.ID
}

func (s *MemoryAlertStore) CountByRule(_ context.Context) ([]RuleCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		rule     string
		severity Severity
	}
	counts := make(map[key]int64)
	for _, a := range s.alerts {
		counts[key{a.RuleID, a.Severity}]++
	}

	result := make([]RuleCount, 0, len(counts))
	for k, n := range counts {
		result = append(result, RuleCount{RuleID: k.rule, Severity: k.severity, Count: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RuleID < result[j].RuleID })
	return result, nil
}

func (s *MemoryAlertStore) Acknowledge(_ context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.ID == alertID {
			a.Status = StatusAcknowledged
			return nil
		}
	}
	return ErrAlertNotFound
}

// Alerts returns all stored alerts (for testing).
func (s *MemoryAlertStore) Alerts() []*Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Alert, len(s.alerts))
	copy(result, s.alerts)
	return result
}
