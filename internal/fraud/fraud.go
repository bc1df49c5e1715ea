// Package fraud implements the rule-based fraud detection engine.
//
// Every transaction is evaluated against an ordered set of heuristic rules
// (high value, velocity, geo mismatch, device anomaly, suspicious merchant)
// using a bounded per-account window of recent history. The same engine runs
// as a batch replay over stored transactions or per-insert in streaming mode,
// and alert deduplication is keyed on (txn_id, rule_id) so the two modes can
// overlap without double-alerting.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/svdesai/fraudscope/internal/pagination"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert statuses.
const (
	StatusNew          = "new"
	StatusAcknowledged = "acknowledged"
)

// Rule identifiers, in evaluation order.
const (
	RuleHighValue          = "HIGH_VALUE"
	RuleVelocity           = "VELOCITY"
	RuleGeoMismatch        = "GEO_MISMATCH"
	RuleDeviceAnomaly      = "DEVICE_ANOMALY"
	RuleSuspiciousMerchant = "SUSPICIOUS_MERCHANT"
)

// Transaction is a single immutable payment fact.
// GeoLat/GeoLng are either both set or both nil; a transaction with only one
// of the two is treated as having no location at all.
type Transaction struct {
	ID               string     `json:"id"`
	AccountID        string     `json:"accountId"`
	MerchantID       string     `json:"merchantId"`
	DeviceID         string     `json:"deviceId"`
	Amount           float64    `json:"amount"`
	Timestamp        time.Time  `json:"timestamp"`
	Channel          string     `json:"channel,omitempty"` // atm, pos, web, mobile
	Location         string     `json:"location,omitempty"`
	IPAddress        string     `json:"ipAddress,omitempty"`
	GeoLat           *float64   `json:"geoLat,omitempty"`
	GeoLng           *float64   `json:"geoLng,omitempty"`
	MerchantCategory string     `json:"merchantCategory,omitempty"`
}

// HasGeo reports whether the transaction carries a usable location.
func (t *Transaction) HasGeo() bool {
	return t.GeoLat != nil && t.GeoLng != nil
}

// AlertDraft is a rule's tentative output before dedup and persistence.
type AlertDraft struct {
	RuleID   string   `json:"ruleId"`
	Reason   string   `json:"reason"`
	Severity Severity `json:"severity"`
	Score    float64  `json:"score"` // 0-100
}

// Alert is a persisted rule firing for one transaction.
// At most one alert exists per (TxnID, RuleID) pair.
type Alert struct {
	ID        string    `json:"id"`
	TxnID     string    `json:"txnId"`
	AccountID string    `json:"accountId"`
	RuleID    string    `json:"ruleId"`
	Reason    string    `json:"reason"`
	Severity  Severity  `json:"severity"`
	Score     float64   `json:"score"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Rule is a stateless predicate over a transaction plus the account's recent
// history as it existed before the transaction. A nil result means no alert.
type Rule interface {
	ID() string
	Evaluate(txn *Transaction, window *AccountWindow) *AlertDraft
}

// TransactionStore provides ordered read access to transactions.
type TransactionStore interface {
	// FetchOrdered returns transactions ordered by timestamp ascending,
	// ties broken by txn id ascending. A nil since returns everything.
	FetchOrdered(ctx context.Context, since *time.Time) ([]*Transaction, error)
	Insert(ctx context.Context, txn *Transaction) error
}

// RuleCount is an aggregate of alerts per rule, used by the summary endpoint.
type RuleCount struct {
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Count    int64    `json:"count"`
}

// AlertStore persists alerts. Exists and Insert together give the sink its
// rule-level idempotency.
type AlertStore interface {
	Exists(ctx context.Context, txnID, ruleID string) (bool, error)
	Insert(ctx context.Context, alert *Alert) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*Alert, error)
	ListRecent(ctx context.Context, limit int, before *pagination.Cursor) ([]*Alert, error)
	CountByRule(ctx context.Context) ([]RuleCount, error)
	Acknowledge(ctx context.Context, alertID string) error
}

// ValidationError rejects a malformed transaction. The runner logs it and
// moves on; one bad record never halts a batch run.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid transaction: " + e.Field + " " + e.Message
}

// StorageError wraps a store or sink failure. Batch mode aborts on it;
// streaming mode surfaces it so the caller can retry the transaction.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks the required transaction fields.
func Validate(txn *Transaction) error {
	if txn == nil {
		return &ValidationError{Field: "transaction", Message: "is required"}
	}
	if txn.ID == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}
	if txn.AccountID == "" {
		return &ValidationError{Field: "accountId", Message: "is required"}
	}
	if txn.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "is required"}
	}
	if txn.Amount < 0 {
		return &ValidationError{Field: "amount", Message: "must be non-negative"}
	}
	return nil
}
