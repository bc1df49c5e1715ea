package fraud

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/svdesai/fraudscope/internal/pagination"
)

// uniqueViolation is the Postgres error code for a unique index conflict.
const uniqueViolation = "23505"

// PostgresTransactionStore implements TransactionStore on PostgreSQL.
type PostgresTransactionStore struct {
	db *sql.DB
}

// NewPostgresTransactionStore creates a PostgreSQL-backed transaction store.
func NewPostgresTransactionStore(db *sql.DB) *PostgresTransactionStore {
	return &PostgresTransactionStore{db: db}
}

func (s *PostgresTransactionStore) Insert(ctx context.Context, txn *Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			txn_id, account_id, merchant_id, device_id, amount, txn_timestamp,
			channel, location, ip_address, geo_lat, geo_lng, merchant_category
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		txn.ID, txn.AccountID, txn.MerchantID, txn.DeviceID, txn.Amount, txn.Timestamp,
		nullStr(txn.Channel), nullStr(txn.Location), nullStr(txn.IPAddress),
		txn.GeoLat, txn.GeoLng, nullStr(txn.MerchantCategory),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *PostgresTransactionStore) FetchOrdered(ctx context.Context, since *time.Time) ([]*Transaction, error) {
	query := `
		SELECT txn_id, account_id, merchant_id, device_id, amount, txn_timestamp,
		       COALESCE(channel, ''), COALESCE(location, ''), COALESCE(ip_address, ''),
		       geo_lat, geo_lng, COALESCE(merchant_category, '')
		FROM transactions`
	args := []any{}
	if since != nil {
		query += ` WHERE txn_timestamp >= $1`
		args = append(args, *since)
	}
	query += ` ORDER BY txn_timestamp ASC, txn_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		t := &Transaction{}
		if err := rows.Scan(
			&t.ID, &t.AccountID, &t.MerchantID, &t.DeviceID, &t.Amount, &t.Timestamp,
			&t.Channel, &t.Location, &t.IPAddress,
			&t.GeoLat, &t.GeoLng, &t.MerchantCategory,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// PostgresAlertStore implements AlertStore on PostgreSQL. The unique index
// on (txn_id, rule_id) is the hard dedup backstop behind the Exists check.
type PostgresAlertStore struct {
	db *sql.DB
}

// NewPostgresAlertStore creates a PostgreSQL-backed alert store.
func NewPostgresAlertStore(db *sql.DB) *PostgresAlertStore {
	return &PostgresAlertStore{db: db}
}

func (s *PostgresAlertStore) Exists(ctx context.Context, txnID, ruleID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM fraud_alerts WHERE txn_id = $1 AND rule_id = $2)
	`, txnID, ruleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("alert exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresAlertStore) Insert(ctx context.Context, alert *Alert) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fraud_alerts (id, txn_id, account_id, rule_id, reason, severity, score, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (txn_id, rule_id) DO NOTHING
	`,
		alert.ID, alert.TxnID, alert.AccountID, alert.RuleID,
		alert.Reason, string(alert.Severity), alert.Score, alert.Status, alert.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return ErrDuplicateAlert
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateAlert
	}
	return nil
}

func (s *PostgresAlertStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, `
		SELECT id, txn_id, account_id, rule_id, reason, severity, score, status, created_at
		FROM fraud_alerts WHERE account_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, accountID, limit)
}

func (s *PostgresAlertStore) ListRecent(ctx context.Context, limit int, before *pagination.Cursor) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	if before != nil {
		return s.list(ctx, `
			SELECT id, txn_id, account_id, rule_id, reason, severity, score, status, created_at
			FROM fraud_alerts
			WHERE (created_at, id) < ($1, $2)
			ORDER BY created_at DESC, id DESC LIMIT $3
		`, before.CreatedAt, before.ID, limit)
	}
	return s.list(ctx, `
		SELECT id, txn_id, account_id, rule_id, reason, severity, score, status, created_at
		FROM fraud_alerts
		ORDER BY created_at DESC, id DESC LIMIT $1
	`, limit)
}

func (s *PostgresAlertStore) list(ctx context.Context, query string, args ...any) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Alert
	for rows.Next() {
		a := &Alert{}
		if err := rows.Scan(&a.ID, &a.TxnID, &a.AccountID, &a.RuleID,
			&a.Reason, &a.Severity, &a.Score, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PostgresAlertStore) CountByRule(ctx context.Context) ([]RuleCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, severity, COUNT(*)
		FROM fraud_alerts
		GROUP BY rule_id, severity
		ORDER BY rule_id
	`)
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []RuleCount
	for rows.Next() {
		var c RuleCount
		if err := rows.Scan(&c.RuleID, &c.Severity, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *PostgresAlertStore) Acknowledge(ctx context.Context, alertID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fraud_alerts SET status = $1 WHERE id = $2
	`, StatusAcknowledged, alertID)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlertNotFound
	}
	return nil
}
