package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"comply/internal/filing"
	"comply/pkg/platform/sentinel"
	"comply/pkg/platform/tx"
)

// PostgresStore persists filings in the filings table. Regulatory retention
// means rows are never deleted; terminal statuses are archival.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// writer returns the transaction from context when a caller has opened one,
// otherwise the pooled handle. Lets callers group a filing write with their
// own statements atomically without the store knowing.
func (s *PostgresStore) writer(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Schema creates the filings table. Called by migrations and test setup.
const Schema = `
CREATE TABLE IF NOT EXISTS filings (
	id UUID PRIMARY KEY,
	subject_id TEXT NOT NULL,
	filing_type TEXT NOT NULL,
	status TEXT NOT NULL,
	amount NUMERIC(18,2) NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL,
	escalation_reason TEXT NOT NULL DEFAULT '',
	reviewer TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	approved_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
	paid_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
	payment_reference TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	amends_id UUID,
	correlation_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	deadline TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_filings_subject_created ON filings (subject_id, created_at);
CREATE INDEX IF NOT EXISTS idx_filings_status ON filings (status);
CREATE TABLE IF NOT EXISTS cash_deposits (
	transaction_id TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL,
	amount NUMERIC(18,2) NOT NULL,
	deposited_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cash_deposits_subject_at ON cash_deposits (subject_id, deposited_at);
`

const filingColumns = `id, subject_id, filing_type, status, amount, reason, priority,
	escalation_reason, reviewer, notes, approved_amount, paid_amount,
	payment_reference, failure_reason, amends_id, correlation_id,
	created_at, deadline, updated_at, version`

// Save inserts a new filing.
func (s *PostgresStore) Save(ctx context.Context, f *filing.Filing) error {
	res, err := s.writer(ctx).ExecContext(ctx, `
		INSERT INTO filings (`+filingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO NOTHING`,
		f.ID, f.SubjectID, f.Type, f.Status, f.Amount, f.Reason, f.Priority,
		f.EscalationReason, f.Reviewer, f.Notes, f.ApprovedAmount, f.PaidAmount,
		f.PaymentReference, f.FailureReason, nullableUUID(f.AmendsID), f.CorrelationID,
		f.CreatedAt, f.Deadline, f.UpdatedAt, f.Version,
	)
	if err != nil {
		return fmt.Errorf("insert filing %s: %w", f.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for filing %s: %w", f.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("filing %s already exists: %w", f.ID, sentinel.ErrConflict)
	}
	return nil
}

// Update persists a transition under the optimistic version check. Zero
// rows affected means either the filing is unknown or a concurrent
// transition advanced the version first.
func (s *PostgresStore) Update(ctx context.Context, f *filing.Filing) error {
	res, err := s.writer(ctx).ExecContext(ctx, `
		UPDATE filings SET
			status=$1, amount=$2, reason=$3, priority=$4, escalation_reason=$5,
			reviewer=$6, notes=$7, approved_amount=$8, paid_amount=$9,
			payment_reference=$10, failure_reason=$11, updated_at=$12,
			version=version+1
		WHERE id=$13 AND version=$14`,
		f.Status, f.Amount, f.Reason, f.Priority, f.EscalationReason,
		f.Reviewer, f.Notes, f.ApprovedAmount, f.PaidAmount,
		f.PaymentReference, f.FailureReason, f.UpdatedAt,
		f.ID, f.Version,
	)
	if err != nil {
		return fmt.Errorf("update filing %s: %w", f.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for filing %s: %w", f.ID, err)
	}
	if n == 0 {
		if _, findErr := s.FindByID(ctx, f.ID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("filing %s version %d superseded: %w", f.ID, f.Version, sentinel.ErrConflict)
	}
	f.Version++
	return nil
}

// FindByID loads one filing.
func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*filing.Filing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+filingColumns+` FROM filings WHERE id=$1`, id)
	f, err := scanFiling(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("filing %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query filing %s: %w", id, err)
	}
	return f, nil
}

// ListActive returns all non-terminal filings for the overdue sweep.
func (s *PostgresStore) ListActive(ctx context.Context) ([]*filing.Filing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+filingColumns+` FROM filings
		WHERE status NOT IN ('PAID','REJECTED','FAILED')
		ORDER BY deadline`)
	if err != nil {
		return nil, fmt.Errorf("query active filings: %w", err)
	}
	defer rows.Close()

	var out []*filing.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecordCashDeposit appends a deposit to the cash ledger. Redelivered
// transactions are absorbed by the primary key, so recording is idempotent.
func (s *PostgresStore) RecordCashDeposit(ctx context.Context, transactionID, subjectID string, amount float64, at time.Time) error {
	_, err := s.writer(ctx).ExecContext(ctx, `
		INSERT INTO cash_deposits (transaction_id, subject_id, amount, deposited_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (transaction_id) DO NOTHING`,
		transactionID, subjectID, amount, at,
	)
	if err != nil {
		return fmt.Errorf("record cash deposit %s: %w", transactionID, err)
	}
	return nil
}

// SumRecentAmountsBySubject totals ledgered cash deposits for a subject since
// the given time. Backs structuring-pattern detection.
func (s *PostgresStore) SumRecentAmountsBySubject(ctx context.Context, subjectID string, since time.Time) (float64, error) {
	var sum float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM cash_deposits
		WHERE subject_id=$1 AND deposited_at >= $2`,
		subjectID, since,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum recent deposits for %s: %w", subjectID, err)
	}
	return sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFiling(row rowScanner) (*filing.Filing, error) {
	var f filing.Filing
	var amends uuid.NullUUID
	err := row.Scan(
		&f.ID, &f.SubjectID, &f.Type, &f.Status, &f.Amount, &f.Reason, &f.Priority,
		&f.EscalationReason, &f.Reviewer, &f.Notes, &f.ApprovedAmount, &f.PaidAmount,
		&f.PaymentReference, &f.FailureReason, &amends, &f.CorrelationID,
		&f.CreatedAt, &f.Deadline, &f.UpdatedAt, &f.Version,
	)
	if err != nil {
		return nil, err
	}
	if amends.Valid {
		f.AmendsID = amends.UUID
	}
	return &f, nil
}

func nullableUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
