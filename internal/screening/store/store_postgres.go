package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"comply/internal/screening"
	"comply/pkg/platform/sentinel"
)

// Schema creates the screening audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS screening_results (
	screening_id       UUID PRIMARY KEY,
	entity_id          TEXT NOT NULL,
	per_source_scores  JSONB NOT NULL,
	source_statuses    JSONB NOT NULL,
	consolidated_score DOUBLE PRECISION NOT NULL,
	match_found        BOOLEAN NOT NULL,
	incomplete         BOOLEAN NOT NULL,
	review_required    BOOLEAN NOT NULL,
	action             TEXT NOT NULL,
	justification      TEXT NOT NULL DEFAULT '',
	completed_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_screening_results_entity ON screening_results (entity_id, completed_at DESC);
`

// PostgresStore persists completed screening results. Results are an
// append-only audit trail; there is no update path.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Open connects a pool and verifies the connection.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open screening pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping screening pool: %w", err)
	}
	return pool, nil
}

// SaveResult appends one completed screening result.
func (s *PostgresStore) SaveResult(ctx context.Context, r *screening.Result) error {
	scores, err := json.Marshal(r.PerSourceScores)
	if err != nil {
		return fmt.Errorf("marshal per-source scores: %w", err)
	}
	statuses, err := json.Marshal(r.SourceStatuses)
	if err != nil {
		return fmt.Errorf("marshal source statuses: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO screening_results
			(screening_id, entity_id, per_source_scores, source_statuses,
			 consolidated_score, match_found, incomplete, review_required,
			 action, justification, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		r.ScreeningID, r.EntityID, scores, statuses,
		r.ConsolidatedScore, r.MatchFound, r.Incomplete, r.ReviewRequired,
		r.Action, r.Justification, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert screening result %s: %w", r.ScreeningID, err)
	}
	return nil
}

// FindByID loads one result by screening id.
func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*screening.Result, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT screening_id, entity_id, per_source_scores, source_statuses,
		       consolidated_score, match_found, incomplete, review_required,
		       action, justification, completed_at
		FROM screening_results WHERE screening_id=$1`, id)
	return scanResult(row)
}

// LatestForEntity loads the most recent result for an entity, if any.
func (s *PostgresStore) LatestForEntity(ctx context.Context, entityID string) (*screening.Result, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT screening_id, entity_id, per_source_scores, source_statuses,
		       consolidated_score, match_found, incomplete, review_required,
		       action, justification, completed_at
		FROM screening_results
		WHERE entity_id=$1
		ORDER BY completed_at DESC
		LIMIT 1`, entityID)
	return scanResult(row)
}

func scanResult(row pgx.Row) (*screening.Result, error) {
	var (
		r        screening.Result
		scores   []byte
		statuses []byte
	)
	err := row.Scan(&r.ScreeningID, &r.EntityID, &scores, &statuses,
		&r.ConsolidatedScore, &r.MatchFound, &r.Incomplete, &r.ReviewRequired,
		&r.Action, &r.Justification, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("screening result: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan screening result: %w", err)
	}
	if err := json.Unmarshal(scores, &r.PerSourceScores); err != nil {
		return nil, fmt.Errorf("decode per-source scores: %w", err)
	}
	if err := json.Unmarshal(statuses, &r.SourceStatuses); err != nil {
		return nil, fmt.Errorf("decode source statuses: %w", err)
	}
	return &r, nil
}
