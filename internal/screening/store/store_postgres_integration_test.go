//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"comply/internal/screening"
	"comply/pkg/platform/sentinel"
	"comply/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx  context.Context
	pg   *containers.PostgresContainer
	pool *pgxpool.Pool
	st   *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())

	pool, err := Open(s.ctx, s.pg.DSN)
	s.Require().NoError(err)
	s.pool = pool

	_, err = pool.Exec(s.ctx, Schema)
	s.Require().NoError(err)
	s.st = NewPostgresStore(pool)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	s.pg.Exec(s.T(), "TRUNCATE screening_results")
}

func (s *PostgresStoreSuite) newResult(entityID string) *screening.Result {
	return &screening.Result{
		ScreeningID: uuid.New(),
		EntityID:    entityID,
		PerSourceScores: map[string]float64{
			"OFAC": 96,
			"EU":   40,
		},
		SourceStatuses: map[string]screening.SourceStatus{
			"OFAC": screening.SourceReturned,
			"EU":   screening.SourceReturned,
		},
		ConsolidatedScore: 96,
		MatchFound:        true,
		ReviewRequired:    true,
		Action:            screening.ActionBlockImmediate,
		CompletedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestSaveAndFindByID() {
	r := s.newResult("e-1")
	s.Require().NoError(s.st.SaveResult(s.ctx, r))

	got, err := s.st.FindByID(s.ctx, r.ScreeningID)
	s.Require().NoError(err)
	s.Equal(r.ScreeningID, got.ScreeningID)
	s.Equal(r.EntityID, got.EntityID)
	s.Equal(r.PerSourceScores, got.PerSourceScores)
	s.Equal(r.SourceStatuses, got.SourceStatuses)
	s.Equal(r.Action, got.Action)
	s.True(got.MatchFound)
}

func (s *PostgresStoreSuite) TestFindByIDUnknown() {
	_, err := s.st.FindByID(s.ctx, uuid.New())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestLatestForEntity() {
	older := s.newResult("e-1")
	older.CompletedAt = older.CompletedAt.Add(-time.Hour)
	older.Action = screening.ActionClear
	older.MatchFound = false
	s.Require().NoError(s.st.SaveResult(s.ctx, older))

	newest := s.newResult("e-1")
	s.Require().NoError(s.st.SaveResult(s.ctx, newest))

	unrelated := s.newResult("e-2")
	s.Require().NoError(s.st.SaveResult(s.ctx, unrelated))

	got, err := s.st.LatestForEntity(s.ctx, "e-1")
	s.Require().NoError(err)
	s.Equal(newest.ScreeningID, got.ScreeningID)
}

func (s *PostgresStoreSuite) TestLatestForEntityUnknown() {
	_, err := s.st.LatestForEntity(s.ctx, "e-nobody")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
