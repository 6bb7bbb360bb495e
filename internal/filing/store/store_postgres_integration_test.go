//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"comply/internal/filing"
	"comply/pkg/platform/sentinel"
	"comply/pkg/platform/tx"
	"comply/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx context.Context
	pg  *containers.PostgresContainer
	st  *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.Exec(s.T(), Schema)
	s.st = NewPostgresStore(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.pg.Exec(s.T(), "TRUNCATE filings, cash_deposits")
}

func (s *PostgresStoreSuite) newFiling(subjectID string, amount float64) *filing.Filing {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &filing.Filing{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Type:      filing.TypeSAR,
		Status:    filing.StatusSubmitted,
		Amount:    amount,
		Reason:    "FRAUD_COMPENSATION",
		Priority:  filing.PriorityHigh,
		CreatedAt: now,
		Deadline:  now.AddDate(0, 0, 3),
		UpdatedAt: now,
		Version:   1,
	}
}

func (s *PostgresStoreSuite) TestSaveAndFind() {
	f := s.newFiling("cust-1", 30_000)
	s.Require().NoError(s.st.Save(s.ctx, f))

	got, err := s.st.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Equal(f.ID, got.ID)
	s.Equal(f.SubjectID, got.SubjectID)
	s.Equal(f.Status, got.Status)
	s.Equal(f.Priority, got.Priority)
	s.InDelta(f.Amount, got.Amount, 0.001)
	s.Equal(int64(1), got.Version)
}

func (s *PostgresStoreSuite) TestFindUnknown() {
	_, err := s.st.FindByID(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateSaveConflicts() {
	f := s.newFiling("cust-1", 100)
	s.Require().NoError(s.st.Save(s.ctx, f))
	s.ErrorIs(s.st.Save(s.ctx, f), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestOptimisticUpdate() {
	f := s.newFiling("cust-1", 100)
	s.Require().NoError(s.st.Save(s.ctx, f))

	f.Status = filing.StatusUnderReview
	s.Require().NoError(s.st.Update(s.ctx, f))
	s.Equal(int64(2), f.Version)

	// Replay the stale version: the row moved on, so the write must lose.
	stale := s.newFiling("cust-1", 100)
	stale.ID = f.ID
	stale.Version = 1
	stale.Status = filing.StatusRejected
	s.ErrorIs(s.st.Update(s.ctx, stale), sentinel.ErrConflict)

	got, err := s.st.FindByID(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Equal(filing.StatusUnderReview, got.Status)
}

func (s *PostgresStoreSuite) TestUpdateUnknownFiling() {
	f := s.newFiling("cust-1", 100)
	s.ErrorIs(s.st.Update(s.ctx, f), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListActiveExcludesTerminal() {
	active := s.newFiling("cust-1", 100)
	s.Require().NoError(s.st.Save(s.ctx, active))

	closed := s.newFiling("cust-2", 200)
	closed.Status = filing.StatusRejected
	s.Require().NoError(s.st.Save(s.ctx, closed))

	failed := s.newFiling("cust-3", 300)
	failed.Status = filing.StatusFailed
	s.Require().NoError(s.st.Save(s.ctx, failed))

	got, err := s.st.ListActive(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(active.ID, got[0].ID)
}

func (s *PostgresStoreSuite) TestSumRecentAmountsBySubject() {
	now := time.Now().UTC()

	s.Require().NoError(s.st.RecordCashDeposit(s.ctx, "txn-1", "cust-1", 2_000, now))
	s.Require().NoError(s.st.RecordCashDeposit(s.ctx, "txn-old", "cust-1", 9_999, now.Add(-48*time.Hour)))
	s.Require().NoError(s.st.RecordCashDeposit(s.ctx, "txn-2", "cust-2", 5_000, now))

	sum, err := s.st.SumRecentAmountsBySubject(s.ctx, "cust-1", now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.InDelta(2_000, sum, 0.001)

	sum, err = s.st.SumRecentAmountsBySubject(s.ctx, "cust-9", now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Zero(sum)
}

func (s *PostgresStoreSuite) TestRecordCashDepositIdempotent() {
	now := time.Now().UTC()

	s.Require().NoError(s.st.RecordCashDeposit(s.ctx, "txn-1", "cust-1", 4_000, now))
	s.Require().NoError(s.st.RecordCashDeposit(s.ctx, "txn-1", "cust-1", 4_000, now))

	sum, err := s.st.SumRecentAmountsBySubject(s.ctx, "cust-1", now.Add(-time.Hour))
	s.Require().NoError(err)
	s.InDelta(4_000, sum, 0.001, "redelivered transaction must count once")
}

func (s *PostgresStoreSuite) TestAmendmentLink() {
	prior := s.newFiling("cust-1", 100)
	prior.Status = filing.StatusRejected
	s.Require().NoError(s.st.Save(s.ctx, prior))

	amendment := s.newFiling("cust-1", 150)
	amendment.AmendsID = prior.ID
	s.Require().NoError(s.st.Save(s.ctx, amendment))

	got, err := s.st.FindByID(s.ctx, amendment.ID)
	s.Require().NoError(err)
	s.Equal(prior.ID, got.AmendsID)
}

func (s *PostgresStoreSuite) TestSaveWithinCallerTransaction() {
	f := s.newFiling("cust-1", 100)

	sqlTx, err := s.pg.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.st.Save(tx.WithTx(s.ctx, sqlTx), f))
	s.Require().NoError(sqlTx.Rollback())

	// The rolled-back transaction must take the filing with it.
	_, err = s.st.FindByID(s.ctx, f.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
