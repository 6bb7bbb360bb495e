package screening

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"comply/internal/resilience"
)

type funcSource struct {
	name  string
	calls atomic.Int64
	fn    func(ctx context.Context, e Entity) (float64, string, error)
}

func (s *funcSource) Name() string { return s.name }

func (s *funcSource) Screen(ctx context.Context, e Entity) (float64, string, error) {
	s.calls.Add(1)
	return s.fn(ctx, e)
}

func scoringSource(name string, score float64) *funcSource {
	return &funcSource{name: name, fn: func(context.Context, Entity) (float64, string, error) {
		return score, "", nil
	}}
}

func hangingSource(name string) *funcSource {
	return &funcSource{name: name, fn: func(ctx context.Context, _ Entity) (float64, string, error) {
		<-ctx.Done()
		return 0, "", ctx.Err()
	}}
}

func failingSource(name string) *funcSource {
	return &funcSource{name: name, fn: func(context.Context, Entity) (float64, string, error) {
		return 0, "", fmt.Errorf("provider down")
	}}
}

func fastConfig() Config {
	return Config{
		OverallTimeout:   100 * time.Millisecond,
		PerSourceTimeout: 50 * time.Millisecond,
		MaxConcurrent:    4,
		CacheTTL:         15 * time.Minute,
	}
}

func testEntity() Entity {
	return Entity{
		ID:          "entity-1",
		Name:        "Alexei Petrov",
		Type:        EntityIndividual,
		Country:     "RU",
		CrossBorder: true,
		Risk:        RiskMedium,
	}
}

type ScreeningSuite struct {
	suite.Suite
	ctx context.Context
}

func TestScreeningSuite(t *testing.T) {
	suite.Run(t, new(ScreeningSuite))
}

func (s *ScreeningSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *ScreeningSuite) newService(sources []Source, opts ...ServiceOption) *Service {
	return NewService(sources, NewMemoryCache(), fastConfig(), slog.Default(), opts...)
}

func (s *ScreeningSuite) TestCleanEntityClears() {
	svc := s.newService([]Source{scoringSource("OFAC", 0), scoringSource("EU", 10)})

	result, err := svc.Screen(s.ctx, testEntity())
	s.Require().NoError(err)
	s.False(result.MatchFound)
	s.False(result.Incomplete)
	s.Equal(ActionClear, result.Action)
	s.Equal(SourceReturned, result.SourceStatuses["OFAC"])
	s.Equal(SourceReturned, result.SourceStatuses["EU"])
}

func (s *ScreeningSuite) TestConsolidationTakesMax() {
	svc := s.newService([]Source{
		scoringSource("OFAC", 40),
		scoringSource("EU", 96),
		scoringSource("UN", 60),
	})

	result, err := svc.Screen(s.ctx, testEntity())
	s.Require().NoError(err)
	s.InDelta(96, result.ConsolidatedScore, 0.001)
	s.True(result.MatchFound)
	s.Equal(ActionBlockImmediate, result.Action)
}

func (s *ScreeningSuite) TestTimedOutSourceIsNoResultNotClear() {
	svc := s.newService([]Source{scoringSource("OFAC", 90), hangingSource("EU")})

	result, err := svc.Screen(s.ctx, testEntity())
	s.Require().NoError(err)
	s.InDelta(90, result.ConsolidatedScore, 0.001)
	s.True(result.MatchFound)
	s.True(result.Incomplete)
	s.True(result.ReviewRequired)
	s.Equal(SourceNoResult, result.SourceStatuses["EU"])
	s.GreaterOrEqual(actionRank[result.Action], actionRank[ActionFlagForReview],
		"an incomplete screening must carry at least FLAG_FOR_REVIEW")
}

func (s *ScreeningSuite) TestIncompletenessFloorsLowScores() {
	svc := s.newService([]Source{scoringSource("OFAC", 5), hangingSource("EU")})

	result, err := svc.Screen(s.ctx, testEntity())
	s.Require().NoError(err)
	s.False(result.MatchFound)
	s.True(result.Incomplete)
	s.Equal(ActionFlagForReview, result.Action)
}

func (s *ScreeningSuite) TestTotalFailureFailsSafe() {
	svc := s.newService([]Source{hangingSource("OFAC"), failingSource("EU")})

	result, err := svc.Screen(s.ctx, testEntity())
	s.Require().ErrorIs(err, ErrAllSourcesFailed)
	s.Require().NotNil(result)
	s.True(result.MatchFound)
	s.True(result.ReviewRequired)
	s.Equal(ActionFlagForReview, result.Action)
}

func (s *ScreeningSuite) TestCacheReusesDisposition() {
	src := scoringSource("OFAC", 90)
	svc := s.newService([]Source{src})

	first, err := svc.Screen(s.ctx, testEntity())
	s.Require().NoError(err)

	second, err := svc.Screen(s.ctx, testEntity())
	s.Require().NoError(err)
	s.Equal(first.ScreeningID, second.ScreeningID)
	s.Equal(int64(1), src.calls.Load(), "cache hits must not re-screen")
}

func (s *ScreeningSuite) TestSourcePolicySelectsSubset() {
	ofac := scoringSource("OFAC", 0)
	eu := scoringSource("EU", 0)
	pep := scoringSource("PEP", 0)
	svc := s.newService([]Source{ofac, eu, pep},
		WithSourcePolicy(DefaultSourcePolicy("OFAC", "PEP")),
	)

	domestic := Entity{ID: "entity-2", Name: "Jane Doe", Type: EntityIndividual, Country: "US", Risk: RiskLow}
	result, err := svc.Screen(s.ctx, domestic)
	s.Require().NoError(err)
	s.Len(result.SourceStatuses, 2)
	s.Equal(int64(0), eu.calls.Load(), "low-risk domestic entities skip international lists")

	crossBorder := testEntity()
	_, err = svc.Screen(s.ctx, crossBorder)
	s.Require().NoError(err)
	s.Equal(int64(1), eu.calls.Load())
}

func (s *ScreeningSuite) TestOpenBreakerSkipsSource() {
	bad := failingSource("EU")
	svc := s.newService([]Source{scoringSource("OFAC", 10), bad},
		WithBreakerOptions(resilience.WithFailureThreshold(2), resilience.WithCooldown(time.Hour)),
	)

	// Distinct entities defeat the result cache so every call screens.
	for i := 0; i < 3; i++ {
		e := testEntity()
		e.Name = fmt.Sprintf("Entity %d", i)
		_, err := svc.Screen(s.ctx, e)
		s.Require().NoError(err)
	}

	state, ok := svc.BreakerState("EU")
	s.Require().True(ok)
	s.Equal(resilience.StateOpen, state)
	s.Equal(int64(2), bad.calls.Load(), "open breaker short-circuits further calls")
}

func (s *ScreeningSuite) TestSecondaryPassNeedsJustification() {
	svc := s.newService([]Source{scoringSource("OFAC", 90)},
		WithSecondaryPass(func(_ Entity, _ Result) (float64, string, bool) {
			return 10, "", true // no justification: must be ignored
		}),
	)
	result, err := svc.Screen(s.ctx, testEntity())
	s.Require().NoError(err)
	s.InDelta(90, result.ConsolidatedScore, 0.001)
	s.True(result.MatchFound)
	s.Empty(result.Justification)
}

func (s *ScreeningSuite) TestSecondaryPassLowersWithJustification() {
	svc := s.newService([]Source{scoringSource("OFAC", 90)},
		WithSecondaryPass(func(_ Entity, _ Result) (float64, string, bool) {
			return 60, "common-name false positive, DOB mismatch", true
		}),
	)
	result, err := svc.Screen(s.ctx, testEntity())
	s.Require().NoError(err)
	s.InDelta(60, result.ConsolidatedScore, 0.001)
	s.False(result.MatchFound)
	s.Equal(ActionMonitor, result.Action, "an adjusted score of 60 still sits in the monitor band")
	s.NotEmpty(result.Justification)
}

type failingStore struct{}

func (failingStore) SaveResult(context.Context, *Result) error {
	return fmt.Errorf("audit db unavailable")
}

func (s *ScreeningSuite) TestStoreFailureBlocksDisposition() {
	svc := s.newService([]Source{scoringSource("OFAC", 96)}, WithStore(failingStore{}))

	_, err := svc.Screen(s.ctx, testEntity())
	s.Require().Error(err, "no audit record, no blocking action")
}

func TestActionBands(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		score float64
		risk  RiskLevel
		want  Action
	}{
		{96, RiskMedium, ActionBlockImmediate},
		{95, RiskMedium, ActionBlockImmediate},
		{90, RiskMedium, ActionBlockPendingReview},
		{85, RiskMedium, ActionBlockPendingReview},
		{75, RiskMedium, ActionFlagForReview},
		{55, RiskMedium, ActionMonitor},
		{10, RiskMedium, ActionClear},
		{10, RiskHigh, ActionMonitor}, // high-risk floor
		{0, RiskLow, ActionClear},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, th.ActionFor(tc.score, tc.risk), "score=%v risk=%s", tc.score, tc.risk)
	}
}

func TestCacheKeyNormalization(t *testing.T) {
	a := Entity{Name: "  alexei   petrov ", Type: EntityIndividual, Country: "ru"}
	b := Entity{Name: "ALEXEI PETROV", Type: EntityIndividual, Country: "RU"}
	require.NotEqual(t, a.Name, b.Name)
	assert.Equal(t, a.CacheKey(), b.CacheKey())
}

func TestListSourceMatching(t *testing.T) {
	src := NewListSource("OFAC", []ListEntry{
		{Name: "Alexei Petrov", Country: "RU", Score: 95, Details: "SDN entry 12345"},
	})

	score, details, err := src.Screen(context.Background(), Entity{Name: "ALEXEI  PETROV", Country: "RU"})
	require.NoError(t, err)
	assert.InDelta(t, 95, score, 0.001)
	assert.NotEmpty(t, details)

	// Country mismatch damps but does not erase the hit.
	score, _, err = src.Screen(context.Background(), Entity{Name: "Alexei Petrov", Country: "DE"})
	require.NoError(t, err)
	assert.InDelta(t, 76, score, 0.001)

	score, _, err = src.Screen(context.Background(), Entity{Name: "Nobody Special", Country: "US"})
	require.NoError(t, err)
	assert.Zero(t, score)
}
