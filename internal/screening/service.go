package screening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"comply/internal/resilience"
	"comply/internal/screening/metrics"
	"comply/pkg/platform/sentinel"
)

// ErrAllSourcesFailed reports a total screening failure: no source returned
// within the deadline. The accompanying result is the fail-safe disposition;
// callers running under the resilience pipeline should still surface the
// error so the request dead-letters for manual review.
var ErrAllSourcesFailed = fmt.Errorf("all screening sources failed: %w", sentinel.ErrUnavailable)

// Store persists completed screening results for audit.
type Store interface {
	SaveResult(ctx context.Context, r *Result) error
}

// Config bounds the screening fan-out.
type Config struct {
	OverallTimeout   time.Duration
	PerSourceTimeout time.Duration
	MaxConcurrent    int64
	CacheTTL         time.Duration
}

// DefaultConfig returns the production screening bounds.
func DefaultConfig() Config {
	return Config{
		OverallTimeout:   3 * time.Second,
		PerSourceTimeout: 2 * time.Second,
		MaxConcurrent:    8,
		CacheTTL:         15 * time.Minute,
	}
}

// Service runs the configured match sources concurrently and consolidates
// their verdicts into one disposition. Source calls run on their own
// bounded pool so a slow provider cannot exhaust event-consumption
// capacity.
type Service struct {
	sources    []Source
	policy     SourcePolicy
	thresholds Thresholds
	secondary  SecondaryPass
	cache      ResultCache
	store      Store
	breakers   map[string]*resilience.Breaker
	sem        *semaphore.Weighted
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithSourcePolicy overrides the default all-sources policy.
func WithSourcePolicy(p SourcePolicy) ServiceOption {
	return func(s *Service) { s.policy = p }
}

// WithThresholds overrides the default action bands.
func WithThresholds(t Thresholds) ServiceOption {
	return func(s *Service) { s.thresholds = t }
}

// WithSecondaryPass installs the false-positive-reduction model.
func WithSecondaryPass(sp SecondaryPass) ServiceOption {
	return func(s *Service) { s.secondary = sp }
}

// WithStore installs the audit store for completed results.
func WithStore(st Store) ServiceOption {
	return func(s *Service) { s.store = st }
}

// WithMetrics installs the screening metrics.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithBreakerOptions applies options to every per-source breaker.
func WithBreakerOptions(opts ...resilience.BreakerOption) ServiceOption {
	return func(s *Service) {
		for _, src := range s.sources {
			s.breakers[src.Name()] = resilience.NewBreaker("screening."+src.Name(), opts...)
		}
	}
}

// WithScreeningClock injects a clock for tests.
func WithScreeningClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService constructs the consolidator over the given sources.
func NewService(sources []Source, cache ResultCache, cfg Config, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		sources:    sources,
		policy:     func(_ Entity, available []Source) []Source { return available },
		thresholds: DefaultThresholds(),
		cache:      cache,
		breakers:   make(map[string]*resilience.Breaker, len(sources)),
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
		tracer:     otel.Tracer("comply/screening"),
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, src := range sources {
		s.breakers[src.Name()] = resilience.NewBreaker("screening." + src.Name())
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sourceOutcome is one source's contribution, delivered over the collection
// channel.
type sourceOutcome struct {
	name    string
	score   float64
	details string
	ok      bool
}

// Screen runs the applicable sources for the entity and consolidates their
// verdicts. Sources that miss the overall deadline are recorded NO_RESULT,
// and any NO_RESULT forces the action to at least FLAG_FOR_REVIEW: an
// incomplete screening never reads as clear.
func (s *Service) Screen(ctx context.Context, e Entity) (*Result, error) {
	start := s.now()

	key := e.CacheKey()
	if cached, hit, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("screening cache read failed", "key", key, "error", err)
	} else if hit {
		s.metrics.RecordCacheLookup("hit")
		s.logger.Debug("screening cache hit", "entity_id", e.ID, "action", cached.Action)
		return cached, nil
	}
	s.metrics.RecordCacheLookup("miss")

	selected := s.policy(e, s.sources)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no screening sources apply to entity %s: %w", e.ID, sentinel.ErrValidation)
	}

	ctx, span := s.tracer.Start(ctx, "screening.fanout",
		trace.WithAttributes(
			attribute.String("screening.entity_type", string(e.Type)),
			attribute.String("screening.country", e.Country),
			attribute.Int("screening.sources", len(selected)),
		))
	defer span.End()

	octx, cancel := context.WithTimeout(ctx, s.cfg.OverallTimeout)
	defer cancel()

	ch := make(chan sourceOutcome, len(selected))
	for _, src := range selected {
		go s.screenSource(octx, src, e, ch)
	}

	scores := make(map[string]float64, len(selected))
	statuses := make(map[string]SourceStatus, len(selected))
	for _, src := range selected {
		statuses[src.Name()] = SourceNoResult
	}

	// Collect until every source has reported or the overall deadline
	// fires; the deadline cancels outstanding calls and whatever is in
	// hand goes to consolidation as a partial result.
	for received := 0; received < len(selected); {
		select {
		case out := <-ch:
			received++
			if out.ok {
				scores[out.name] = out.score
				statuses[out.name] = SourceReturned
			}
		case <-octx.Done():
			received = len(selected)
		}
	}

	result := s.consolidate(e, scores, statuses)
	span.SetAttributes(
		attribute.String("screening.action", string(result.Action)),
		attribute.Bool("screening.incomplete", result.Incomplete),
	)

	if s.store != nil {
		if err := s.store.SaveResult(ctx, result); err != nil {
			// The audit record must exist before any blocking action
			// executes; without it the disposition cannot be applied.
			return nil, fmt.Errorf("persist screening result %s: %w", result.ScreeningID, err)
		}
	}
	if err := s.cache.Set(ctx, key, result, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("screening cache write failed", "key", key, "error", err)
	}

	s.metrics.RecordAction(string(result.Action))
	s.metrics.ObserveScreenLatency(s.now().Sub(start))
	s.logger.Info("screening complete",
		"entity_id", e.ID,
		"screening_id", result.ScreeningID,
		"score", result.ConsolidatedScore,
		"match_found", result.MatchFound,
		"incomplete", result.Incomplete,
		"action", result.Action,
	)

	if len(scores) == 0 {
		return result, ErrAllSourcesFailed
	}
	return result, nil
}

// screenSource runs one source call under the pool semaphore, the source's
// breaker, and the per-source timeout.
func (s *Service) screenSource(ctx context.Context, src Source, e Entity, ch chan<- sourceOutcome) {
	name := src.Name()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		ch <- sourceOutcome{name: name}
		return
	}
	defer s.sem.Release(1)

	b := s.breakers[name]
	if !b.Allow() {
		s.metrics.RecordSourceOutcome(name, "no_result")
		s.logger.Warn("screening source circuit open", "source", name)
		ch <- sourceOutcome{name: name}
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.PerSourceTimeout)
	defer cancel()

	start := s.now()
	score, details, err := src.Screen(callCtx, e)
	s.metrics.ObserveSourceLatency(name, s.now().Sub(start))

	if err != nil {
		if change := b.RecordFailure(); change.Opened {
			s.logger.Error("CRITICAL: screening source circuit opened", "source", name)
		}
		s.metrics.RecordSourceOutcome(name, "no_result")
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("screening source failed", "source", name, "entity_id", e.ID, "error", err)
		}
		ch <- sourceOutcome{name: name}
		return
	}

	b.RecordSuccess()
	s.metrics.RecordSourceOutcome(name, "result")
	ch <- sourceOutcome{name: name, score: score, details: details, ok: true}
}

// consolidate merges per-source verdicts: max over returned scores, match
// against the threshold, optional secondary pass, then the action bands
// with the incompleteness floor.
func (s *Service) consolidate(e Entity, scores map[string]float64, statuses map[string]SourceStatus) *Result {
	var consolidated float64
	for _, score := range scores {
		if score > consolidated {
			consolidated = score
		}
	}

	incomplete := len(scores) < len(statuses)
	totalFailure := len(scores) == 0
	matchFound := consolidated >= s.thresholds.Match

	result := &Result{
		ScreeningID:     uuid.New(),
		EntityID:        e.ID,
		PerSourceScores: scores,
		SourceStatuses:  statuses,
		Incomplete:      incomplete,
		CompletedAt:     s.now(),
	}

	// Secondary pass runs only on a raw hit and may lower the score, but
	// only with a recorded justification.
	if matchFound && s.secondary != nil {
		if adjusted, justification, ok := s.secondary(e, *result); ok && justification != "" && adjusted < consolidated {
			s.logger.Info("secondary pass lowered screening score",
				"entity_id", e.ID, "raw", consolidated, "adjusted", adjusted)
			consolidated = adjusted
			matchFound = consolidated >= s.thresholds.Match
			result.Justification = justification
		}
	}

	result.ConsolidatedScore = consolidated
	result.MatchFound = matchFound
	result.Action = s.thresholds.ActionFor(consolidated, e.Risk)

	if incomplete {
		result.Action = result.Action.AtLeast(ActionFlagForReview)
		result.ReviewRequired = true
	}
	if totalFailure {
		result.MatchFound = true
		result.Action = result.Action.AtLeast(ActionFlagForReview)
	}
	return result
}

// BreakerState reports a source breaker's state for health reporting.
func (s *Service) BreakerState(source string) (resilience.State, bool) {
	b, ok := s.breakers[source]
	if !ok {
		return "", false
	}
	return b.State(), true
}
