package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"comply/pkg/platform/sentinel"
)

// Outcome is the resolved fate of one Execute call.
type Outcome string

const (
	// OutcomeProcessed means the unit of work completed.
	OutcomeProcessed Outcome = "processed"
	// OutcomeFallback means the circuit was open and the registered
	// fallback handled the event instead.
	OutcomeFallback Outcome = "fallback"
	// OutcomeDeadLettered means processing permanently failed and the
	// event was routed to the dead-letter topic.
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// DeadLetter carries everything an operator needs to locate the original
// event and its failure reason.
type DeadLetter struct {
	Operation     string    `json:"operation"`
	CorrelationID string    `json:"correlation_id"`
	Cause         string    `json:"cause"`
	Payload       []byte    `json:"payload"`
	FailedAt      time.Time `json:"failed_at"`
}

// DeadLetterer routes permanently failed events to a dead-letter sink. The
// write must be durable before the inbound event is acknowledged.
type DeadLetterer interface {
	Send(ctx context.Context, dl DeadLetter) error
}

// Alerter raises operator alerts. Best-effort: implementations must not be
// load-bearing for the caller's transaction.
type Alerter interface {
	SendAlert(ctx context.Context, title, body, severity string) error
}

// Fallback handles an event while the circuit for its operation is open,
// e.g. by routing it to a manual-review queue.
type Fallback func(ctx context.Context, correlationID string, payload []byte) error

// Pipeline wraps a unit of work with retry, circuit breaking, and
// dead-letter escalation. One breaker per operation name; breakers are
// created lazily and shared across concurrent partition workers.
type Pipeline struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	retryCfg    RetryConfig
	breakerOpts []BreakerOption
	fallbacks   map[string]Fallback

	dlq     DeadLetterer
	alerter Alerter
	logger  *slog.Logger
}

// PipelineOption configures the pipeline.
type PipelineOption func(*Pipeline)

// WithRetry overrides the retry configuration.
func WithRetry(cfg RetryConfig) PipelineOption {
	return func(p *Pipeline) { p.retryCfg = cfg }
}

// WithBreakerOptions applies options to every breaker the pipeline creates.
func WithBreakerOptions(opts ...BreakerOption) PipelineOption {
	return func(p *Pipeline) { p.breakerOpts = opts }
}

// NewPipeline creates a pipeline. The dead-letterer is required; the
// alerter may be nil when escalation has no channel (tests).
func NewPipeline(dlq DeadLetterer, alerter Alerter, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		breakers:  make(map[string]*Breaker),
		fallbacks: make(map[string]Fallback),
		retryCfg:  DefaultRetry(),
		dlq:       dlq,
		alerter:   alerter,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterFallback installs the open-circuit handler for an operation.
func (p *Pipeline) RegisterFallback(operation string, fb Fallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallbacks[operation] = fb
}

// Breaker returns the breaker guarding an operation, creating it on first use.
func (p *Pipeline) Breaker(operation string) *Breaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.breakers[operation]
	if !ok {
		b = NewBreaker(operation, p.breakerOpts...)
		p.breakers[operation] = b
	}
	return b
}

// Execute runs the unit of work under the operation's breaker and the retry
// policy, resolving the event's fate exactly once. A non-nil error means the
// fate could NOT be resolved (the dead-letter write itself failed) and the
// inbound event must stay unacknowledged.
func (p *Pipeline) Execute(ctx context.Context, operation, correlationID string, payload []byte, fn func(ctx context.Context) error) (Outcome, error) {
	b := p.Breaker(operation)

	if !b.Allow() {
		return p.fallback(ctx, operation, correlationID, payload)
	}

	err := retry(ctx, p.retryCfg, fn)
	if err == nil {
		if change := b.RecordSuccess(); change.Closed {
			p.logger.Info("circuit closed", "operation", operation)
		}
		return OutcomeProcessed, nil
	}

	if errors.Is(err, sentinel.ErrValidation) {
		// Deterministic failure: not an operation-health signal, and
		// retrying cannot fix malformed input.
		p.logger.Error("validation failure, dead-lettering without retry",
			"operation", operation,
			"correlation_id", correlationID,
			"error", err,
		)
		return p.deadLetter(ctx, operation, correlationID, payload, err)
	}

	if change := b.RecordFailure(); change.Opened {
		p.logger.Error("circuit opened", "operation", operation)
		if p.alerter != nil {
			if alertErr := p.alerter.SendAlert(ctx,
				"Circuit opened: "+operation,
				fmt.Sprintf("operation %s exceeded its failure threshold, routing to fallback", operation),
				"critical",
			); alertErr != nil {
				p.logger.Error("circuit-open alert failed", "operation", operation, "error", alertErr)
			}
		}
	}
	return p.deadLetter(ctx, operation, correlationID, payload, err)
}

// fallback invokes the registered open-circuit handler, or dead-letters when
// no fallback exists for the operation.
func (p *Pipeline) fallback(ctx context.Context, operation, correlationID string, payload []byte) (Outcome, error) {
	p.mu.Lock()
	fb := p.fallbacks[operation]
	p.mu.Unlock()

	if fb == nil {
		return p.deadLetter(ctx, operation, correlationID, payload,
			fmt.Errorf("circuit open with no fallback: %w", sentinel.ErrUnavailable))
	}
	if err := fb(ctx, correlationID, payload); err != nil {
		p.logger.Error("fallback failed",
			"operation", operation,
			"correlation_id", correlationID,
			"error", err,
		)
		return p.deadLetter(ctx, operation, correlationID, payload, err)
	}
	p.logger.Warn("circuit open, event handled by fallback",
		"operation", operation,
		"correlation_id", correlationID,
	)
	return OutcomeFallback, nil
}

// deadLetter routes the event to the dead-letter sink and escalates.
// Escalation is best-effort; the dead-letter write is not.
func (p *Pipeline) deadLetter(ctx context.Context, operation, correlationID string, payload []byte, cause error) (Outcome, error) {
	dl := DeadLetter{
		Operation:     operation,
		CorrelationID: correlationID,
		Cause:         cause.Error(),
		Payload:       payload,
		FailedAt:      time.Now(),
	}
	if err := p.dlq.Send(ctx, dl); err != nil {
		// Fate unresolved: leave the inbound event unacknowledged.
		return "", fmt.Errorf("dead-letter routing failed: %w", err)
	}

	p.logger.Error("CRITICAL: compliance event dead-lettered",
		"operation", operation,
		"correlation_id", correlationID,
		"cause", cause,
	)
	if p.alerter != nil {
		if err := p.alerter.SendAlert(ctx,
			"Compliance event dead-lettered: "+operation,
			fmt.Sprintf("correlation_id=%s cause=%v", correlationID, cause),
			"critical",
		); err != nil {
			p.logger.Error("dead-letter escalation alert failed",
				"operation", operation,
				"correlation_id", correlationID,
				"error", err,
			)
		}
	}
	return OutcomeDeadLettered, nil
}
