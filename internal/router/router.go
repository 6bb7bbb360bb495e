package router

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"comply/internal/dedup"
	"comply/internal/platform/kafka/consumer"
	"comply/internal/platform/metrics"
	"comply/internal/resilience"
)

// EventHandler processes one decoded event type. The returned error is
// classified by the resilience pipeline: validation errors dead-letter
// immediately, transient errors retry then dead-letter.
type EventHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Fingerprinter lets a handler derive an identity-based fingerprint from
// the payload. Handlers that do not implement it fall back to the
// (topic, partition, offset) key, which dedups broker redeliveries only.
type Fingerprinter interface {
	Fingerprint(msg *consumer.Message) (dedup.Fingerprint, bool)
}

// Router is the composition root for inbound compliance events: dedup
// first, then the registered handler under the resilience pipeline, then
// fingerprint commit once the event's fate is resolved.
type Router struct {
	handlers map[string]registration
	dedup    *dedup.Cache
	pipeline *resilience.Pipeline
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

type registration struct {
	operation string
	handler   EventHandler
}

// New constructs an empty router.
func New(cache *dedup.Cache, pipeline *resilience.Pipeline, m *metrics.Metrics, logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[string]registration),
		dedup:    cache,
		pipeline: pipeline,
		metrics:  m,
		tracer:   otel.Tracer("comply/router"),
		logger:   logger,
	}
}

// Register binds a topic to a handler under a pipeline operation name. The
// operation name keys the circuit breaker, so topics sharing a downstream
// dependency may share an operation.
func (r *Router) Register(topic, operation string, h EventHandler) {
	r.handlers[topic] = registration{operation: operation, handler: h}
}

// Handle implements consumer.Handler. A nil return commits the offset;
// an error leaves the message for redelivery. The fate contract: the
// message is committed exactly once, after it has either been processed
// or durably dead-lettered, never before.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	reg, ok := r.handlers[msg.Topic]
	if !ok {
		r.logger.Warn("no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "router.handle",
		trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
	defer span.End()

	fp := r.fingerprint(reg.handler, msg)
	if !r.dedup.ShouldProcess(fp) {
		r.metrics.EventsDuplicate.Inc()
		span.SetAttributes(attribute.Bool("duplicate", true))
		r.logger.Debug("duplicate event skipped",
			"topic", msg.Topic,
			"fingerprint", string(fp),
		)
		return nil
	}

	start := time.Now()
	outcome, err := r.pipeline.Execute(ctx, reg.operation, correlationID(msg), msg.Value,
		func(ctx context.Context) error {
			return reg.handler.Handle(ctx, msg)
		})
	r.metrics.ObserveHandlerDuration(msg.Topic, time.Since(start).Seconds())

	if err != nil {
		// Fate unresolved (e.g. the dead-letter write itself failed):
		// leave the offset uncommitted so the broker redelivers.
		span.RecordError(err)
		span.SetStatus(codes.Error, "fate unresolved")
		r.metrics.RecordConsumed(msg.Topic, "unresolved")
		return err
	}

	// MarkProcessed only after completed side effects; a dead-lettered
	// event did not run to completion and must not poison a future
	// legitimate retry of the same logical occurrence.
	if outcome != resilience.OutcomeDeadLettered {
		r.dedup.MarkProcessed(fp)
	} else {
		r.metrics.RecordDeadLetter(reg.operation)
	}
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	r.metrics.RecordConsumed(msg.Topic, string(outcome))
	return nil
}

func (r *Router) fingerprint(h EventHandler, msg *consumer.Message) dedup.Fingerprint {
	if fper, ok := h.(Fingerprinter); ok {
		if fp, ok := fper.Fingerprint(msg); ok {
			return fp
		}
	}
	return dedup.FromOffset(msg.Topic, msg.Partition, msg.Offset)
}

// correlationID prefers the producer-set header, then the message key, so
// escalation alerts can always point back at the originating event.
func correlationID(msg *consumer.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "correlation_id" && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	if len(msg.Key) > 0 {
		return string(msg.Key)
	}
	return string(dedup.FromOffset(msg.Topic, msg.Partition, msg.Offset))
}
