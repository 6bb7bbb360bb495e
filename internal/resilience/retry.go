package resilience

import (
	"context"
	"errors"
	"time"

	"comply/pkg/platform/sentinel"
)

// RetryConfig bounds the retry loop for one unit of work. Delay grows as
// delay * multiplier^attempt, capped at MaxDelay.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetry mirrors the processing SLA: three attempts with short
// exponential backoff keeps worst-case handler latency bounded.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
	}
}

// retry runs fn up to MaxAttempts times, backing off between attempts.
// Validation-class errors abort immediately; only retryable errors consume
// further attempts. The returned error is the last attempt's error.
func retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !sentinel.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
