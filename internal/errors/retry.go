package errors

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (not including initial attempt).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// Jitter adds a uniform random duration in [0, Jitter) to each delay
	// to prevent thundering herd. Zero disables it.
	Jitter time.Duration

	// RetryIf classifies an error as retryable. A nil RetryIf retries
	// every error; an error RetryIf rejects is returned immediately,
	// unwrapped.
	RetryIf func(error) bool

	// DelayFor, when set, overrides the exponential schedule: it receives
	// the error that triggered the retry and the 0-based attempt number
	// and returns the delay before the next attempt. Jitter and MaxDelay
	// still apply on top.
	DelayFor func(err error, attempt int) time.Duration
}

// DefaultRetryConfig returns sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry executes a function with exponential backoff retry logic.
// It retries up to MaxRetries times if the function returns an error the
// config classifies as retryable. The delay between retries grows
// exponentially, capped at MaxDelay. On exhaustion the last error is
// returned as-is, so callers can still inspect its code. If the context is
// cancelled, it returns the context error immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes a function that returns a value with retry logic.
// Similar to Retry but for functions that return both a result and an error.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		waitDelay := delay
		if cfg.DelayFor != nil {
			waitDelay = cfg.DelayFor(err, attempt)
		}
		if cfg.Jitter > 0 {
			waitDelay += time.Duration(rand.Int63n(int64(cfg.Jitter)))
		}
		if cfg.MaxDelay > 0 && waitDelay > cfg.MaxDelay {
			waitDelay = cfg.MaxDelay
		}

		// Wait before retrying (with context cancellation support)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(waitDelay):
		}

		// Calculate next delay with exponential backoff
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}
