// Package retry runs fallible UI operations under a bounded, fixed-delay
// retry policy.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// Name identifies the operation in log entries and hooks.
	Name string

	// MaxAttempts is the total number of calls, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the fixed pause between attempts.
	Delay time.Duration

	// OnRetry, if set, fires after every failed non-final attempt.
	OnRetry func(name string, attempt int, err error)
}

// Run calls op until it succeeds or the policy is exhausted.
func Run(ctx context.Context, p Policy, logger *slog.Logger, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do calls op until it succeeds or the policy is exhausted, returning the
// value of the first successful call. The last failure is returned unchanged.
// A cancelled context stops retrying; the last op error is then joined with
// the context error.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		logger.Warn("attempt failed, retrying",
			"operation", p.Name,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
			"retry_in", p.Delay,
		)
		if p.OnRetry != nil {
			p.OnRetry(p.Name, attempt, err)
		}

		if p.Delay > 0 {
			select {
			case <-time.After(p.Delay):
			case <-ctx.Done():
				return zero, errors.Join(lastErr, ctx.Err())
			}
		} else if ctx.Err() != nil {
			return zero, errors.Join(lastErr, ctx.Err())
		}
	}

	logger.Error("all attempts failed",
		"operation", p.Name,
		"max_attempts", attempts,
		"error", lastErr,
	)
	return zero, lastErr
}
