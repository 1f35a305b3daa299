package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrRateLimit indicates that the API rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// RetryPolicy is the single backoff policy applied to every provider call.
type RetryPolicy struct {
	// Retryable decides whether a failure is worth another attempt.
	// Defaults to IsRetryable.
	Retryable    func(error) bool
	Logger       *slog.Logger
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.Retryable == nil {
		p.Retryable = IsRetryable
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// Do runs operation until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. An exhausted retry wraps both
// ErrMaxRetries and the last error so callers can still inspect it.
func (p RetryPolicy) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	p = p.withDefaults()
	delay := p.InitialDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}

		if !p.Retryable(err) {
			return err
		}

		if attempt == p.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, p.MaxAttempts, err)
		}

		// Rate limits back off harder.
		if errors.Is(err, ErrRateLimit) && delay < p.MaxDelay/2 {
			delay = p.MaxDelay / 2
		}

		p.Logger.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		case <-timer.C:
			delay = time.Duration(float64(delay) * p.Multiplier)
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}

	return ErrMaxRetries
}
