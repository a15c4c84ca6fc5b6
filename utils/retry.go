package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted is returned when every attempt failed with a transient error.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Outcome classifies how a retried operation ended.
type Outcome int

const (
	// OutcomeSuccess means one attempt returned nil.
	OutcomeSuccess Outcome = iota
	// OutcomeExhausted means all attempts failed with transient errors.
	OutcomeExhausted
	// OutcomeAborted means an attempt returned a permanent error.
	OutcomeAborted
	// OutcomeCanceled means the context ended while waiting between attempts.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeAborted:
		return "aborted"
	case OutcomeCanceled:
		return "canceled"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. RetryPolicy.Do stops immediately on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// BackoffFunc returns the wait after the given failed attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// LinearCappedBackoff waits min(step*attempt, max) units after each failure.
func LinearCappedBackoff(unit time.Duration, step, max int) BackoffFunc {
	return func(attempt int) time.Duration {
		n := step * attempt
		if n > max {
			n = max
		}
		return time.Duration(n) * unit
	}
}

// ExponentialBackoff doubles base after each failure.
func ExponentialBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return base << uint(attempt-1)
	}
}

// RetryPolicy holds the parameters for the retry strategy. It does not know
// anything about the operation it retries.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Logger      *Logger
}

// Do executes fn until it succeeds, returns a permanent error, or MaxAttempts
// transient failures happened. The wait between attempts honours ctx.
func (r *RetryPolicy) Do(ctx context.Context, operationName string, fn func(ctx context.Context) error) (Outcome, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return OutcomeSuccess, nil
		}
		if IsPermanent(lastErr) {
			return OutcomeAborted, fmt.Errorf("%s: %w", operationName, lastErr)
		}
		if attempt == attempts {
			break
		}

		var delay time.Duration
		if r.Backoff != nil {
			delay = r.Backoff(attempt)
		}
		if r.Logger != nil {
			r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
				operationName, attempt, attempts, lastErr, delay)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return OutcomeCanceled, fmt.Errorf("%s: %w", operationName, err)
		}
	}

	return OutcomeExhausted, fmt.Errorf("%s failed after %d attempts: %w: %w",
		operationName, attempts, ErrRetriesExhausted, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
