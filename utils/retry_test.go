package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicySucceedsAfterTransientFailures(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, Logger: NewNopLogger()}

	calls := 0
	outcome, err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeSuccess {
		t.Errorf("outcome: got %v, want success", outcome)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryPolicyExhausted(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 2, Logger: NewNopLogger()}

	calls := 0
	outcome, err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errors.New("still failing")
	})
	if outcome != OutcomeExhausted {
		t.Errorf("outcome: got %v, want exhausted", outcome)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
}

func TestRetryPolicyAbortsOnPermanent(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 5, Logger: NewNopLogger()}
	parseErr := errors.New("bad payload")

	calls := 0
	outcome, err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return Permanent(parseErr)
	})
	if outcome != OutcomeAborted {
		t.Errorf("outcome: got %v, want aborted", outcome)
	}
	if !errors.Is(err, parseErr) {
		t.Errorf("expected wrapped parse error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestRetryPolicyWaitsBackoffBetweenAttempts(t *testing.T) {
	var waits []int
	p := &RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(attempt int) time.Duration {
			waits = append(waits, attempt)
			return time.Millisecond
		},
	}

	_, _ = p.Do(context.Background(), "op", func(context.Context) error {
		return errors.New("x")
	})
	if len(waits) != 2 || waits[0] != 1 || waits[1] != 2 {
		t.Errorf("backoff calls: got %v, want [1 2]", waits)
	}
}

func TestRetryPolicyCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &RetryPolicy{MaxAttempts: 3, Backoff: func(int) time.Duration { return time.Hour }}

	outcome, err := p.Do(ctx, "op", func(context.Context) error {
		cancel()
		return errors.New("x")
	})
	if outcome != OutcomeCanceled {
		t.Errorf("outcome: got %v, want canceled", outcome)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLinearCappedBackoff(t *testing.T) {
	b := LinearCappedBackoff(time.Second, 3, 10)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 3 * time.Second},
		{2, 6 * time.Second},
		{3, 9 * time.Second},
		{4, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := b(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v; want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(2 * time.Second)
	if got := b(1); got != 2*time.Second {
		t.Errorf("backoff(1) = %v", got)
	}
	if got := b(3); got != 8*time.Second {
		t.Errorf("backoff(3) = %v", got)
	}
}
