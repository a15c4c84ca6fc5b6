package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestURLSetNoDuplicates(t *testing.T) {
	s := NewURLSet()

	added := s.Add("https://example.com/1")
	if !added {
		t.Error("first Add should return true")
	}

	added = s.Add("https://example.com/1")
	if added {
		t.Error("second Add of same URL should return false")
	}

	if s.Size() != 1 {
		t.Errorf("size: got %d, want 1", s.Size())
	}
}

func TestURLSetConcurrency(t *testing.T) {
	s := NewURLSet()
	var added int64

	pool := NewWorkerPool(10, 0)
	for i := 0; i < 100; i++ {
		url := "https://example.com/same"
		pool.Submit(context.Background(), func() {
			if s.Add(url) {
				atomic.AddInt64(&added, 1)
			}
		})
	}
	pool.Wait()

	if added != 1 {
		t.Errorf("expected exactly 1 successful add, got %d", added)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(3, 0)
	if pool.Size() != 3 {
		t.Fatalf("size: got %d, want 3", pool.Size())
	}

	var inflight, peak int64
	for i := 0; i < 20; i++ {
		pool.Submit(context.Background(), func() {
			n := atomic.AddInt64(&inflight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inflight, -1)
		})
	}
	pool.Wait()

	if peak > 3 {
		t.Errorf("peak concurrency %d exceeds pool size 3", peak)
	}
}

func TestWorkerPoolRateLimit(t *testing.T) {
	rateLimitMs := 100
	pool := NewWorkerPool(1, rateLimitMs)

	var timestamps []time.Time
	mu := make(chan struct{}, 1)
	mu <- struct{}{}

	for i := 0; i < 3; i++ {
		pool.Submit(context.Background(), func() {
			<-mu
			timestamps = append(timestamps, time.Now())
			mu <- struct{}{}
		})
	}
	pool.Wait()

	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		// allow for scheduling between the limiter and the timestamp
		min := time.Duration(rateLimitMs) * time.Millisecond * 9 / 10
		if gap < min {
			t.Errorf("gap between job %d and %d: %v < minimum %v", i-1, i, gap, min)
		}
	}
}

func TestWorkerPoolSkipsJobsAfterCancel(t *testing.T) {
	pool := NewWorkerPool(2, 300)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var ran int64
	start := time.Now()
	for i := 0; i < 6; i++ {
		pool.Submit(ctx, func() { atomic.AddInt64(&ran, 1) })
	}
	pool.Wait()

	if ran != 1 {
		t.Errorf("only the first job fits before the deadline, %d ran", ran)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("pool kept pacing after cancellation: took %v", elapsed)
	}
}

func TestWorkerPoolCancelledContext(t *testing.T) {
	pool := NewWorkerPool(4, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int64
	for i := 0; i < 5; i++ {
		pool.Submit(ctx, func() { atomic.AddInt64(&ran, 1) })
	}
	pool.Wait()

	if ran != 0 {
		t.Errorf("no job should run on a cancelled context, %d ran", ran)
	}
}
