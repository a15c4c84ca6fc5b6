package utils

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WorkerPool runs submitted jobs on at most maxWorkers goroutines, with an
// optional minimum interval between job starts.
type WorkerPool struct {
	maxWorkers int
	limiter    *rate.Limiter
	semaphore  chan struct{}
	wg         sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool with the given concurrency and rate limit.
// A rateLimitMs of 0 disables pacing.
func NewWorkerPool(maxWorkers, rateLimitMs int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	wp := &WorkerPool{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
	}
	if rateLimitMs > 0 {
		wp.limiter = rate.NewLimiter(rate.Every(time.Duration(rateLimitMs)*time.Millisecond), 1)
	}
	return wp
}

// Size returns the number of concurrent workers.
func (wp *WorkerPool) Size() int {
	return wp.maxWorkers
}

// Submit enqueues a job for execution in the pool. It blocks while all
// workers are busy. The job is skipped if ctx is done before its turn
// comes up.
func (wp *WorkerPool) Submit(ctx context.Context, job func()) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		if err := wp.wait(ctx); err != nil {
			return
		}
		job()
	}()
}

// Wait blocks until all submitted jobs have completed or been skipped.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) wait(ctx context.Context) error {
	if wp.limiter == nil {
		return ctx.Err()
	}
	return wp.limiter.Wait(ctx)
}

// URLSet is a thread-safe set for tracking visited URLs.
type URLSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewURLSet creates an empty URLSet.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add returns true if the URL was newly added, false if already present.
func (s *URLSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[url]; exists {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

// Size returns the number of unique URLs tracked.
func (s *URLSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
