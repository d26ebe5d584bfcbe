package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWorkerPoolAcquireRelease(t *testing.T) {
	pool := NewWorkerPool(2)
	ctx := context.Background()

	p1, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := pool.TryAcquire(); ok {
		t.Fatalf("expected pool at capacity to deny a third acquire")
	}

	p1.Release(OutcomeSuccess)
	if _, ok := pool.TryAcquire(); !ok {
		t.Fatalf("expected a slot to free up after release")
	}
	p2.Release(OutcomeFailure)

	stats := pool.Stats()
	if stats.Successes != 1 || stats.Failures != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestWorkerPoolAcquireTimeout(t *testing.T) {
	pool := NewWorkerPool(1)
	_, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	if err == nil {
		t.Fatalf("expected timeout error when pool is exhausted")
	}
}

func TestWorkerPoolReleaseIdempotent(t *testing.T) {
	pool := NewWorkerPool(1)
	p, _ := pool.Acquire(context.Background())
	p.Release(OutcomeSuccess)
	p.Release(OutcomeSuccess) // must not double-count or panic

	stats := pool.Stats()
	if stats.Successes != 1 {
		t.Fatalf("expected release to be idempotent, got %d successes", stats.Successes)
	}
}

func TestWorkerPoolSpawnDefaultsOutcome(t *testing.T) {
	pool := NewWorkerPool(4)
	var wg sync.WaitGroup
	wg.Add(1)
	err := pool.Spawn(context.Background(), func(ctx context.Context) error {
		defer wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wg.Wait()
	time.Sleep(10 * time.Millisecond) // allow release to land
	stats := pool.Stats()
	if stats.Successes != 1 {
		t.Fatalf("expected successful spawn to count as success, got %+v", stats)
	}
}
