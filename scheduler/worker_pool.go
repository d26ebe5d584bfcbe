package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apexorch/apex/apexerr"
)

// Outcome tags how a permit's scope of work concluded.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// Permit is a scoped slot acquired from a WorkerPool. Release must be
// called exactly once; calling it more than once, or never marking an
// outcome, is safe — an unreleased-outcome permit defaults to Unknown.
type Permit struct {
	pool      *WorkerPool
	acquired  time.Time
	once      sync.Once
	released  atomic.Bool
}

// Release returns the permit to the pool and records how the scoped
// work concluded. Idempotent.
func (p *Permit) Release(outcome Outcome) {
	p.once.Do(func() {
		p.pool.release(outcome, time.Since(p.acquired))
	})
}

// WorkerPool is a counting-semaphore-backed bounded pool of execution
// slots, generalized from FluxForge scheduler.go's inline
// activeTasks/mutex permit accounting into a standalone primitive with
// richer stats and an explicit acquire/release API.
type WorkerPool struct {
	mu       sync.Mutex
	sem      chan struct{}
	capacity int

	submissions    atomic.Uint64
	successes      atomic.Uint64
	failures       atomic.Uint64
	unknownOutcome atomic.Uint64
	timeouts       atomic.Uint64
	peakInFlight   atomic.Int64
	inFlight       atomic.Int64
	totalWaitNs    atomic.Int64
	totalExecNs    atomic.Int64
}

func NewWorkerPool(capacity int) *WorkerPool {
	return &WorkerPool{
		sem:      make(chan struct{}, capacity),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *WorkerPool) Acquire(ctx context.Context) (*Permit, error) {
	start := time.Now()
	p.submissions.Add(1)
	select {
	case p.sem <- struct{}{}:
		p.totalWaitNs.Add(int64(time.Since(start)))
		return p.newPermit(start), nil
	case <-ctx.Done():
		p.timeouts.Add(1)
		return nil, apexerr.Wrap(apexerr.Timeout, "timed out waiting for worker pool slot", ctx.Err())
	}
}

// TryAcquire attempts a non-blocking acquire.
func (p *WorkerPool) TryAcquire() (*Permit, bool) {
	select {
	case p.sem <- struct{}{}:
		p.submissions.Add(1)
		return p.newPermit(time.Now()), true
	default:
		return nil, false
	}
}

func (p *WorkerPool) newPermit(acquiredAt time.Time) *Permit {
	n := p.inFlight.Add(1)
	for {
		peak := p.peakInFlight.Load()
		if n <= peak || p.peakInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	return &Permit{pool: p, acquired: acquiredAt}
}

func (p *WorkerPool) release(outcome Outcome, execDur time.Duration) {
	<-p.sem
	p.inFlight.Add(-1)
	p.totalExecNs.Add(int64(execDur))
	switch outcome {
	case OutcomeSuccess:
		p.successes.Add(1)
	case OutcomeFailure:
		p.failures.Add(1)
	default:
		p.unknownOutcome.Add(1)
	}
}

// Spawn acquires a permit, runs fn in a goroutine, and releases the
// permit with Success/Failure based on fn's return value. It returns
// immediately after acquiring — callers that need to wait should use
// a channel or WaitGroup of their own.
func (p *WorkerPool) Spawn(ctx context.Context, fn func(context.Context) error) error {
	permit, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				permit.Release(OutcomeFailure)
			}
		}()
		if err := fn(ctx); err != nil {
			permit.Release(OutcomeFailure)
		} else {
			permit.Release(OutcomeSuccess)
		}
	}()
	return nil
}

// SpawnBackground runs fn without resource accounting on outcome; used
// for fire-and-forget housekeeping goroutines.
func (p *WorkerPool) SpawnBackground(fn func()) {
	go func() {
		defer func() { recover() }()
		fn()
	}()
}

// Resize updates the pool's nominal capacity used for utilization
// reporting. It does not reallocate the underlying semaphore — shrink
// takes effect as in-flight permits drain naturally, grow requires a
// new WorkerPool since a buffered channel's capacity is fixed at
// creation.
func (p *WorkerPool) Resize(newCap int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capacity = newCap
}

// PoolStats summarizes pool activity for dashboards/metrics scraping.
type PoolStats struct {
	Capacity        int
	InFlight        int64
	PeakConcurrency int64
	Submissions     uint64
	Successes       uint64
	Failures        uint64
	Unknown         uint64
	Timeouts        uint64
	SuccessRate     float64
	Utilization     float64
	AvgWaitMs       float64
	AvgExecMs       float64
}

func (p *WorkerPool) Stats() PoolStats {
	subs := p.submissions.Load()
	succ := p.successes.Load()
	fail := p.failures.Load()
	unk := p.unknownOutcome.Load()
	completed := succ + fail + unk
	var successRate float64
	if completed > 0 {
		successRate = float64(succ) / float64(completed)
	}
	p.mu.Lock()
	cap := p.capacity
	p.mu.Unlock()
	var util float64
	if cap > 0 {
		util = float64(p.inFlight.Load()) / float64(cap)
	}
	var avgWait, avgExec float64
	if subs > 0 {
		avgWait = float64(p.totalWaitNs.Load()) / float64(subs) / 1e6
	}
	if completed > 0 {
		avgExec = float64(p.totalExecNs.Load()) / float64(completed) / 1e6
	}
	return PoolStats{
		Capacity:        cap,
		InFlight:        p.inFlight.Load(),
		PeakConcurrency: p.peakInFlight.Load(),
		Submissions:     subs,
		Successes:       succ,
		Failures:        fail,
		Unknown:         unk,
		Timeouts:        p.timeouts.Load(),
		SuccessRate:     successRate,
		Utilization:     util,
		AvgWaitMs:       avgWait,
		AvgExecMs:       avgExec,
	}
}
