// Package scheduler implements task admission control: a consecutive-
// failure circuit breaker (global and per-agent), a bounded worker
// pool, and a priority-aged task queue.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// CircuitState is the breaker's admission state.
type CircuitState int

const (
	Closed CircuitState = iota
	Open
	HalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker is a consecutive-failure-count state machine, grounded
// on original_source/orchestrator/circuit_breaker.rs: Closed allows
// everything; on failure_threshold consecutive failures it opens; after
// recovery_timeout it moves to half-open and allows one probe; any
// success in half-open closes it, any failure in half-open reopens it
// immediately. This differs from the teacher's own queue-depth-based
// breaker (control_plane/scheduler/circuit_breaker.go), which is not
// reused here — see DESIGN.md.
type CircuitBreaker struct {
	mu              sync.RWMutex
	state           CircuitState
	openedAt        time.Time
	failureThresh   uint32
	recoveryTimeout time.Duration

	failureCount   atomic.Uint32
	totalSuccesses atomic.Uint64
	totalFailures  atomic.Uint64
}

// NewCircuitBreaker creates a Closed breaker with the given threshold
// and recovery timeout.
func NewCircuitBreaker(failureThreshold uint32, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:           Closed,
		failureThresh:   failureThreshold,
		recoveryTimeout: recoveryTimeout,
	}
}

// CanExecute reports whether a new attempt may proceed, transitioning
// Open->HalfOpen when the recovery timeout has elapsed.
func (b *CircuitBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.recoveryTimeout {
			b.state = HalfOpen
			return true
		}
		return false
	}
	return false
}

// RecordSuccess closes the breaker from HalfOpen, or resets the
// consecutive-failure count from Closed. A no-op while Open.
func (b *CircuitBreaker) RecordSuccess() {
	b.totalSuccesses.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.openedAt = time.Time{}
		b.failureCount.Store(0)
	case Closed:
		b.failureCount.Store(0)
	}
}

// RecordFailure reopens the breaker immediately from HalfOpen (exactly
// one failure suffices), or increments the consecutive-failure count
// from Closed, opening once the threshold is reached. A no-op while
// already Open.
func (b *CircuitBreaker) RecordFailure() {
	b.totalFailures.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = time.Now()
	case Closed:
		n := b.failureCount.Add(1)
		if n >= b.failureThresh {
			b.state = Open
			b.openedAt = time.Now()
		}
	}
}

func (b *CircuitBreaker) GetState() CircuitState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *CircuitBreaker) Stats() (successes, failures uint64, failureCount uint32) {
	return b.totalSuccesses.Load(), b.totalFailures.Load(), b.failureCount.Load()
}

// OpenReason tags why an agent's breaker was forced open.
type OpenReason string

const (
	ReasonConsecutiveFailures OpenReason = "consecutive_failures"
	ReasonLoopDetected        OpenReason = "loop_detected"
)

// AgentCircuitState is a snapshot of a single agent's breaker state,
// including its current exponential backoff multiplier.
type AgentCircuitState struct {
	State             CircuitState
	FailureCount      uint32
	OpenedAt          time.Time
	BackoffMultiplier int
	TotalSuccesses    uint64
	TotalFailures     uint64
	OpenReason        OpenReason
}

type agentEntry struct {
	breaker    *CircuitBreaker
	mu         sync.Mutex
	multiplier int
	reason     OpenReason
}

// AgentCircuitBreakerRegistry maintains one global breaker plus a
// per-agent breaker map, each with its own exponential backoff
// multiplier (clamped to [1, maxBackoffMultiplier]) applied on top of
// baseRecoveryTimeout.
type AgentCircuitBreakerRegistry struct {
	Global *CircuitBreaker

	mu                   sync.RWMutex
	agents               map[string]*agentEntry
	agentFailureThresh   uint32
	baseRecoveryTimeout  time.Duration
	maxBackoffMultiplier int
}

func NewAgentCircuitBreakerRegistry(globalFailureThresh, agentFailureThresh uint32, baseRecoveryTimeout time.Duration, maxBackoffMultiplier int) *AgentCircuitBreakerRegistry {
	return &AgentCircuitBreakerRegistry{
		Global:               NewCircuitBreaker(globalFailureThresh, baseRecoveryTimeout),
		agents:               make(map[string]*agentEntry),
		agentFailureThresh:   agentFailureThresh,
		baseRecoveryTimeout:  baseRecoveryTimeout,
		maxBackoffMultiplier: maxBackoffMultiplier,
	}
}

func (r *AgentCircuitBreakerRegistry) entry(agentID string) *agentEntry {
	r.mu.RLock()
	e, ok := r.agents[agentID]
	r.mu.RUnlock()
	if ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.agents[agentID]; ok {
		return e
	}
	e = &agentEntry{
		breaker:    NewCircuitBreaker(r.agentFailureThresh, r.baseRecoveryTimeout),
		multiplier: 1,
	}
	r.agents[agentID] = e
	return e
}

// CanExecute checks both the global breaker and the agent's own
// breaker; both must admit.
func (r *AgentCircuitBreakerRegistry) CanExecute(agentID string) bool {
	if !r.Global.CanExecute() {
		return false
	}
	return r.entry(agentID).breaker.CanExecute()
}

// RecordSuccess resets the agent's backoff multiplier to 1 on recovery.
func (r *AgentCircuitBreakerRegistry) RecordSuccess(agentID string) {
	r.Global.RecordSuccess()
	e := r.entry(agentID)
	e.breaker.RecordSuccess()
	e.mu.Lock()
	if e.breaker.GetState() == Closed {
		e.multiplier = 1
		e.reason = ""
	}
	e.mu.Unlock()
}

// RecordFailure doubles the agent's backoff multiplier (capped) each
// time its breaker opens.
func (r *AgentCircuitBreakerRegistry) RecordFailure(agentID string) {
	r.Global.RecordFailure()
	e := r.entry(agentID)
	e.breaker.RecordFailure()
	if e.breaker.GetState() == Open {
		e.mu.Lock()
		if e.reason == "" {
			e.reason = ReasonConsecutiveFailures
		}
		e.multiplier *= 2
		if e.multiplier > r.maxBackoffMultiplier {
			e.multiplier = r.maxBackoffMultiplier
		}
		e.mu.Unlock()
	}
}

// OpenForLoopDetection forcibly opens an agent's breaker with the
// LoopDetected reason, raising its backoff multiplier to at least 4
// (independent of the consecutive-failure count).
func (r *AgentCircuitBreakerRegistry) OpenForLoopDetection(agentID string) {
	e := r.entry(agentID)
	e.breaker.mu.Lock()
	e.breaker.state = Open
	e.breaker.openedAt = time.Now()
	e.breaker.mu.Unlock()

	e.mu.Lock()
	if e.multiplier < 4 {
		e.multiplier = 4
	}
	e.reason = ReasonLoopDetected
	e.mu.Unlock()
}

// State returns a snapshot of a single agent's circuit state.
func (r *AgentCircuitBreakerRegistry) State(agentID string) AgentCircuitState {
	e := r.entry(agentID)
	successes, failures, failureCount := e.breaker.Stats()
	e.mu.Lock()
	defer e.mu.Unlock()
	return AgentCircuitState{
		State:             e.breaker.GetState(),
		FailureCount:      failureCount,
		OpenedAt:          e.breaker.openedAt,
		BackoffMultiplier: e.multiplier,
		TotalSuccesses:    successes,
		TotalFailures:     failures,
		OpenReason:        e.reason,
	}
}

// EffectiveRecoveryTimeout returns the agent's backoff-scaled recovery
// timeout (baseRecoveryTimeout * multiplier).
func (r *AgentCircuitBreakerRegistry) EffectiveRecoveryTimeout(agentID string) time.Duration {
	e := r.entry(agentID)
	e.mu.Lock()
	m := e.multiplier
	e.mu.Unlock()
	e.breaker.mu.Lock()
	e.breaker.recoveryTimeout = r.baseRecoveryTimeout * time.Duration(m)
	e.breaker.mu.Unlock()
	return r.baseRecoveryTimeout * time.Duration(m)
}
