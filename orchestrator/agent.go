// Package orchestrator implements the SwarmOrchestrator: agent
// registry, model routing, and dispatch of DAG tasks to remote agent
// processes through the broker's RPUSH/BLPOP protocol.
package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"
)

// AgentLifecycleStatus is an agent's registration state.
type AgentLifecycleStatus string

const (
	AgentActive       AgentLifecycleStatus = "active"
	AgentDeregistered AgentLifecycleStatus = "deregistered"
)

// Agent is a registered execution target for dispatched tasks.
type Agent struct {
	ID          string
	Models      []string
	MaxLoad     int
	RegisteredAt time.Time

	mu          sync.Mutex
	status      AgentLifecycleStatus
	currentLoad int

	totalDispatched atomic.Uint64
	totalFailed     atomic.Uint64
}

func NewAgent(id string, models []string, maxLoad int) *Agent {
	return &Agent{
		ID:           id,
		Models:       models,
		MaxLoad:      maxLoad,
		RegisteredAt: time.Now(),
		status:       AgentActive,
	}
}

// IsAvailable reports whether the agent is active and below its
// configured load ceiling.
func (a *Agent) IsAvailable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status == AgentActive && a.currentLoad < a.MaxLoad
}

func (a *Agent) acquireSlot() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != AgentActive || a.currentLoad >= a.MaxLoad {
		return false
	}
	a.currentLoad++
	return true
}

func (a *Agent) releaseSlot() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentLoad > 0 {
		a.currentLoad--
	}
}

func (a *Agent) CurrentLoad() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentLoad
}

// Registry tracks the set of known agents, round-robining selection
// across those available for a given model.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*Agent
	order  []string
	rrIdx  int
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

func (r *Registry) Register(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.ID]; !exists {
		r.order = append(r.order, a.ID)
	}
	r.agents[a.ID] = a
}

// Deregister transitions an agent to a terminal state and excludes it
// from round-robin selection without erasing its cumulative dispatch
// metrics. Supplemented from original_source/orchestrator/mod.rs, which
// the distilled spec dropped.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.mu.Lock()
		a.status = AgentDeregistered
		a.mu.Unlock()
	}
}

// SelectForModel returns the next available agent (round-robin) that
// serves model, or nil if none are available.
func (r *Registry) SelectForModel(model string) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.order)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		idx := (r.rrIdx + i) % n
		a := r.agents[r.order[idx]]
		if a == nil || !a.IsAvailable() {
			continue
		}
		if !servesModel(a, model) {
			continue
		}
		r.rrIdx = (idx + 1) % n
		return a
	}
	return nil
}

func servesModel(a *Agent, model string) bool {
	if model == "" || len(a.Models) == 0 {
		return true
	}
	for _, m := range a.Models {
		if m == model {
			return true
		}
	}
	return false
}

func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	return a, ok
}
