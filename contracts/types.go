// Package contracts implements hierarchical resource budgets for agent
// work: ResourceLimits/ResourceUsage accounting, a lock-free usage
// tracker, and an enforcer that validates estimated usage against a
// contract before dispatch.
package contracts

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResourceLimits bounds what a contract may spend.
type ResourceLimits struct {
	MaxTokens   uint64
	MaxCostUSD  float64
	MaxAPICalls uint64
	MaxDuration time.Duration
}

// ResourceUsage is a point-in-time snapshot of consumption.
type ResourceUsage struct {
	Tokens   uint64
	CostUSD  float64
	APICalls uint64
	Elapsed  time.Duration
}

// Status is the lifecycle state of an AgentContract.
type Status string

const (
	StatusActive    Status = "active"
	StatusExhausted Status = "exhausted"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// AgentContract is a hierarchical resource budget. Children's limits
// must never exceed their parent's remaining budget at creation time
// (the conservation law enforced by ContractEnforcer.ValidateChildContract).
type AgentContract struct {
	ID        uuid.UUID
	ParentID  *uuid.UUID
	AgentID   string
	Limits    ResourceLimits
	CreatedAt time.Time
	ExpiresAt *time.Time

	mu     sync.Mutex
	status Status
	tokens uint64
	cost   uint64 // micro-dollars, matches UsageTracker's representation
	calls  uint64
}

// NewAgentContract creates a root or child contract in StatusActive.
func NewAgentContract(agentID string, limits ResourceLimits, parent *uuid.UUID) *AgentContract {
	return &AgentContract{
		ID:        uuid.New(),
		ParentID:  parent,
		AgentID:   agentID,
		Limits:    limits,
		CreatedAt: time.Now(),
		status:    StatusActive,
	}
}

func (c *AgentContract) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *AgentContract) SetStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// Usage returns the contract's current cumulative consumption.
func (c *AgentContract) Usage() ResourceUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ResourceUsage{
		Tokens:   c.tokens,
		CostUSD:  float64(c.cost) / 1_000_000.0,
		APICalls: c.calls,
		Elapsed:  time.Since(c.CreatedAt),
	}
}

// Remaining computes limit-minus-usage per dimension, floored at zero.
func (c *AgentContract) Remaining() ResourceLimits {
	u := c.Usage()
	rem := ResourceLimits{
		MaxTokens:   subFloor(c.Limits.MaxTokens, u.Tokens),
		MaxCostUSD:  maxf(0, c.Limits.MaxCostUSD-u.CostUSD),
		MaxAPICalls: subFloor(c.Limits.MaxAPICalls, u.APICalls),
	}
	if c.Limits.MaxDuration > 0 {
		left := c.Limits.MaxDuration - u.Elapsed
		if left < 0 {
			left = 0
		}
		rem.MaxDuration = left
	}
	return rem
}

// RecordTokens, RecordCost and RecordAPICall apply usage directly to
// the contract without re-validating against limits; ContractEnforcer
// is responsible for pre-validation before these are called.
func (c *AgentContract) RecordTokens(n uint64) {
	c.mu.Lock()
	c.tokens += n
	c.mu.Unlock()
}

func (c *AgentContract) RecordCost(usd float64) {
	micros := uint64(usd * 1_000_000.0)
	c.mu.Lock()
	c.cost += micros
	c.mu.Unlock()
}

func (c *AgentContract) RecordAPICall() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *AgentContract) expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

func subFloor(limit, used uint64) uint64 {
	if used >= limit {
		return 0
	}
	return limit - used
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
