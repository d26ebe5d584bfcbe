package contracts

import (
	"sync/atomic"
	"time"

	"github.com/apexorch/apex/apexerr"
)

// ThresholdLevel classifies how close a contract is to its limits.
type ThresholdLevel int

const (
	Normal ThresholdLevel = iota
	Warning
	Critical
	Exceeded
)

func (l ThresholdLevel) String() string {
	switch l {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	case Exceeded:
		return "exceeded"
	default:
		return "normal"
	}
}

// FromPercentage classifies a 0..N ratio (usage/limit) into a level,
// using the exact boundaries from original_source/contracts/enforcement.rs:
// <0.7 Normal, [0.7,0.9) Warning, [0.9,1.0) Critical, >=1.0 Exceeded.
func FromPercentage(pct float64) ThresholdLevel {
	switch {
	case pct >= 1.0:
		return Exceeded
	case pct >= 0.9:
		return Critical
	case pct >= 0.7:
		return Warning
	default:
		return Normal
	}
}

// EnforcementConfig controls which dimensions are enforced and how
// soft overruns are handled.
type EnforcementConfig struct {
	EnforceTokens    bool
	EnforceCost      bool
	EnforceAPICalls  bool
	EnforceTime      bool
	WarningThreshold float64
	CriticalThreshold float64
	AllowSoftOverrun bool
	MaxSoftOverrun   float64 // e.g. 0.1 == 10% over limit still allowed
}

func DefaultEnforcementConfig() EnforcementConfig {
	return EnforcementConfig{
		EnforceTokens:     true,
		EnforceCost:       true,
		EnforceAPICalls:   true,
		EnforceTime:       true,
		WarningThreshold:  0.7,
		CriticalThreshold: 0.9,
		AllowSoftOverrun:  false,
		MaxSoftOverrun:    0.1,
	}
}

// ValidationResult is the outcome of validating estimated usage against
// a contract.
type ValidationResult struct {
	Allowed        bool
	DeniedResource string // "tokens", "cost", "api_calls", "time", or "" if allowed
	Level          ThresholdLevel
	Warnings       []string
}

func okResult(level ThresholdLevel) ValidationResult {
	return ValidationResult{Allowed: true, Level: level}
}

func deniedResult(resource string, level ThresholdLevel) ValidationResult {
	return ValidationResult{Allowed: false, DeniedResource: resource, Level: level}
}

func (r ValidationResult) HasWarnings() bool { return len(r.Warnings) > 0 }
func (r ValidationResult) IsCritical() bool  { return r.Level == Critical || r.Level == Exceeded }

// EnforcementStats tracks allow/deny counts for observability.
type EnforcementStats struct {
	Allowed atomic.Uint64
	Denied  atomic.Uint64
}

func (s *EnforcementStats) DenialRate() float64 {
	a, d := s.Allowed.Load(), s.Denied.Load()
	total := a + d
	if total == 0 {
		return 0
	}
	return float64(d) / float64(total)
}

// ContractEnforcer validates estimated usage against an AgentContract
// before it is allowed to proceed, and subsequently records confirmed
// usage against the contract. Algorithm grounded on
// original_source/contracts/enforcement.rs.
type ContractEnforcer struct {
	cfg   EnforcementConfig
	stats EnforcementStats
}

func NewContractEnforcer(cfg EnforcementConfig) *ContractEnforcer {
	return &ContractEnforcer{cfg: cfg}
}

// Validate checks whether estTokens/estCost could be spent against c
// without violating its limits, applying the soft-overrun policy to
// tokens/cost/api_calls but never to time.
func (e *ContractEnforcer) Validate(c *AgentContract, estTokens uint64, estCost float64) ValidationResult {
	now := time.Now()
	if c.Status() != StatusActive {
		e.stats.Denied.Add(1)
		return deniedResult("status", Exceeded)
	}
	if c.expired(now) {
		e.stats.Denied.Add(1)
		return deniedResult("expired", Exceeded)
	}

	usage := c.Usage()

	if e.cfg.EnforceTime && c.Limits.MaxDuration > 0 && usage.Elapsed >= c.Limits.MaxDuration {
		e.stats.Denied.Add(1)
		return deniedResult("time", Exceeded)
	}

	worst := Normal
	var warnings []string

	if e.cfg.EnforceTokens && c.Limits.MaxTokens > 0 {
		projected := usage.Tokens + estTokens
		pct := float64(projected) / float64(c.Limits.MaxTokens)
		level := FromPercentage(pct)
		if level > worst {
			worst = level
		}
		if level == Exceeded && !e.softOverrunAllows(pct) {
			e.stats.Denied.Add(1)
			return deniedResult("tokens", level)
		}
		if level >= Warning {
			warnings = append(warnings, "tokens")
		}
	}

	if e.cfg.EnforceCost && c.Limits.MaxCostUSD > 0 {
		projected := usage.CostUSD + estCost
		pct := projected / c.Limits.MaxCostUSD
		level := FromPercentage(pct)
		if level > worst {
			worst = level
		}
		if level == Exceeded && !e.softOverrunAllows(pct) {
			e.stats.Denied.Add(1)
			return deniedResult("cost", level)
		}
		if level >= Warning {
			warnings = append(warnings, "cost")
		}
	}

	if e.cfg.EnforceAPICalls && c.Limits.MaxAPICalls > 0 {
		// An estimate is always exactly one prospective call, matching
		// original_source's enforcement.rs (api_calls projected as
		// current+1, never a variable estimate).
		projected := usage.APICalls + 1
		pct := float64(projected) / float64(c.Limits.MaxAPICalls)
		level := FromPercentage(pct)
		if level > worst {
			worst = level
		}
		if level == Exceeded && !e.softOverrunAllows(pct) {
			e.stats.Denied.Add(1)
			return deniedResult("api_calls", level)
		}
		if level >= Warning {
			warnings = append(warnings, "api_calls")
		}
	}

	e.stats.Allowed.Add(1)
	return ValidationResult{Allowed: true, Level: worst, Warnings: warnings}
}

// softOverrunAllows reports whether a projected-usage percentage over
// 100% is still tolerated under the soft-overrun policy.
func (e *ContractEnforcer) softOverrunAllows(pct float64) bool {
	if !e.cfg.AllowSoftOverrun {
		return false
	}
	return pct <= 1.0+e.cfg.MaxSoftOverrun
}

// ValidateChildContract enforces the conservation law: a child's limits
// may never exceed its parent's remaining budget at creation time.
func (e *ContractEnforcer) ValidateChildContract(child, parent *AgentContract) error {
	rem := parent.Remaining()
	if child.Limits.MaxTokens > rem.MaxTokens {
		return apexerr.New(apexerr.ContractViolation, "child token limit exceeds parent remaining budget").
			WithContext("dimension", "tokens")
	}
	if child.Limits.MaxCostUSD > rem.MaxCostUSD {
		return apexerr.New(apexerr.ContractViolation, "child cost limit exceeds parent remaining budget").
			WithContext("dimension", "cost")
	}
	if child.Limits.MaxAPICalls > rem.MaxAPICalls {
		return apexerr.New(apexerr.ContractViolation, "child api_calls limit exceeds parent remaining budget").
			WithContext("dimension", "api_calls")
	}
	if parent.Limits.MaxDuration > 0 && child.Limits.MaxDuration > rem.MaxDuration {
		return apexerr.New(apexerr.ContractViolation, "child time limit exceeds parent remaining budget").
			WithContext("dimension", "time")
	}
	return nil
}

// CanAllocate is a convenience wrapper returning only the boolean
// admission decision of Validate.
func (e *ContractEnforcer) CanAllocate(c *AgentContract, estTokens uint64, estCost float64) bool {
	return e.Validate(c, estTokens, estCost).Allowed
}

// RecordUsage writes confirmed usage through to the contract's own
// counters, then checks the post-record totals against the contract's
// hard limits. Unlike Validate, this check ignores the soft-overrun
// policy: once usage has actually been incurred, a limit it pushed past
// is a hard violation regardless of AllowSoftOverrun, per
// original_source/contracts/enforcement.rs's record_usage.
func (e *ContractEnforcer) RecordUsage(c *AgentContract, tokens uint64, cost float64, apiCalls uint64) error {
	if tokens > 0 {
		c.RecordTokens(tokens)
	}
	if cost > 0 {
		c.RecordCost(cost)
	}
	for i := uint64(0); i < apiCalls; i++ {
		c.RecordAPICall()
	}

	usage := c.Usage()
	if e.cfg.EnforceTokens && c.Limits.MaxTokens > 0 && usage.Tokens > c.Limits.MaxTokens {
		return apexerr.New(apexerr.ContractViolation, "recorded usage exceeded token limit").
			WithContext("dimension", "tokens").WithContext("agent_id", c.AgentID)
	}
	if e.cfg.EnforceCost && c.Limits.MaxCostUSD > 0 && usage.CostUSD > c.Limits.MaxCostUSD {
		return apexerr.New(apexerr.ContractViolation, "recorded usage exceeded cost limit").
			WithContext("dimension", "cost").WithContext("agent_id", c.AgentID)
	}
	if e.cfg.EnforceAPICalls && c.Limits.MaxAPICalls > 0 && usage.APICalls > c.Limits.MaxAPICalls {
		return apexerr.New(apexerr.ContractViolation, "recorded usage exceeded api_call limit").
			WithContext("dimension", "api_calls").WithContext("agent_id", c.AgentID)
	}
	return nil
}

func (e *ContractEnforcer) Stats() *EnforcementStats { return &e.stats }

// ContractEnforcerBuilder provides a fluent construction API mirroring
// the teacher's Default*Config + field-override convention.
type ContractEnforcerBuilder struct {
	cfg EnforcementConfig
}

func NewContractEnforcerBuilder() *ContractEnforcerBuilder {
	return &ContractEnforcerBuilder{cfg: DefaultEnforcementConfig()}
}

func (b *ContractEnforcerBuilder) WithSoftOverrun(allow bool, max float64) *ContractEnforcerBuilder {
	b.cfg.AllowSoftOverrun = allow
	b.cfg.MaxSoftOverrun = max
	return b
}

func (b *ContractEnforcerBuilder) WithThresholds(warning, critical float64) *ContractEnforcerBuilder {
	b.cfg.WarningThreshold = warning
	b.cfg.CriticalThreshold = critical
	return b
}

func (b *ContractEnforcerBuilder) Build() *ContractEnforcer {
	return NewContractEnforcer(b.cfg)
}
