package contracts

import (
	"testing"
	"time"

	"github.com/apexorch/apex/apexerr"
)

func TestThresholdLevelBoundaries(t *testing.T) {
	cases := []struct {
		pct  float64
		want ThresholdLevel
	}{
		{0.0, Normal},
		{0.69, Normal},
		{0.7, Warning},
		{0.89, Warning},
		{0.9, Critical},
		{0.99, Critical},
		{1.0, Exceeded},
		{1.5, Exceeded},
	}
	for _, c := range cases {
		if got := FromPercentage(c.pct); got != c.want {
			t.Errorf("FromPercentage(%v) = %v, want %v", c.pct, got, c.want)
		}
	}
}

func TestValidateSoftOverrunAllowed(t *testing.T) {
	enf := NewContractEnforcerBuilder().WithSoftOverrun(true, 0.1).Build()
	c := NewAgentContract("agent-1", ResourceLimits{MaxTokens: 10000}, nil)
	c.RecordTokens(9500)

	// projected = 9500+1000 = 10500 -> 105%, within 10% soft overrun.
	res := enf.Validate(c, 1000, 0)
	if !res.Allowed {
		t.Fatalf("expected soft overrun within 10%% to be allowed")
	}

	// projected = 9500+2000 = 11500 -> 115%, beyond 10% soft overrun.
	res = enf.Validate(c, 2000, 0)
	if res.Allowed {
		t.Fatalf("expected overrun beyond soft limit to be denied")
	}
	if res.DeniedResource != "tokens" {
		t.Fatalf("expected denial reason 'tokens', got %q", res.DeniedResource)
	}
}

func TestValidateTimeNeverSoftOverrun(t *testing.T) {
	enf := NewContractEnforcerBuilder().WithSoftOverrun(true, 1.0).Build()
	c := NewAgentContract("agent-1", ResourceLimits{MaxDuration: 0}, nil)
	// force elapsed beyond limit
	c.Limits.MaxDuration = time.Second
	c.CreatedAt = c.CreatedAt.Add(-2 * time.Second)

	res := enf.Validate(c, 0, 0)
	if res.Allowed {
		t.Fatalf("time overruns must always be denied regardless of soft-overrun config")
	}
	if res.DeniedResource != "time" {
		t.Fatalf("expected denial reason 'time', got %q", res.DeniedResource)
	}
}

func TestValidateAPICallsProjectedAsPlusOne(t *testing.T) {
	enf := NewContractEnforcerBuilder().Build()
	c := NewAgentContract("agent-1", ResourceLimits{MaxAPICalls: 3}, nil)
	c.RecordAPICall()

	// used=1, projected=1+1=2, 2/3 = 0.666 -> Normal, allowed.
	res := enf.Validate(c, 0, 0)
	if !res.Allowed {
		t.Fatalf("expected projected api_calls of used+1 to stay under limit: %+v", res)
	}

	c.RecordAPICall()
	// used=2, projected=2+1=3, 3/3 = 1.0 -> Exceeded, denied (no soft overrun).
	res = enf.Validate(c, 0, 0)
	if res.Allowed {
		t.Fatalf("expected projected api_calls at 100%% to be denied without soft overrun")
	}
	if res.DeniedResource != "api_calls" {
		t.Fatalf("expected denial reason 'api_calls', got %q", res.DeniedResource)
	}
}

func TestValidateChildContractConservation(t *testing.T) {
	enf := NewContractEnforcerBuilder().Build()
	parent := NewAgentContract("parent", ResourceLimits{MaxTokens: 1000, MaxCostUSD: 10, MaxAPICalls: 100}, nil)
	parent.RecordTokens(400)

	okChild := NewAgentContract("child", ResourceLimits{MaxTokens: 500, MaxCostUSD: 5, MaxAPICalls: 50}, &parent.ID)
	if err := enf.ValidateChildContract(okChild, parent); err != nil {
		t.Fatalf("expected child within remaining budget to pass, got %v", err)
	}

	badChild := NewAgentContract("child2", ResourceLimits{MaxTokens: 700, MaxCostUSD: 5, MaxAPICalls: 50}, &parent.ID)
	if err := enf.ValidateChildContract(badChild, parent); err == nil {
		t.Fatalf("expected child exceeding parent remaining tokens to fail conservation check")
	}
}

func TestRecordUsageWritesThrough(t *testing.T) {
	enf := NewContractEnforcerBuilder().Build()
	c := NewAgentContract("agent-1", ResourceLimits{MaxTokens: 1000, MaxAPICalls: 10}, nil)
	if err := enf.RecordUsage(c, 50, 0.02, 3); err != nil {
		t.Fatalf("expected no error within limits, got %v", err)
	}

	u := c.Usage()
	if u.Tokens != 50 || u.APICalls != 3 {
		t.Fatalf("expected usage written through, got %+v", u)
	}
}

func TestRecordUsageReturnsErrorOnHardLimitExceeded(t *testing.T) {
	enf := NewContractEnforcerBuilder().Build()
	c := NewAgentContract("agent-1", ResourceLimits{MaxTokens: 100}, nil)

	err := enf.RecordUsage(c, 150, 0, 0)
	if err == nil {
		t.Fatalf("expected error when recorded tokens exceed the hard limit")
	}
	if kind, ok := apexerr.KindOf(err); !ok || kind != apexerr.ContractViolation {
		t.Fatalf("expected a contract_violation error, got %v", err)
	}

	// Usage is still written through even though it violates the limit —
	// RecordUsage reports the violation, it doesn't refuse to record it.
	if c.Usage().Tokens != 150 {
		t.Fatalf("expected usage recorded despite violation, got %+v", c.Usage())
	}
}

func TestValidateDeniedOnInactiveStatus(t *testing.T) {
	enf := NewContractEnforcerBuilder().Build()
	c := NewAgentContract("agent-1", ResourceLimits{MaxTokens: 1000}, nil)
	c.SetStatus(StatusExhausted)

	res := enf.Validate(c, 1, 0)
	if res.Allowed {
		t.Fatalf("expected validation to deny a non-active contract")
	}
}
