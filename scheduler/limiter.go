package scheduler

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter bounds dispatch frequency per key (an agent id). Grounded
// on FluxForge scheduler/limiter.go's TokenBucketLimiter, narrowed to
// the Allow/Reserve surface the orchestrator actually calls.
type RateLimiter interface {
	Allow(key string) bool
}

// AgentRateLimiter is a token-bucket limiter keyed by agent id, so a
// single noisy agent can't starve the others of dispatch bandwidth.
type AgentRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewAgentRateLimiter creates a limiter allowing r dispatches per
// second per agent, with burst b.
func NewAgentRateLimiter(r float64, b int) *AgentRateLimiter {
	return &AgentRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		b:        b,
	}
}

func (l *AgentRateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = lim
	}
	return lim
}

// Allow reports whether a dispatch to key may proceed right now,
// consuming a token if so.
func (l *AgentRateLimiter) Allow(key string) bool {
	return l.limiterFor(key).Allow()
}
