package contracts

import (
	"sync"
	"sync/atomic"
	"time"
)

// TrackerConfig tunes the optional bounded history kept by UsageTracker.
type TrackerConfig struct {
	HistoryIntervalMs int
	MaxHistoryEntries int
}

// DefaultTrackerConfig matches original_source/contracts/tracker.rs's
// defaults: a snapshot at most once per second, bounded to 1000 entries.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{HistoryIntervalMs: 1000, MaxHistoryEntries: 1000}
}

// UsageSnapshot is a point-in-time view of cumulative usage.
type UsageSnapshot struct {
	Tokens   uint64
	CostUSD  float64
	APICalls uint64
	At       time.Time
}

// UsageRates are derived per-second consumption rates.
type UsageRates struct {
	TokensPerSecond   float64
	CostPerSecond     float64
	APICallsPerSecond float64
}

// UsageDelta is the difference between two snapshots.
type UsageDelta struct {
	Tokens   uint64
	CostUSD  float64
	APICalls uint64
}

// TrackerStats summarizes a tracker's lifetime behavior.
type TrackerStats struct {
	TotalTokens      uint64
	TotalCostUSD     float64
	TotalAPICalls    uint64
	PeakTokensPerSec float64
	PeakCostPerSec   float64
	HistoryLen       int
}

// UsageTracker accumulates token/cost/API-call usage with lock-free
// atomics on the hot path, plus an optional bounded, throttled history
// of snapshots for rate-of-change inspection. Cost is stored as
// integer micro-dollars (cost*1e6) so it can share the atomic-counter
// path with tokens and calls.
type UsageTracker struct {
	cfg   TrackerConfig
	start time.Time

	tokens       atomic.Uint64
	costMicros   atomic.Uint64
	apiCalls     atomic.Uint64
	peakTokPerMs atomic.Uint64 // bits of float64, via math.Float64bits
	peakCostPerS atomic.Uint64

	histMu   sync.Mutex
	lastSnap time.Time
	history  []UsageSnapshot
}

// NewUsageTracker creates a tracker starting its rate clock now.
func NewUsageTracker(cfg TrackerConfig) *UsageTracker {
	return &UsageTracker{cfg: cfg, start: time.Now()}
}

func (t *UsageTracker) RecordTokens(n uint64) {
	t.tokens.Add(n)
	t.maybeSnapshot()
}

func (t *UsageTracker) RecordCost(usd float64) {
	t.costMicros.Add(uint64(usd * 1_000_000.0))
	t.maybeSnapshot()
}

func (t *UsageTracker) RecordAPICall() {
	t.apiCalls.Add(1)
	t.maybeSnapshot()
}

// Snapshot returns the current cumulative totals.
func (t *UsageTracker) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		Tokens:   t.tokens.Load(),
		CostUSD:  float64(t.costMicros.Load()) / 1_000_000.0,
		APICalls: t.apiCalls.Load(),
		At:       time.Now(),
	}
}

// Rates derives per-second consumption rates since the tracker started.
// Returns zeros if less than 1ms has elapsed, to avoid dividing by a
// near-zero duration.
func (t *UsageTracker) Rates() UsageRates {
	elapsed := time.Since(t.start).Seconds()
	if elapsed < 0.001 {
		return UsageRates{}
	}
	snap := t.Snapshot()
	rates := UsageRates{
		TokensPerSecond:   float64(snap.Tokens) / elapsed,
		CostPerSecond:     snap.CostUSD / elapsed,
		APICallsPerSecond: float64(snap.APICalls) / elapsed,
	}
	t.updatePeak(&t.peakTokPerMs, rates.TokensPerSecond)
	t.updatePeak(&t.peakCostPerS, rates.CostPerSecond)
	return rates
}

func (t *UsageTracker) updatePeak(slot *atomic.Uint64, v float64) {
	bits := float64ToBits(v)
	for {
		cur := slot.Load()
		if bitsToFloat64(cur) >= v {
			return
		}
		if slot.CompareAndSwap(cur, bits) {
			return
		}
	}
}

// HasUsage reports whether any tokens or API calls have been recorded.
// Cost alone does not count, matching original_source semantics.
func (t *UsageTracker) HasUsage() bool {
	return t.tokens.Load() > 0 || t.apiCalls.Load() > 0
}

// Reset clears all counters and history, restarting the rate clock.
func (t *UsageTracker) Reset() {
	t.tokens.Store(0)
	t.costMicros.Store(0)
	t.apiCalls.Store(0)
	t.peakTokPerMs.Store(0)
	t.peakCostPerS.Store(0)
	t.histMu.Lock()
	t.history = nil
	t.lastSnap = time.Time{}
	t.histMu.Unlock()
	t.start = time.Now()
}

// Clone creates an independent tracker seeded from the current totals,
// with its own atomics and a fresh rate clock.
func (t *UsageTracker) Clone() *UsageTracker {
	snap := t.Snapshot()
	c := NewUsageTracker(t.cfg)
	c.tokens.Store(snap.Tokens)
	c.costMicros.Store(uint64(snap.CostUSD * 1_000_000.0))
	c.apiCalls.Store(snap.APICalls)
	return c
}

// History returns a copy of the bounded snapshot history.
func (t *UsageTracker) History() []UsageSnapshot {
	t.histMu.Lock()
	defer t.histMu.Unlock()
	out := make([]UsageSnapshot, len(t.history))
	copy(out, t.history)
	return out
}

func (t *UsageTracker) Stats() TrackerStats {
	snap := t.Snapshot()
	return TrackerStats{
		TotalTokens:      snap.Tokens,
		TotalCostUSD:     snap.CostUSD,
		TotalAPICalls:    snap.APICalls,
		PeakTokensPerSec: bitsToFloat64(t.peakTokPerMs.Load()),
		PeakCostPerSec:   bitsToFloat64(t.peakCostPerS.Load()),
		HistoryLen:       t.historyLen(),
	}
}

func (t *UsageTracker) historyLen() int {
	t.histMu.Lock()
	defer t.histMu.Unlock()
	return len(t.history)
}

// maybeSnapshot implements the double-checked-locking gate from
// original_source: only append a history entry if history is enabled
// and history_interval_ms has elapsed since the last one, trimming the
// oldest entries past max_history_entries.
func (t *UsageTracker) maybeSnapshot() {
	if t.cfg.MaxHistoryEntries <= 0 {
		return
	}
	now := time.Now()
	t.histMu.Lock()
	defer t.histMu.Unlock()
	if !t.lastSnap.IsZero() && now.Sub(t.lastSnap) < time.Duration(t.cfg.HistoryIntervalMs)*time.Millisecond {
		return
	}
	t.lastSnap = now
	t.history = append(t.history, UsageSnapshot{
		Tokens:   t.tokens.Load(),
		CostUSD:  float64(t.costMicros.Load()) / 1_000_000.0,
		APICalls: t.apiCalls.Load(),
		At:       now,
	})
	if over := len(t.history) - t.cfg.MaxHistoryEntries; over > 0 {
		t.history = t.history[over:]
	}
}
