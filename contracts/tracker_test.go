package contracts

import "testing"

func TestUsageTrackerRecordAndSnapshot(t *testing.T) {
	tr := NewUsageTracker(DefaultTrackerConfig())
	tr.RecordTokens(100)
	tr.RecordCost(0.05)
	tr.RecordAPICall()

	snap := tr.Snapshot()
	if snap.Tokens != 100 {
		t.Fatalf("expected 100 tokens, got %d", snap.Tokens)
	}
	if snap.CostUSD != 0.05 {
		t.Fatalf("expected cost 0.05, got %v", snap.CostUSD)
	}
	if snap.APICalls != 1 {
		t.Fatalf("expected 1 api call, got %d", snap.APICalls)
	}
}

func TestUsageTrackerHasUsage(t *testing.T) {
	tr := NewUsageTracker(DefaultTrackerConfig())
	if tr.HasUsage() {
		t.Fatalf("fresh tracker should report no usage")
	}
	tr.RecordCost(1.0)
	if tr.HasUsage() {
		t.Fatalf("cost alone must not count as usage")
	}
	tr.RecordTokens(1)
	if !tr.HasUsage() {
		t.Fatalf("tokens should count as usage")
	}
}

func TestUsageTrackerReset(t *testing.T) {
	tr := NewUsageTracker(DefaultTrackerConfig())
	tr.RecordTokens(50)
	tr.Reset()
	snap := tr.Snapshot()
	if snap.Tokens != 0 || snap.CostUSD != 0 || snap.APICalls != 0 {
		t.Fatalf("expected zeroed snapshot after reset, got %+v", snap)
	}
}

func TestUsageTrackerClone(t *testing.T) {
	tr := NewUsageTracker(DefaultTrackerConfig())
	tr.RecordTokens(20)
	tr.RecordCost(0.1)

	clone := tr.Clone()
	tr.RecordTokens(100)

	cloneSnap := clone.Snapshot()
	if cloneSnap.Tokens != 20 {
		t.Fatalf("clone should be independent, got %d tokens", cloneSnap.Tokens)
	}
}

func TestUsageTrackerHistoryThrottled(t *testing.T) {
	cfg := TrackerConfig{HistoryIntervalMs: 1_000_000, MaxHistoryEntries: 10}
	tr := NewUsageTracker(cfg)
	tr.RecordTokens(1)
	tr.RecordTokens(1)
	tr.RecordTokens(1)
	if len(tr.History()) != 1 {
		t.Fatalf("expected exactly one throttled history entry, got %d", len(tr.History()))
	}
}
