package push

import "testing"

func TestConnectionLastSeenEventID(t *testing.T) {
	c := &Connection{ID: "conn-1", outbound: make(chan OutboundMessage, outboundBufferSize), closeCh: make(chan struct{})}
	if got := c.LastSeenEventID(); got != 0 {
		t.Fatalf("expected zero-value default, got %d", got)
	}
	c.SetLastSeenEventID(42)
	if got := c.LastSeenEventID(); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestConnectionRegistryAddGetRemove(t *testing.T) {
	r := NewConnectionRegistry()
	c := &Connection{ID: "conn-1", outbound: make(chan OutboundMessage, outboundBufferSize), closeCh: make(chan struct{})}
	r.Add(c)

	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
	got, ok := r.Get("conn-1")
	if !ok || got != c {
		t.Fatalf("expected to find connection conn-1")
	}

	r.Remove("conn-1")
	if r.Count() != 0 {
		t.Fatalf("expected count 0 after remove")
	}
	if _, ok := r.Get("conn-1"); ok {
		t.Fatalf("expected conn-1 removed")
	}
}
