package push

import "testing"

func TestPriorityForEventKind(t *testing.T) {
	cases := map[string]Priority{
		"task_failed":       PriorityCritical,
		"dag_failed":        PriorityCritical,
		"circuit_open":      PriorityCritical,
		"task_completed":    PriorityHigh,
		"approval_required": PriorityHigh,
		"heartbeat":         PriorityLow,
		"metrics_tick":      PriorityLow,
		"something_else":    PriorityNormal,
	}
	for kind, want := range cases {
		if got := priorityForEventKind(kind); got != want {
			t.Errorf("priorityForEventKind(%q) = %v, want %v", kind, got, want)
		}
	}
}
