package observability

import "testing"

func TestCircuitStateValue(t *testing.T) {
	cases := map[string]float64{
		"closed":    0,
		"half_open": 1,
		"open":      2,
		"unknown":   -1,
	}
	for state, want := range cases {
		if got := CircuitStateValue(state); got != want {
			t.Errorf("CircuitStateValue(%q) = %v, want %v", state, got, want)
		}
	}
}
