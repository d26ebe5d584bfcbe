package store

import "testing"

func TestKeyBuilders(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{contractKey("c1"), "apex:store:contract:c1"},
		{contractsByAgentKey("a1"), "apex:store:contracts-by-agent:a1"},
		{dagRunKey("d1"), "apex:store:dagrun:d1"},
		{dispatchResultKey("t1"), "apex:store:dispatch-result:t1"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Fatalf("expected nil for empty string")
	}
	got := nullable("x")
	if got == nil || *got != "x" {
		t.Fatalf("expected pointer to 'x', got %v", got)
	}
}
