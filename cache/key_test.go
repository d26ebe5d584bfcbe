package cache

import "testing"

func TestCacheKeyBuildOrdering(t *testing.T) {
	key := NewCacheKey(KeyTask).WithNamespace("tenantA").WithVersion(2).WithID("task-1").WithSegments("sub", "detail")
	got := key.Build()
	want := "tenantA:task:v2:task-1:sub:detail"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCacheKeyMinimal(t *testing.T) {
	key := NewCacheKey(KeySession).WithID("sess-1")
	if got, want := key.Build(), "session:sess-1"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDefaultTTLTable(t *testing.T) {
	cases := map[KeyType]int{
		KeyTask:        60,
		KeyAgent:       300,
		KeyDag:         600,
		KeyContract:    300,
		KeyUser:        900,
		KeySession:     3600,
		KeyAPIResponse: 60,
		KeyConfig:      3600,
		KeyMetrics:     10,
		KeyRouting:     300,
		KeyToolResult:  600,
		KeyRateLimit:   60,
		KeyCustom:      300,
	}
	for kt, seconds := range cases {
		if got := kt.DefaultTTL().Seconds(); got != float64(seconds) {
			t.Errorf("%v: got %vs, want %ds", kt, got, seconds)
		}
	}
}
