package push

import (
	"reflect"
	"testing"
)

func TestFilterAndReverseMissedFiltersAndReorders(t *testing.T) {
	// LPUSH order: newest first. Pushed in order m1, m2, m3 means the
	// list reads [m3, m2, m1] with effective ids [3, 2, 1].
	entries := []string{"m3", "m2", "m1"}

	got := filterAndReverseMissed(entries, 1)
	want := [][]byte{[]byte("m2"), []byte("m3")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", stringify(got), stringify(want))
	}
}

func TestFilterAndReverseMissedSinceZeroReturnsAll(t *testing.T) {
	entries := []string{"c", "b", "a"}
	got := filterAndReverseMissed(entries, 0)
	want := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", stringify(got), stringify(want))
	}
}

func TestFilterAndReverseMissedSinceLatestReturnsNone(t *testing.T) {
	entries := []string{"c", "b", "a"}
	got := filterAndReverseMissed(entries, 3)
	if len(got) != 0 {
		t.Fatalf("expected no missed messages, got %v", stringify(got))
	}
}

func TestFilterAndReverseMissedEmptyBuffer(t *testing.T) {
	got := filterAndReverseMissed(nil, 0)
	if len(got) != 0 {
		t.Fatalf("expected empty result for empty buffer, got %v", stringify(got))
	}
}

func stringify(b [][]byte) []string {
	out := make([]string, len(b))
	for i, e := range b {
		out[i] = string(e)
	}
	return out
}

func TestSessionKeyAndRoomMessagesKeyFormat(t *testing.T) {
	if got := sessionKey("abc"); got != "apex:ws:session:abc" {
		t.Errorf("got %q", got)
	}
	if got := roomMessagesKey(TaskRoom("t1")); got != "apex:ws:room:task:t1:messages" {
		t.Errorf("got %q", got)
	}
}
