package push

import "testing"

func TestRoomIdStringForms(t *testing.T) {
	cases := []struct {
		room RoomId
		want string
	}{
		{TaskRoom("t1"), "task:t1"},
		{AllTasksRoom(), "tasks:all"},
		{AgentRoom("a1"), "agent:a1"},
		{AllAgentsRoom(), "agents:all"},
		{DagRoom("d1"), "dag:d1"},
		{AllDagsRoom(), "dags:all"},
		{MetricsRoom(), "metrics"},
		{ApprovalsRoom(), "approvals"},
		{ErrorsRoom(), "errors"},
		{CustomRoom("foo"), "custom:foo"},
	}
	for _, c := range cases {
		if got := c.room.AsString(); got != c.want {
			t.Errorf("got %q, want %q", got, c.want)
		}
	}
}

func TestParseRoomIdRoundTrip(t *testing.T) {
	for _, s := range []string{"task:t1", "tasks:all", "agent:a1", "metrics", "custom:foo"} {
		if got := ParseRoomId(s).AsString(); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestParseRoomIdFallsBackToCustom(t *testing.T) {
	if got := ParseRoomId("whatever-unrecognized").AsString(); got != "custom:whatever-unrecognized" {
		t.Errorf("expected fallback to custom, got %q", got)
	}
}

func TestRoomManagerJoinLeave(t *testing.T) {
	rm := NewRoomManager()
	rm.Join("conn-1", TaskRoom("t1"))
	rm.Join("conn-2", TaskRoom("t1"))

	members := rm.Members(TaskRoom("t1"))
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	rm.Leave("conn-1", TaskRoom("t1"))
	if len(rm.Members(TaskRoom("t1"))) != 1 {
		t.Fatalf("expected 1 member after leave")
	}

	rm.Leave("conn-2", TaskRoom("t1"))
	if rm.Members(TaskRoom("t1")) != nil {
		t.Fatalf("expected room pruned after last member leaves")
	}
}

func TestRoomManagerLeaveAll(t *testing.T) {
	rm := NewRoomManager()
	rm.Join("conn-1", TaskRoom("t1"))
	rm.Join("conn-1", AgentRoom("a1"))

	rm.LeaveAll("conn-1")

	if rm.Members(TaskRoom("t1")) != nil || rm.Members(AgentRoom("a1")) != nil {
		t.Fatalf("expected LeaveAll to remove membership from every joined room")
	}
}
