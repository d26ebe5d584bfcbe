package push

import (
	"context"
	"encoding/json"
	"testing"
)

func newTestConnection(id ConnectionID) *Connection {
	return &Connection{ID: id, outbound: make(chan OutboundMessage, outboundBufferSize), closeCh: make(chan struct{})}
}

func TestBroadcastFansOutToRoomMembers(t *testing.T) {
	registry := NewConnectionRegistry()
	rooms := NewRoomManager()
	bc := NewBroadcaster(registry, rooms, nil)

	c1 := newTestConnection("conn-1")
	c2 := newTestConnection("conn-2")
	registry.Add(c1)
	registry.Add(c2)
	rooms.Join(c1.ID, TaskRoom("t1"))
	rooms.Join(c2.ID, TaskRoom("t1"))

	if err := bc.Broadcast(context.Background(), TaskRoom("t1"), "task_completed", map[string]string{"status": "ok"}); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	for _, c := range []*Connection{c1, c2} {
		select {
		case msg := <-c.outbound:
			var ev ServerEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			if ev.Priority != PriorityHigh {
				t.Errorf("expected high priority for task_completed, got %v", ev.Priority)
			}
			if ev.Room != "task:t1" {
				t.Errorf("expected room task:t1, got %q", ev.Room)
			}
		default:
			t.Fatalf("expected connection %s to receive a message", c.ID)
		}
	}
}

func TestBroadcastSkipsConnectionsNotInRegistry(t *testing.T) {
	registry := NewConnectionRegistry()
	rooms := NewRoomManager()
	bc := NewBroadcaster(registry, rooms, nil)

	rooms.Join("ghost-conn", TaskRoom("t1"))

	if err := bc.Broadcast(context.Background(), TaskRoom("t1"), "metrics_tick", map[string]int{"n": 1}); err != nil {
		t.Fatalf("broadcast should not fail on a stale room member: %v", err)
	}
}
