package push

import (
	"context"
	"encoding/json"
)

// Broadcaster fans a server event out to every connection in a room,
// persisting it into the session manager's replay buffer first so a
// reconnecting client can catch up on anything it missed.
type Broadcaster struct {
	registry *ConnectionRegistry
	rooms    *RoomManager
	sessions *SessionManager
}

func NewBroadcaster(registry *ConnectionRegistry, rooms *RoomManager, sessions *SessionManager) *Broadcaster {
	return &Broadcaster{registry: registry, rooms: rooms, sessions: sessions}
}

// Broadcast persists and fans out data (an arbitrary JSON-serializable
// payload tagged with kind, used only to pick a Priority) to every
// member of room.
func (b *Broadcaster) Broadcast(ctx context.Context, room RoomId, kind string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	var effectiveID int64
	if b.sessions != nil {
		effectiveID, err = b.sessions.StoreMessage(ctx, room, raw)
		if err != nil {
			return err
		}
	}

	priority := priorityForEventKind(kind)
	ev := ServerEvent{Type: MsgEvent, Room: room.AsString(), EffectiveID: effectiveID, Priority: priority, Data: raw}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	for _, connID := range b.rooms.Members(room) {
		conn, ok := b.registry.Get(connID)
		if !ok {
			continue
		}
		conn.Send(OutboundMessage{Priority: priority, Payload: payload})
	}
	return nil
}
