// Package push implements the real-time fabric: typed rooms, a
// connection registry, a priority-tagged broadcaster, and a
// Redis-backed session manager with bounded replay buffers. Grounded
// on original_source/websocket/room.rs and session.rs for exact wire
// string forms and Redis key conventions, and FluxForge ws_hub.go for
// the Go connection-hub idiom.
package push

import (
	"strings"
	"sync"
	"time"
)

// RoomType classifies a RoomId for metrics/logging grouping.
type RoomType string

const (
	RoomTypeTask     RoomType = "task"
	RoomTypeAgent    RoomType = "agent"
	RoomTypeDag      RoomType = "dag"
	RoomTypeMetrics  RoomType = "metrics"
	RoomTypeApproval RoomType = "approval"
	RoomTypeError    RoomType = "error"
	RoomTypeCustom   RoomType = "custom"
)

// RoomId identifies a broadcast room. Its AsString form is the exact
// wire/Redis-key representation from original_source/websocket/room.rs.
type RoomId struct {
	kind string // "task", "tasks:all", "agent", "agents:all", "dag", "dags:all", "metrics", "approvals", "errors", "custom"
	id   string
}

func TaskRoom(id string) RoomId     { return RoomId{kind: "task", id: id} }
func AllTasksRoom() RoomId          { return RoomId{kind: "tasks:all"} }
func AgentRoom(id string) RoomId    { return RoomId{kind: "agent", id: id} }
func AllAgentsRoom() RoomId         { return RoomId{kind: "agents:all"} }
func DagRoom(id string) RoomId      { return RoomId{kind: "dag", id: id} }
func AllDagsRoom() RoomId           { return RoomId{kind: "dags:all"} }
func MetricsRoom() RoomId           { return RoomId{kind: "metrics"} }
func ApprovalsRoom() RoomId         { return RoomId{kind: "approvals"} }
func ErrorsRoom() RoomId            { return RoomId{kind: "errors"} }
func CustomRoom(name string) RoomId { return RoomId{kind: "custom", id: name} }

// AsString renders the exact wire form used on the protocol and as the
// Redis room-key suffix.
func (r RoomId) AsString() string {
	switch r.kind {
	case "task":
		return "task:" + r.id
	case "tasks:all":
		return "tasks:all"
	case "agent":
		return "agent:" + r.id
	case "agents:all":
		return "agents:all"
	case "dag":
		return "dag:" + r.id
	case "dags:all":
		return "dags:all"
	case "metrics":
		return "metrics"
	case "approvals":
		return "approvals"
	case "errors":
		return "errors"
	default:
		return "custom:" + r.id
	}
}

// ParseRoomId parses the wire string form back into a RoomId,
// falling back to Custom for anything unrecognized, matching
// original_source's strings_to_room_ids fallback behavior.
func ParseRoomId(s string) RoomId {
	switch {
	case s == "tasks:all":
		return AllTasksRoom()
	case s == "agents:all":
		return AllAgentsRoom()
	case s == "dags:all":
		return AllDagsRoom()
	case s == "metrics":
		return MetricsRoom()
	case s == "approvals":
		return ApprovalsRoom()
	case s == "errors":
		return ErrorsRoom()
	case strings.HasPrefix(s, "task:"):
		return TaskRoom(strings.TrimPrefix(s, "task:"))
	case strings.HasPrefix(s, "agent:"):
		return AgentRoom(strings.TrimPrefix(s, "agent:"))
	case strings.HasPrefix(s, "dag:"):
		return DagRoom(strings.TrimPrefix(s, "dag:"))
	case strings.HasPrefix(s, "custom:"):
		return CustomRoom(strings.TrimPrefix(s, "custom:"))
	default:
		return CustomRoom(s)
	}
}

func (r RoomId) Type() RoomType {
	switch r.kind {
	case "task":
		return RoomTypeTask
	case "tasks:all":
		return RoomTypeTask
	case "agent", "agents:all":
		return RoomTypeAgent
	case "dag", "dags:all":
		return RoomTypeDag
	case "metrics":
		return RoomTypeMetrics
	case "approvals":
		return RoomTypeApproval
	case "errors":
		return RoomTypeError
	default:
		return RoomTypeCustom
	}
}

// ConnectionID identifies one live connection.
type ConnectionID string

// Room tracks membership and activity for one RoomId.
type Room struct {
	ID           RoomId
	CreatedAt    time.Time
	mu           sync.Mutex
	members      map[ConnectionID]struct{}
	lastActivity time.Time
	messageCount uint64
}

func NewRoom(id RoomId) *Room {
	now := time.Now()
	return &Room{ID: id, CreatedAt: now, lastActivity: now, members: make(map[ConnectionID]struct{})}
}

func (r *Room) AddMember(c ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[c] = struct{}{}
}

func (r *Room) RemoveMember(c ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, c)
}

func (r *Room) HasMember(c ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[c]
	return ok
}

func (r *Room) Members() []ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConnectionID, 0, len(r.members))
	for c := range r.members {
		out = append(out, c)
	}
	return out
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) IsEmpty() bool { return r.MemberCount() == 0 }

func (r *Room) RecordMessage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messageCount++
	r.lastActivity = time.Now()
}

// RoomStats is a read-only projection of a Room for API responses.
type RoomStats struct {
	ID           string
	MemberCount  int
	MessageCount uint64
	CreatedAt    time.Time
	LastActivity time.Time
}

func (r *Room) Stats() RoomStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomStats{
		ID:           r.ID.AsString(),
		MemberCount:  len(r.members),
		MessageCount: r.messageCount,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.lastActivity,
	}
}
