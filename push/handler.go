package push

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apexorch/apex/apexerr"
)

// Authenticator validates an inbound connection's credentials (e.g. a
// bearer token in the upgrade request) and returns the authenticated
// principal id. Token format and verification policy are external
// collaborators; only this hook is in scope.
type Authenticator interface {
	Authenticate(r *http.Request) (agentID string, err error)
}

const heartbeatInterval = 30 * time.Second

// Hub wires the connection registry, room manager, broadcaster, and
// session manager together behind an http.Handler that upgrades
// incoming requests to websockets. Grounded on FluxForge ws_hub.go's
// MetricsHub, generalized from a single broadcast topic to the full
// room/session fabric.
type Hub struct {
	upgrader websocket.Upgrader
	auth     Authenticator
	conns    *ConnectionRegistry
	rooms    *RoomManager
	sessions *SessionManager
	bc       *Broadcaster
}

func NewHub(auth Authenticator, conns *ConnectionRegistry, rooms *RoomManager, sessions *SessionManager, bc *Broadcaster) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		auth:     auth,
		conns:    conns,
		rooms:    rooms,
		sessions: sessions,
		bc:       bc,
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agentID, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WARN: websocket upgrade failed: %v", err)
		return
	}

	id := ConnectionID(agentID + "-" + time.Now().Format("150405.000000"))
	conn := NewConnection(id, wsConn)
	conn.AgentID = agentID
	h.conns.Add(conn)

	go conn.WritePump()
	go h.heartbeat(conn)
	h.readLoop(conn)
}

func (h *Hub) readLoop(conn *Connection) {
	defer func() {
		h.rooms.LeaveAll(conn.ID)
		h.conns.Remove(conn.ID)
		conn.Close()
	}()

	for {
		_, raw, err := conn.Conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			conn.Send(OutboundMessage{Priority: PriorityNormal, Payload: errorFrame("invalid message", err)})
			continue
		}
		h.handleClientMessage(conn, msg)
	}
}

func (h *Hub) handleClientMessage(conn *Connection, msg ClientMessage) {
	switch msg.Type {
	case MsgSubscribe:
		room := ParseRoomId(msg.Room)
		h.rooms.Join(conn.ID, room)
		h.replayMissed(conn, room)
	case MsgUnsubscribe:
		h.rooms.Leave(conn.ID, ParseRoomId(msg.Room))
	case MsgHeartbeat:
		// liveness only; no reply required beyond the periodic server heartbeat.
	default:
		conn.Send(OutboundMessage{Priority: PriorityNormal, Payload: errorFrame("unknown message type", nil)})
	}
}

func (h *Hub) replayMissed(conn *Connection, room RoomId) {
	if h.sessions == nil {
		return
	}
	missed, err := h.sessions.GetMissedMessages(context.Background(), room, conn.LastSeenEventID())
	if err != nil {
		log.Printf("WARN: replay fetch failed for room %s: %v", room.AsString(), err)
		return
	}
	for _, raw := range missed {
		conn.Send(OutboundMessage{Priority: PriorityNormal, Payload: raw})
	}
}

func (h *Hub) heartbeat(conn *Connection) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		select {
		case <-conn.closeCh:
			return
		default:
		}
		frame, _ := json.Marshal(ServerEvent{Type: MsgHeartbeat, Priority: PriorityLow})
		conn.Send(OutboundMessage{Priority: PriorityLow, Payload: frame})
	}
}

func errorFrame(msg string, cause error) []byte {
	e := apexerr.New(apexerr.Validation, msg)
	if cause != nil {
		e = apexerr.Wrap(apexerr.Validation, msg, cause)
	}
	frame, _ := json.Marshal(ServerEvent{Type: MsgError, Data: json.RawMessage(`"` + e.Error() + `"`)})
	return frame
}
