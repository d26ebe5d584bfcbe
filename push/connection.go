package push

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Priority tags an outgoing message for back-pressure decisions: Low
// priority messages are the first candidates to drop under load.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// OutboundMessage pairs a priority with its raw payload.
type OutboundMessage struct {
	Priority Priority
	Payload  []byte
}

const (
	outboundBufferSize = 256
	warnAtFraction     = 0.8
	closeCodeOverrun   = 1008 // "policy violation" — reused for back-pressure overrun
)

// Connection wraps one upgraded websocket connection with a bounded
// outbound channel and a dedicated writer goroutine, grounded on
// FluxForge ws_hub.go's write-deadline pattern generalized from a
// single broadcast topic to the full room/session fabric.
type Connection struct {
	ID      ConnectionID
	Conn    *websocket.Conn
	AgentID string // authenticated principal, if any

	outbound chan OutboundMessage
	closeCh  chan struct{}
	closeOnce sync.Once

	lastSeenEventID int64
	mu              sync.Mutex
}

func NewConnection(id ConnectionID, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:       id,
		Conn:     conn,
		outbound: make(chan OutboundMessage, outboundBufferSize),
		closeCh:  make(chan struct{}),
	}
}

// Send enqueues a message for the writer goroutine. If the outbound
// buffer is completely full the connection is closed with 1008,
// matching the spec's back-pressure policy; at 80% capacity a warning
// is logged but the message is still enqueued.
func (c *Connection) Send(msg OutboundMessage) {
	if len(c.outbound) >= int(float64(outboundBufferSize)*warnAtFraction) {
		log.Printf("WARN: connection %s outbound buffer at %d/%d, back-pressure building", c.ID, len(c.outbound), outboundBufferSize)
	}
	select {
	case c.outbound <- msg:
	default:
		log.Printf("WARN: connection %s outbound buffer full, closing with 1008", c.ID)
		c.CloseWithCode(closeCodeOverrun, "outbound buffer overrun")
	}
}

// WritePump drains the outbound channel onto the socket until the
// connection is closed. Run this in its own goroutine per connection.
func (c *Connection) WritePump() {
	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				log.Printf("WARN: connection %s write failed: %v", c.ID, err)
				c.Close()
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.Conn.Close()
	})
}

func (c *Connection) CloseWithCode(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.Close()
}

func (c *Connection) SetLastSeenEventID(id int64) {
	c.mu.Lock()
	c.lastSeenEventID = id
	c.mu.Unlock()
}

func (c *Connection) LastSeenEventID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeenEventID
}

// ConnectionRegistry tracks every live connection by id.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[ConnectionID]*Connection
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: make(map[ConnectionID]*Connection)}
}

func (r *ConnectionRegistry) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

func (r *ConnectionRegistry) Remove(id ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *ConnectionRegistry) Get(id ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
