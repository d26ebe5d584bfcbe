package push

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apexorch/apex/apexerr"
)

const (
	sessionTTL          = 3600 * time.Second
	maxMessagesPerRoom   = 1000
)

func sessionKey(id string) string { return "apex:ws:session:" + id }
func roomMessagesKey(room RoomId) string { return "apex:ws:room:" + room.AsString() + ":messages" }

// Session is the durable record of a connection's subscription state,
// persisted so a client can reconnect and resume where it left off.
type Session struct {
	ID               string    `json:"id"`
	ConnectionID     string    `json:"connection_id"`
	AgentID          string    `json:"agent_id,omitempty"`
	Rooms            []string  `json:"rooms"`
	LastSeenEventID  int64     `json:"last_seen_event_id"`
	LastActiveMs     int64     `json:"last_active_ms"`
}

// SessionManager persists sessions and per-room replay buffers in
// Redis, grounded exactly on original_source/websocket/session.rs: 1
// hour session TTL, a 1000-message-deep LPUSH+LTRIM ring per room, and
// the effective-id reversal algorithm for missed-message replay.
type SessionManager struct {
	client *redis.Client
}

func NewSessionManager(client *redis.Client) *SessionManager {
	return &SessionManager{client: client}
}

// SaveSession writes sess with a 1-hour TTL (SET EX 3600).
func (m *SessionManager) SaveSession(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return apexerr.Wrap(apexerr.Serialization, "session marshal failed", err)
	}
	if err := m.client.Set(ctx, sessionKey(sess.ID), raw, sessionTTL).Err(); err != nil {
		return apexerr.Wrap(apexerr.Internal, "session save failed", err)
	}
	return nil
}

// LoadSession returns (nil, false, nil) if the session has expired or
// never existed.
func (m *SessionManager) LoadSession(ctx context.Context, id string) (*Session, bool, error) {
	raw, err := m.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apexerr.Wrap(apexerr.Internal, "session load failed", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false, apexerr.Wrap(apexerr.Serialization, "session unmarshal failed", err)
	}
	return &sess, true, nil
}

// UpdateLastSeenEvent loads, mutates, and re-saves a session's replay
// cursor and activity timestamp.
func (m *SessionManager) UpdateLastSeenEvent(ctx context.Context, id string, eventID int64) error {
	sess, ok, err := m.LoadSession(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apexerr.New(apexerr.SessionInvalid, "session not found").WithContext("session_id", id)
	}
	sess.LastSeenEventID = eventID
	sess.LastActiveMs = time.Now().UnixMilli()
	return m.SaveSession(ctx, sess)
}

// StoreMessage pushes raw onto room's replay buffer (LPUSH), trims it
// to the most recent maxMessagesPerRoom entries (LTRIM), refreshes the
// buffer's TTL (EXPIRE), and returns the stored message's effective id
// — the newest message's effective id equals the list's post-push
// length, matching original_source's total_count - index scheme.
func (m *SessionManager) StoreMessage(ctx context.Context, room RoomId, raw []byte) (int64, error) {
	key := roomMessagesKey(room)
	pipe := m.client.TxPipeline()
	lpush := pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, maxMessagesPerRoom-1)
	pipe.Expire(ctx, key, sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, apexerr.Wrap(apexerr.Internal, "store message failed", err)
	}
	return lpush.Val(), nil
}

// GetMissedMessages returns every message in room's replay buffer with
// an effective id greater than sinceID, in chronological (oldest
// first) order. The buffer is newest-first (LPUSH order); this method
// computes each entry's effective id as totalCount-index, filters, and
// reverses the result to restore chronological order, exactly per
// original_source/websocket/session.rs.
func (m *SessionManager) GetMissedMessages(ctx context.Context, room RoomId, sinceID int64) ([][]byte, error) {
	key := roomMessagesKey(room)
	entries, err := m.client.LRange(ctx, key, 0, maxMessagesPerRoom-1).Result()
	if err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "get missed messages failed", err)
	}
	return filterAndReverseMissed(entries, sinceID), nil
}

// filterAndReverseMissed implements the effective-id replay algorithm
// in isolation from Redis so it can be unit tested directly: entries
// arrives newest-first (LPUSH order); each entry's effective id is
// total-index; entries with effective id <= sinceID are dropped; the
// remainder is reversed to oldest-first chronological order.
func filterAndReverseMissed(entries []string, sinceID int64) [][]byte {
	total := int64(len(entries))
	var missed [][]byte
	for idx, entry := range entries {
		effectiveID := total - int64(idx)
		if effectiveID > sinceID {
			missed = append(missed, []byte(entry))
		}
	}
	for i, j := 0, len(missed)-1; i < j; i, j = i+1, j-1 {
		missed[i], missed[j] = missed[j], missed[i]
	}
	return missed
}
