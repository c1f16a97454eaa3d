package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/swaply/exchat/internal/store"
)

// UpsertMessage inserts or updates a message row. Idempotent on the dedup
// key: the client ID when present, the server ID otherwise — the same rule
// the in-memory log applies.
func (db *DB) UpsertMessage(m *store.Message) error {
	dedup := m.ClientID
	if dedup == "" {
		dedup = m.ID
	}
	if dedup == "" {
		return fmt.Errorf("message has neither client nor server id")
	}

	readBy, err := json.Marshal(readByMillis(m.ReadBy))
	if err != nil {
		return fmt.Errorf("marshal read_by: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO messages (conversation_id, dedup_key, server_id, client_id, content, message_type, sender_id, reply_to, read_by, pending, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, dedup_key) DO UPDATE SET
			server_id = excluded.server_id,
			content = excluded.content,
			read_by = excluded.read_by,
			pending = excluded.pending`,
		m.ConversationID, dedup, m.ID, m.ClientID, m.Content, string(m.Type), m.SenderID, m.ReplyTo, string(readBy), m.Pending, m.Timestamp.UnixMilli(), now)
	return err
}

// ListMessages returns cached messages for a conversation using keyset
// pagination by timestamp, oldest first.
func (db *DB) ListMessages(conversationID string, beforeTs int64, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT conversation_id, server_id, client_id, content, message_type, sender_id, reply_to, read_by, pending, timestamp
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = ? AND timestamp < ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) ORDER BY timestamp ASC, id ASC`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*store.Message
	for rows.Next() {
		var (
			m      store.Message
			typ    string
			readBy string
			ts     int64
		)
		if err := rows.Scan(&m.ConversationID, &m.ID, &m.ClientID, &m.Content, &typ, &m.SenderID, &m.ReplyTo, &readBy, &m.Pending, &ts); err != nil {
			return nil, err
		}
		m.Type = store.MessageType(typ)
		m.Timestamp = time.UnixMilli(ts)

		var millis map[string]int64
		if err := json.Unmarshal([]byte(readBy), &millis); err != nil {
			return nil, fmt.Errorf("unmarshal read_by: %w", err)
		}
		if len(millis) > 0 {
			m.ReadBy = make(map[string]time.Time, len(millis))
			for user, at := range millis {
				m.ReadBy[user] = time.UnixMilli(at)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func readByMillis(readBy map[string]time.Time) map[string]int64 {
	out := make(map[string]int64, len(readBy))
	for user, at := range readBy {
		out[user] = at.UnixMilli()
	}
	return out
}
