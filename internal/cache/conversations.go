package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/swaply/exchat/internal/store"
)

// UpsertConversation inserts or updates a conversation row (idempotent on id).
func (db *DB) UpsertConversation(c *store.Conversation) error {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	ctx, err := store.MarshalContext(c.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	unread, err := json.Marshal(c.UnreadCounts)
	if err != nil {
		return fmt.Errorf("marshal unread counts: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO conversations (id, type, title, participants, context, unread_counts, last_activity, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			title = excluded.title,
			participants = excluded.participants,
			context = excluded.context,
			unread_counts = excluded.unread_counts,
			last_activity = MAX(conversations.last_activity, excluded.last_activity),
			updated_at = excluded.updated_at`,
		c.ID, string(c.Type), c.Title, string(participants), string(ctx), string(unread), c.LastActivity.UnixMilli(), now)
	return err
}

// ListConversations returns cached conversations, most recently active first.
func (db *DB) ListConversations() ([]*store.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, type, title, participants, context, unread_counts, last_activity
		FROM conversations ORDER BY last_activity DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*store.Conversation
	for rows.Next() {
		var (
			c            store.Conversation
			typ          string
			participants string
			ctxJSON      string
			unread       string
			lastActivity int64
		)
		if err := rows.Scan(&c.ID, &typ, &c.Title, &participants, &ctxJSON, &unread, &lastActivity); err != nil {
			return nil, err
		}
		c.Type = store.ConversationType(typ)
		c.LastActivity = time.UnixMilli(lastActivity)
		if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
			return nil, fmt.Errorf("unmarshal participants: %w", err)
		}
		if err := json.Unmarshal([]byte(unread), &c.UnreadCounts); err != nil {
			return nil, fmt.Errorf("unmarshal unread counts: %w", err)
		}
		ctx, err := store.UnmarshalContext(c.Type, []byte(ctxJSON))
		if err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
		c.Context = ctx
		out = append(out, &c)
	}
	return out, rows.Err()
}
