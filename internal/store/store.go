package store

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a conversation is not in the store.
var ErrNotFound = errors.New("store: conversation not found")

// ErrContextMismatch is returned when a conversation's context variant does
// not match its declared type.
var ErrContextMismatch = errors.New("store: context does not match conversation type")

// Store is the in-memory conversation cache and per-conversation message
// log. All mutation goes through the facade; consumers read copies. A single
// mutex serializes every access — socket callbacks, timers and callers all
// land here.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	logs          map[string][]*Message
	clientToConv  map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
		logs:          make(map[string][]*Message),
		clientToConv:  make(map[string]string),
	}
}

// PutConversation inserts or replaces a conversation record. The context
// variant must match the declared type; an unread counter entry is ensured
// for every participant.
func (s *Store) PutConversation(c *Conversation) error {
	if c.Context != nil && c.Context.ConversationType() != c.Type {
		return ErrContextMismatch
	}
	cp := copyConversation(c)
	if cp.UnreadCounts == nil {
		cp.UnreadCounts = make(map[string]int, len(cp.Participants))
	}
	for _, p := range cp.Participants {
		if _, ok := cp.UnreadCounts[p.ID]; !ok {
			cp.UnreadCounts[p.ID] = 0
		}
	}

	s.mu.Lock()
	s.conversations[c.ID] = cp
	s.mu.Unlock()
	return nil
}

// GetConversation returns a copy of the conversation, or ErrNotFound.
func (s *Store) GetConversation(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(c), nil
}

// ListConversations returns copies of all conversations, most recently
// active first.
func (s *Store) ListConversations() []*Conversation {
	s.mu.Lock()
	out := make([]*Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, copyConversation(c))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// AppendMessage adds a message to its conversation's log, or reconciles it
// with an existing entry. The dedup key is ClientID if present, else the
// server ID. A match replaces the entry in place, preserving its position in
// the log; otherwise the message is inserted keeping total order by
// timestamp, ties after existing entries. Returns true when an existing
// entry was replaced.
func (s *Store) AppendMessage(msg *Message) bool {
	cp := copyMessage(msg)

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[cp.ConversationID]
	if i := findMessage(log, cp); i >= 0 {
		existing := log[i]
		// Replace in place: position preserved so the log is never
		// reordered by a delete-then-reinsert. Read receipts already
		// recorded on the optimistic entry are kept.
		if cp.ReadBy == nil {
			cp.ReadBy = existing.ReadBy
		} else {
			for user, at := range existing.ReadBy {
				if prev, ok := cp.ReadBy[user]; !ok || at.After(prev) {
					cp.ReadBy[user] = at
				}
			}
		}
		log[i] = cp
		if cp.ClientID != "" {
			s.clientToConv[cp.ClientID] = cp.ConversationID
		}
		return true
	}

	idx := len(log)
	for i, m := range log {
		if m.Timestamp.After(cp.Timestamp) {
			idx = i
			break
		}
	}
	log = append(log, nil)
	copy(log[idx+1:], log[idx:])
	log[idx] = cp
	s.logs[cp.ConversationID] = log
	if cp.ClientID != "" {
		s.clientToConv[cp.ClientID] = cp.ConversationID
	}
	return false
}

// Messages returns an ordered copy of a conversation's log.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[conversationID]
	out := make([]Message, 0, len(log))
	for _, m := range log {
		out = append(out, *copyMessage(m))
	}
	return out
}

// Confirm reconciles a server acknowledgement with the optimistic entry
// identified by clientID: the server ID is assigned and the pending flag
// cleared. Returns a copy of the reconciled message.
func (s *Store) Confirm(clientID, serverID string) (*Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	convID, ok := s.clientToConv[clientID]
	if !ok {
		return nil, false
	}
	for _, m := range s.logs[convID] {
		if m.ClientID == clientID {
			m.ID = serverID
			m.Pending = false
			return copyMessage(m), true
		}
	}
	return nil, false
}

// MarkRead records a read receipt for each listed message. A receipt is
// monotonic per participant: an existing newer value is never decreased.
// Message IDs match either the server ID or the client ID.
func (s *Store) MarkRead(conversationID, userID string, messageIDs []string, at time.Time) {
	ids := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.logs[conversationID] {
		if _, ok := ids[m.ID]; !ok {
			if _, ok := ids[m.ClientID]; !ok {
				continue
			}
		}
		if m.ReadBy == nil {
			m.ReadBy = make(map[string]time.Time)
		}
		if prev, ok := m.ReadBy[userID]; !ok || at.After(prev) {
			m.ReadBy[userID] = at
		}
	}
}

// ClearUnread zeroes the given participant's unread counter.
func (s *Store) ClearUnread(conversationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		if _, ok := c.UnreadCounts[userID]; ok {
			c.UnreadCounts[userID] = 0
		}
	}
}

// IncrementUnread bumps the unread counter of every participant except the
// sender.
func (s *Store) IncrementUnread(conversationID, senderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		for _, p := range c.Participants {
			if p.ID != senderID {
				c.UnreadCounts[p.ID]++
			}
		}
	}
}

// UpdateActivity bumps the conversation's last activity timestamp. Unread
// counts are not touched.
func (s *Store) UpdateActivity(conversationID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		if at.After(c.LastActivity) {
			c.LastActivity = at
		}
	}
}

// SetParticipantOnline flips the online flag for the user in every
// conversation they participate in. Returns the affected conversation IDs.
func (s *Store) SetParticipantOnline(userID string, online bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected []string
	for id, c := range s.conversations {
		for i := range c.Participants {
			if c.Participants[i].ID == userID {
				c.Participants[i].Online = online
				affected = append(affected, id)
				break
			}
		}
	}
	return affected
}

// findMessage locates an existing entry by the dedup key: ClientID when the
// incoming message carries one, else the server ID.
func findMessage(log []*Message, msg *Message) int {
	for i, m := range log {
		if msg.ClientID != "" && m.ClientID == msg.ClientID {
			return i
		}
		if msg.ClientID == "" && msg.ID != "" && m.ID == msg.ID {
			return i
		}
	}
	return -1
}

func copyConversation(c *Conversation) *Conversation {
	cp := *c
	cp.Participants = append([]Participant(nil), c.Participants...)
	cp.UnreadCounts = make(map[string]int, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		cp.UnreadCounts[k] = v
	}
	return &cp
}

func copyMessage(m *Message) *Message {
	cp := *m
	if m.ReadBy != nil {
		cp.ReadBy = make(map[string]time.Time, len(m.ReadBy))
		for k, v := range m.ReadBy {
			cp.ReadBy[k] = v
		}
	}
	return &cp
}
