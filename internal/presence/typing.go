package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/swaply/exchat/internal/dispatch"
	"github.com/swaply/exchat/internal/event"
	"go.uber.org/zap"
)

// DefaultTypingExpiry is the hard expiry for a typing indicator with no
// refresh and no explicit stop signal.
const DefaultTypingExpiry = 3 * time.Second

type indicator struct {
	displayName string
	expiresAt   time.Time
	timer       *time.Timer
}

// TypingTracker tracks who is typing in each conversation. Indicators are
// ephemeral: each carries a cancellable expiry timer, so a client going
// silent mid-type is cleared without a stop signal. Every change publishes
// the conversation's full current typing set.
type TypingTracker struct {
	mu         sync.Mutex
	expiry     time.Duration
	disp       *dispatch.Dispatcher
	logger     *zap.Logger
	indicators map[string]map[string]*indicator
	now        func() time.Time
	closed     bool
}

// NewTypingTracker creates a tracker with the given expiry; zero means
// DefaultTypingExpiry.
func NewTypingTracker(expiry time.Duration, disp *dispatch.Dispatcher, logger *zap.Logger) *TypingTracker {
	if expiry <= 0 {
		expiry = DefaultTypingExpiry
	}
	return &TypingTracker{
		expiry:     expiry,
		disp:       disp,
		logger:     logger,
		indicators: make(map[string]map[string]*indicator),
		now:        time.Now,
	}
}

// Set records a typing signal. true creates or refreshes the indicator and
// re-arms its expiry timer; false removes it immediately.
func (t *TypingTracker) Set(conversationID, userID, displayName string, isTyping bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	if !isTyping {
		t.removeLocked(conversationID, userID)
		users := t.usersLocked(conversationID)
		t.mu.Unlock()
		t.publish(conversationID, users)
		return
	}

	users := t.indicators[conversationID]
	if users == nil {
		users = make(map[string]*indicator)
		t.indicators[conversationID] = users
	}
	ind, ok := users[userID]
	if ok {
		ind.timer.Stop()
	} else {
		ind = &indicator{}
		users[userID] = ind
	}
	ind.displayName = displayName
	ind.expiresAt = t.now().Add(t.expiry)
	ind.timer = time.AfterFunc(t.expiry, func() { t.expire(conversationID, userID) })

	current := t.usersLocked(conversationID)
	t.mu.Unlock()
	t.publish(conversationID, current)
}

// Typing returns the current typing users for a conversation.
func (t *TypingTracker) Typing(conversationID string) []event.TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usersLocked(conversationID)
}

// Close cancels every pending timer so none fires against torn-down state.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, users := range t.indicators {
		for _, ind := range users {
			ind.timer.Stop()
		}
	}
	t.indicators = make(map[string]map[string]*indicator)
}

func (t *TypingTracker) expire(conversationID, userID string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	ind, ok := t.indicators[conversationID][userID]
	if !ok || t.now().Before(ind.expiresAt) {
		// Refreshed after this timer was scheduled.
		t.mu.Unlock()
		return
	}
	t.removeLocked(conversationID, userID)
	users := t.usersLocked(conversationID)
	t.mu.Unlock()

	t.logger.Debug("typing indicator expired",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID))
	t.publish(conversationID, users)
}

func (t *TypingTracker) removeLocked(conversationID, userID string) {
	users, ok := t.indicators[conversationID]
	if !ok {
		return
	}
	if ind, ok := users[userID]; ok {
		ind.timer.Stop()
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(t.indicators, conversationID)
	}
}

func (t *TypingTracker) usersLocked(conversationID string) []event.TypingUser {
	users := t.indicators[conversationID]
	out := make([]event.TypingUser, 0, len(users))
	for id, ind := range users {
		out = append(out, event.TypingUser{UserID: id, DisplayName: ind.displayName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (t *TypingTracker) publish(conversationID string, users []event.TypingUser) {
	t.disp.Publish(event.Event{
		Kind:           event.KindUserTyping,
		ConversationID: conversationID,
		Timestamp:      time.Now(),
		Payload:        event.TypingUpdate{Users: users},
	})
}
