package presence

import (
	"sync"
	"time"

	"github.com/swaply/exchat/internal/dispatch"
	"github.com/swaply/exchat/internal/event"
	"github.com/swaply/exchat/internal/store"
	"go.uber.org/zap"
)

// OnlineTracker mirrors user_status_changed signals into the participant
// records of the conversation store and publishes a global status event.
type OnlineTracker struct {
	mu     sync.Mutex
	online map[string]bool
	store  *store.Store
	disp   *dispatch.Dispatcher
	logger *zap.Logger
}

// NewOnlineTracker creates a tracker backed by the given store.
func NewOnlineTracker(st *store.Store, disp *dispatch.Dispatcher, logger *zap.Logger) *OnlineTracker {
	return &OnlineTracker{
		online: make(map[string]bool),
		store:  st,
		disp:   disp,
		logger: logger,
	}
}

// SetOnline records a status change and updates affected conversations.
func (o *OnlineTracker) SetOnline(userID string, isOnline bool) {
	o.mu.Lock()
	prev, known := o.online[userID]
	o.online[userID] = isOnline
	o.mu.Unlock()

	if known && prev == isOnline {
		return
	}

	affected := o.store.SetParticipantOnline(userID, isOnline)
	o.logger.Debug("user status changed",
		zap.String("user_id", userID),
		zap.Bool("online", isOnline),
		zap.Int("conversations", len(affected)))

	o.disp.Publish(event.Event{
		Kind:      event.KindUserStatus,
		Timestamp: time.Now(),
		Payload:   event.UserStatus{UserID: userID, IsOnline: isOnline},
	})
	for _, convID := range affected {
		o.disp.Publish(event.Event{
			Kind:           event.KindConversationUpdated,
			ConversationID: convID,
			Timestamp:      time.Now(),
		})
	}
}

// IsOnline reports the last known status for a user.
func (o *OnlineTracker) IsOnline(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online[userID]
}
