package dispatch

import (
	"sync"

	"github.com/swaply/exchat/internal/event"
	"go.uber.org/zap"
)

// Listener is a callback registered for a (conversation, kind) key.
type Listener func(event.Event)

type key struct {
	conv string
	kind event.Kind
}

type entry struct {
	id int
	fn Listener
}

type subscription struct {
	key key
	ch  chan event.Event
}

// Dispatcher fans transport and domain events out to registered consumers.
// Listeners are keyed by (conversationID, kind); the empty conversation ID
// is the global scope used for connection-level events. Callbacks run
// synchronously in registration order; a panic in one callback is recovered
// and logged so the remaining callbacks still run.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[key][]entry
	subs      map[int]*subscription
	next      int
	logger    *zap.Logger
}

// New creates a new dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		listeners: make(map[key][]entry),
		subs:      make(map[int]*subscription),
		logger:    logger,
	}
}

// Listen registers a callback for the exact (conversationID, kind) key.
// Returns a function that removes this callback only.
func (d *Dispatcher) Listen(conversationID string, kind event.Kind, fn Listener) func() {
	k := key{conv: conversationID, kind: kind}
	d.mu.Lock()
	id := d.next
	d.next++
	d.listeners[k] = append(d.listeners[k], entry{id: id, fn: fn})
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		entries := d.listeners[k]
		for i, e := range entries {
			if e.id == id {
				d.listeners[k] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		if len(d.listeners[k]) == 0 {
			delete(d.listeners, k)
		}
	}
}

// RemoveAll drops every callback registered for the (conversationID, kind)
// key. Other keys, including other conversations, are untouched.
func (d *Dispatcher) RemoveAll(conversationID string, kind event.Kind) {
	d.mu.Lock()
	delete(d.listeners, key{conv: conversationID, kind: kind})
	d.mu.Unlock()
}

// RemoveConversation drops every callback for every kind registered under
// the given conversation.
func (d *Dispatcher) RemoveConversation(conversationID string) {
	d.mu.Lock()
	for k := range d.listeners {
		if k.conv == conversationID {
			delete(d.listeners, k)
		}
	}
	d.mu.Unlock()
}

// Subscribe returns a channel receiving events for the exact key. bufSize
// controls the channel buffer; events are dropped, not blocked on, when the
// buffer is full. Returns the channel and an unsubscribe function.
func (d *Dispatcher) Subscribe(conversationID string, kind event.Kind, bufSize int) (<-chan event.Event, func()) {
	ch := make(chan event.Event, bufSize)
	d.mu.Lock()
	id := d.next
	d.next++
	d.subs[id] = &subscription{key: key{conv: conversationID, kind: kind}, ch: ch}
	d.mu.Unlock()

	return ch, func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// Publish delivers an event to all listeners and subscribers registered for
// its (conversationID, kind) key.
func (d *Dispatcher) Publish(evt event.Event) {
	k := key{conv: evt.ConversationID, kind: evt.Kind}

	d.mu.RLock()
	entries := make([]entry, len(d.listeners[k]))
	copy(entries, d.listeners[k])
	for _, sub := range d.subs {
		if sub.key == k {
			select {
			case sub.ch <- evt:
			default:
				// Drop event if subscriber is full (non-blocking).
			}
		}
	}
	d.mu.RUnlock()

	for _, e := range entries {
		d.invoke(e, evt)
	}
}

func (d *Dispatcher) invoke(e entry, evt event.Event) {
	defer func() {
		if r := recover(); r != nil {
			if d.logger != nil {
				d.logger.Error("listener panicked",
					zap.Any("panic", r),
					zap.String("kind", evt.Kind.String()),
					zap.String("conversation_id", evt.ConversationID))
			}
		}
	}()
	e.fn(evt)
}
