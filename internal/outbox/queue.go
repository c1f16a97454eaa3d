package outbox

import (
	"sync"
	"time"

	"github.com/swaply/exchat/internal/store"
	"go.uber.org/zap"
)

// Entry wraps a not-yet-confirmed message awaiting transmission.
type Entry struct {
	Seq            uint64
	ConversationID string
	ClientID       string
	Content        string
	Type           store.MessageType
	ReplyTo        string
	EnqueuedAt     time.Time
}

// Queue buffers outbound messages in FIFO order, regardless of connection
// state. Flush transmits strictly in enqueue order; an entry is removed only
// once the transport accepts the send call, which yields at-least-once
// delivery — the client ID is the dedup key on both ends.
type Queue struct {
	mu       sync.Mutex
	entries  []Entry
	nextSeq  uint64
	flushing bool
	logger   *zap.Logger
}

// NewQueue creates an empty queue.
func NewQueue(logger *zap.Logger) *Queue {
	return &Queue{nextSeq: 1, logger: logger}
}

// Enqueue appends an entry, assigning its submission sequence number.
func (q *Queue) Enqueue(e Entry) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	e.Seq = q.nextSeq
	q.nextSeq++
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	q.entries = append(q.entries, e)
	q.logger.Debug("message enqueued",
		zap.Uint64("seq", e.Seq),
		zap.String("client_id", e.ClientID),
		zap.String("conversation_id", e.ConversationID))
	return e.Seq
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Ack drops the entry with the given client ID if it is still queued. Used
// when a server acknowledgement arrives for a message whose queue entry
// survived a reconnect race.
func (q *Queue) Ack(clientID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.ClientID == clientID {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return
		}
	}
}

// Flush transmits queued entries in submission order. Each entry is removed
// after send accepts it; on the first error the remaining entries stay
// queued for the next connected transition. A Flush entered while another is
// in progress is a no-op — the queue is never transmitted interleaved.
func (q *Queue) Flush(send func(Entry) error) {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return
	}
	q.flushing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return
		}
		head := q.entries[0]
		q.mu.Unlock()

		if err := send(head); err != nil {
			q.logger.Warn("flush stopped",
				zap.Error(err),
				zap.Uint64("seq", head.Seq),
				zap.String("client_id", head.ClientID))
			return
		}

		q.mu.Lock()
		// The head may have been acked away while send was in flight.
		if len(q.entries) > 0 && q.entries[0].Seq == head.Seq {
			q.entries = q.entries[1:]
		}
		q.mu.Unlock()

		q.logger.Debug("message transmitted",
			zap.Uint64("seq", head.Seq),
			zap.String("client_id", head.ClientID))
	}
}
