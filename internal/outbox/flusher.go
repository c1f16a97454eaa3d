package outbox

import (
	"context"

	"github.com/swaply/exchat/internal/dispatch"
	"github.com/swaply/exchat/internal/event"
	"github.com/swaply/exchat/internal/status"
	"go.uber.org/zap"
)

// Flusher drives the queue: it watches connection state changes and flushes
// on every transition into connected, including the first connect and every
// reconnect.
type Flusher struct {
	queue  *Queue
	disp   *dispatch.Dispatcher
	send   func(Entry) error
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewFlusher creates a flusher transmitting through send.
func NewFlusher(q *Queue, disp *dispatch.Dispatcher, send func(Entry) error, logger *zap.Logger) *Flusher {
	return &Flusher{
		queue:  q,
		disp:   disp,
		send:   send,
		logger: logger,
	}
}

// Start registers for connection state changes. Connected transitions are
// coalesced into a one-slot signal: a transition is never lost — when the
// slot is already occupied the pending flush will run after this transition
// and drain everything it queued.
func (f *Flusher) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)

	signal := make(chan struct{}, 1)
	unsub := f.disp.Listen("", event.KindStateChanged, func(evt event.Event) {
		change, ok := evt.Payload.(event.StateChange)
		if !ok || change.To != string(status.Connected) {
			return
		}
		select {
		case signal <- struct{}{}:
		default:
		}
	})

	go func() {
		defer unsub()
		for {
			select {
			case <-signal:
				if n := f.queue.Len(); n > 0 {
					f.logger.Info("flushing outbound queue", zap.Int("pending", n))
				}
				f.queue.Flush(f.send)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the flusher.
func (f *Flusher) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}
