package outbox

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/swaply/exchat/internal/dispatch"
	"github.com/swaply/exchat/internal/event"
	"github.com/swaply/exchat/internal/status"
	"go.uber.org/zap"
)

type sendRecorder struct {
	mu   sync.Mutex
	sent []string
}

func (r *sendRecorder) send(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, e.ClientID)
	return nil
}

func (r *sendRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func connected(d *dispatch.Dispatcher, from status.State) {
	d.Publish(event.Event{
		Kind:      event.KindStateChanged,
		Timestamp: time.Now(),
		Payload:   event.StateChange{From: string(from), To: string(status.Connected)},
	})
}

func awaitCount(t *testing.T, r *sendRecorder, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sent %d entries, want %d", r.count(), want)
}

func TestFlusherFlushesOnConnectedTransition(t *testing.T) {
	d := dispatch.New(zap.NewNop())
	q := NewQueue(zap.NewNop())
	rec := &sendRecorder{}

	f := NewFlusher(q, d, rec.send, zap.NewNop())
	f.Start(context.Background())
	defer f.Stop()

	q.Enqueue(Entry{ClientID: "a"})
	connected(d, status.Connecting)

	awaitCount(t, rec, 1)
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
}

func TestFlusherIgnoresOtherTransitions(t *testing.T) {
	d := dispatch.New(zap.NewNop())
	q := NewQueue(zap.NewNop())
	rec := &sendRecorder{}

	f := NewFlusher(q, d, rec.send, zap.NewNop())
	f.Start(context.Background())
	defer f.Stop()

	q.Enqueue(Entry{ClientID: "a"})
	d.Publish(event.Event{
		Kind:    event.KindStateChanged,
		Payload: event.StateChange{From: string(status.Connected), To: string(status.Reconnecting)},
	})

	time.Sleep(50 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("flushed on a non-connected transition")
	}
}

// TestFlusherSurvivesTransitionBurst verifies that no connected transition's
// flush is lost under a rapid drop/reconnect churn: every entry enqueued
// before its transition is eventually transmitted.
func TestFlusherSurvivesTransitionBurst(t *testing.T) {
	d := dispatch.New(zap.NewNop())
	q := NewQueue(zap.NewNop())
	rec := &sendRecorder{}

	f := NewFlusher(q, d, rec.send, zap.NewNop())
	f.Start(context.Background())
	defer f.Stop()

	const n = 100
	for i := 0; i < n; i++ {
		q.Enqueue(Entry{ClientID: fmt.Sprintf("m%03d", i)})
		connected(d, status.Reconnecting)
	}

	awaitCount(t, rec, n)
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
	// Submission order holds across all coalesced flushes.
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, id := range rec.sent {
		if want := fmt.Sprintf("m%03d", i); id != want {
			t.Fatalf("sent[%d] = %s, want %s", i, id, want)
		}
	}
}

func TestFlusherStops(t *testing.T) {
	d := dispatch.New(zap.NewNop())
	q := NewQueue(zap.NewNop())
	rec := &sendRecorder{}

	f := NewFlusher(q, d, rec.send, zap.NewNop())
	f.Start(context.Background())
	f.Stop()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(Entry{ClientID: "a"})
	connected(d, status.Connecting)

	time.Sleep(50 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("stopped flusher transmitted %d entries", rec.count())
	}
}
