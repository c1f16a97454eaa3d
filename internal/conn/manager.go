package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/swaply/exchat/internal/auth"
	"github.com/swaply/exchat/internal/dispatch"
	"github.com/swaply/exchat/internal/event"
	"github.com/swaply/exchat/internal/status"
	"github.com/swaply/exchat/internal/transport"
	"go.uber.org/zap"
)

// ErrConnectionLost is surfaced (via KindConnectionLost) when the reconnect
// budget is exhausted. Terminal until Connect is called again.
var ErrConnectionLost = errors.New("conn: reconnect attempts exhausted")

const retryDialTimeout = 30 * time.Second

// Manager owns the process-wide transport connection: it gates every dial on
// the auth collaborator, drives the connection state machine, and schedules
// reconnect attempts with capped exponential backoff after unexpected drops.
// A caller-initiated Disconnect cancels any pending retry and never silently
// reconnects.
type Manager struct {
	tr          transport.Conn
	tokens      auth.TokenSource
	machine     *status.Machine
	disp        *dispatch.Dispatcher
	backoff     *Backoff
	maxAttempts int
	logger      *zap.Logger

	mu         sync.Mutex
	attempt    int
	retryTimer *time.Timer
	stopped    bool

	watchOnce sync.Once
	done      chan struct{}
}

// NewManager creates a connection manager. maxAttempts of 0 retries forever.
func NewManager(tr transport.Conn, tokens auth.TokenSource, machine *status.Machine, disp *dispatch.Dispatcher, backoff *Backoff, maxAttempts int, logger *zap.Logger) *Manager {
	return &Manager{
		tr:          tr,
		tokens:      tokens,
		machine:     machine,
		disp:        disp,
		backoff:     backoff,
		maxAttempts: maxAttempts,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Send forwards to the transport.
func (m *Manager) Send(event string, payload any) error {
	return m.tr.Send(event, payload)
}

// Connect fetches a token and establishes the connection. With no valid
// token the dial is not attempted and auth.ErrUnauthenticated is returned.
// A manual Connect supersedes any scheduled retry: the pending timer is
// cancelled so a stale attempt cannot dial behind this call's back.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = false
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.attempt = 0
	m.mu.Unlock()

	token, err := m.tokens.Token(ctx)
	if err != nil {
		return err
	}

	if m.machine.Current() == status.Connected {
		return nil
	}
	_ = m.machine.Transition(status.Connecting)

	if err := m.tr.Connect(ctx, token); err != nil {
		_ = m.machine.Transition(status.Disconnected)
		return err
	}

	m.mu.Lock()
	m.attempt = 0
	m.mu.Unlock()
	_ = m.machine.Transition(status.Connected)

	m.watchOnce.Do(func() { go m.watch() })
	return nil
}

// Disconnect closes the connection intentionally and cancels any pending
// reconnect timer.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopped = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.attempt = 0
	m.mu.Unlock()

	m.tr.Disconnect()
	if m.machine.Current() != status.Disconnected {
		_ = m.machine.Transition(status.Disconnected)
	}
}

// Close tears the manager down for good.
func (m *Manager) Close() {
	m.Disconnect()
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Manager) watch() {
	for {
		select {
		case err := <-m.tr.Closed():
			m.handleDrop(err)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handleDrop(cause error) {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return
	}

	m.logger.Warn("connection dropped", zap.Error(cause))
	_ = m.machine.Transition(status.Reconnecting)
	m.scheduleRetry()
}

func (m *Manager) scheduleRetry() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.maxAttempts > 0 && m.attempt >= m.maxAttempts {
		attempts := m.attempt
		m.mu.Unlock()
		m.giveUp(attempts, ErrConnectionLost)
		return
	}
	delay := m.backoff.Delay(m.attempt)
	m.attempt++
	attempt := m.attempt
	m.retryTimer = time.AfterFunc(delay, m.retry)
	m.mu.Unlock()

	m.logger.Info("reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", attempt))
}

func (m *Manager) retry() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	attempts := m.attempt
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), retryDialTimeout)
	defer cancel()

	token, err := m.tokens.Token(ctx)
	if err != nil {
		// No token: surface unauthenticated instead of retrying.
		m.giveUp(attempts, err)
		return
	}

	if err := m.tr.Connect(ctx, token); err != nil {
		if errors.Is(err, transport.ErrBadToken) {
			// Retrying with the same token cannot succeed; hand back to
			// the auth layer.
			m.giveUp(attempts, err)
			return
		}
		m.logger.Warn("reconnect attempt failed", zap.Error(err), zap.Int("attempt", attempts))
		m.scheduleRetry()
		return
	}

	m.mu.Lock()
	m.attempt = 0
	m.mu.Unlock()
	if err := m.machine.Transition(status.Connected); err != nil {
		if m.machine.Current() == status.Connected {
			// A concurrent Connect already established the connection;
			// the transport dial above was a no-op.
			return
		}
		// The state moved under this attempt (caller disconnected or a
		// manual Connect failed). The connection is an orphan the machine
		// never acknowledged; tear it down rather than leave a live
		// transport with no CONNECTED transition.
		m.logger.Warn("discarding reconnect, state changed mid-dial",
			zap.String("state", string(m.machine.Current())))
		m.tr.Disconnect()
		return
	}
	m.logger.Info("reconnected")
}

func (m *Manager) giveUp(attempts int, cause error) {
	m.logger.Error("giving up on reconnect", zap.Int("attempts", attempts), zap.Error(cause))
	_ = m.machine.Transition(status.Disconnected)
	m.disp.Publish(event.Event{
		Kind:      event.KindConnectionLost,
		Timestamp: time.Now(),
		Payload:   event.ConnectionLost{Attempts: attempts, Err: cause},
	})
}
