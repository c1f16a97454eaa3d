package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readLimit    = 1 << 20 // 1MB
	writeTimeout = 5 * time.Second
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebSocket is the gorilla/websocket implementation of Conn.
type WebSocket struct {
	url          string
	pingInterval time.Duration
	readTimeout  time.Duration
	dialer       *websocket.Dialer
	logger       *zap.Logger

	events chan Inbound
	closed chan error

	mu          sync.Mutex
	ws          *websocket.Conn
	stopPing    chan struct{}
	intentional bool
}

// NewWebSocket creates a websocket transport for the given URL. The ping
// interval keeps the connection alive; the read timeout must exceed it.
func NewWebSocket(url string, pingInterval time.Duration, logger *zap.Logger) *WebSocket {
	return &WebSocket{
		url:          url,
		pingInterval: pingInterval,
		readTimeout:  2 * pingInterval,
		dialer:       websocket.DefaultDialer,
		logger:       logger,
		events:       make(chan Inbound, 256),
		closed:       make(chan error, 1),
	}
}

// Connect dials the backend. No-op if already connected.
func (t *WebSocket) Connect(ctx context.Context, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ws != nil {
		return nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	t.logger.Info("dialing messaging backend", zap.String("url", t.url))
	ws, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrBadToken
		}
		return fmt.Errorf("dial: %w", err)
	}

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(t.readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(t.readTimeout))
	})

	t.ws = ws
	t.intentional = false
	t.stopPing = make(chan struct{})

	go t.readLoop(ws)
	go t.pingLoop(ws, t.stopPing)

	return nil
}

// Disconnect closes the connection intentionally. The read loop exits
// without signalling Closed.
func (t *WebSocket) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ws == nil {
		return
	}
	t.intentional = true
	close(t.stopPing)
	_ = t.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	_ = t.ws.Close()
	t.ws = nil
}

// Send transmits one envelope. Writes are serialized by the mutex.
func (t *WebSocket) Send(event string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ws == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	_ = t.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.ws.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// Events returns the inbound event channel, shared across reconnects.
func (t *WebSocket) Events() <-chan Inbound {
	return t.events
}

// Closed signals unexpected connection loss.
func (t *WebSocket) Closed() <-chan error {
	return t.closed
}

func (t *WebSocket) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.mu.Lock()
			intentional := t.intentional
			if t.ws == ws {
				if t.stopPing != nil && !intentional {
					close(t.stopPing)
				}
				t.ws = nil
			}
			t.mu.Unlock()

			if !intentional {
				t.logger.Warn("connection lost", zap.Error(err))
				select {
				case t.closed <- err:
				default:
				}
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.logger.Warn("malformed event envelope", zap.Error(err))
			continue
		}
		select {
		case t.events <- Inbound{Event: env.Event, Data: env.Data}:
		default:
			t.logger.Warn("event buffer full, dropping", zap.String("event", env.Event))
		}
	}
}

func (t *WebSocket) pingLoop(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
