package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsServer is a minimal messaging backend: it upgrades, records the bearer
// token, and echoes every received envelope back as a server event.
type wsServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	token string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "Bearer expired" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, ws)
		s.token = strings.TrimPrefix(auth, "Bearer ")
		s.mu.Unlock()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) lastToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// dropAll closes every server-side connection without a close handshake.
func (s *wsServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func TestConnectSendReceive(t *testing.T) {
	srv := newWSServer(t)
	tr := NewWebSocket(srv.url(), time.Second, zap.NewNop())
	defer tr.Disconnect()

	if err := tr.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	if got := srv.lastToken(); got != "tok" {
		t.Errorf("server saw token %q, want tok", got)
	}

	payload := map[string]string{"conversation_id": "c1", "content": "hi"}
	if err := tr.Send(CallSendMessage, payload); err != nil {
		t.Fatal(err)
	}

	select {
	case in := <-tr.Events():
		if in.Event != CallSendMessage {
			t.Errorf("event = %s, want %s", in.Event, CallSendMessage)
		}
		var got map[string]string
		if err := json.Unmarshal(in.Data, &got); err != nil {
			t.Fatal(err)
		}
		if got["content"] != "hi" {
			t.Errorf("data = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echoed event")
	}
}

func TestConnectTwiceIsNoop(t *testing.T) {
	srv := newWSServer(t)
	tr := NewWebSocket(srv.url(), time.Second, zap.NewNop())
	defer tr.Disconnect()

	if err := tr.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Connect(context.Background(), "tok"); err != nil {
		t.Errorf("second Connect = %v, want nil", err)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	tr := NewWebSocket("ws://127.0.0.1:0", time.Second, zap.NewNop())
	if err := tr.Send(CallSendMessage, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestRejectedTokenReturnsErrBadToken(t *testing.T) {
	srv := newWSServer(t)
	tr := NewWebSocket(srv.url(), time.Second, zap.NewNop())

	if err := tr.Connect(context.Background(), "expired"); !errors.Is(err, ErrBadToken) {
		t.Errorf("err = %v, want ErrBadToken", err)
	}
}

func TestIntentionalDisconnectDoesNotSignalClosed(t *testing.T) {
	srv := newWSServer(t)
	tr := NewWebSocket(srv.url(), time.Second, zap.NewNop())

	if err := tr.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	tr.Disconnect()

	select {
	case err := <-tr.Closed():
		t.Errorf("Closed signalled %v after intentional disconnect", err)
	case <-time.After(200 * time.Millisecond):
		// Expected.
	}

	if err := tr.Send(CallSendMessage, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after disconnect = %v, want ErrNotConnected", err)
	}
}

func TestServerDropSignalsClosed(t *testing.T) {
	srv := newWSServer(t)
	tr := NewWebSocket(srv.url(), time.Second, zap.NewNop())

	if err := tr.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	srv.dropAll()

	select {
	case err := <-tr.Closed():
		if err == nil {
			t.Error("Closed delivered nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Closed signal")
	}

	if err := tr.Send(CallSendMessage, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after drop = %v, want ErrNotConnected", err)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	srv := newWSServer(t)
	tr := NewWebSocket(srv.url(), time.Second, zap.NewNop())
	defer tr.Disconnect()

	if err := tr.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	srv.dropAll()
	<-tr.Closed()

	if err := tr.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if err := tr.Send(CallSendMessage, map[string]string{"content": "back"}); err != nil {
		t.Errorf("Send after reconnect = %v", err)
	}
}
