package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// Wire event names pushed by the server.
const (
	EventNewMessage    = "new_message"
	EventMessageAck    = "message_sent_ack"
	EventMessagesRead  = "messages_read"
	EventUserTyping    = "user_typing"
	EventUserStatus    = "user_status_changed"
)

// Wire calls invoked by the client.
const (
	CallJoinConversation  = "join_conversation"
	CallLeaveConversation = "leave_conversation"
	CallSendMessage       = "send_message"
	CallMarkAsRead        = "mark_as_read"
	CallTypingStart       = "typing_start"
	CallTypingStop        = "typing_stop"
)

var (
	// ErrNotConnected is returned by Send when there is no live connection.
	// The caller must queue the message, never drop it.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrBadToken is returned by Connect when the server rejects the auth
	// token during the handshake. Not retryable with the same token.
	ErrBadToken = errors.New("transport: auth token rejected")
)

// Inbound is a decoded server-pushed event.
type Inbound struct {
	Event string
	Data  json.RawMessage
}

// Conn is a persistent connection to the messaging backend.
type Conn interface {
	// Connect establishes the connection using the given auth token.
	// Calling Connect while already connected is a no-op returning nil.
	Connect(ctx context.Context, token string) error
	// Disconnect closes the connection. Intentional: no Closed signal is
	// emitted for a caller-initiated disconnect.
	Disconnect()
	// Send transmits one event with a JSON payload. Fails with
	// ErrNotConnected when there is no live connection.
	Send(event string, payload any) error
	// Events yields server-pushed events for the life of the transport.
	Events() <-chan Inbound
	// Closed signals unexpected connection loss, once per drop.
	Closed() <-chan error
}
