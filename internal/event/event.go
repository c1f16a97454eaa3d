package event

import "time"

// Kind identifies the type of a dispatched event.
type Kind uint8

const (
	// KindStateChanged reports a connection state transition. Global scope.
	KindStateChanged Kind = iota
	// KindConnectionLost reports that the reconnect budget is exhausted. Global scope.
	KindConnectionLost
	// KindNewMessage reports a server-confirmed incoming message.
	KindNewMessage
	// KindMessageAck reports that an optimistic message was confirmed by the server.
	KindMessageAck
	// KindMessagesRead reports that a participant read a set of messages.
	KindMessagesRead
	// KindUserTyping reports the current set of typing users in a conversation.
	KindUserTyping
	// KindUserStatus reports an online/offline change for a user. Global scope.
	KindUserStatus
	// KindConversationUpdated reports a change to conversation metadata
	// (unread counts, last activity, participants).
	KindConversationUpdated
	// KindMessageUpdated reports a change to a message already in the log
	// (optimistic insert, reconciliation, read receipts).
	KindMessageUpdated
)

var kindNames = map[Kind]string{
	KindStateChanged:        "state_changed",
	KindConnectionLost:      "connection_lost",
	KindNewMessage:          "new_message",
	KindMessageAck:          "message_ack",
	KindMessagesRead:        "messages_read",
	KindUserTyping:          "user_typing",
	KindUserStatus:          "user_status",
	KindConversationUpdated: "conversation_updated",
	KindMessageUpdated:      "message_updated",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is a domain event delivered through the dispatcher.
// ConversationID is empty for globally scoped events.
type Event struct {
	Kind           Kind
	ConversationID string
	Timestamp      time.Time
	Payload        any
}

// StateChange is the payload for KindStateChanged.
type StateChange struct {
	From string
	To   string
}

// ConnectionLost is the payload for KindConnectionLost.
type ConnectionLost struct {
	Attempts int
	Err      error
}

// MessageAck is the payload for KindMessageAck.
type MessageAck struct {
	ClientID string
	ServerID string
}

// ReadReceipt is the payload for KindMessagesRead.
type ReadReceipt struct {
	UserID     string
	MessageIDs []string
}

// TypingUser is one entry in a TypingUpdate.
type TypingUser struct {
	UserID      string
	DisplayName string
}

// TypingUpdate is the payload for KindUserTyping. Users is the full current
// set of typing users in the conversation, empty when the last one stopped.
type TypingUpdate struct {
	Users []TypingUser
}

// UserStatus is the payload for KindUserStatus.
type UserStatus struct {
	UserID   string
	IsOnline bool
}
