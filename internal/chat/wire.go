package chat

import (
	"time"

	"github.com/swaply/exchat/internal/store"
)

// Outbound call payloads.

type sendMessagePayload struct {
	ConversationID string `json:"conversation_id"`
	ClientID       string `json:"client_id"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	ReplyTo        string `json:"reply_to,omitempty"`
}

type markAsReadPayload struct {
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids"`
}

type conversationRef struct {
	ConversationID string `json:"conversation_id"`
}

// Server-pushed event payloads.

type wireMessage struct {
	ID             string               `json:"id"`
	ClientID       string               `json:"client_id,omitempty"`
	ConversationID string               `json:"conversation_id"`
	Content        string               `json:"content"`
	Type           string               `json:"type"`
	SenderID       string               `json:"sender_id,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
	ReadBy         map[string]time.Time `json:"read_by,omitempty"`
	ReplyTo        string               `json:"reply_to,omitempty"`
}

func (w *wireMessage) toStore() *store.Message {
	return &store.Message{
		ID:             w.ID,
		ClientID:       w.ClientID,
		ConversationID: w.ConversationID,
		Content:        w.Content,
		Type:           store.MessageType(w.Type),
		SenderID:       w.SenderID,
		Timestamp:      w.Timestamp,
		ReadBy:         w.ReadBy,
		ReplyTo:        w.ReplyTo,
	}
}

type wireAck struct {
	ClientID string `json:"client_id"`
	ServerID string `json:"server_id"`
}

type wireRead struct {
	ConversationID string   `json:"conversation_id"`
	UserID         string   `json:"user_id"`
	MessageIDs     []string `json:"message_ids"`
}

type wireTyping struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name,omitempty"`
	IsTyping       bool   `json:"is_typing"`
}

type wireStatus struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}
