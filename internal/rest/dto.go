package rest

import (
	"encoding/json"
	"time"

	"github.com/swaply/exchat/internal/store"
)

type participantDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Online      bool   `json:"online"`
}

type conversationDTO struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Title        string           `json:"title"`
	Participants []participantDTO `json:"participants"`
	Context      json.RawMessage  `json:"context,omitempty"`
	LastActivity time.Time        `json:"last_activity"`
	UnreadCounts map[string]int   `json:"unread_counts"`
}

type messageDTO struct {
	ID             string               `json:"id,omitempty"`
	ClientID       string               `json:"client_id,omitempty"`
	ConversationID string               `json:"conversation_id"`
	Content        string               `json:"content"`
	Type           string               `json:"type"`
	SenderID       string               `json:"sender_id,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
	ReadBy         map[string]time.Time `json:"read_by,omitempty"`
	ReplyTo        string               `json:"reply_to,omitempty"`
}

func (d *conversationDTO) toStore() (*store.Conversation, error) {
	ctx, err := store.UnmarshalContext(store.ConversationType(d.Type), d.Context)
	if err != nil {
		return nil, err
	}
	participants := make([]store.Participant, 0, len(d.Participants))
	for _, p := range d.Participants {
		participants = append(participants, store.Participant{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Online:      p.Online,
		})
	}
	return &store.Conversation{
		ID:           d.ID,
		Type:         store.ConversationType(d.Type),
		Title:        d.Title,
		Participants: participants,
		Context:      ctx,
		LastActivity: d.LastActivity,
		UnreadCounts: d.UnreadCounts,
	}, nil
}

func fromStoreConversation(c *store.Conversation) (*conversationDTO, error) {
	ctxJSON, err := store.MarshalContext(c.Context)
	if err != nil {
		return nil, err
	}
	participants := make([]participantDTO, 0, len(c.Participants))
	for _, p := range c.Participants {
		participants = append(participants, participantDTO{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Online:      p.Online,
		})
	}
	return &conversationDTO{
		ID:           c.ID,
		Type:         string(c.Type),
		Title:        c.Title,
		Participants: participants,
		Context:      ctxJSON,
		LastActivity: c.LastActivity,
		UnreadCounts: c.UnreadCounts,
	}, nil
}

func (d *messageDTO) toStore() *store.Message {
	return &store.Message{
		ID:             d.ID,
		ClientID:       d.ClientID,
		ConversationID: d.ConversationID,
		Content:        d.Content,
		Type:           store.MessageType(d.Type),
		SenderID:       d.SenderID,
		Timestamp:      d.Timestamp,
		ReadBy:         d.ReadBy,
		ReplyTo:        d.ReplyTo,
	}
}

func fromStoreMessage(m *store.Message) *messageDTO {
	return &messageDTO{
		ID:             m.ID,
		ClientID:       m.ClientID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		Type:           string(m.Type),
		SenderID:       m.SenderID,
		Timestamp:      m.Timestamp,
		ReadBy:         m.ReadBy,
		ReplyTo:        m.ReplyTo,
	}
}
