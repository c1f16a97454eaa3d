package chat

import (
	"encoding/json"

	"github.com/swaply/exchat/internal/event"
	"github.com/swaply/exchat/internal/transport"
	"go.uber.org/zap"
)

// handle ingests one server-pushed event: it reconciles the store, updates
// the ephemeral trackers, mirrors changes into the cache and fans the result
// out to listeners.
func (c *Client) handle(in transport.Inbound) {
	switch in.Event {
	case transport.EventNewMessage:
		c.handleNewMessage(in.Data)
	case transport.EventMessageAck:
		c.handleAck(in.Data)
	case transport.EventMessagesRead:
		c.handleRead(in.Data)
	case transport.EventUserTyping:
		c.handleTyping(in.Data)
	case transport.EventUserStatus:
		c.handleStatus(in.Data)
	default:
		c.logger.Debug("unhandled event", zap.String("event", in.Event))
	}
}

func (c *Client) handleNewMessage(data json.RawMessage) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		c.logger.Warn("malformed new_message", zap.Error(err))
		return
	}

	msg := w.toStore()
	msg.Pending = false
	replaced := c.store.AppendMessage(msg)
	if msg.ClientID != "" && msg.SenderID == c.selfID {
		// Server echo of our own send doubles as an acknowledgement.
		c.queue.Ack(msg.ClientID)
	}
	if !replaced && msg.SenderID != c.selfID {
		c.store.IncrementUnread(msg.ConversationID, msg.SenderID)
	}
	c.store.UpdateActivity(msg.ConversationID, msg.Timestamp)
	c.cacheMessage(msg)
	c.cacheConversation(msg.ConversationID)

	kind := event.KindNewMessage
	if replaced {
		kind = event.KindMessageUpdated
	}
	c.publishMessage(kind, msg)
	c.disp.Publish(event.Event{
		Kind:           event.KindConversationUpdated,
		ConversationID: msg.ConversationID,
		Timestamp:      c.now(),
	})
}

func (c *Client) handleAck(data json.RawMessage) {
	var w wireAck
	if err := json.Unmarshal(data, &w); err != nil {
		c.logger.Warn("malformed message_sent_ack", zap.Error(err))
		return
	}

	c.queue.Ack(w.ClientID)
	msg, ok := c.store.Confirm(w.ClientID, w.ServerID)
	if !ok {
		c.logger.Debug("ack for unknown message", zap.String("client_id", w.ClientID))
		return
	}
	c.cacheMessage(msg)

	c.disp.Publish(event.Event{
		Kind:           event.KindMessageAck,
		ConversationID: msg.ConversationID,
		Timestamp:      c.now(),
		Payload:        event.MessageAck{ClientID: w.ClientID, ServerID: w.ServerID},
	})
	c.publishMessage(event.KindMessageUpdated, msg)
}

func (c *Client) handleRead(data json.RawMessage) {
	var w wireRead
	if err := json.Unmarshal(data, &w); err != nil {
		c.logger.Warn("malformed messages_read", zap.Error(err))
		return
	}

	c.store.MarkRead(w.ConversationID, w.UserID, w.MessageIDs, c.now())
	c.disp.Publish(event.Event{
		Kind:           event.KindMessagesRead,
		ConversationID: w.ConversationID,
		Timestamp:      c.now(),
		Payload:        event.ReadReceipt{UserID: w.UserID, MessageIDs: w.MessageIDs},
	})
}

func (c *Client) handleTyping(data json.RawMessage) {
	var w wireTyping
	if err := json.Unmarshal(data, &w); err != nil {
		c.logger.Warn("malformed user_typing", zap.Error(err))
		return
	}
	c.typing.Set(w.ConversationID, w.UserID, w.DisplayName, w.IsTyping)
}

func (c *Client) handleStatus(data json.RawMessage) {
	var w wireStatus
	if err := json.Unmarshal(data, &w); err != nil {
		c.logger.Warn("malformed user_status_changed", zap.Error(err))
		return
	}
	c.online.SetOnline(w.UserID, w.IsOnline)
}
