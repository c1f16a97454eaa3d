package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/swaply/exchat/internal/cache"
	"github.com/swaply/exchat/internal/conn"
	"github.com/swaply/exchat/internal/dispatch"
	"github.com/swaply/exchat/internal/event"
	"github.com/swaply/exchat/internal/outbox"
	"github.com/swaply/exchat/internal/presence"
	"github.com/swaply/exchat/internal/rest"
	"github.com/swaply/exchat/internal/status"
	"github.com/swaply/exchat/internal/store"
	"github.com/swaply/exchat/internal/transport"
	"go.uber.org/zap"
)

const hydrateMessageLimit = 200

// Params collects the collaborators composed into a Client.
type Params struct {
	SelfID  string
	Manager *conn.Manager
	Conn    transport.Conn
	Store   *store.Store
	Cache   *cache.DB // optional local persistence
	Queue   *outbox.Queue
	Typing  *presence.TypingTracker
	Online  *presence.OnlineTracker
	REST    *rest.Client // optional durable path
	Disp    *dispatch.Dispatcher
	Logger  *zap.Logger
}

// Client is the messaging facade: the single entry point for sending and
// receiving messages, conversation management, read receipts and typing
// signals. All mutation of shared state funnels through here.
type Client struct {
	selfID  string
	mgr     *conn.Manager
	tr      transport.Conn
	store   *store.Store
	cache   *cache.DB
	queue   *outbox.Queue
	flusher *outbox.Flusher
	typing  *presence.TypingTracker
	online  *presence.OnlineTracker
	rest    *rest.Client
	disp    *dispatch.Dispatcher
	logger  *zap.Logger
	now     func() time.Time
	cancel  context.CancelFunc
}

// New creates the facade.
func New(p Params) *Client {
	c := &Client{
		selfID: p.SelfID,
		mgr:    p.Manager,
		tr:     p.Conn,
		store:  p.Store,
		cache:  p.Cache,
		queue:  p.Queue,
		typing: p.Typing,
		online: p.Online,
		rest:   p.REST,
		disp:   p.Disp,
		logger: p.Logger,
		now:    time.Now,
	}
	c.flusher = outbox.NewFlusher(p.Queue, p.Disp, c.transmit, p.Logger)
	return c
}

// Start begins ingesting transport events and flushing the outbound queue
// on connected transitions.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.flusher.Start(ctx)

	go func() {
		for {
			select {
			case in := <-c.tr.Events():
				c.handle(in)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop tears down the ingestion loop, the flusher and the typing timers.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.flusher.Stop()
	c.typing.Close()
}

// Connect establishes the realtime connection.
func (c *Client) Connect(ctx context.Context) error {
	return c.mgr.Connect(ctx)
}

// Disconnect closes the realtime connection intentionally.
func (c *Client) Disconnect() {
	c.mgr.Disconnect()
}

// State returns the current connection state.
func (c *Client) State() status.State {
	return c.mgr.State()
}

// On registers a listener for events of the given kind scoped to a
// conversation (empty for global events). Returns an unsubscribe function.
func (c *Client) On(conversationID string, kind event.Kind, fn dispatch.Listener) func() {
	return c.disp.Listen(conversationID, kind, fn)
}

// Conversation returns the conversation record.
func (c *Client) Conversation(id string) (*store.Conversation, error) {
	return c.store.GetConversation(id)
}

// Conversations returns all known conversations, most recently active first.
func (c *Client) Conversations() []*store.Conversation {
	return c.store.ListConversations()
}

// Messages returns the ordered message log of a conversation.
func (c *Client) Messages(conversationID string) []store.Message {
	return c.store.Messages(conversationID)
}

// TypingUsers returns who is currently typing in a conversation.
func (c *Client) TypingUsers(conversationID string) []event.TypingUser {
	return c.typing.Typing(conversationID)
}

// Hydrate loads conversations and messages into the store: first from the
// local cache so a cold start renders immediately, then from the REST source
// of truth. Reconciliation makes the second pass idempotent.
func (c *Client) Hydrate(ctx context.Context) error {
	if c.cache != nil {
		convs, err := c.cache.ListConversations()
		if err != nil {
			c.logger.Warn("cache hydration failed", zap.Error(err))
		}
		for _, conv := range convs {
			c.hydrateConversation(conv, nil)
			msgs, err := c.cache.ListMessages(conv.ID, 0, hydrateMessageLimit)
			if err != nil {
				c.logger.Warn("cache message hydration failed", zap.Error(err), zap.String("conversation_id", conv.ID))
				continue
			}
			for _, m := range msgs {
				c.store.AppendMessage(m)
			}
		}
	}

	if c.rest == nil {
		return nil
	}

	convs, err := c.rest.ListConversations(ctx, "")
	if err != nil {
		return fmt.Errorf("hydrate conversations: %w", err)
	}
	for _, conv := range convs {
		msgs, err := c.rest.ListMessages(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("hydrate messages for %s: %w", conv.ID, err)
		}
		c.hydrateConversation(conv, msgs)
	}
	c.logger.Info("hydration complete", zap.Int("conversations", len(convs)))
	return nil
}

func (c *Client) hydrateConversation(conv *store.Conversation, msgs []*store.Message) {
	if err := c.store.PutConversation(conv); err != nil {
		c.logger.Warn("skipping conversation", zap.Error(err), zap.String("conversation_id", conv.ID))
		return
	}
	c.cacheConversation(conv.ID)
	for _, m := range msgs {
		c.store.AppendMessage(m)
		c.cacheMessage(m)
	}
	c.disp.Publish(event.Event{
		Kind:           event.KindConversationUpdated,
		ConversationID: conv.ID,
		Timestamp:      c.now(),
	})
}

// CreateConversation persists a context-bound conversation and registers it
// locally. The context variant must match the declared type.
func (c *Client) CreateConversation(ctx context.Context, conv *store.Conversation) (*store.Conversation, error) {
	if conv.Context != nil && conv.Context.ConversationType() != conv.Type {
		return nil, store.ErrContextMismatch
	}

	created := conv
	if c.rest != nil {
		var err error
		created, err = c.rest.CreateConversation(ctx, conv)
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
	} else if created.ID == "" {
		created.ID = uuid.New().String()
	}

	if err := c.store.PutConversation(created); err != nil {
		return nil, err
	}
	c.cacheConversation(created.ID)
	c.disp.Publish(event.Event{
		Kind:           event.KindConversationUpdated,
		ConversationID: created.ID,
		Timestamp:      c.now(),
	})
	return c.store.GetConversation(created.ID)
}

// SendMessage composes a message: it is validated, appended to the log as
// pending (optimistic), enqueued, and transmitted when the connection
// allows. A failed send never removes the message — it stays queued for the
// next connected transition.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string, msgType store.MessageType, replyTo string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if _, err := c.store.GetConversation(conversationID); err != nil {
		return nil, ErrUnknownConversation
	}
	if msgType == "" {
		msgType = store.MessageText
	}

	msg := &store.Message{
		ClientID:       uuid.New().String(),
		ConversationID: conversationID,
		Content:        content,
		Type:           msgType,
		SenderID:       c.selfID,
		Timestamp:      c.now(),
		ReplyTo:        replyTo,
		Pending:        true,
	}

	c.store.AppendMessage(msg)
	c.store.IncrementUnread(conversationID, c.selfID)
	c.store.UpdateActivity(conversationID, msg.Timestamp)
	c.cacheMessage(msg)
	c.publishMessage(event.KindMessageUpdated, msg)

	c.queue.Enqueue(outbox.Entry{
		ConversationID: conversationID,
		ClientID:       msg.ClientID,
		Content:        content,
		Type:           msgType,
		ReplyTo:        replyTo,
	})
	c.queue.Flush(c.transmit)

	if c.rest != nil {
		// Durable path, best-effort: the realtime server also persists.
		if err := c.rest.CreateMessage(ctx, msg); err != nil {
			c.logger.Warn("durable persist failed", zap.Error(err), zap.String("client_id", msg.ClientID))
		}
	}

	return msg, nil
}

// MarkAsRead records the caller's read receipts locally (monotonic), zeroes
// the caller's unread counter, and propagates over both paths.
func (c *Client) MarkAsRead(ctx context.Context, conversationID string, messageIDs []string) error {
	if _, err := c.store.GetConversation(conversationID); err != nil {
		return ErrUnknownConversation
	}

	now := c.now()
	c.store.MarkRead(conversationID, c.selfID, messageIDs, now)
	c.store.ClearUnread(conversationID, c.selfID)
	c.disp.Publish(event.Event{
		Kind:           event.KindConversationUpdated,
		ConversationID: conversationID,
		Timestamp:      now,
	})

	if err := c.mgr.Send(transport.CallMarkAsRead, markAsReadPayload{
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
	}); err != nil && !errors.Is(err, transport.ErrNotConnected) {
		return err
	}

	if c.rest != nil {
		for _, id := range messageIDs {
			if err := c.rest.MarkMessageRead(ctx, id); err != nil {
				c.logger.Warn("durable read receipt failed", zap.Error(err), zap.String("message_id", id))
			}
		}
	}
	return nil
}

// SetTyping signals the caller's typing state for a conversation. Dropped
// silently while disconnected — typing is ephemeral, never queued.
func (c *Client) SetTyping(conversationID string, isTyping bool) {
	call := transport.CallTypingStart
	if !isTyping {
		call = transport.CallTypingStop
	}
	if err := c.mgr.Send(call, conversationRef{ConversationID: conversationID}); err != nil {
		c.logger.Debug("typing signal dropped", zap.Error(err))
	}
}

// JoinConversation subscribes this client to a conversation's realtime
// events on the server.
func (c *Client) JoinConversation(conversationID string) error {
	return c.mgr.Send(transport.CallJoinConversation, conversationRef{ConversationID: conversationID})
}

// LeaveConversation unsubscribes on the server and drops this
// conversation's local listeners. Queued sends still apply.
func (c *Client) LeaveConversation(conversationID string) error {
	err := c.mgr.Send(transport.CallLeaveConversation, conversationRef{ConversationID: conversationID})
	c.disp.RemoveConversation(conversationID)
	if err != nil && !errors.Is(err, transport.ErrNotConnected) {
		return err
	}
	return nil
}

func (c *Client) transmit(e outbox.Entry) error {
	return c.mgr.Send(transport.CallSendMessage, sendMessagePayload{
		ConversationID: e.ConversationID,
		ClientID:       e.ClientID,
		Content:        e.Content,
		Type:           string(e.Type),
		ReplyTo:        e.ReplyTo,
	})
}

func (c *Client) cacheMessage(m *store.Message) {
	if c.cache == nil {
		return
	}
	if err := c.cache.UpsertMessage(m); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err), zap.String("client_id", m.ClientID))
	}
}

func (c *Client) cacheConversation(id string) {
	if c.cache == nil {
		return
	}
	conv, err := c.store.GetConversation(id)
	if err != nil {
		return
	}
	if err := c.cache.UpsertConversation(conv); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err), zap.String("conversation_id", id))
	}
}

func (c *Client) publishMessage(kind event.Kind, m *store.Message) {
	cp := *m
	c.disp.Publish(event.Event{
		Kind:           kind,
		ConversationID: m.ConversationID,
		Timestamp:      c.now(),
		Payload:        &cp,
	})
}
