package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/swaply/exchat/internal/auth"
	"github.com/swaply/exchat/internal/store"
	"go.uber.org/zap"
)

// APIError is a non-2xx response from the resource API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rest: status %d: %s", e.Status, e.Body)
}

// Client talks to the generic resource API. The realtime transport is the
// low-latency path; this REST surface is the durable source of truth used
// for cold-start hydration and for persisting locally originated messages.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenSource
	logger  *zap.Logger
}

// New creates a REST client for the given base URL.
func New(baseURL string, tokens auth.TokenSource, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		logger:  logger,
	}
}

// ListConversations fetches the caller's conversations, optionally filtered
// by type.
func (c *Client) ListConversations(ctx context.Context, typeFilter store.ConversationType) ([]*store.Conversation, error) {
	q := url.Values{}
	if typeFilter != "" {
		q.Set("filter", string(typeFilter))
	}
	var dtos []conversationDTO
	if err := c.do(ctx, http.MethodGet, "/conversations", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]*store.Conversation, 0, len(dtos))
	for i := range dtos {
		conv, err := dtos[i].toStore()
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

// CreateConversation persists a new conversation and returns the
// server-assigned record.
func (c *Client) CreateConversation(ctx context.Context, conv *store.Conversation) (*store.Conversation, error) {
	in, err := fromStoreConversation(conv)
	if err != nil {
		return nil, err
	}
	var dto conversationDTO
	if err := c.do(ctx, http.MethodPost, "/conversations", nil, in, &dto); err != nil {
		return nil, err
	}
	return dto.toStore()
}

// ListMessages fetches the full message history of a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	q := url.Values{}
	q.Set("conversation", conversationID)
	var dtos []messageDTO
	if err := c.do(ctx, http.MethodGet, "/messages", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]*store.Message, 0, len(dtos))
	for i := range dtos {
		out = append(out, dtos[i].toStore())
	}
	return out, nil
}

// CreateMessage persists a locally originated message.
func (c *Client) CreateMessage(ctx context.Context, msg *store.Message) error {
	return c.do(ctx, http.MethodPost, "/messages", nil, fromStoreMessage(msg), nil)
}

// MarkMessageRead records a read receipt on the durable path.
func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(messageID)+"/read", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}
