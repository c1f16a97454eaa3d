package chat

import "errors"

var (
	// ErrEmptyContent rejects a message with no content before it touches
	// the network.
	ErrEmptyContent = errors.New("chat: empty message content")
	// ErrUnknownConversation rejects an operation on a conversation the
	// store does not know.
	ErrUnknownConversation = errors.New("chat: unknown conversation")
)
