package domain

import (
	"context"
	"errors"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// Store is the durable local cache of conversations and messages.
//
// Implementations serialize every mutating call through a single FIFO write
// queue, so multi-step operations (delete-then-insert during optimistic
// replacement, bulk sync writes) never interleave. Reads go straight to
// storage.
type Store interface {
	// GetConversation returns ErrConversationNotFound when the ID is absent.
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations returns all conversations, most recently updated first.
	ListConversations(ctx context.Context) ([]Conversation, error)
	// PutConversation upserts one conversation, emitting added or updated
	// depending on whether the ID already existed.
	PutConversation(ctx context.Context, conv *Conversation) error
	// PutConversations upserts many conversations, emitting added per record.
	PutConversations(ctx context.Context, convs []Conversation) error

	// ListMessages returns a conversation's messages ordered by creation
	// timestamp ascending.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	// PutMessage upserts one message, emitting added even on update.
	PutMessage(ctx context.Context, msg *Message) error
	// PutMessages upserts many messages, emitting added per record.
	PutMessages(ctx context.Context, msgs []Message) error
	// ReplaceMessage atomically removes the row with tempID and inserts msg.
	// Used by the live send path when the backend acknowledges a send.
	ReplaceMessage(ctx context.Context, tempID string, msg *Message) error
	// ReplaceOptimisticMessage swaps an optimistic message's client ID for the
	// backend-issued one and clears the optimistic flag. A missing optimistic
	// row is a logged no-op, not an error.
	ReplaceOptimisticMessage(ctx context.Context, optimisticID, backendID string) error
	// UpdateMessageContent is a no-op when the message does not exist.
	UpdateMessageContent(ctx context.Context, id, content string) error
	// UpdateMessageStatus is a no-op when the message does not exist.
	UpdateMessageStatus(ctx context.Context, id string, status MessageStatus) error
	// SyncMessages bulk-upserts an already-merged message list for one
	// conversation in a single transaction and emits one synced event.
	SyncMessages(ctx context.Context, conversationID string, msgs []Message) error

	// DeleteConversation removes the conversation and all its messages.
	DeleteConversation(ctx context.Context, id string) error
	// ClearAll empties both tables. Used on logout.
	ClearAll(ctx context.Context) error

	// Subscribe registers a change listener and returns its unsubscribe func.
	// Listeners are invoked synchronously after the write settles.
	Subscribe(fn func(Event)) (unsubscribe func())

	Ping(ctx context.Context) error
	Close() error
}
