package domain

import (
	"encoding/json"
	"time"
)

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageStatus tracks the delivery state of a message.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// Message is a locally cached chat message. The ID is either a backend message
// ID or, for optimistic messages, a client-generated UUID that is later
// replaced once the backend acknowledges the send.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           MessageRole     `json:"role"`
	Content        string          `json:"content"`
	Status         MessageStatus   `json:"status"`
	Optimistic     bool            `json:"optimistic,omitempty"`
	Attachments    []string        `json:"attachments,omitempty"`
	ToolData       json.RawMessage `json:"tool_data,omitempty"`
	WorkflowData   json.RawMessage `json:"workflow_data,omitempty"`
	CalendarEvent  json.RawMessage `json:"calendar_event,omitempty"`
	ReplyToID      string          `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EffectiveUpdatedAt falls back to CreatedAt when UpdatedAt was never set.
// Merge precedence compares these values.
func (m Message) EffectiveUpdatedAt() time.Time {
	if m.UpdatedAt.IsZero() {
		return m.CreatedAt
	}
	return m.UpdatedAt
}
