package backend

import "encoding/json"

// ConversationSummary is one entry of the backend's conversation list. The
// backend calls the title "description" and timestamps ride as RFC 3339
// strings; missing or malformed values normalize to the zero time.
type ConversationSummary struct {
	ConversationID    string `json:"conversation_id"`
	Description       string `json:"description"`
	Starred           bool   `json:"starred"`
	IsSystemGenerated bool   `json:"is_system_generated"`
	SystemPurpose     string `json:"system_purpose,omitempty"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
}

// ServerMessage is the backend's wire shape for one message.
type ServerMessage struct {
	MessageID     string          `json:"message_id,omitempty"`
	Type          string          `json:"type"`
	Response      string          `json:"response"`
	Date          string          `json:"date,omitempty"`
	Loading       bool            `json:"loading,omitempty"`
	Attachments   []string        `json:"attachments,omitempty"`
	ToolData      json.RawMessage `json:"tool_data,omitempty"`
	WorkflowData  json.RawMessage `json:"workflow_data,omitempty"`
	CalendarEvent json.RawMessage `json:"calendar_event,omitempty"`
	ReplyTo       string          `json:"reply_to,omitempty"`
}

// SyncedConversation is one batch-sync result: full conversation metadata plus
// its (possibly incremental) message list.
type SyncedConversation struct {
	ConversationSummary
	Messages []ServerMessage `json:"messages"`
}

// BatchSyncItem requests one conversation. LastUpdated carries the locally
// known timestamp so the backend can answer incrementally; empty means the
// conversation is unknown locally and the full history is wanted.
type BatchSyncItem struct {
	ConversationID string `json:"conversation_id"`
	LastUpdated    string `json:"last_updated,omitempty"`
}

type batchSyncRequest struct {
	Conversations []BatchSyncItem `json:"conversations"`
}

type batchSyncResponse struct {
	Conversations []SyncedConversation `json:"conversations"`
}

type listConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total,omitempty"`
}
