package domain

// EventKind classifies a store change notification.
type EventKind string

const (
	// EventAdded is emitted for single and bulk upserts. Bulk paths emit it
	// even for rows that already existed; subscribers depend on that, so it
	// is kept as-is.
	EventAdded EventKind = "added"
	// EventUpdated is emitted for partial updates and optimistic replacement.
	EventUpdated EventKind = "updated"
	// EventSynced is emitted once per bulk reconciliation write, so
	// subscribers can tell a sync apart from incremental edits.
	EventSynced EventKind = "synced"
)

// EntityKind names the table an event refers to.
type EntityKind string

const (
	EntityConversation EntityKind = "conversation"
	EntityMessage      EntityKind = "message"
)

// Event is a typed store change notification delivered to subscribers.
type Event struct {
	Kind           EventKind  `json:"kind"`
	Entity         EntityKind `json:"entity"`
	ConversationID string     `json:"conversation_id"`
	MessageID      string     `json:"message_id,omitempty"`
	// Count is the number of messages written by a synced event.
	Count int `json:"count,omitempty"`
}
