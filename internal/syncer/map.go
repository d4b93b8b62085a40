package syncer

import (
	"fmt"
	"time"

	"github.com/heygaia/chat-sync/internal/backend"
	"github.com/heygaia/chat-sync/internal/domain"
	"github.com/heygaia/chat-sync/internal/store"
)

// parseServerTime turns a backend timestamp string into a time.Time. Missing
// or malformed values come back as the zero time, which normalizes to epoch
// millisecond 0 everywhere timestamps are compared.
func parseServerTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// mapConversation shapes backend conversation metadata into the local record.
// The backend calls the title "description"; updatedAt defaults to createdAt
// when absent.
func mapConversation(sum backend.ConversationSummary) *domain.Conversation {
	created := parseServerTime(sum.CreatedAt)
	updated := parseServerTime(sum.UpdatedAt)
	if updated.IsZero() {
		updated = created
	}
	return &domain.Conversation{
		ID:                sum.ConversationID,
		Title:             sum.Description,
		Starred:           sum.Starred,
		IsSystemGenerated: sum.IsSystemGenerated,
		SystemPurpose:     sum.SystemPurpose,
		CreatedAt:         created,
		UpdatedAt:         updated,
	}
}

// mapMessages shapes backend messages into local records. Backend roles
// user/bot translate to user/assistant; anything else becomes system. A
// message still marked loading server-side maps to status sending. Messages
// that arrive without an ID get a deterministic fallback so repeated syncs
// key them identically.
func mapMessages(conversationID string, in []backend.ServerMessage) []domain.Message {
	out := make([]domain.Message, 0, len(in))
	for i, sm := range in {
		date := parseServerTime(sm.Date)

		var role domain.MessageRole
		switch sm.Type {
		case "user":
			role = domain.RoleUser
		case "bot":
			role = domain.RoleAssistant
		default:
			role = domain.RoleSystem
		}

		status := domain.StatusSent
		if sm.Loading {
			status = domain.StatusSending
		}

		id := sm.MessageID
		if id == "" {
			id = fmt.Sprintf("%s-%d-%d", conversationID, i, store.Millis(date))
		}

		out = append(out, domain.Message{
			ID:             id,
			ConversationID: conversationID,
			Role:           role,
			Content:        sm.Response,
			Status:         status,
			Attachments:    sm.Attachments,
			ToolData:       sm.ToolData,
			WorkflowData:   sm.WorkflowData,
			CalendarEvent:  sm.CalendarEvent,
			ReplyToID:      sm.ReplyTo,
			CreatedAt:      date,
			UpdatedAt:      date,
		})
	}
	return out
}
