package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/heygaia/chat-sync/internal/api/response"
	"github.com/heygaia/chat-sync/internal/domain"
)

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, dst any) error {
	defer io.Copy(io.Discard, r.Body)
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// MessageHandler serves the live send path: optimistic inserts and their
// later confirmation against backend-issued IDs.
type MessageHandler struct {
	store domain.Store
}

func NewMessageHandler(store domain.Store) *MessageHandler {
	return &MessageHandler{store: store}
}

type createMessageRequest struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
	ReplyToID   string   `json:"reply_to_id"`
}

// Create inserts an optimistic user message: client-generated UUID, status
// sending. The shell shows it immediately; Confirm swaps in the backend ID
// once the send is acknowledged.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req createMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Content == "" {
		response.BadRequest(w, "content is required")
		return
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        req.Content,
		Status:         domain.StatusSending,
		Optimistic:     true,
		Attachments:    req.Attachments,
		ReplyToID:      req.ReplyToID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.PutMessage(r.Context(), msg); err != nil {
		response.InternalError(w, "failed to store message")
		return
	}

	response.Created(w, msg)
}

type confirmMessageRequest struct {
	BackendID string `json:"backend_id"`
}

// Confirm swaps an optimistic message's client ID for the backend-issued one.
// Confirming an ID that is no longer present (already confirmed, or swept by
// a sync) is not an error.
func (h *MessageHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	optimisticID := chi.URLParam(r, "messageID")

	var req confirmMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.BackendID == "" {
		response.BadRequest(w, "backend_id is required")
		return
	}

	if err := h.store.ReplaceOptimisticMessage(r.Context(), optimisticID, req.BackendID); err != nil {
		response.InternalError(w, "failed to confirm message")
		return
	}

	response.OK(w, map[string]string{
		"id": req.BackendID,
	})
}

type updateMessageRequest struct {
	Content *string               `json:"content"`
	Status  *domain.MessageStatus `json:"status"`
}

// Update patches a message's content or delivery status. Used by the shell
// while a response streams in and when a send fails. Unknown IDs are silent
// no-ops, matching the store semantics.
func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")

	var req updateMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Content == nil && req.Status == nil {
		response.BadRequest(w, "nothing to update")
		return
	}

	if req.Content != nil {
		if err := h.store.UpdateMessageContent(r.Context(), id, *req.Content); err != nil {
			response.InternalError(w, "failed to update message content")
			return
		}
	}
	if req.Status != nil {
		switch *req.Status {
		case domain.StatusSending, domain.StatusSent, domain.StatusFailed:
		default:
			response.BadRequest(w, "invalid status")
			return
		}
		if err := h.store.UpdateMessageStatus(r.Context(), id, *req.Status); err != nil {
			response.InternalError(w, "failed to update message status")
			return
		}
	}

	response.NoContent(w)
}
