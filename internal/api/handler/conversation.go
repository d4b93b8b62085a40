package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heygaia/chat-sync/internal/api/response"
	"github.com/heygaia/chat-sync/internal/domain"
)

// ConversationHandler serves the app shell's read and local-edit endpoints
// for cached conversations.
type ConversationHandler struct {
	store domain.Store
}

func NewConversationHandler(store domain.Store) *ConversationHandler {
	return &ConversationHandler{store: store}
}

// List returns all cached conversations, most recently updated first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.ListConversations(r.Context())
	if err != nil {
		response.InternalError(w, "failed to list conversations")
		return
	}

	response.OK(w, map[string]any{
		"conversations": convs,
		"total":         len(convs),
	})
}

// Get returns one cached conversation.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	conv, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			response.NotFound(w, "conversation not found")
			return
		}
		response.InternalError(w, "failed to load conversation")
		return
	}

	response.OK(w, conv)
}

// Messages returns a conversation's cached messages in creation order.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	if _, err := h.store.GetConversation(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			response.NotFound(w, "conversation not found")
			return
		}
		response.InternalError(w, "failed to load conversation")
		return
	}

	msgs, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		response.InternalError(w, "failed to list messages")
		return
	}

	response.OK(w, map[string]any{
		"messages": msgs,
		"total":    len(msgs),
	})
}

type updateConversationRequest struct {
	Title   *string `json:"title"`
	Starred *bool   `json:"starred"`
}

// Update applies a local edit to a conversation's title or starred flag. The
// edit bumps updated_at, so the next sync pass reports the record as current
// rather than re-fetching it.
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	var req updateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Title == nil && req.Starred == nil {
		response.BadRequest(w, "nothing to update")
		return
	}

	conv, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			response.NotFound(w, "conversation not found")
			return
		}
		response.InternalError(w, "failed to load conversation")
		return
	}

	if req.Title != nil {
		conv.Title = *req.Title
	}
	if req.Starred != nil {
		conv.Starred = *req.Starred
	}
	conv.UpdatedAt = time.Now().UTC()

	if err := h.store.PutConversation(r.Context(), conv); err != nil {
		response.InternalError(w, "failed to update conversation")
		return
	}

	response.OK(w, conv)
}

// Delete removes a conversation and its messages from the cache.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	if err := h.store.DeleteConversation(r.Context(), id); err != nil {
		response.InternalError(w, "failed to delete conversation")
		return
	}

	response.NoContent(w)
}
