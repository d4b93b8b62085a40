package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heygaia/chat-sync/internal/api/response"
	"github.com/heygaia/chat-sync/internal/stream"
)

// StreamHandler lets the app shell mark streamed responses as in flight so
// sync passes keep their hands off the affected conversations.
type StreamHandler struct {
	tracker *stream.Tracker
}

func NewStreamHandler(tracker *stream.Tracker) *StreamHandler {
	return &StreamHandler{tracker: tracker}
}

// Begin marks a conversation's response stream as started.
func (h *StreamHandler) Begin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if id == "" {
		response.BadRequest(w, "missing conversation ID")
		return
	}

	h.tracker.Begin(id)
	response.OK(w, map[string]bool{
		"streaming": true,
	})
}

// End marks a conversation's response stream as finished.
func (h *StreamHandler) End(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if id == "" {
		response.BadRequest(w, "missing conversation ID")
		return
	}

	h.tracker.End(id)
	response.OK(w, map[string]bool{
		"streaming": h.tracker.StreamingConversation(id),
	})
}
