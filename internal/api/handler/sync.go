package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/heygaia/chat-sync/internal/api/response"
	"github.com/heygaia/chat-sync/internal/domain"
)

// SyncTrigger is the slice of the sync service the API needs.
type SyncTrigger interface {
	SyncOnce(ctx context.Context)
}

// TokenStore is the writable token source backing the session endpoints.
// Nil when the daemon runs with a fixed token from the environment.
type TokenStore interface {
	Set(token string) error
	Clear() error
}

// SyncHandler serves session lifecycle and manual sync triggering.
type SyncHandler struct {
	store  domain.Store
	syncer SyncTrigger
	tokens TokenStore
	log    zerolog.Logger
}

func NewSyncHandler(store domain.Store, syncer SyncTrigger, tokens TokenStore, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{store: store, syncer: syncer, tokens: tokens, log: log}
}

// Trigger kicks off a sync pass in the background and answers immediately.
// The pass outcome is never reported to the caller; failures only show up in
// the daemon log and are retried on the next scheduled pass.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	go h.syncer.SyncOnce(context.WithoutCancel(r.Context()))

	response.Accepted(w, map[string]string{
		"status": "sync started",
	})
}

type setTokenRequest struct {
	Token string `json:"token"`
}

// SetToken stores the backend access token the shell obtained through its
// OAuth flow. Rejected when the daemon runs with a fixed environment token.
func (h *SyncHandler) SetToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		response.Error(w, http.StatusConflict, "token is managed by the environment")
		return
	}

	var req setTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Token == "" {
		response.BadRequest(w, "token is required")
		return
	}

	if err := h.tokens.Set(req.Token); err != nil {
		response.InternalError(w, "failed to store token")
		return
	}

	response.NoContent(w)
}

// Logout wipes the local cache and forgets the stored backend token.
func (h *SyncHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearAll(r.Context()); err != nil {
		response.InternalError(w, "failed to clear local data")
		return
	}

	if h.tokens != nil {
		if err := h.tokens.Clear(); err != nil {
			h.log.Warn().Err(err).Msg("failed to clear stored token")
		}
	}

	response.NoContent(w)
}
