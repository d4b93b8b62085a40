package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heygaia/chat-sync/internal/api"
	"github.com/heygaia/chat-sync/internal/config"
	"github.com/heygaia/chat-sync/internal/domain"
	"github.com/heygaia/chat-sync/internal/store/sqlite"
	"github.com/heygaia/chat-sync/internal/stream"
)

type noopSyncer struct{}

func (noopSyncer) SyncOnce(context.Context) {}

func newTestAPI(t *testing.T) (http.Handler, domain.Store) {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{}
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Server.WriteTimeout = 5 * time.Second

	h := api.NewRouter(cfg, api.Deps{
		Store:   st,
		Tracker: stream.NewTracker(),
		Syncer:  noopSyncer{},
		Log:     zerolog.Nop(),
	})
	return h, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedConversation(t *testing.T, st domain.Store, id string) {
	t.Helper()
	require.NoError(t, st.PutConversation(context.Background(), &domain.Conversation{
		ID:        id,
		Title:     "seeded",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}))
}

func TestHealthAndReady(t *testing.T) {
	h, _ := newTestAPI(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConversationEndpoints(t *testing.T) {
	h, st := newTestAPI(t)
	seedConversation(t, st, "c1")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listResp))
	assert.Equal(t, 1, listResp.Data.Total)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/conversations/c1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversationUpdateBumpsTimestamp(t *testing.T) {
	h, st := newTestAPI(t)
	seedConversation(t, st, "c1")

	before, err := st.GetConversation(context.Background(), "c1")
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/conversations/c1", map[string]any{
		"title":   "renamed",
		"starred": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	after, err := st.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", after.Title)
	assert.True(t, after.Starred)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestOptimisticMessageLifecycle(t *testing.T) {
	h, st := newTestAPI(t)
	seedConversation(t, st, "c1")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/conversations/c1/messages", map[string]any{
		"content": "hello there",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var createResp struct {
		Data domain.Message `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&createResp))
	optimisticID := createResp.Data.ID
	require.NotEmpty(t, optimisticID)
	assert.Equal(t, domain.StatusSending, createResp.Data.Status)
	assert.True(t, createResp.Data.Optimistic)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/messages/"+optimisticID+"/confirm", map[string]any{
		"backend_id": "srv-42",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	msgs, err := st.ListMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-42", msgs[0].ID)
	assert.False(t, msgs[0].Optimistic)

	// The shell marks delivery separately once the backend acknowledges.
	rec = doJSON(t, h, http.MethodPatch, "/api/v1/messages/srv-42", map[string]any{
		"status": "sent",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	msgs, err = st.ListMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.StatusSent, msgs[0].Status)
}

func TestMessageCreateRequiresContent(t *testing.T) {
	h, st := newTestAPI(t)
	seedConversation(t, st, "c1")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/conversations/c1/messages", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamEndpointsToggleGuard(t *testing.T) {
	h, _ := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/stream/c1/begin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/stream/c1/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var endResp struct {
		Data struct {
			Streaming bool `json:"streaming"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&endResp))
	assert.False(t, endResp.Data.Streaming)
}

func TestSyncTriggerAnswersAccepted(t *testing.T) {
	h, _ := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sync", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestLogoutClearsCache(t *testing.T) {
	h, st := newTestAPI(t)
	seedConversation(t, st, "c1")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/logout", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	convs, err := st.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestSetTokenWithoutStoreConflicts(t *testing.T) {
	h, _ := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/token", map[string]any{
		"token": "abc",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
