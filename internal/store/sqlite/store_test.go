package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heygaia/chat-sync/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) record(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func testConversation(id string, updated time.Time) *domain.Conversation {
	return &domain.Conversation{
		ID:        id,
		Title:     "Trip planning",
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
	}
}

func testMessage(id, convID string, created time.Time) *domain.Message {
	return &domain.Message{
		ID:             id,
		ConversationID: convID,
		Role:           domain.RoleUser,
		Content:        "hello",
		Status:         domain.StatusSent,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestStore_ConversationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.GetConversation(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	rec := &eventRecorder{}
	unsub := s.Subscribe(rec.record)
	defer unsub()

	conv := testConversation("c1", now)
	require.NoError(t, s.PutConversation(ctx, conv))

	got, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Trip planning", got.Title)
	assert.Equal(t, now, got.UpdatedAt)

	// Second put of the same ID reports updated, not added.
	conv.Title = "Trip planning v2"
	require.NoError(t, s.PutConversation(ctx, conv))

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventAdded, events[0].Kind)
	assert.Equal(t, domain.EventUpdated, events[1].Kind)
}

func TestStore_ListConversationsOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.PutConversations(ctx, []domain.Conversation{
		*testConversation("old", now.Add(-time.Hour)),
		*testConversation("new", now),
		*testConversation("mid", now.Add(-time.Minute)),
	}))

	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, "new", convs[0].ID)
	assert.Equal(t, "mid", convs[1].ID)
	assert.Equal(t, "old", convs[2].ID)
}

func TestStore_MessagesOrderedByCreation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.PutConversation(ctx, testConversation("c1", now)))
	require.NoError(t, s.PutMessages(ctx, []domain.Message{
		*testMessage("m2", "c1", now.Add(2*time.Second)),
		*testMessage("m1", "c1", now.Add(time.Second)),
		*testMessage("m3", "c1", now.Add(3*time.Second)),
	}))

	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestStore_ReplaceOptimisticMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	msg := testMessage("tmp-123", "c1", now)
	msg.Optimistic = true
	msg.Status = domain.StatusSending
	require.NoError(t, s.PutMessage(ctx, msg))

	require.NoError(t, s.ReplaceOptimisticMessage(ctx, "tmp-123", "srv-9"))

	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-9", msgs[0].ID)
	assert.False(t, msgs[0].Optimistic)
	assert.Equal(t, "hello", msgs[0].Content)

	// Replacing a missing optimistic ID is a warned no-op.
	require.NoError(t, s.ReplaceOptimisticMessage(ctx, "tmp-gone", "srv-10"))
	msgs, err = s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestStore_UpdateMessageFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.PutMessage(ctx, testMessage("m1", "c1", now)))

	require.NoError(t, s.UpdateMessageContent(ctx, "m1", "edited"))
	require.NoError(t, s.UpdateMessageStatus(ctx, "m1", domain.StatusFailed))

	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "edited", msgs[0].Content)
	assert.Equal(t, domain.StatusFailed, msgs[0].Status)

	// Updates against missing IDs are silent no-ops.
	require.NoError(t, s.UpdateMessageContent(ctx, "nope", "x"))
	require.NoError(t, s.UpdateMessageStatus(ctx, "nope", domain.StatusSent))
}

func TestStore_SyncMessagesEmitsSynced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := &eventRecorder{}
	defer s.Subscribe(rec.record)()

	require.NoError(t, s.SyncMessages(ctx, "c1", []domain.Message{
		*testMessage("m1", "c1", now),
		*testMessage("m2", "c1", now.Add(time.Second)),
	}))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventSynced, events[0].Kind)
	assert.Equal(t, "c1", events[0].ConversationID)
	assert.Equal(t, 2, events[0].Count)
}

func TestStore_DeleteConversationCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.PutConversation(ctx, testConversation("c1", now)))
	require.NoError(t, s.PutConversation(ctx, testConversation("c2", now)))
	require.NoError(t, s.PutMessage(ctx, testMessage("m1", "c1", now)))
	require.NoError(t, s.PutMessage(ctx, testMessage("m2", "c2", now)))

	require.NoError(t, s.DeleteConversation(ctx, "c1"))

	_, err := s.GetConversation(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Sibling conversation untouched.
	msgs, err = s.ListMessages(ctx, "c2")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestStore_ClearAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.PutConversation(ctx, testConversation("c1", now)))
	require.NoError(t, s.PutMessage(ctx, testMessage("m1", "c1", now)))

	require.NoError(t, s.ClearAll(ctx))

	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestStore_AuxiliaryFieldsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	msg := testMessage("m1", "c1", now)
	msg.Attachments = []string{"file-1", "file-2"}
	msg.ToolData = []byte(`{"tool":"calendar"}`)
	msg.ReplyToID = "m0"
	require.NoError(t, s.PutMessage(ctx, msg))

	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"file-1", "file-2"}, msgs[0].Attachments)
	assert.JSONEq(t, `{"tool":"calendar"}`, string(msgs[0].ToolData))
	assert.Equal(t, "m0", msgs[0].ReplyToID)
}
