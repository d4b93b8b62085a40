package syncer

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/heygaia/chat-sync/internal/backend"
	"github.com/heygaia/chat-sync/internal/domain"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) ListConversations(ctx context.Context, page, limit int) ([]backend.ConversationSummary, error) {
	args := m.Called(ctx, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]backend.ConversationSummary), args.Error(1)
}

func (m *MockBackend) BatchSync(ctx context.Context, items []backend.BatchSyncItem) ([]backend.SyncedConversation, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]backend.SyncedConversation), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockStore) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Conversation), args.Error(1)
}

func (m *MockStore) PutConversation(ctx context.Context, conv *domain.Conversation) error {
	return m.Called(ctx, conv).Error(0)
}

func (m *MockStore) PutConversations(ctx context.Context, convs []domain.Conversation) error {
	return m.Called(ctx, convs).Error(0)
}

func (m *MockStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockStore) PutMessage(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockStore) PutMessages(ctx context.Context, msgs []domain.Message) error {
	return m.Called(ctx, msgs).Error(0)
}

func (m *MockStore) ReplaceMessage(ctx context.Context, tempID string, msg *domain.Message) error {
	return m.Called(ctx, tempID, msg).Error(0)
}

func (m *MockStore) ReplaceOptimisticMessage(ctx context.Context, optimisticID, backendID string) error {
	return m.Called(ctx, optimisticID, backendID).Error(0)
}

func (m *MockStore) UpdateMessageContent(ctx context.Context, id, content string) error {
	return m.Called(ctx, id, content).Error(0)
}

func (m *MockStore) UpdateMessageStatus(ctx context.Context, id string, status domain.MessageStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockStore) SyncMessages(ctx context.Context, conversationID string, msgs []domain.Message) error {
	return m.Called(ctx, conversationID, msgs).Error(0)
}

func (m *MockStore) DeleteConversation(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) ClearAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Subscribe(fn func(domain.Event)) func() {
	m.Called(fn)
	return func() {}
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

// stubStream is a fixed-answer stream state for service tests.
type stubStream struct {
	anyStreaming bool
	byID         map[string]bool
}

func (s *stubStream) Streaming() bool { return s.anyStreaming }

func (s *stubStream) StreamingConversation(id string) bool { return s.byID[id] }
