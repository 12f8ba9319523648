package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, s *domain.ChatSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSessionRepository) GetForOwner(ctx context.Context, owner, id string) (*domain.ChatSession, error) {
	args := m.Called(ctx, owner, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatSession), args.Error(1)
}

func (m *MockSessionRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.ChatSession, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatSession), args.Error(1)
}

func (m *MockSessionRepository) UpdateTitle(ctx context.Context, id, title string) error {
	args := m.Called(ctx, id, title)
	return args.Error(0)
}

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Insert(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatMessage), args.Error(1)
}

func (m *MockMessageRepository) ListBySession(ctx context.Context, sessionID string, cursor *pagination.Cursor, limit int) ([]*domain.ChatMessage, error) {
	args := m.Called(ctx, sessionID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatMessage), args.Error(1)
}

func (m *MockMessageRepository) ListRecent(ctx context.Context, sessionID string, n int) ([]*domain.ChatMessage, error) {
	args := m.Called(ctx, sessionID, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatMessage), args.Error(1)
}

// recordingNotifier captures notifications in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []*domain.ChatMessage
}

func (n *recordingNotifier) Notify(sessionID string, m *domain.ChatMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, m)
}

func TestChatService_CreateSession(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	svc := NewChatService(sessions, new(MockMessageRepository), nil, NewMockUUIDGenerator("s-1"))

	sessions.On("Create", ctx, mock.MatchedBy(func(s *domain.ChatSession) bool {
		return s.ID == "s-1" && s.Owner == "user-1" && s.Title == "Budget notes"
	})).Return(nil)

	session, err := svc.CreateSession(ctx, "user-1", "  Budget notes  ")

	require.NoError(t, err)
	assert.Equal(t, "s-1", session.ID)
	assert.Equal(t, "Budget notes", session.Title)
	sessions.AssertExpectations(t)
}

func TestChatService_CreateSession_MissingOwner(t *testing.T) {
	svc := NewChatService(new(MockSessionRepository), new(MockMessageRepository), nil, NewMockUUIDGenerator())
	_, err := svc.CreateSession(context.Background(), "", "title")
	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
}

func TestChatService_AppendMessage(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	messages := new(MockMessageRepository)
	notifier := &recordingNotifier{}
	svc := NewChatService(sessions, messages, notifier, NewMockUUIDGenerator())

	session := &domain.ChatSession{ID: "s-1", Owner: "user-1", Title: "existing title"}
	sessions.On("GetForOwner", ctx, "user-1", "s-1").Return(session, nil)

	persisted := &domain.ChatMessage{ID: 7, SessionID: "s-1", Role: domain.MessageRoleUser, Content: "hello"}
	messages.On("Insert", ctx, mock.MatchedBy(func(m *domain.ChatMessage) bool {
		return m.SessionID == "s-1" && m.Content == "hello" && !m.CreatedAt.IsZero()
	})).Return(persisted, nil)

	msg, err := svc.AppendMessage(ctx, AppendInput{
		SessionID: "s-1", Owner: "user-1", Role: domain.MessageRoleUser, Content: "hello",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), msg.ID)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, persisted, notifier.events[0])
	sessions.AssertNotCalled(t, "UpdateTitle", mock.Anything, mock.Anything, mock.Anything)
}

func TestChatService_AppendMessage_FirstUserMessageTitlesSession(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	messages := new(MockMessageRepository)
	svc := NewChatService(sessions, messages, nil, NewMockUUIDGenerator())

	session := &domain.ChatSession{ID: "s-1", Owner: "user-1", Title: ""}
	sessions.On("GetForOwner", ctx, "user-1", "s-1").Return(session, nil)

	persisted := &domain.ChatMessage{ID: 1, SessionID: "s-1", Role: domain.MessageRoleUser, Content: "what is in the Q3 report?"}
	messages.On("Insert", ctx, mock.Anything).Return(persisted, nil)
	sessions.On("UpdateTitle", ctx, "s-1", domain.SessionTitleFromMessage("what is in the Q3 report?")).Return(nil)

	_, err := svc.AppendMessage(ctx, AppendInput{
		SessionID: "s-1", Owner: "user-1", Role: domain.MessageRoleUser, Content: "what is in the Q3 report?",
	})

	require.NoError(t, err)
	sessions.AssertExpectations(t)
}

func TestChatService_AppendMessage_AIMessageDoesNotTitle(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	messages := new(MockMessageRepository)
	svc := NewChatService(sessions, messages, nil, NewMockUUIDGenerator())

	session := &domain.ChatSession{ID: "s-1", Owner: "user-1", Title: ""}
	sessions.On("GetForOwner", ctx, "user-1", "s-1").Return(session, nil)

	persisted := &domain.ChatMessage{ID: 1, SessionID: "s-1", Role: domain.MessageRoleAI, Content: "an answer"}
	messages.On("Insert", ctx, mock.Anything).Return(persisted, nil)

	_, err := svc.AppendMessage(ctx, AppendInput{
		SessionID: "s-1", Owner: "user-1", Role: domain.MessageRoleAI, Content: "an answer",
	})

	require.NoError(t, err)
	sessions.AssertNotCalled(t, "UpdateTitle", mock.Anything, mock.Anything, mock.Anything)
}

func TestChatService_AppendMessage_OwnershipResolvesToNotFound(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	svc := NewChatService(sessions, new(MockMessageRepository), nil, NewMockUUIDGenerator())

	sessions.On("GetForOwner", ctx, "intruder", "s-1").Return(nil, domain.ErrSessionNotFound)

	_, err := svc.AppendMessage(ctx, AppendInput{
		SessionID: "s-1", Owner: "intruder", Role: domain.MessageRoleUser, Content: "hi",
	})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestChatService_AppendMessage_InvalidMessage(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	svc := NewChatService(sessions, new(MockMessageRepository), nil, NewMockUUIDGenerator())

	session := &domain.ChatSession{ID: "s-1", Owner: "user-1", Title: "t"}
	sessions.On("GetForOwner", ctx, "user-1", "s-1").Return(session, nil)

	// User messages cannot carry sources.
	_, err := svc.AppendMessage(ctx, AppendInput{
		SessionID: "s-1", Owner: "user-1", Role: domain.MessageRoleUser, Content: "hi",
		Metadata: &domain.MessageMetadata{Sources: []domain.SourceRef{{DocumentID: "d1"}}},
	})

	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)
}

func TestChatService_ListMessages(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	messages := new(MockMessageRepository)
	svc := NewChatService(sessions, messages, nil, NewMockUUIDGenerator())

	session := &domain.ChatSession{ID: "s-1", Owner: "user-1"}
	sessions.On("GetForOwner", ctx, "user-1", "s-1").Return(session, nil)

	now := time.Now().UTC()
	items := []*domain.ChatMessage{
		{ID: 1, SessionID: "s-1", Role: domain.MessageRoleUser, Content: "a", CreatedAt: now},
		{ID: 2, SessionID: "s-1", Role: domain.MessageRoleAI, Content: "b", CreatedAt: now.Add(time.Second)},
	}
	messages.On("ListBySession", ctx, "s-1", (*pagination.Cursor)(nil), 2).Return(items, nil)

	page, err := svc.ListMessages(ctx, ListMessagesInput{SessionID: "s-1", Owner: "user-1", Limit: 2})

	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	// Full page means another page may exist.
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.Cursor)
}

func TestChatService_ListMessages_InvalidCursor(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	svc := NewChatService(sessions, new(MockMessageRepository), nil, NewMockUUIDGenerator())

	session := &domain.ChatSession{ID: "s-1", Owner: "user-1"}
	sessions.On("GetForOwner", ctx, "user-1", "s-1").Return(session, nil)

	_, err := svc.ListMessages(ctx, ListMessagesInput{SessionID: "s-1", Owner: "user-1", Cursor: "garbage!!"})

	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)
}

func TestChatService_ListMessages_LimitClamped(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	messages := new(MockMessageRepository)
	svc := NewChatService(sessions, messages, nil, NewMockUUIDGenerator())

	session := &domain.ChatSession{ID: "s-1", Owner: "user-1"}
	sessions.On("GetForOwner", ctx, "user-1", "s-1").Return(session, nil)
	messages.On("ListBySession", ctx, "s-1", (*pagination.Cursor)(nil), 100).
		Return([]*domain.ChatMessage{}, nil)

	_, err := svc.ListMessages(ctx, ListMessagesInput{SessionID: "s-1", Owner: "user-1", Limit: 5000})
	require.NoError(t, err)
	messages.AssertExpectations(t)
}

func TestChatService_RecentMessages_ChecksOwnership(t *testing.T) {
	ctx := context.Background()
	sessions := new(MockSessionRepository)
	svc := NewChatService(sessions, new(MockMessageRepository), nil, NewMockUUIDGenerator())

	sessions.On("GetForOwner", ctx, "intruder", "s-1").Return(nil, domain.ErrSessionNotFound)

	_, err := svc.RecentMessages(ctx, "intruder", "s-1", 10)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
