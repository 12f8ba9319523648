package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/pagination"
	"github.com/doctalk-ai/doctalk/internal/telemetry"
)

// SessionRepositoryInterface defines chat session persistence
type SessionRepositoryInterface interface {
	Create(ctx context.Context, s *domain.ChatSession) error
	GetForOwner(ctx context.Context, owner, id string) (*domain.ChatSession, error)
	ListByOwner(ctx context.Context, owner string) ([]*domain.ChatSession, error)
	UpdateTitle(ctx context.Context, id, title string) error
}

// MessageRepositoryInterface defines chat message persistence. Insert
// assigns the message id from the database sequence and returns the
// stored row.
type MessageRepositoryInterface interface {
	Insert(ctx context.Context, m *domain.ChatMessage) (*domain.ChatMessage, error)
	ListBySession(ctx context.Context, sessionID string, cursor *pagination.Cursor, limit int) ([]*domain.ChatMessage, error)
	ListRecent(ctx context.Context, sessionID string, n int) ([]*domain.ChatMessage, error)
}

// MessageNotifier receives every persisted message for realtime fan-out.
type MessageNotifier interface {
	Notify(sessionID string, m *domain.ChatMessage)
}

// AppendInput describes a message to append to a session.
type AppendInput struct {
	SessionID string
	Owner     string
	Role      domain.MessageRole
	Content   string
	Metadata  *domain.MessageMetadata
}

// ListMessagesInput describes a paginated message listing.
type ListMessagesInput struct {
	SessionID string
	Owner     string
	Cursor    string
	Limit     int
}

// ChatService owns session and message persistence and ordering. Every
// message write in the system goes through AppendMessage; it is also
// the only place the realtime gateway is notified from.
type ChatService struct {
	sessions SessionRepositoryInterface
	messages MessageRepositoryInterface
	notifier MessageNotifier
	uuidGen  UUIDGenerator

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewChatService creates a new ChatService instance. notifier may be
// nil when no realtime gateway is attached.
func NewChatService(
	sessions SessionRepositoryInterface,
	messages MessageRepositoryInterface,
	notifier MessageNotifier,
	uuidGen UUIDGenerator,
) *ChatService {
	return &ChatService{
		sessions: sessions,
		messages: messages,
		notifier: notifier,
		uuidGen:  uuidGen,
		locks:    make(map[string]*sync.Mutex),
	}
}

// CreateSession creates a new session for the owner.
func (s *ChatService) CreateSession(ctx context.Context, owner, title string) (*domain.ChatSession, error) {
	if owner == "" {
		return nil, domain.ErrMissingRequiredField
	}

	session := &domain.ChatSession{
		ID:        s.uuidGen.NewString(),
		Owner:     owner,
		Title:     strings.TrimSpace(title),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession returns the session if the caller owns it. A session
// owned by someone else resolves to ErrSessionNotFound.
func (s *ChatService) GetSession(ctx context.Context, owner, sessionID string) (*domain.ChatSession, error) {
	return s.sessions.GetForOwner(ctx, owner, sessionID)
}

// ListSessions returns the owner's sessions, newest first.
func (s *ChatService) ListSessions(ctx context.Context, owner string) ([]*domain.ChatSession, error) {
	return s.sessions.ListByOwner(ctx, owner)
}

// ListMessages returns a page of the session's messages ordered by
// (timestamp, id) ascending.
func (s *ChatService) ListMessages(ctx context.Context, input ListMessagesInput) (*pagination.PageResult[*domain.ChatMessage], error) {
	if _, err := s.sessions.GetForOwner(ctx, input.Owner, input.SessionID); err != nil {
		return nil, err
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	limit := input.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	items, err := s.messages.ListBySession(ctx, input.SessionID, cursor, limit)
	if err != nil {
		return nil, err
	}

	next := pagination.CreateNextCursor(items, limit,
		func(m *domain.ChatMessage) int64 { return m.ID },
		func(m *domain.ChatMessage) time.Time { return m.CreatedAt },
	)

	return &pagination.PageResult[*domain.ChatMessage]{
		Items:   items,
		Cursor:  next,
		HasMore: next != "",
	}, nil
}

// RecentMessages returns the session's last n messages in
// (timestamp, id) ascending order.
func (s *ChatService) RecentMessages(ctx context.Context, owner, sessionID string, n int) ([]*domain.ChatMessage, error) {
	if _, err := s.sessions.GetForOwner(ctx, owner, sessionID); err != nil {
		return nil, err
	}
	return s.messages.ListRecent(ctx, sessionID, n)
}

// AppendMessage durably writes one message and notifies subscribers.
// Appends within a session are serialized so concurrent sends cannot
// interleave out of timestamp order; ids come from the database
// sequence and increase with timestamps.
func (s *ChatService) AppendMessage(ctx context.Context, input AppendInput) (*domain.ChatMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChatService.AppendMessage", telemetry.SpanAttributes{
		Owner:     input.Owner,
		SessionID: input.SessionID,
		Operation: "append",
	})
	defer span.End()

	session, err := s.sessions.GetForOwner(ctx, input.Owner, input.SessionID)
	if err != nil {
		return nil, err
	}

	msg := &domain.ChatMessage{
		SessionID: input.SessionID,
		Role:      input.Role,
		Content:   input.Content,
		Metadata:  input.Metadata,
	}
	if err := domain.ValidateChatMessage(msg); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid chat message", err)
	}

	lock := s.sessionLock(input.SessionID)
	lock.Lock()
	defer lock.Unlock()

	msg.CreatedAt = time.Now().UTC()
	persisted, err := s.messages.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}

	// First user message titles the session.
	if session.Title == "" && input.Role == domain.MessageRoleUser {
		title := domain.SessionTitleFromMessage(input.Content)
		if err := s.sessions.UpdateTitle(ctx, session.ID, title); err != nil {
			telemetry.CaptureError(ctx, err)
		}
	}

	if s.notifier != nil {
		s.notifier.Notify(input.SessionID, persisted)
	}

	return persisted, nil
}

func (s *ChatService) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}
