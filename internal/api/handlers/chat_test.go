package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/pagination"
	"github.com/doctalk-ai/doctalk/internal/service"
)

type MockChatSessionService struct {
	mock.Mock
}

func (m *MockChatSessionService) CreateSession(ctx context.Context, owner, title string) (*domain.ChatSession, error) {
	args := m.Called(ctx, owner, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatSession), args.Error(1)
}

func (m *MockChatSessionService) ListSessions(ctx context.Context, owner string) ([]*domain.ChatSession, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatSession), args.Error(1)
}

func (m *MockChatSessionService) ListMessages(ctx context.Context, input service.ListMessagesInput) (*pagination.PageResult[*domain.ChatMessage], error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.ChatMessage]), args.Error(1)
}

type MockAnswerGenerator struct {
	mock.Mock
}

func (m *MockAnswerGenerator) GenerateAnswer(ctx context.Context, owner, sessionID, userContent string) (*domain.ChatMessage, error) {
	args := m.Called(ctx, owner, sessionID, userContent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatMessage), args.Error(1)
}

func newTestSession() *domain.ChatSession {
	return &domain.ChatSession{
		ID:        "sess-1",
		Owner:     "user-1",
		Title:     "Quarterly report",
		CreatedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestChatHandler_CreateSession(t *testing.T) {
	chat := new(MockChatSessionService)
	handler := NewChatHandler(chat, new(MockAnswerGenerator))

	chat.On("CreateSession", mock.Anything, "user-1", "Quarterly report").
		Return(newTestSession(), nil)

	body := bytes.NewBufferString(`{"title": "Quarterly report"}`)
	req := withUserID(httptest.NewRequest(http.MethodPost, "/sessions", body), "user-1")
	w := httptest.NewRecorder()

	handler.CreateSession(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "sess-1", data["id"])
	assert.Equal(t, "Quarterly report", data["title"])
	chat.AssertExpectations(t)
}

func TestChatHandler_CreateSession_NoBody(t *testing.T) {
	chat := new(MockChatSessionService)
	handler := NewChatHandler(chat, new(MockAnswerGenerator))

	untitled := newTestSession()
	untitled.Title = ""
	chat.On("CreateSession", mock.Anything, "user-1", "").Return(untitled, nil)

	req := withUserID(httptest.NewRequest(http.MethodPost, "/sessions", nil), "user-1")
	w := httptest.NewRecorder()

	handler.CreateSession(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	chat.AssertExpectations(t)
}

func TestChatHandler_CreateSession_InvalidJSON(t *testing.T) {
	handler := NewChatHandler(new(MockChatSessionService), new(MockAnswerGenerator))

	body := bytes.NewBufferString(`{"title": `)
	req := withUserID(httptest.NewRequest(http.MethodPost, "/sessions", body), "user-1")
	w := httptest.NewRecorder()

	handler.CreateSession(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestChatHandler_ListSessions(t *testing.T) {
	chat := new(MockChatSessionService)
	handler := NewChatHandler(chat, new(MockAnswerGenerator))

	chat.On("ListSessions", mock.Anything, "user-1").
		Return([]*domain.ChatSession{newTestSession()}, nil)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/sessions", nil), "user-1")
	w := httptest.NewRecorder()

	handler.ListSessions(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	items := resp["data"].([]interface{})
	require.Len(t, items, 1)
}

func TestChatHandler_ListMessages(t *testing.T) {
	chat := new(MockChatSessionService)
	handler := NewChatHandler(chat, new(MockAnswerGenerator))

	page := &pagination.PageResult[*domain.ChatMessage]{
		Items: []*domain.ChatMessage{
			{
				ID:        7,
				SessionID: "sess-1",
				Role:      domain.MessageRoleAI,
				Content:   "The report covers Q1.",
				Metadata: &domain.MessageMetadata{
					Sources: []domain.SourceRef{{DocumentID: "doc-1", Filename: "report.pdf", ChunkPosition: 2, Score: 0.81}},
				},
				CreatedAt: time.Date(2026, 5, 1, 9, 31, 0, 0, time.UTC),
			},
		},
		Cursor:  "next-cursor",
		HasMore: true,
	}
	chat.On("ListMessages", mock.Anything, service.ListMessagesInput{
		SessionID: "sess-1",
		Owner:     "user-1",
		Cursor:    "abc",
		Limit:     10,
	}).Return(page, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1/messages?limit=10&cursor=abc", nil)
	req = withURLParam(withUserID(req, "user-1"), "id", "sess-1")
	w := httptest.NewRecorder()

	handler.ListMessages(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "next-cursor", data["cursor"])
	assert.Equal(t, true, data["has_more"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	msg := items[0].(map[string]interface{})
	assert.Equal(t, "ai", msg["role"])
	assert.Equal(t, "2026-05-01T09:31:00.000Z", msg["created_at"])
	assert.NotNil(t, msg["metadata"])
	chat.AssertExpectations(t)
}

func TestChatHandler_ListMessages_DefaultsLimit(t *testing.T) {
	chat := new(MockChatSessionService)
	handler := NewChatHandler(chat, new(MockAnswerGenerator))

	chat.On("ListMessages", mock.Anything, mock.MatchedBy(func(input service.ListMessagesInput) bool {
		return input.Limit == 0 && input.Cursor == ""
	})).Return(&pagination.PageResult[*domain.ChatMessage]{Items: []*domain.ChatMessage{}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1/messages", nil)
	req = withURLParam(withUserID(req, "user-1"), "id", "sess-1")
	w := httptest.NewRecorder()

	handler.ListMessages(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	chat.AssertExpectations(t)
}

func TestChatHandler_ListMessages_InvalidLimit(t *testing.T) {
	handler := NewChatHandler(new(MockChatSessionService), new(MockAnswerGenerator))

	for _, raw := range []string{"abc", "-1", "1.5"} {
		req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1/messages?limit="+raw, nil)
		req = withURLParam(withUserID(req, "user-1"), "id", "sess-1")
		w := httptest.NewRecorder()

		handler.ListMessages(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid limit")
	}
}

func TestChatHandler_ListMessages_SessionNotFound(t *testing.T) {
	chat := new(MockChatSessionService)
	handler := NewChatHandler(chat, new(MockAnswerGenerator))

	chat.On("ListMessages", mock.Anything, mock.Anything).Return(nil, domain.ErrSessionNotFound)

	req := httptest.NewRequest(http.MethodGet, "/sessions/nope/messages", nil)
	req = withURLParam(withUserID(req, "user-1"), "id", "nope")
	w := httptest.NewRecorder()

	handler.ListMessages(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatHandler_SendMessage(t *testing.T) {
	generator := new(MockAnswerGenerator)
	handler := NewChatHandler(new(MockChatSessionService), generator)

	answer := &domain.ChatMessage{
		ID:        8,
		SessionID: "sess-1",
		Role:      domain.MessageRoleAI,
		Content:   "Revenue grew 12%.",
		CreatedAt: time.Date(2026, 5, 1, 9, 32, 0, 0, time.UTC),
	}
	generator.On("GenerateAnswer", mock.Anything, "user-1", "sess-1", "What was revenue growth?").
		Return(answer, nil)

	body := bytes.NewBufferString(`{"content": "What was revenue growth?"}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/messages", body)
	req = withURLParam(withUserID(req, "user-1"), "id", "sess-1")
	w := httptest.NewRecorder()

	handler.SendMessage(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(8), data["id"])
	assert.Equal(t, "Revenue grew 12%.", data["content"])
	generator.AssertExpectations(t)
}

func TestChatHandler_SendMessage_EmptyContent(t *testing.T) {
	handler := NewChatHandler(new(MockChatSessionService), new(MockAnswerGenerator))

	body := bytes.NewBufferString(`{"content": "   "}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/messages", body)
	req = withURLParam(withUserID(req, "user-1"), "id", "sess-1")
	w := httptest.NewRecorder()

	handler.SendMessage(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "content is required")
}

func TestChatHandler_SendMessage_InvalidJSON(t *testing.T) {
	handler := NewChatHandler(new(MockChatSessionService), new(MockAnswerGenerator))

	body := bytes.NewBufferString(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/messages", body)
	req = withURLParam(withUserID(req, "user-1"), "id", "sess-1")
	w := httptest.NewRecorder()

	handler.SendMessage(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_Unauthorized(t *testing.T) {
	handler := NewChatHandler(new(MockChatSessionService), new(MockAnswerGenerator))

	endpoints := []func(http.ResponseWriter, *http.Request){
		handler.CreateSession, handler.ListSessions, handler.ListMessages, handler.SendMessage,
	}
	for _, endpoint := range endpoints {
		req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
		w := httptest.NewRecorder()
		endpoint(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}
