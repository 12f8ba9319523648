package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/doctalk-ai/doctalk/internal/api/handlers"
	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/pagination"
	"github.com/doctalk-ai/doctalk/internal/realtime"
	"github.com/doctalk-ai/doctalk/internal/service"
)

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type MockDocumentUploader struct {
	mock.Mock
}

func (m *MockDocumentUploader) Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentUploader) Reingest(ctx context.Context, owner, documentID string) (*domain.IngestionJob, error) {
	args := m.Called(ctx, owner, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestionJob), args.Error(1)
}

type MockDocumentReader struct {
	mock.Mock
}

func (m *MockDocumentReader) Get(ctx context.Context, owner, id string) (*domain.Document, error) {
	args := m.Called(ctx, owner, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentReader) List(ctx context.Context, owner string) ([]*domain.Document, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentReader) Delete(ctx context.Context, owner, id string) error {
	args := m.Called(ctx, owner, id)
	return args.Error(0)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) CreateSession(ctx context.Context, owner, title string) (*domain.ChatSession, error) {
	args := m.Called(ctx, owner, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatSession), args.Error(1)
}

func (m *MockChatService) ListSessions(ctx context.Context, owner string) ([]*domain.ChatSession, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatSession), args.Error(1)
}

func (m *MockChatService) ListMessages(ctx context.Context, input service.ListMessagesInput) (*pagination.PageResult[*domain.ChatMessage], error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.ChatMessage]), args.Error(1)
}

func (m *MockChatService) GetSession(ctx context.Context, owner, id string) (*domain.ChatSession, error) {
	args := m.Called(ctx, owner, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatSession), args.Error(1)
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

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

func setupRouter() (http.Handler, *MockAuthValidator, *MockDocumentUploader, *MockDocumentReader, *MockChatService, *MockAnswerGenerator) {
	auth := new(MockAuthValidator)
	uploader := new(MockDocumentUploader)
	reader := new(MockDocumentReader)
	chat := new(MockChatService)
	generator := new(MockAnswerGenerator)

	router := NewRouter(RouterConfig{
		AuthValidator:   auth,
		DocumentHandler: handlers.NewDocumentHandler(uploader, reader),
		ChatHandler:     handlers.NewChatHandler(chat, generator),
		WSHandler:       realtime.NewWSHandler(realtime.NewHub(), auth, chat),
	})
	return router, auth, uploader, reader, chat, generator
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_AuthenticatedRoutes_RequireAuth(t *testing.T) {
	router, _, _, _, _, _ := setupRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/documents"},
		{http.MethodGet, "/documents"},
		{http.MethodGet, "/documents/doc-1"},
		{http.MethodDelete, "/documents/doc-1"},
		{http.MethodPost, "/documents/doc-1/reingest"},
		{http.MethodPost, "/sessions"},
		{http.MethodGet, "/sessions"},
		{http.MethodGet, "/sessions/sess-1/messages"},
		{http.MethodPost, "/sessions/sess-1/messages"},
	}

	for _, route := range routes {
		req := httptest.NewRequest(route.method, route.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestRouter_AuthenticatedRoutes_WithValidAuth(t *testing.T) {
	router, auth, _, reader, _, _ := setupRouter()

	auth.On("ValidateToken", mock.Anything, "valid-token").Return("user-1", nil)
	reader.On("List", mock.Anything, "user-1").Return([]*domain.Document{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	auth.AssertExpectations(t)
	reader.AssertExpectations(t)
}

func TestRouter_SendMessage_RoutesToGenerator(t *testing.T) {
	router, auth, _, _, _, generator := setupRouter()

	auth.On("ValidateToken", mock.Anything, "valid-token").Return("user-1", nil)
	generator.On("GenerateAnswer", mock.Anything, "user-1", "sess-1", "hello").
		Return(&domain.ChatMessage{
			ID:        1,
			SessionID: "sess-1",
			Role:      domain.MessageRoleAI,
			Content:   "hi",
			CreatedAt: time.Now().UTC(),
		}, nil)

	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/messages",
		jsonBody(`{"content": "hello"}`))
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	generator.AssertExpectations(t)
}

func TestRouter_RequestIDHeader(t *testing.T) {
	router, _, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
