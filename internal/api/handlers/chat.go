package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/doctalk-ai/doctalk/internal/api"
	"github.com/doctalk-ai/doctalk/internal/api/middleware"
	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/pagination"
	"github.com/doctalk-ai/doctalk/internal/service"
)

type ChatSessionService interface {
	CreateSession(ctx context.Context, owner, title string) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, owner string) ([]*domain.ChatSession, error)
	ListMessages(ctx context.Context, input service.ListMessagesInput) (*pagination.PageResult[*domain.ChatMessage], error)
}

type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, owner, sessionID, userContent string) (*domain.ChatMessage, error)
}

type ChatHandler struct {
	chat      ChatSessionService
	generator AnswerGenerator
}

func NewChatHandler(chat ChatSessionService, generator AnswerGenerator) *ChatHandler {
	return &ChatHandler{chat: chat, generator: generator}
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

type SessionResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type MessageResponse struct {
	ID        int64                   `json:"id"`
	SessionID string                  `json:"session_id"`
	Role      string                  `json:"role"`
	Content   string                  `json:"content"`
	Metadata  *domain.MessageMetadata `json:"metadata,omitempty"`
	CreatedAt string                  `json:"created_at"`
}

type MessagePageResponse struct {
	Items   []*MessageResponse `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

func sessionToResponse(s *domain.ChatSession) *SessionResponse {
	return &SessionResponse{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func messageToResponse(m *domain.ChatMessage) *MessageResponse {
	return &MessageResponse{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      string(m.Role),
		Content:   m.Content,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	session, err := h.chat.CreateSession(r.Context(), userID, req.Title)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, sessionToResponse(session))
}

func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessions, err := h.chat.ListSessions(r.Context(), userID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		responses = append(responses, sessionToResponse(s))
	}
	api.Success(w, http.StatusOK, responses)
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.chat.ListMessages(r.Context(), service.ListMessagesInput{
		SessionID: chi.URLParam(r, "id"),
		Owner:     userID,
		Cursor:    r.URL.Query().Get("cursor"),
		Limit:     limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*MessageResponse, 0, len(page.Items))
	for _, m := range page.Items {
		items = append(items, messageToResponse(m))
	}
	api.Success(w, http.StatusOK, &MessagePageResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

// SendMessage runs the full turn: persist the user message, retrieve,
// generate, persist and return the ai message.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	answer, err := h.generator.GenerateAnswer(r.Context(), userID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, messageToResponse(answer))
}
