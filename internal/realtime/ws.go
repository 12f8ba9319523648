package realtime

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/doctalk-ai/doctalk/internal/domain"
)

// Close codes sent before dropping an unauthenticated connection.
const (
	CloseMissingToken        = 4001
	CloseUnauthorizedSession = 4002
	CloseInvalidToken        = 4003
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// SessionResolver checks that a session exists and belongs to a user.
type SessionResolver interface {
	GetSession(ctx context.Context, owner, id string) (*domain.ChatSession, error)
}

// WSHandler upgrades subscription requests and streams session events.
// Browsers cannot set headers on websocket dials, so the credential
// arrives as a query parameter and is checked before any event flows.
type WSHandler struct {
	hub      *Hub
	auth     TokenValidator
	sessions SessionResolver
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, auth TokenValidator, sessions SessionResolver) *WSHandler {
	return &WSHandler{
		hub:      hub,
		auth:     auth,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeSession handles one subscription connection for sessionID.
func (h *WSHandler) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		closeWith(conn, CloseMissingToken, "missing token")
		return
	}

	userID, err := h.auth.ValidateToken(r.Context(), token)
	if err != nil {
		closeWith(conn, CloseInvalidToken, "invalid token")
		return
	}

	if _, err := h.sessions.GetSession(r.Context(), userID, sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			closeWith(conn, CloseUnauthorizedSession, "unknown session")
			return
		}
		closeWith(conn, websocket.CloseInternalServerErr, "session lookup failed")
		return
	}

	sub := h.hub.Subscribe(sessionID)
	defer h.hub.Unsubscribe(sub)

	go h.readPump(conn)
	h.writePump(conn, sub)
}

// readPump consumes client frames to keep pong handling alive. The
// stream is one-way; any payload the client sends is discarded.
func (h *WSHandler) readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case ev, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped by the hub: slow consumer or hub shutdown.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		log.Printf("Error writing websocket close frame: %v", err)
	}
	_ = conn.Close()
}
