package domain

import (
	"fmt"
	"time"
)

// MessageRole identifies the author of a chat message
type MessageRole string

const (
	MessageRoleUser MessageRole = "user"
	MessageRoleAI   MessageRole = "ai"
)

// ChatSession represents a conversational session owned by one user
type ChatSession struct {
	ID        string
	Owner     string
	Title     string
	CreatedAt time.Time
}

// SourceRef is a citation from an ai message back to the chunk that
// supported it. It is a read-only reference: the chunk may have been
// deleted since the message was written.
type SourceRef struct {
	DocumentID    string  `json:"document_id"`
	Filename      string  `json:"filename"`
	ChunkPosition int     `json:"chunk_position"`
	Score         float32 `json:"score"`
}

// MessageMetadata carries optional structured metadata on a message.
// Sources is set only on ai messages that used retrieval context.
type MessageMetadata struct {
	Sources []SourceRef `json:"sources,omitempty"`
}

// ChatMessage represents a single message within a session. Ordering
// within a session is the pair (CreatedAt, ID), both assigned at
// persistence and never changed afterwards.
type ChatMessage struct {
	ID        int64
	SessionID string
	Role      MessageRole
	Content   string
	Metadata  *MessageMetadata
	CreatedAt time.Time
}

// ValidateChatMessage validates a ChatMessage before persistence
func ValidateChatMessage(m *ChatMessage) error {
	if m == nil {
		return fmt.Errorf("chat message cannot be nil")
	}

	if m.SessionID == "" {
		return fmt.Errorf("chat message SessionID is required")
	}

	if m.Content == "" {
		return fmt.Errorf("chat message Content is required")
	}

	if !isValidMessageRole(m.Role) {
		return fmt.Errorf("chat message Role is invalid: %s", m.Role)
	}

	if m.Role == MessageRoleUser && m.Metadata != nil && len(m.Metadata.Sources) > 0 {
		return fmt.Errorf("user messages cannot carry sources")
	}

	return nil
}

// SessionTitleFromMessage derives a session title from its first user
// message, truncated to 50 characters.
func SessionTitleFromMessage(content string) string {
	const maxTitle = 50
	runes := []rune(content)
	if len(runes) <= maxTitle {
		return content
	}
	return string(runes[:maxTitle]) + "..."
}

func isValidMessageRole(r MessageRole) bool {
	return r == MessageRoleUser || r == MessageRoleAI
}
