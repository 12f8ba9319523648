package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository persists chat messages. Message ids come from a
// database sequence, so (created_at, id) gives a total order even when
// two messages share a timestamp.
type MessageRepository struct {
	db dbtx
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: pool}
}

func (r *MessageRepository) Insert(ctx context.Context, m *domain.ChatMessage) (*domain.ChatMessage, error) {
	var metadata []byte
	if m.Metadata != nil {
		var err error
		metadata, err = json.Marshal(m.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode message metadata: %w", err)
		}
	}

	persisted := *m
	err := r.db.QueryRow(ctx,
		`INSERT INTO chat_messages (session_id, role, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		m.SessionID, m.Role, m.Content, metadata, m.CreatedAt,
	).Scan(&persisted.ID)
	if err != nil {
		return nil, err
	}
	return &persisted, nil
}

// ListBySession returns messages after the cursor in chronological
// order, oldest first.
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID string, cursor *pagination.Cursor, limit int) ([]*domain.ChatMessage, error) {
	query := `SELECT id, session_id, role, content, metadata, created_at
		 FROM chat_messages
		 WHERE session_id = $1`
	args := []any{sessionID}

	if cursor != nil {
		query += ` AND (created_at, id) > ($2, $3)`
		args = append(args, cursor.Timestamp, cursor.LastID)
	}

	query += fmt.Sprintf(` ORDER BY created_at ASC, id ASC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

// ListRecent returns the last n messages of a session in chronological
// order.
func (r *MessageRepository) ListRecent(ctx context.Context, sessionID string, n int) ([]*domain.ChatMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, role, content, metadata, created_at
		 FROM (
			 SELECT id, session_id, role, content, metadata, created_at
			 FROM chat_messages
			 WHERE session_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2
		 ) recent
		 ORDER BY created_at ASC, id ASC`,
		sessionID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

func scanMessageRows(rows pgx.Rows) ([]*domain.ChatMessage, error) {
	var messages []*domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var metadata []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &metadata, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			var meta domain.MessageMetadata
			if err := json.Unmarshal(metadata, &meta); err != nil {
				return nil, fmt.Errorf("failed to decode message metadata: %w", err)
			}
			m.Metadata = &meta
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
