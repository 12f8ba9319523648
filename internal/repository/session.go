package repository

import (
	"context"
	"errors"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	db dbtx
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.ChatSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO chat_sessions (id, owner, title, created_at)
		 VALUES ($1, $2, $3, $4)`,
		s.ID, s.Owner, nullableString(s.Title), s.CreatedAt,
	)
	return err
}

func (r *SessionRepository) GetForOwner(ctx context.Context, owner, id string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	var title pgtype.Text
	err := r.db.QueryRow(ctx,
		`SELECT id, owner, title, created_at
		 FROM chat_sessions WHERE id = $1 AND owner = $2`,
		id, owner,
	).Scan(&s.ID, &s.Owner, &title, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	if title.Valid {
		s.Title = title.String
	}
	return &s, nil
}

func (r *SessionRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.ChatSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner, title, created_at
		 FROM chat_sessions WHERE owner = $1 ORDER BY created_at DESC`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.ChatSession
	for rows.Next() {
		var s domain.ChatSession
		var title pgtype.Text
		if err := rows.Scan(&s.ID, &s.Owner, &title, &s.CreatedAt); err != nil {
			return nil, err
		}
		if title.Valid {
			s.Title = title.String
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) UpdateTitle(ctx context.Context, id, title string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chat_sessions SET title = $1 WHERE id = $2`,
		nullableString(title), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
