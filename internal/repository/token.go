package repository

import (
	"context"
	"errors"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TokenRepository struct {
	db dbtx
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{db: pool}
}

func (r *TokenRepository) Create(ctx context.Context, t *service.APIToken) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO api_tokens (id, user_id, name, token_hash, revoked, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.Name, t.TokenHash, t.Revoked, t.CreatedAt,
	)
	return err
}

func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*service.APIToken, error) {
	var t service.APIToken
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, name, token_hash, revoked, created_at
		 FROM api_tokens WHERE token_hash = $1`,
		hash,
	).Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepository) Revoke(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE api_tokens SET revoked = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}
