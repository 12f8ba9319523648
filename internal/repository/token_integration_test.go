//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/service"
)

func createToken(ctx context.Context, t *testing.T, repo *TokenRepository, userID string) *service.APIToken {
	t.Helper()
	plaintext, err := service.GenerateAPIToken()
	require.NoError(t, err)

	token := &service.APIToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      "ci token",
		TokenHash: service.HashToken(plaintext),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, token))
	return token
}

func TestTokenRepository_CreateAndGetByHash(t *testing.T) {
	ctx := context.Background()
	pool := newTestDB(ctx, t)

	repo := NewTokenRepository(pool)
	user := seedUser(ctx, t, pool)
	token := createToken(ctx, t, repo, user.ID)

	retrieved, err := repo.GetByHash(ctx, token.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, token.ID, retrieved.ID)
	assert.Equal(t, user.ID, retrieved.UserID)
	assert.Equal(t, "ci token", retrieved.Name)
	assert.False(t, retrieved.Revoked)
}

func TestTokenRepository_GetByHash_NotFound(t *testing.T) {
	ctx := context.Background()
	pool := newTestDB(ctx, t)

	repo := NewTokenRepository(pool)

	_, err := repo.GetByHash(ctx, service.HashToken("dct_unknown"))
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestTokenRepository_Revoke(t *testing.T) {
	ctx := context.Background()
	pool := newTestDB(ctx, t)

	repo := NewTokenRepository(pool)
	user := seedUser(ctx, t, pool)
	token := createToken(ctx, t, repo, user.ID)

	require.NoError(t, repo.Revoke(ctx, token.ID))

	retrieved, err := repo.GetByHash(ctx, token.TokenHash)
	require.NoError(t, err)
	assert.True(t, retrieved.Revoked)

	assert.ErrorIs(t, repo.Revoke(ctx, uuid.NewString()), domain.ErrTokenNotFound)
}

func TestTokenRepository_DeletedUserCascades(t *testing.T) {
	ctx := context.Background()
	pool := newTestDB(ctx, t)

	repo := NewTokenRepository(pool)
	user := seedUser(ctx, t, pool)
	token := createToken(ctx, t, repo, user.ID)

	_, err := pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
	require.NoError(t, err)

	_, err = repo.GetByHash(ctx, token.TokenHash)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}
