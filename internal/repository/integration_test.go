//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/service"
	"github.com/doctalk-ai/doctalk/internal/testutil"
)

func newTestDB(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { pc.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return pool
}

func seedUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool) *service.User {
	t.Helper()
	u := &service.User{
		ID:        uuid.NewString(),
		Email:     uuid.NewString() + "@example.com",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, NewUserRepository(pool).Create(ctx, u))
	return u
}

func seedDocument(ctx context.Context, t *testing.T, pool *pgxpool.Pool, owner string) *domain.Document {
	t.Helper()
	doc := domain.NewDocument(uuid.NewString(), owner, uuid.NewString()+".txt", 128,
		time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, NewDocumentRepository(pool).Create(ctx, doc))
	return doc
}

// testVector builds a unit-ish embedding whose first component carries
// the signal, so cosine distance orders vectors predictably.
func testVector(lead float32) []float32 {
	v := make([]float32, 1536)
	v[0] = lead
	v[1] = 1 - lead
	return v
}
