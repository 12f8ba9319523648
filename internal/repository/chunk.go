package repository

import (
	"context"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChunkRepository handles persistence of chunk rows. Vector payloads
// live in the index; these rows are the document's canonical chunk set.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceForDocument deletes existing chunk rows for a document and
// inserts the new set.
func (r *ChunkRepository) ReplaceForDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	for _, c := range chunks {
		_, err := r.db.Exec(ctx,
			`INSERT INTO document_chunks (document_id, position, content, vector_id)
			 VALUES ($1, $2, $3, $4)`,
			c.DocumentID, c.Position, c.Content, c.VectorID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkRepository) DeleteForDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

func (r *ChunkRepository) CountForDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`,
		documentID,
	).Scan(&count)
	return count, err
}

func (r *ChunkRepository) ListForDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT document_id, position, content, vector_id
		 FROM document_chunks WHERE document_id = $1 ORDER BY position ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.DocumentID, &c.Position, &c.Content, &c.VectorID); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
