package repository

import (
	"context"

	"github.com/doctalk-ai/doctalk/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorIndex implements similarity search over the chunk_vectors
// table. Namespaces partition the table by embedding model so vectors
// from different models are never compared.
type PgVectorIndex struct {
	pool *pgxpool.Pool
}

func NewPgVectorIndex(pool *pgxpool.Pool) *PgVectorIndex {
	return &PgVectorIndex{pool: pool}
}

// Upsert writes entries keyed by (namespace, vector_id). Re-upserting
// an existing id overwrites it, so retried attempts converge on the
// same rows.
func (r *PgVectorIndex) Upsert(ctx context.Context, namespace string, entries []service.VectorEntry) error {
	for _, e := range entries {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO chunk_vectors
				(namespace, vector_id, owner, document_id, filename, chunk_position, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (namespace, vector_id) DO UPDATE SET
				owner = EXCLUDED.owner,
				document_id = EXCLUDED.document_id,
				filename = EXCLUDED.filename,
				chunk_position = EXCLUDED.chunk_position,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding`,
			namespace,
			e.ID,
			e.Metadata.Owner,
			e.Metadata.DocumentID,
			e.Metadata.Filename,
			e.Metadata.ChunkPosition,
			e.Content,
			pgvector.NewVector(e.Vector),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Query returns the topK nearest entries in descending score order,
// restricted to the filter's owner.
func (r *PgVectorIndex) Query(ctx context.Context, namespace string, vector []float32, topK int, filter service.VectorFilter) ([]service.VectorMatch, error) {
	if topK <= 0 {
		topK = 5
	}

	rows, err := r.pool.Query(ctx,
		`SELECT vector_id, owner, document_id, filename, chunk_position, content,
		        1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM chunk_vectors
		 WHERE namespace = $2 AND owner = $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(vector), namespace, filter.Owner, topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]service.VectorMatch, 0)
	for rows.Next() {
		var m service.VectorMatch
		var score float64
		if err := rows.Scan(&m.ID, &m.Metadata.Owner, &m.Metadata.DocumentID, &m.Metadata.Filename,
			&m.Metadata.ChunkPosition, &m.Content, &score); err != nil {
			return nil, err
		}
		m.Score = float32(score)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *PgVectorIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`DELETE FROM chunk_vectors WHERE namespace = $1 AND vector_id = ANY($2)`,
		namespace, ids,
	)
	return err
}

func (r *PgVectorIndex) DeleteByDocument(ctx context.Context, namespace string, documentID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM chunk_vectors WHERE namespace = $1 AND document_id = $2`,
		namespace, documentID,
	)
	return err
}
