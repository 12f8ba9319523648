package repository

import (
	"context"
	"errors"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlobRepository stores uploaded file bytes in Postgres. It is the
// fallback blob store when no object storage is configured.
type BlobRepository struct {
	db dbtx
}

func NewBlobRepository(pool *pgxpool.Pool) *BlobRepository {
	return &BlobRepository{db: pool}
}

func (r *BlobRepository) Put(ctx context.Context, documentID, filename string, data []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO document_blobs (document_id, filename, data)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (document_id) DO UPDATE SET
			filename = EXCLUDED.filename,
			data = EXCLUDED.data`,
		documentID, filename, data,
	)
	return err
}

func (r *BlobRepository) Get(ctx context.Context, documentID string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(ctx,
		`SELECT data FROM document_blobs WHERE document_id = $1`,
		documentID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, err
	}
	return data, nil
}

func (r *BlobRepository) Delete(ctx context.Context, documentID string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM document_blobs WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrBlobNotFound
	}
	return nil
}
