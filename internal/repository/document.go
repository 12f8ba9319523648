package repository

import (
	"context"
	"errors"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, owner, filename, status, size, chunk_count, failure_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.Owner, d.Filename, d.Status, d.Size, d.ChunkCount, nullableString(d.FailureReason), d.CreatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return r.get(ctx,
		`SELECT id, owner, filename, status, size, chunk_count, failure_reason, created_at
		 FROM documents WHERE id = $1`,
		id,
	)
}

func (r *DocumentRepository) GetForOwner(ctx context.Context, owner, id string) (*domain.Document, error) {
	return r.get(ctx,
		`SELECT id, owner, filename, status, size, chunk_count, failure_reason, created_at
		 FROM documents WHERE id = $1 AND owner = $2`,
		id, owner,
	)
}

func (r *DocumentRepository) GetByOwnerAndFilename(ctx context.Context, owner, filename string) (*domain.Document, error) {
	return r.get(ctx,
		`SELECT id, owner, filename, status, size, chunk_count, failure_reason, created_at
		 FROM documents WHERE owner = $1 AND filename = $2`,
		owner, filename,
	)
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner, filename, status, size, chunk_count, failure_reason, created_at
		 FROM documents WHERE owner = $1 ORDER BY created_at DESC`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		var d domain.Document
		var reason pgtype.Text
		if err := rows.Scan(&d.ID, &d.Owner, &d.Filename, &d.Status, &d.Size, &d.ChunkCount, &reason, &d.CreatedAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			d.FailureReason = reason.String
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// MarkProcessing flips uploaded to processing. Any other current status
// means a concurrent attempt or deletion won; the caller sees not found.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, failure_reason = NULL
		 WHERE id = $2 AND status = $3`,
		domain.DocumentStatusProcessing, id, domain.DocumentStatusUploaded,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) SetReady(ctx context.Context, id string, chunkCount int) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, chunk_count = $2, failure_reason = NULL
		 WHERE id = $3 AND status = $4`,
		domain.DocumentStatusReady, chunkCount, id, domain.DocumentStatusProcessing,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// SetFailed flips processing to failed. Zero rows means this attempt
// no longer owns the document: it was deleted, or a re-upload reset it
// for a fresh attempt. The caller must not overwrite that state.
func (r *DocumentRepository) SetFailed(ctx context.Context, id string, reason string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, chunk_count = 0, failure_reason = $2
		 WHERE id = $3 AND status = $4`,
		domain.DocumentStatusFailed, nullableString(reason), id, domain.DocumentStatusProcessing,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// ResetForReingest returns a document to uploaded so a fresh attempt
// can claim it, clearing the previous attempt's outcome.
func (r *DocumentRepository) ResetForReingest(ctx context.Context, id string, size int64) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, size = $2, chunk_count = 0, failure_reason = NULL
		 WHERE id = $3`,
		domain.DocumentStatusUploaded, size, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) get(ctx context.Context, query string, args ...any) (*domain.Document, error) {
	var d domain.Document
	var reason pgtype.Text
	err := r.db.QueryRow(ctx, query, args...).
		Scan(&d.ID, &d.Owner, &d.Filename, &d.Status, &d.Size, &d.ChunkCount, &reason, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if reason.Valid {
		d.FailureReason = reason.String
	}
	return &d, nil
}
