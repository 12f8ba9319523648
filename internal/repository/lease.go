package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LeaseRepository grants one ingestion attempt per document at a time.
// A lease whose expiry has passed counts as free, so a crashed worker
// never blocks a document forever.
type LeaseRepository struct {
	db dbtx
}

func NewLeaseRepository(pool *pgxpool.Pool) *LeaseRepository {
	return &LeaseRepository{db: pool}
}

// Acquire takes the document's lease for jobID if it is free or
// expired. Returns false when another live job holds it.
func (r *LeaseRepository) Acquire(ctx context.Context, documentID, jobID string, ttl time.Duration) (bool, error) {
	expiresAt := time.Now().UTC().Add(ttl)
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO document_leases (document_id, job_id, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (document_id) DO UPDATE SET
			job_id = EXCLUDED.job_id,
			expires_at = EXCLUDED.expires_at
		 WHERE document_leases.expires_at < now()`,
		documentID, jobID, expiresAt,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}

// Release frees the lease only if jobID still holds it. A lease that
// expired and was re-acquired by another job is left alone.
func (r *LeaseRepository) Release(ctx context.Context, documentID, jobID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM document_leases WHERE document_id = $1 AND job_id = $2`,
		documentID, jobID,
	)
	return err
}
