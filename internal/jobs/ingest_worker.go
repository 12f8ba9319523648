package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/doctalk-ai/doctalk/internal/domain"
)

const (
	// MaxRetries is the maximum number of attempts for a failing job
	MaxRetries = 3

	// claimBatchSize bounds how many jobs one poll cycle takes on
	claimBatchSize = 32
)

// IngestionJobRepository defines the interface for ingestion job persistence
type IngestionJobRepository interface {
	// ClaimPending atomically claims up to limit pending jobs
	ClaimPending(ctx context.Context, limit int) ([]*domain.IngestionJob, error)

	// UpdateStatus updates the status of an ingestion job
	UpdateStatus(ctx context.Context, id string, status domain.IngestionJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, id string) error
}

// IngestionService defines the interface for running one ingestion attempt
type IngestionService interface {
	ProcessJob(ctx context.Context, job *domain.IngestionJob) error
}

// IngestWorker claims ingestion jobs and runs them on a bounded
// goroutine pool, so one slow document never starves the queue.
type IngestWorker struct {
	repo    IngestionJobRepository
	service IngestionService
	pool    *ants.Pool
}

// NewIngestWorker creates a new IngestWorker with the given concurrency.
func NewIngestWorker(repo IngestionJobRepository, service IngestionService, concurrency int) (*IngestWorker, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion pool: %w", err)
	}
	return &IngestWorker{
		repo:    repo,
		service: service,
		pool:    pool,
	}, nil
}

// Close releases the goroutine pool.
func (w *IngestWorker) Close() {
	w.pool.Release()
}

// ProcessJobs implements the JobProcessor interface. It waits for the
// claimed batch to finish so claims never outrun processing capacity.
func (w *IngestWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Processing %d ingestion jobs", len(jobs))

	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Add(1)
		err := w.pool.Submit(func() {
			defer wg.Done()
			if err := w.processJob(ctx, job); err != nil {
				log.Printf("Error processing job %s: %v", job.ID, err)
			}
		})
		if err != nil {
			wg.Done()
			log.Printf("Error submitting job %s: %v", job.ID, err)
		}
	}
	wg.Wait()

	return nil
}

func (w *IngestWorker) processJob(ctx context.Context, job *domain.IngestionJob) error {
	log.Printf("Processing job %s for document %s", job.ID, job.DocumentID)

	err := w.service.ProcessJob(ctx, job)
	switch {
	case err == nil:
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestionJobStatusCompleted, ""); err != nil {
			return fmt.Errorf("failed to update job status to completed: %w", err)
		}
		log.Printf("Job %s completed successfully", job.ID)
		return nil

	case errors.Is(err, domain.ErrLeaseHeld):
		// Another attempt owns the document right now. Requeue without
		// burning a retry.
		log.Printf("Job %s deferred: document %s lease is held", job.ID, job.DocumentID)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestionJobStatusPending, ""); err != nil {
			return fmt.Errorf("failed to requeue deferred job: %w", err)
		}
		return nil

	case errors.Is(err, domain.ErrIngestionCancelled):
		log.Printf("Job %s cancelled: document %s was deleted or replaced", job.ID, job.DocumentID)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestionJobStatusFailed, err.Error()); err != nil {
			return fmt.Errorf("failed to update cancelled job status: %w", err)
		}
		return nil

	case errors.Is(err, domain.ErrIngestionFailed):
		// The attempt already flipped the document to failed and
		// compensated. A requeued job would find the document
		// unclaimable, so the job terminates here; retries of the
		// failing step happened inside the attempt.
		log.Printf("Job %s failed: document %s ingestion failed", job.ID, job.DocumentID)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestionJobStatusFailed, err.Error()); err != nil {
			return fmt.Errorf("failed to update failed job status: %w", err)
		}
		return nil

	default:
		return w.handleJobFailure(ctx, job, err)
	}
}

// handleJobFailure requeues a job that failed before its attempt took
// ownership of the document (lease or status-flip infrastructure
// errors). The document is still uploaded, so a later attempt can
// claim it.
func (w *IngestWorker) handleJobFailure(ctx context.Context, job *domain.IngestionJob, jobErr error) error {
	log.Printf("Job %s failed: %v", job.ID, jobErr)

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Printf("Job %s exceeded max retries (%d), marking as failed", job.ID, MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestionJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	log.Printf("Job %s will be retried (attempt %d/%d)", job.ID, job.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestionJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
