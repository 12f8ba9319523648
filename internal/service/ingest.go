package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/telemetry"
)

// EmbeddingClient defines the interface for generating embeddings.
// Embed returns one vector per input text, in input order.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbeddingModelID() string
}

// BlobStore holds the original uploaded bytes per document.
type BlobStore interface {
	Put(ctx context.Context, documentID, filename string, data []byte) error
	Get(ctx context.Context, documentID string) ([]byte, error)
	Delete(ctx context.Context, documentID string) error
}

// DocumentRepositoryInterface defines document persistence operations
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetForOwner(ctx context.Context, owner, id string) (*domain.Document, error)
	GetByOwnerAndFilename(ctx context.Context, owner, filename string) (*domain.Document, error)
	ListByOwner(ctx context.Context, owner string) ([]*domain.Document, error)
	MarkProcessing(ctx context.Context, id string) error
	SetReady(ctx context.Context, id string, chunkCount int) error
	SetFailed(ctx context.Context, id string, reason string) error
	ResetForReingest(ctx context.Context, id string, size int64) error
	Delete(ctx context.Context, id string) error
}

// ChunkRepositoryInterface defines chunk row persistence operations
type ChunkRepositoryInterface interface {
	ReplaceForDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error
	DeleteForDocument(ctx context.Context, documentID string) error
	CountForDocument(ctx context.Context, documentID string) (int, error)
}

// IngestionJobRepositoryInterface defines job enqueue operations
type IngestionJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IngestionJob) error
}

// LeaseRepositoryInterface defines the per-document ingestion lease
type LeaseRepositoryInterface interface {
	Acquire(ctx context.Context, documentID, jobID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, documentID, jobID string) error
}

// UUIDGenerator generates unique identifiers
type UUIDGenerator interface {
	NewString() string
}

// UploadInput is the upload boundary payload: raw file bytes plus owner.
type UploadInput struct {
	Owner    string
	Filename string
	Data     []byte
}

// IngestServiceConfig controls pipeline behavior.
type IngestServiceConfig struct {
	Chunking ChunkConfig
	Retry    RetryConfig
	LeaseTTL time.Duration
}

// DefaultIngestServiceConfig returns the default pipeline configuration.
func DefaultIngestServiceConfig() IngestServiceConfig {
	return IngestServiceConfig{
		Chunking: DefaultChunkConfig(),
		Retry:    DefaultRetryConfig(),
		LeaseTTL: 10 * time.Minute,
	}
}

// IngestService owns the document ingestion pipeline: the upload entry
// point and the per-attempt state machine driving a document from
// uploaded through processing to ready or failed.
type IngestService struct {
	docs      DocumentRepositoryInterface
	chunks    ChunkRepositoryInterface
	jobs      IngestionJobRepositoryInterface
	leases    LeaseRepositoryInterface
	blobs     BlobStore
	embedder  EmbeddingClient
	index     VectorIndex
	txr       TxRunner
	uuidGen   UUIDGenerator
	transient func(error) bool
	cfg       IngestServiceConfig
}

// NewIngestService creates a new IngestService instance. transient
// classifies external-service errors as retryable; nil means nothing is
// retried.
func NewIngestService(
	docs DocumentRepositoryInterface,
	chunks ChunkRepositoryInterface,
	jobs IngestionJobRepositoryInterface,
	leases LeaseRepositoryInterface,
	blobs BlobStore,
	embedder EmbeddingClient,
	index VectorIndex,
	txr TxRunner,
	uuidGen UUIDGenerator,
	transient func(error) bool,
	cfg IngestServiceConfig,
) *IngestService {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultIngestServiceConfig().LeaseTTL
	}
	return &IngestService{
		docs:      docs,
		chunks:    chunks,
		jobs:      jobs,
		leases:    leases,
		blobs:     blobs,
		embedder:  embedder,
		index:     index,
		txr:       txr,
		uuidGen:   uuidGen,
		transient: transient,
		cfg:       cfg,
	}
}

// Namespace returns the vector index namespace this service writes to.
func (s *IngestService) Namespace() string {
	return VectorNamespace(s.embedder.EmbeddingModelID())
}

// Upload accepts raw file bytes, returns the document descriptor in
// uploaded status immediately, and enqueues the ingestion job. The
// caller never blocks on pipeline completion. Uploading a filename the
// owner already has replaces that document and re-ingests it.
func (s *IngestService) Upload(ctx context.Context, input UploadInput) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Upload", telemetry.SpanAttributes{
		Owner:     input.Owner,
		Operation: "upload",
	})
	defer span.End()

	if input.Owner == "" || input.Filename == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if len(input.Data) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	doc, err := s.docs.GetByOwnerAndFilename(ctx, input.Owner, input.Filename)
	switch {
	case err == nil:
		// A live attempt owns the document; resetting it underneath
		// that attempt would strand both uploads.
		if doc.Status == domain.DocumentStatusProcessing {
			return nil, domain.ErrLeaseHeld
		}
		// Replacement: drop the previous attempt's output before the
		// fresh attempt starts.
		if err := s.compensate(ctx, doc.ID); err != nil {
			return nil, fmt.Errorf("failed to clear previous ingestion output: %w", err)
		}
		if err := s.docs.ResetForReingest(ctx, doc.ID, int64(len(input.Data))); err != nil {
			return nil, err
		}
		doc.Status = domain.DocumentStatusUploaded
		doc.Size = int64(len(input.Data))
		doc.ChunkCount = 0
		doc.FailureReason = ""
	case errors.Is(err, domain.ErrDocumentNotFound):
		doc = domain.NewDocument(s.uuidGen.NewString(), input.Owner, input.Filename,
			int64(len(input.Data)), time.Now().UTC())
		if err := domain.ValidateDocument(doc); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
		}
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := s.blobs.Put(ctx, doc.ID, doc.Filename, input.Data); err != nil {
		return nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	job := domain.NewIngestionJob(s.uuidGen.NewString(), doc.ID, time.Now().UTC())
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue ingestion job: %w", err)
	}

	return doc, nil
}

// Reingest enqueues a fresh ingestion attempt for a failed document.
func (s *IngestService) Reingest(ctx context.Context, owner, documentID string) (*domain.IngestionJob, error) {
	doc, err := s.docs.GetForOwner(ctx, owner, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.DocumentStatusFailed {
		return nil, domain.ErrDocumentNotFailed
	}

	if err := s.docs.ResetForReingest(ctx, doc.ID, doc.Size); err != nil {
		return nil, err
	}

	job := domain.NewIngestionJob(s.uuidGen.NewString(), doc.ID, time.Now().UTC())
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ProcessJob runs one ingestion attempt end to end. It is invoked by
// the worker pool with an already claimed job; the returned error, if
// any, becomes the job's terminal error. Document-level failure state
// and compensation are handled here.
func (s *IngestService) ProcessJob(ctx context.Context, job *domain.IngestionJob) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.ProcessJob", telemetry.SpanAttributes{
		DocumentID: job.DocumentID,
		Operation:  "ingest",
	})
	defer span.End()

	acquired, err := s.leases.Acquire(ctx, job.DocumentID, job.ID, s.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire document lease: %w", err)
	}
	if !acquired {
		return domain.ErrLeaseHeld
	}
	defer func() {
		if err := s.leases.Release(context.WithoutCancel(ctx), job.DocumentID, job.ID); err != nil {
			telemetry.CaptureError(ctx, err)
		}
	}()

	// The processing flip is the first action of the attempt and must be
	// visible to readers before any chunk work begins.
	if err := s.docs.MarkProcessing(ctx, job.DocumentID); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return domain.ErrIngestionCancelled
		}
		return err
	}

	if err := s.runPipeline(ctx, job); err != nil {
		return s.failAttempt(ctx, job, err)
	}
	return nil
}

func (s *IngestService) runPipeline(ctx context.Context, job *domain.IngestionJob) error {
	var raw []byte
	err := s.step(ctx, func() error {
		var err error
		raw, err = s.blobs.Get(ctx, job.DocumentID)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch upload: %w", err)
	}

	doc, err := s.docs.GetByID(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	text, err := ExtractText(doc.Filename, raw)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}

	text = SanitizeText(text)
	pieces := ChunkText(text, s.cfg.Chunking)
	if len(pieces) == 0 {
		return fmt.Errorf("chunk text: %w", domain.ErrEmptyDocument)
	}

	var vectors [][]float32
	err = s.step(ctx, func() error {
		var err error
		vectors, err = s.embedder.Embed(ctx, pieces)
		return err
	})
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	chunks := make([]domain.Chunk, len(pieces))
	entries := make([]VectorEntry, len(pieces))
	for i, piece := range pieces {
		vectorID := domain.ChunkVectorID(doc.ID, i)
		chunks[i] = domain.Chunk{
			DocumentID: doc.ID,
			Position:   i,
			Content:    piece,
			VectorID:   vectorID,
		}
		entries[i] = VectorEntry{
			ID:      vectorID,
			Vector:  vectors[i],
			Content: piece,
			Metadata: VectorMetadata{
				DocumentID:    doc.ID,
				Owner:         doc.Owner,
				ChunkPosition: i,
				Filename:      doc.Filename,
			},
		}
	}

	err = s.step(ctx, func() error {
		return s.index.Upsert(ctx, s.Namespace(), entries)
	})
	if err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}

	// Chunk rows and the terminal status flip commit together, after a
	// final check that the document was not deleted mid-attempt.
	err = s.txr.WithTx(ctx, func(repos TxRepositories) error {
		if _, err := repos.Documents().GetByID(ctx, doc.ID); err != nil {
			if errors.Is(err, domain.ErrDocumentNotFound) {
				return domain.ErrIngestionCancelled
			}
			return err
		}
		if err := repos.Chunks().ReplaceForDocument(ctx, doc.ID, chunks); err != nil {
			return err
		}
		return repos.Documents().SetReady(ctx, doc.ID, len(chunks))
	})
	if err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	return nil
}

// failAttempt guarantees no partial output survives a failed attempt:
// vectors and chunk rows are deleted, then the document is marked
// failed with a human-readable reason. A cancelled attempt (document
// deleted mid-processing) compensates but writes no status, and so
// does an attempt whose document was reset by a re-upload: the failed
// flip only lands while the document is still in processing.
func (s *IngestService) failAttempt(ctx context.Context, job *domain.IngestionJob, cause error) error {
	ctx = context.WithoutCancel(ctx)

	if err := s.compensate(ctx, job.DocumentID); err != nil {
		telemetry.CaptureError(ctx, fmt.Errorf("ingestion compensation failed for document %s: %w", job.DocumentID, err))
	}

	if errors.Is(cause, domain.ErrIngestionCancelled) {
		return cause
	}

	if err := s.docs.SetFailed(ctx, job.DocumentID, cause.Error()); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			// Lost ownership: deleted or replaced mid-attempt. The
			// replacement's own job carries on with the new bytes.
			return domain.ErrIngestionCancelled
		}
		telemetry.CaptureError(ctx, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrIngestionFailed, cause)
}

func (s *IngestService) compensate(ctx context.Context, documentID string) error {
	if err := s.index.DeleteByDocument(ctx, s.Namespace(), documentID); err != nil {
		return err
	}
	return s.chunks.DeleteForDocument(ctx, documentID)
}

// step wraps one pipeline step with the bounded retry policy. Only
// transient failures are retried; content and domain errors fail fast.
func (s *IngestService) step(ctx context.Context, fn func() error) error {
	return withRetry(ctx, s.cfg.Retry, s.transient, fn)
}
