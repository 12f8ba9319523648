package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/telemetry"
)

// DocumentService handles document reads and deletion. Deletion keeps
// the vector index consistent with the document lifecycle: no orphaned
// vectors survive a removed document.
type DocumentService struct {
	docs      DocumentRepositoryInterface
	chunks    ChunkRepositoryInterface
	blobs     BlobStore
	index     VectorIndex
	namespace string
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(
	docs DocumentRepositoryInterface,
	chunks ChunkRepositoryInterface,
	blobs BlobStore,
	index VectorIndex,
	namespace string,
) *DocumentService {
	return &DocumentService{
		docs:      docs,
		chunks:    chunks,
		blobs:     blobs,
		index:     index,
		namespace: namespace,
	}
}

// Get returns one of the owner's documents.
func (s *DocumentService) Get(ctx context.Context, owner, id string) (*domain.Document, error) {
	return s.docs.GetForOwner(ctx, owner, id)
}

// List returns the owner's documents, newest first.
func (s *DocumentService) List(ctx context.Context, owner string) ([]*domain.Document, error) {
	return s.docs.ListByOwner(ctx, owner)
}

// Delete removes a document and everything derived from it: vector
// entries first, then chunk rows, the archived blob, and the document
// row. An ingestion attempt running concurrently aborts at its final
// existence check instead of completing into the deleted document.
func (s *DocumentService) Delete(ctx context.Context, owner, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		Owner:      owner,
		DocumentID: id,
		Operation:  "delete",
	})
	defer span.End()

	doc, err := s.docs.GetForOwner(ctx, owner, id)
	if err != nil {
		return err
	}

	if err := s.index.DeleteByDocument(ctx, s.namespace, doc.ID); err != nil {
		return fmt.Errorf("failed to delete vector entries: %w", err)
	}

	if err := s.chunks.DeleteForDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	if err := s.blobs.Delete(ctx, doc.ID); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
		return fmt.Errorf("failed to delete stored file: %w", err)
	}

	return s.docs.Delete(ctx, doc.ID)
}
