package service

import (
	"context"
	"testing"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newDocumentFixture() (*MockDocumentRepository, *MockChunkRepository, *MockBlobStore, *MockVectorIndex, *DocumentService) {
	docs := new(MockDocumentRepository)
	chunks := new(MockChunkRepository)
	blobs := new(MockBlobStore)
	index := new(MockVectorIndex)
	svc := NewDocumentService(docs, chunks, blobs, index, "chunks:test-model")
	return docs, chunks, blobs, index, svc
}

func TestDocumentService_Get(t *testing.T) {
	ctx := context.Background()
	docs, _, _, _, svc := newDocumentFixture()

	want := &domain.Document{ID: "doc-1", Owner: "user-1", Filename: "a.txt"}
	docs.On("GetForOwner", ctx, "user-1", "doc-1").Return(want, nil)

	got, err := svc.Get(ctx, "user-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDocumentService_Delete(t *testing.T) {
	ctx := context.Background()
	docs, chunks, blobs, index, svc := newDocumentFixture()

	doc := &domain.Document{ID: "doc-1", Owner: "user-1", Filename: "a.txt", Status: domain.DocumentStatusReady}
	docs.On("GetForOwner", ctx, "user-1", "doc-1").Return(doc, nil)
	index.On("DeleteByDocument", ctx, "chunks:test-model", "doc-1").Return(nil)
	chunks.On("DeleteForDocument", ctx, "doc-1").Return(nil)
	blobs.On("Delete", ctx, "doc-1").Return(nil)
	docs.On("Delete", ctx, "doc-1").Return(nil)

	err := svc.Delete(ctx, "user-1", "doc-1")

	require.NoError(t, err)
	docs.AssertExpectations(t)
	chunks.AssertExpectations(t)
	blobs.AssertExpectations(t)
	index.AssertExpectations(t)
}

func TestDocumentService_Delete_MissingBlobIgnored(t *testing.T) {
	ctx := context.Background()
	docs, chunks, blobs, index, svc := newDocumentFixture()

	doc := &domain.Document{ID: "doc-1", Owner: "user-1", Filename: "a.txt", Status: domain.DocumentStatusFailed}
	docs.On("GetForOwner", ctx, "user-1", "doc-1").Return(doc, nil)
	index.On("DeleteByDocument", ctx, "chunks:test-model", "doc-1").Return(nil)
	chunks.On("DeleteForDocument", ctx, "doc-1").Return(nil)
	blobs.On("Delete", ctx, "doc-1").Return(domain.ErrBlobNotFound)
	docs.On("Delete", ctx, "doc-1").Return(nil)

	err := svc.Delete(ctx, "user-1", "doc-1")
	require.NoError(t, err)
}

func TestDocumentService_Delete_NotOwned(t *testing.T) {
	ctx := context.Background()
	docs, _, _, index, svc := newDocumentFixture()

	docs.On("GetForOwner", ctx, "intruder", "doc-1").Return(nil, domain.ErrDocumentNotFound)

	err := svc.Delete(ctx, "intruder", "doc-1")

	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	index.AssertNotCalled(t, "DeleteByDocument", mock.Anything, mock.Anything, mock.Anything)
}

func TestDocumentService_Delete_VectorFailureAborts(t *testing.T) {
	ctx := context.Background()
	docs, chunks, _, index, svc := newDocumentFixture()

	doc := &domain.Document{ID: "doc-1", Owner: "user-1", Filename: "a.txt", Status: domain.DocumentStatusReady}
	docs.On("GetForOwner", ctx, "user-1", "doc-1").Return(doc, nil)
	index.On("DeleteByDocument", ctx, "chunks:test-model", "doc-1").
		Return(assert.AnError)

	err := svc.Delete(ctx, "user-1", "doc-1")

	require.Error(t, err)
	chunks.AssertNotCalled(t, "DeleteForDocument", mock.Anything, mock.Anything)
	docs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}
