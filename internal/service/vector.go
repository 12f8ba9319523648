package service

import "context"

// VectorMetadata travels with every indexed vector. Owner scopes
// queries to a single tenant; the rest feeds citations.
type VectorMetadata struct {
	DocumentID    string
	Owner         string
	ChunkPosition int
	Filename      string
}

// VectorEntry is one (id, vector, metadata) upsert unit. Content is
// stored alongside the vector so retrieval can return passage text.
type VectorEntry struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata VectorMetadata
}

// VectorMatch is one ranked query result. Score is the index's own
// similarity value, returned unmodified.
type VectorMatch struct {
	ID       string
	Score    float32
	Content  string
	Metadata VectorMetadata
}

// VectorFilter restricts a query to vectors matching the metadata.
type VectorFilter struct {
	Owner string
}

// VectorIndex is the similarity-search service boundary: upserts are
// idempotent by (namespace, id), queries return matches in descending
// score order. The namespace carries the embedding model tag so index
// and query embeddings can never come from different models.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, entries []VectorEntry) error
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter VectorFilter) ([]VectorMatch, error)
	Delete(ctx context.Context, namespace string, ids []string) error
	DeleteByDocument(ctx context.Context, namespace string, documentID string) error
}

// VectorNamespace derives the index namespace for an embedding model
// identity. Ingestion and retrieval both go through this, pinning the
// model version per namespace.
func VectorNamespace(embeddingModelID string) string {
	return "chunks:" + embeddingModelID
}
