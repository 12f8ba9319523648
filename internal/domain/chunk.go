package domain

import "fmt"

// Chunk represents a position-indexed slice of a document's extracted text.
// Chunks exist only while their document is processing or ready.
type Chunk struct {
	DocumentID string
	Position   int
	Content    string
	VectorID   string
}

// ChunkVectorID builds the globally unique vector handle for a chunk.
// Document IDs are UUIDs, so the handle is never reused across documents.
func ChunkVectorID(documentID string, position int) string {
	return fmt.Sprintf("doc_%s_chunk_%d", documentID, position)
}
