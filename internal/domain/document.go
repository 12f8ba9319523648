package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents the processing status of a document
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document represents an uploaded document and its ingestion state
type Document struct {
	ID            string
	Owner         string
	Filename      string
	Status        DocumentStatus
	Size          int64
	ChunkCount    int
	FailureReason string
	CreatedAt     time.Time
}

// NewDocument creates a new Document in the uploaded state
func NewDocument(id, owner, filename string, size int64, createdAt time.Time) *Document {
	return &Document{
		ID:        id,
		Owner:     owner,
		Filename:  filename,
		Status:    DocumentStatusUploaded,
		Size:      size,
		CreatedAt: createdAt,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.Owner == "" {
		return fmt.Errorf("document Owner is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	return nil
}

// CanTransition reports whether a status transition is allowed.
// Statuses only move forward: uploaded -> processing -> {ready, failed}.
func CanTransition(from, to DocumentStatus) bool {
	switch from {
	case DocumentStatusUploaded:
		return to == DocumentStatusProcessing
	case DocumentStatusProcessing:
		return to == DocumentStatusReady || to == DocumentStatusFailed
	}
	return false
}

// IsTerminal reports whether the status ends an ingestion attempt.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusReady || s == DocumentStatusFailed
}

func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusProcessing,
		DocumentStatusReady, DocumentStatusFailed:
		return true
	}
	return false
}
