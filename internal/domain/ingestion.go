package domain

import (
	"fmt"
	"time"
)

// IngestionJobStatus represents the status of an ingestion attempt
type IngestionJobStatus string

const (
	IngestionJobStatusPending    IngestionJobStatus = "pending"
	IngestionJobStatusProcessing IngestionJobStatus = "processing"
	IngestionJobStatusCompleted  IngestionJobStatus = "completed"
	IngestionJobStatusFailed     IngestionJobStatus = "failed"
)

// IngestionJob represents one ingestion attempt for a document. A failed
// document is re-ingested by creating a fresh job, never by resuming an
// old one.
type IngestionJob struct {
	ID          string
	DocumentID  string
	Status      IngestionJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewIngestionJob creates a pending ingestion job for a document
func NewIngestionJob(id, documentID string, createdAt time.Time) *IngestionJob {
	return &IngestionJob{
		ID:         id,
		DocumentID: documentID,
		Status:     IngestionJobStatusPending,
		CreatedAt:  createdAt,
	}
}

// ValidateIngestionJob validates an IngestionJob instance
func ValidateIngestionJob(j *IngestionJob) error {
	if j == nil {
		return fmt.Errorf("ingestion job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("ingestion job ID is required")
	}

	if j.DocumentID == "" {
		return fmt.Errorf("ingestion job DocumentID is required")
	}

	if !isValidIngestionJobStatus(j.Status) {
		return fmt.Errorf("ingestion job Status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("ingestion job Retries cannot be negative")
	}

	return nil
}

// DocumentLease is a time-bounded exclusive claim on a document that
// prevents two ingestion attempts from running concurrently, including
// across processes.
type DocumentLease struct {
	DocumentID string
	JobID      string
	ExpiresAt  time.Time
}

func isValidIngestionJobStatus(s IngestionJobStatus) bool {
	switch s {
	case IngestionJobStatusPending, IngestionJobStatusProcessing,
		IngestionJobStatusCompleted, IngestionJobStatusFailed:
		return true
	}
	return false
}
