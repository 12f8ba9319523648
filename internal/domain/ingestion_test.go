package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIngestionJob(t *testing.T) {
	now := time.Now()
	job := NewIngestionJob("job1", "doc1", now)

	assert.Equal(t, "job1", job.ID)
	assert.Equal(t, "doc1", job.DocumentID)
	assert.Equal(t, IngestionJobStatusPending, job.Status)
	assert.Equal(t, int32(0), job.Retries)
	assert.Empty(t, job.Error)
	assert.Equal(t, now, job.CreatedAt)
	assert.Nil(t, job.ProcessedAt)
}

func TestValidateIngestionJob(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		job     *IngestionJob
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid job",
			job: &IngestionJob{
				ID:         "job1",
				DocumentID: "doc1",
				Status:     IngestionJobStatusPending,
				CreatedAt:  now,
			},
			wantErr: false,
		},
		{
			name:    "nil job",
			job:     nil,
			wantErr: true,
			errMsg:  "ingestion job cannot be nil",
		},
		{
			name: "missing ID",
			job: &IngestionJob{
				DocumentID: "doc1",
				Status:     IngestionJobStatusPending,
			},
			wantErr: true,
			errMsg:  "ingestion job ID is required",
		},
		{
			name: "missing document ID",
			job: &IngestionJob{
				ID:     "job1",
				Status: IngestionJobStatusPending,
			},
			wantErr: true,
			errMsg:  "ingestion job DocumentID is required",
		},
		{
			name: "invalid status",
			job: &IngestionJob{
				ID:         "job1",
				DocumentID: "doc1",
				Status:     IngestionJobStatus("paused"),
			},
			wantErr: true,
			errMsg:  "ingestion job Status is invalid",
		},
		{
			name: "negative retries",
			job: &IngestionJob{
				ID:         "job1",
				DocumentID: "doc1",
				Status:     IngestionJobStatusPending,
				Retries:    -1,
			},
			wantErr: true,
			errMsg:  "ingestion job Retries cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestionJob(tt.job)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
