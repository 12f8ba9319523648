package service

import "context"

// QueryLogResult captures one retrieved passage for logging.
type QueryLogResult struct {
	DocumentID    string  `json:"document_id"`
	ChunkPosition int     `json:"chunk_position"`
	Score         float32 `json:"score"`
}

// QueryLogEntry captures a retrieval request and what it surfaced.
// Passages dropped by the score threshold are not recorded.
type QueryLogEntry struct {
	Owner          string
	Query          string
	TopK           int
	ScoreThreshold float32
	DurationMs     int
	Results        []QueryLogResult
}

// QueryLogRepository persists retrieval query logs for tuning topK and
// the score threshold against real traffic.
type QueryLogRepository interface {
	CreateQueryLog(ctx context.Context, entry QueryLogEntry) (string, error)
}
