package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/telemetry"
)

// Passage is one citation-bearing retrieval result.
type Passage struct {
	DocumentID    string
	Filename      string
	ChunkPosition int
	Score         float32
	Text          string
}

// RetrievalConfig carries the retrieval defaults.
type RetrievalConfig struct {
	TopK           int
	ScoreThreshold float32
}

// DefaultRetrievalConfig returns the default retrieval parameters.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:           5,
		ScoreThreshold: 0.35,
	}
}

// RetrievalService embeds a query and finds the caller's most similar
// indexed passages. The query embedding uses the same pinned model as
// ingestion: both derive the index namespace from the client's model
// identity.
type RetrievalService struct {
	embedder EmbeddingClient
	index    VectorIndex
	logRepo  QueryLogRepository
	cfg      RetrievalConfig
}

// NewRetrievalService creates a new RetrievalService instance
func NewRetrievalService(embedder EmbeddingClient, index VectorIndex, cfg RetrievalConfig) *RetrievalService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultRetrievalConfig().TopK
	}
	return &RetrievalService{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
	}
}

// NewRetrievalServiceWithLog creates a RetrievalService that records a
// query log entry for every retrieval.
func NewRetrievalServiceWithLog(embedder EmbeddingClient, index VectorIndex, logRepo QueryLogRepository, cfg RetrievalConfig) *RetrievalService {
	svc := NewRetrievalService(embedder, index, cfg)
	svc.logRepo = logRepo
	return svc
}

// Retrieve returns passages for the owner's query in the index's own
// descending score order, dropping anything below the threshold. An
// empty result is not an error: it means the answer is ungrounded.
// topK <= 0 and threshold < 0 fall back to the configured defaults.
func (s *RetrievalService) Retrieve(ctx context.Context, owner, queryText string, topK int, scoreThreshold float32) ([]Passage, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		Owner:     owner,
		Operation: "retrieve",
	})
	defer span.End()

	if strings.TrimSpace(queryText) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	if scoreThreshold < 0 {
		scoreThreshold = s.cfg.ScoreThreshold
	}

	started := time.Now()
	vector, err := s.embedder.EmbedOne(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	namespace := VectorNamespace(s.embedder.EmbeddingModelID())
	matches, err := s.index.Query(ctx, namespace, vector, topK, VectorFilter{Owner: owner})
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	passages := make([]Passage, 0, len(matches))
	for _, m := range matches {
		if m.Score < scoreThreshold {
			continue
		}
		passages = append(passages, Passage{
			DocumentID:    m.Metadata.DocumentID,
			Filename:      m.Metadata.Filename,
			ChunkPosition: m.Metadata.ChunkPosition,
			Score:         m.Score,
			Text:          m.Content,
		})
	}

	s.logQuery(ctx, owner, queryText, topK, scoreThreshold, time.Since(started), passages)

	return passages, nil
}

// logQuery records the retrieval best-effort: a log write failure never
// fails the retrieval it describes.
func (s *RetrievalService) logQuery(ctx context.Context, owner, queryText string, topK int, scoreThreshold float32, elapsed time.Duration, passages []Passage) {
	if s.logRepo == nil {
		return
	}

	results := make([]QueryLogResult, 0, len(passages))
	for _, p := range passages {
		results = append(results, QueryLogResult{
			DocumentID:    p.DocumentID,
			ChunkPosition: p.ChunkPosition,
			Score:         p.Score,
		})
	}

	entry := QueryLogEntry{
		Owner:          owner,
		Query:          queryText,
		TopK:           topK,
		ScoreThreshold: scoreThreshold,
		DurationMs:     int(elapsed.Milliseconds()),
		Results:        results,
	}
	if _, err := s.logRepo.CreateQueryLog(ctx, entry); err != nil {
		telemetry.CaptureError(ctx, fmt.Errorf("failed to write query log: %w", err))
	}
}
