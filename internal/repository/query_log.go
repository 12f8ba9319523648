package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doctalk-ai/doctalk/internal/service"
)

// QueryLogRepository stores retrieval query logs for evaluation of the
// retrieval parameters.
type QueryLogRepository struct {
	db dbtx
}

func NewQueryLogRepository(pool *pgxpool.Pool) *QueryLogRepository {
	return &QueryLogRepository{db: pool}
}

func (r *QueryLogRepository) CreateQueryLog(ctx context.Context, entry service.QueryLogEntry) (string, error) {
	resultsJSON, err := json.Marshal(entry.Results)
	if err != nil {
		return "", err
	}

	var id string
	err = r.db.QueryRow(ctx,
		`INSERT INTO query_logs (owner, query, top_k, score_threshold, results, result_count, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		entry.Owner,
		entry.Query,
		entry.TopK,
		entry.ScoreThreshold,
		resultsJSON,
		len(entry.Results),
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
