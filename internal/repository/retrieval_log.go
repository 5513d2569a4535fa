package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// RetrievalLogEntry captures one retrieval for offline evaluation.
type RetrievalLogEntry struct {
	ConversationID string
	SnapshotID     string
	Query          string
	QueryEmbedding []float32
	FragmentIDs    []string
	ResultCount    int
	DurationMs     int64
}

// RetrievalLogRepository stores retrieval logs with the query embedding so
// searches can be replayed and evaluated against later snapshots.
type RetrievalLogRepository struct {
	pool *pgxpool.Pool
}

func NewRetrievalLogRepository(pool *pgxpool.Pool) *RetrievalLogRepository {
	return &RetrievalLogRepository{pool: pool}
}

func (r *RetrievalLogRepository) LogRetrieval(ctx context.Context, entry RetrievalLogEntry) error {
	fragmentsJSON, _ := json.Marshal(entry.FragmentIDs)

	_, err := r.pool.Exec(ctx,
		`INSERT INTO retrieval_logs
		     (conversation_id, snapshot_id, query, query_embedding, fragment_ids, result_count, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ConversationID,
		entry.SnapshotID,
		entry.Query,
		pgvector.NewVector(entry.QueryEmbedding),
		fragmentsJSON,
		entry.ResultCount,
		entry.DurationMs,
	)
	return err
}
