package service

import (
	"context"

	"github.com/lvhr/airea/internal/domain"
	"github.com/lvhr/airea/internal/snapshot"
	"github.com/lvhr/airea/internal/telemetry"
)

// EmbeddingClient defines the external embedding capability.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// SnapshotProvider exposes the process-wide active snapshot generation.
type SnapshotProvider interface {
	Active() *snapshot.Generation
}

// RetrievalConfig controls retrieval behavior.
type RetrievalConfig struct {
	// TopK is the maximum number of fragments returned per query.
	TopK int
	// RelevanceFloor drops matches below this cosine similarity. Callers
	// must treat an empty result as a valid, common case.
	RelevanceFloor float32
}

// DefaultRetrievalConfig returns the default retrieval configuration.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:           10,
		RelevanceFloor: 0.15,
	}
}

// RetrievalService answers queries against the active snapshot's index. It
// is safe for concurrent use: each request reads one immutable generation.
type RetrievalService struct {
	snapshots SnapshotProvider
	embedding EmbeddingClient
	cfg       RetrievalConfig
}

// NewRetrievalService creates a RetrievalService.
func NewRetrievalService(snapshots SnapshotProvider, embedding EmbeddingClient, cfg RetrievalConfig) *RetrievalService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultRetrievalConfig().TopK
	}
	return &RetrievalService{
		snapshots: snapshots,
		embedding: embedding,
		cfg:       cfg,
	}
}

// RetrievalOutput is the result of one retrieval: the ranked fragments, the
// snapshot they came from (so callers see metadata consistent with the
// fragments), and the query embedding for logging.
type RetrievalOutput struct {
	Result         *domain.RetrievalResult
	Snapshot       *domain.Snapshot
	QueryEmbedding []float32
}

// Retrieve embeds the query and returns the top-K most relevant fragments
// from the active snapshot.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int) (*RetrievalOutput, error) {
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	generation := s.snapshots.Active()
	if generation == nil {
		return nil, domain.ErrNoActiveSnapshot
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		SnapshotID: generation.Snapshot.ID,
		Operation:  "retrieve",
	})
	defer span.End()

	queryVec, err := s.embedding.GenerateEmbedding(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if k <= 0 {
		k = s.cfg.TopK
	}
	result := generation.Index.Search(queryVec, k, s.cfg.RelevanceFloor)
	return &RetrievalOutput{
		Result:         result,
		Snapshot:       generation.Snapshot,
		QueryEmbedding: queryVec,
	}, nil
}
