package domain

// Fragment is the smallest retrievable unit of corpus text, immutable once
// part of an installed snapshot. The embedding is opaque to this subsystem;
// it is produced by whatever pipeline built the snapshot.
type Fragment struct {
	ID         string
	DocumentID string
	Title      string
	Text       string
	CreatedAt  string
	Embedding  []float32
}

// ScoredFragment pairs a fragment with its relevance score for one query.
type ScoredFragment struct {
	Fragment *Fragment
	Score    float32
}

// RetrievalResult is the ordered output of one nearest-neighbor search,
// highest relevance first, at most K entries. An empty result is a valid,
// common outcome and never an error.
type RetrievalResult struct {
	Fragments []ScoredFragment
}

// Empty reports whether the search matched nothing above the relevance floor.
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Fragments) == 0
}
