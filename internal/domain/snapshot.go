package domain

import "time"

// RefreshPolicy controls whether and how a knowledge-base snapshot is
// fetched and installed at startup.
type RefreshPolicy string

const (
	// PolicyAlwaysRefresh discards any existing installation and fetches
	// a fresh snapshot unconditionally.
	PolicyAlwaysRefresh RefreshPolicy = "always_refresh"
	// PolicyFetchIfMissing skips the fetch entirely when a complete
	// installation is already present.
	PolicyFetchIfMissing RefreshPolicy = "fetch_if_missing"
	// PolicyFetchAndSwap always fetches into a staging location and
	// activates it with an atomic swap, keeping the previous install
	// servable until the swap completes.
	PolicyFetchAndSwap RefreshPolicy = "fetch_and_swap"
)

// ParseRefreshPolicy validates and converts a configured policy string.
func ParseRefreshPolicy(s string) (RefreshPolicy, error) {
	switch RefreshPolicy(s) {
	case PolicyAlwaysRefresh, PolicyFetchIfMissing, PolicyFetchAndSwap:
		return RefreshPolicy(s), nil
	}
	return "", ErrInvalidRefreshPolicy
}

// Decision is the Freshness Gate outcome for a given install path.
type Decision string

const (
	DecisionSkip  Decision = "skip"
	DecisionFetch Decision = "fetch"
)

// Snapshot is an installed, immutable bundle of the vector index and its
// document corpus. Exactly one snapshot is active per process; a new
// generation replaces the pointer atomically, never in place.
type Snapshot struct {
	ID          string
	SourceURL   string
	InstallPath string
	InstalledAt time.Time
	Metadata    CorpusMetadata
}

// CorpusMetadata is the derived, read-only view over the active snapshot.
// It is computed once at activation and cached for the snapshot's lifetime,
// never recomputed per request.
type CorpusMetadata struct {
	DocumentCount int
	FragmentCount int
	CorpusDate    time.Time
}
