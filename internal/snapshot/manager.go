package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/lvhr/airea/internal/domain"
)

// Index is the loaded, read-only search index for one snapshot generation.
// Implementations must be safe for concurrent readers.
type Index interface {
	Search(query []float32, k int, floor float32) *domain.RetrievalResult
}

// IndexLoader builds an Index from an installed snapshot directory.
type IndexLoader interface {
	Load(dir string) (Index, error)
}

// Generation pairs an installed snapshot with its loaded index. A generation
// is immutable once published; refresh publishes a new one.
type Generation struct {
	Snapshot *domain.Snapshot
	Index    Index
}

// ManagerConfig holds configuration for Manager.
type ManagerConfig struct {
	SourceURL   string
	InstallPath string
	Policy      domain.RefreshPolicy
	// FetchRetries bounds transient-network retries during bootstrap
	// before the failure escalates to fatal.
	FetchRetries uint64
	// FetchRetryInterval is the initial backoff interval between retries.
	FetchRetryInterval time.Duration
}

// Manager owns the process-wide active snapshot reference. Bootstrap runs
// once to completion before any request handler is admitted; request
// handlers share the active generation read-only, and only Refresh ever
// publishes a new one, via a single atomic pointer swap.
type Manager struct {
	cfg       ManagerConfig
	gate      *Gate
	fetcher   *Fetcher
	installer *Installer
	loader    IndexLoader

	// refreshMu serializes refresh cycles: the worker tick and the admin
	// endpoint share one scratch file and one staging dir, so overlapping
	// cycles would extract into each other's paths.
	refreshMu sync.Mutex

	active atomic.Pointer[Generation]
}

// NewManager creates a snapshot manager.
func NewManager(cfg ManagerConfig, fetcher *Fetcher, loader IndexLoader) *Manager {
	if cfg.FetchRetries == 0 {
		cfg.FetchRetries = 3
	}
	if cfg.FetchRetryInterval <= 0 {
		cfg.FetchRetryInterval = 2 * time.Second
	}
	return &Manager{
		cfg:       cfg,
		gate:      NewGate(cfg.Policy),
		fetcher:   fetcher,
		installer: NewInstaller(cfg.InstallPath),
		loader:    loader,
	}
}

// Bootstrap runs the freshness gate, fetches and installs a snapshot when
// required, loads its index, and publishes the first active generation.
// Any error here is bootstrap-fatal: the caller must exit non-zero rather
// than serve with a missing or empty knowledge base.
func (m *Manager) Bootstrap(ctx context.Context) error {
	decision, err := m.gate.Decide(m.cfg.InstallPath)
	if err != nil {
		return err
	}

	var snap *domain.Snapshot
	switch decision {
	case domain.DecisionSkip:
		log.Printf("snapshot: reusing installation at %s", m.cfg.InstallPath)
		snap, err = m.adoptExisting()
	case domain.DecisionFetch:
		snap, err = m.fetchAndInstall(ctx, m.cfg.Policy)
	}
	if err != nil {
		return err
	}

	return m.publish(snap)
}

// Refresh fetches and installs a new snapshot generation without disturbing
// the one currently serving, then swaps the active reference. Readers never
// lock against it; in-flight requests finish on the generation they started
// with. Concurrent calls queue: each completed cycle publishes exactly one
// generation.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	snap, err := m.fetchAndInstall(ctx, domain.PolicyFetchAndSwap)
	if err != nil {
		return err
	}
	return m.publish(snap)
}

// Active returns the current generation, or nil before bootstrap completes.
func (m *Manager) Active() *Generation {
	return m.active.Load()
}

func (m *Manager) fetchAndInstall(ctx context.Context, policy domain.RefreshPolicy) (*domain.Snapshot, error) {
	archivePath, err := m.fetchWithRetry(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := m.installer.Install(ctx, archivePath, policy)
	if err != nil {
		return nil, err
	}
	snap.SourceURL = m.cfg.SourceURL

	log.Printf("snapshot: installed %s (%d documents, %d fragments, corpus date %s)",
		snap.ID, snap.Metadata.DocumentCount, snap.Metadata.FragmentCount,
		snap.Metadata.CorpusDate.Format("2006-01-02"))
	return snap, nil
}

// fetchWithRetry retries transient network failures with bounded exponential
// backoff. Auth and not-found failures are permanent and escalate
// immediately.
func (m *Manager) fetchWithRetry(ctx context.Context) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.cfg.FetchRetryInterval

	return backoff.RetryWithData(func() (string, error) {
		archivePath, err := m.fetcher.Fetch(ctx, m.cfg.SourceURL)
		if err != nil {
			if errors.Is(err, domain.ErrTransientNetwork) {
				log.Printf("snapshot: fetch failed, retrying: %v", err)
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return archivePath, nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, m.cfg.FetchRetries), ctx))
}

// adoptExisting activates the installation already present at the install
// path. Corpus metadata is computed here, at activation time, exactly as it
// would be after a fresh install.
func (m *Manager) adoptExisting() (*domain.Snapshot, error) {
	manifest, metadata, err := readCorpus(m.cfg.InstallPath)
	if err != nil {
		return nil, err
	}
	if metadata.DocumentCount == 0 {
		return nil, domain.ErrEmptyCorpus
	}

	snapshotID := manifest.SnapshotID
	if snapshotID == "" {
		snapshotID = uuid.NewString()
	}

	return &domain.Snapshot{
		ID:          snapshotID,
		SourceURL:   m.cfg.SourceURL,
		InstallPath: m.cfg.InstallPath,
		InstalledAt: time.Now().UTC(),
		Metadata:    metadata,
	}, nil
}

func (m *Manager) publish(snap *domain.Snapshot) error {
	idx, err := m.loader.Load(m.cfg.InstallPath)
	if err != nil {
		return fmt.Errorf("failed to load snapshot index: %w", err)
	}

	m.active.Store(&Generation{Snapshot: snap, Index: idx})
	return nil
}
