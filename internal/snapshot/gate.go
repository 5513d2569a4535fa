// Package snapshot implements the knowledge-base bootstrap pipeline: the
// freshness gate, the artifact fetcher, the installer, and the manager that
// owns the process-wide active snapshot reference.
package snapshot

import (
	"os"
	"path/filepath"

	"github.com/lvhr/airea/internal/domain"
)

// MarkerFile is the index's primary store file. Its presence (non-empty) at
// the install path marks a complete installation.
const MarkerFile = "fragments.jsonl"

// Gate decides at startup whether a fetch is required. It is pure decision
// logic over local filesystem state and performs no I/O beyond stat calls.
type Gate struct {
	policy domain.RefreshPolicy
}

// NewGate creates a freshness gate for the given policy.
func NewGate(policy domain.RefreshPolicy) *Gate {
	return &Gate{policy: policy}
}

// Decide returns DecisionSkip when the configured policy allows reusing the
// installation at installPath, DecisionFetch otherwise.
func (g *Gate) Decide(installPath string) (domain.Decision, error) {
	switch g.policy {
	case domain.PolicyAlwaysRefresh, domain.PolicyFetchAndSwap:
		// Both always fetch; they differ only in how the installer
		// activates the result.
		return domain.DecisionFetch, nil
	case domain.PolicyFetchIfMissing:
		if installed(installPath) {
			return domain.DecisionSkip, nil
		}
		return domain.DecisionFetch, nil
	}
	return "", domain.ErrInvalidRefreshPolicy
}

// installed reports whether a recognizable, non-empty marker file exists at
// the install path.
func installed(installPath string) bool {
	info, err := os.Stat(filepath.Join(installPath, MarkerFile))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}
