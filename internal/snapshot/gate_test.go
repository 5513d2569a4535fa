package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lvhr/airea/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMarker(t *testing.T, installPath, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(installPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installPath, MarkerFile), []byte(content), 0o644))
}

func TestGate_AlwaysRefresh_FetchesEvenWhenInstalled(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "knowledge")
	writeMarker(t, installPath, `{"id":"f1","document_id":"d1"}`)

	decision, err := NewGate(domain.PolicyAlwaysRefresh).Decide(installPath)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionFetch, decision)
}

func TestGate_FetchAndSwap_AlwaysFetches(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "knowledge")
	writeMarker(t, installPath, `{"id":"f1","document_id":"d1"}`)

	decision, err := NewGate(domain.PolicyFetchAndSwap).Decide(installPath)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionFetch, decision)
}

func TestGate_FetchIfMissing_SkipsWhenInstalled(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "knowledge")
	writeMarker(t, installPath, `{"id":"f1","document_id":"d1"}`)

	decision, err := NewGate(domain.PolicyFetchIfMissing).Decide(installPath)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionSkip, decision)
}

func TestGate_FetchIfMissing_FetchesWhenMissing(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "knowledge")

	decision, err := NewGate(domain.PolicyFetchIfMissing).Decide(installPath)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionFetch, decision)
}

func TestGate_FetchIfMissing_EmptyMarkerIsNotInstalled(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "knowledge")
	writeMarker(t, installPath, "")

	decision, err := NewGate(domain.PolicyFetchIfMissing).Decide(installPath)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionFetch, decision)
}

func TestGate_InvalidPolicy(t *testing.T) {
	_, err := NewGate(domain.RefreshPolicy("sometimes")).Decide(t.TempDir())
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshPolicy)
}
