package handlers

import (
	"context"
	"net/http"

	"github.com/lvhr/airea/internal/api"
	"github.com/lvhr/airea/internal/service"
)

// SnapshotRefresher swaps in a new snapshot generation without downtime.
type SnapshotRefresher interface {
	Refresh(ctx context.Context) error
}

type SnapshotHandler struct {
	refresher SnapshotRefresher
	snapshots service.SnapshotProvider
}

func NewSnapshotHandler(refresher SnapshotRefresher, snapshots service.SnapshotProvider) *SnapshotHandler {
	return &SnapshotHandler{refresher: refresher, snapshots: snapshots}
}

type SnapshotResponse struct {
	SnapshotID     string `json:"snapshot_id"`
	TotalDocuments int    `json:"total_documents"`
	CorpusDate     string `json:"corpus_date"`
	InstalledAt    string `json:"installed_at"`
}

// Refresh handles POST /snapshot/refresh. The previous generation keeps
// serving until the new one is installed and swapped in; a failed refresh
// leaves it untouched.
func (h *SnapshotHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.Refresh(r.Context()); err != nil {
		api.HandleError(w, err)
		return
	}

	h.writeActive(w)
}

// Get handles GET /snapshot, describing the active generation.
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.writeActive(w)
}

func (h *SnapshotHandler) writeActive(w http.ResponseWriter) {
	generation := h.snapshots.Active()
	if generation == nil {
		api.Error(w, http.StatusServiceUnavailable, "no active snapshot")
		return
	}

	snap := generation.Snapshot
	api.Success(w, http.StatusOK, SnapshotResponse{
		SnapshotID:     snap.ID,
		TotalDocuments: snap.Metadata.DocumentCount,
		CorpusDate:     snap.Metadata.CorpusDate.UTC().Format("2006-01-02"),
		InstalledAt:    snap.InstalledAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}
