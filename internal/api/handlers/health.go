package handlers

import (
	"net/http"

	"github.com/lvhr/airea/internal/api"
	"github.com/lvhr/airea/internal/service"
)

type HealthHandler struct {
	snapshots service.SnapshotProvider
}

func NewHealthHandler(snapshots service.SnapshotProvider) *HealthHandler {
	return &HealthHandler{snapshots: snapshots}
}

type HealthResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	TotalDocuments int    `json:"total_documents"`
	CorpusDate     string `json:"corpus_date,omitempty"`
	SnapshotID     string `json:"snapshot_id,omitempty"`
}

// Health handles GET /health. The document count comes from the corpus
// metadata cached at snapshot activation, so it stays consistent with the
// index actually serving retrievals.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	generation := h.snapshots.Active()
	if generation == nil {
		api.JSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "starting",
			Message: "knowledge base not ready",
		})
		return
	}

	snap := generation.Snapshot
	api.JSON(w, http.StatusOK, HealthResponse{
		Status:         "operational",
		Message:        "AIREA is ready.",
		TotalDocuments: snap.Metadata.DocumentCount,
		CorpusDate:     snap.Metadata.CorpusDate.UTC().Format("2006-01-02"),
		SnapshotID:     snap.ID,
	})
}
