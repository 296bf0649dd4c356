// Package api serves the operational HTTP surface: liveness,
// Prometheus metrics, source health snapshots, and ingestion
// statistics. The dashboard-facing API lives elsewhere; nothing here
// exposes fused hazard data to end users.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/coastwatch-io/coastwatch/internal/source"
	"github.com/coastwatch-io/coastwatch/internal/storage"
	"github.com/coastwatch-io/coastwatch/internal/version"
	"github.com/coastwatch-io/coastwatch/internal/vessel/ais"
)

// StatsProvider exposes the AIS service's statistics snapshot.
type StatsProvider interface {
	Stats() ais.Stats
}

// Handler serves the ops endpoints.
type Handler struct {
	adapters []source.Adapter
	aisStats StatsProvider // nil when the AIS stream is disabled
	store    storage.Store // nil when persistence is disabled
	ready    func() bool   // nil means always ready
}

// NewHandler creates a Handler. Any dependency may be nil; the
// corresponding endpoint degrades gracefully.
func NewHandler(adapters []source.Adapter, aisStats StatsProvider, store storage.Store, ready func() bool) *Handler {
	return &Handler{
		adapters: adapters,
		aisStats: aisStats,
		store:    store,
		ready:    ready,
	}
}

// Healthz reports liveness, flipping to 503 when a fatal condition
// (such as an exhausted AIS reconnect budget) has been signalled.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"hash":   version.CommitHash,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"hash":   version.CommitHash,
	})
}

// ListSources returns every adapter's health tracker snapshot.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	statuses := make([]source.HealthStatus, 0, len(h.adapters))
	for _, a := range h.adapters {
		statuses = append(statuses, a.Health())
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": statuses})
}

// ingestStats is the /v1/ingest/stats response body.
type ingestStats struct {
	AIS     *ais.Stats     `json:"ais,omitempty"`
	Storage *storage.Stats `json:"storage,omitempty"`
}

// IngestStats returns the AIS statistics snapshot and store counts.
func (h *Handler) IngestStats(w http.ResponseWriter, r *http.Request) {
	var body ingestStats
	if h.aisStats != nil {
		stats := h.aisStats.Stats()
		body.AIS = &stats
	}
	if h.store != nil {
		stats, err := h.store.Stats(r.Context())
		if err != nil {
			writeError(w, "storage stats unavailable: "+err.Error(), http.StatusInternalServerError)
			return
		}
		body.Storage = &stats
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
