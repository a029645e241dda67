package handler

import (
	"log/slog"
	"net/http"

	"github.com/l3acucm/urepricer/internal/pipeline"
)

// StatsHandler exposes the shared processing counters.
type StatsHandler struct {
	stats  *pipeline.Stats
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler over the given counters.
func NewStatsHandler(stats *pipeline.Stats, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		stats:  stats,
		logger: logger.With(slog.String("handler", "stats")),
	}
}

// Get returns a snapshot of the processing counters.
// GET /stats
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

// Reset zeroes all counters and restarts the uptime clock.
// POST /stats/reset
func (h *StatsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.stats.Reset()
	h.logger.InfoContext(r.Context(), "processing statistics reset")
	writeJSON(w, http.StatusOK, map[string]string{"message": "statistics reset successfully"})
}
