package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/l3acucm/urepricer/internal/breaker"
)

// Pinger checks backend connectivity. Satisfied by the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueInfo reports internal event-stream occupancy. Satisfied by
// pipeline.Orchestrator.
type QueueInfo interface {
	Depth() int
	Capacity() int
}

// HealthHandler serves the component-status endpoint.
type HealthHandler struct {
	store     Pinger
	brk       *breaker.Breaker
	queue     QueueInfo
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. brk and queue may be nil in serve
// mode without a consumer; their components are then omitted from the report.
func NewHealthHandler(store Pinger, brk *breaker.Breaker, queue QueueInfo, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		brk:       brk,
		queue:     queue,
		startedAt: time.Now().UTC(),
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck reports per-component status. Returns 200 while the store is
// reachable and 503 once it is not; an open breaker degrades the report but
// keeps the endpoint at 200 so orchestrators do not restart a recovering
// process.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	overall := "healthy"
	status := http.StatusOK
	components := make(map[string]any)

	if err := h.store.Ping(ctx); err != nil {
		components["redis"] = map[string]string{"status": "error", "error": err.Error()}
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	} else {
		components["redis"] = map[string]string{"status": "ok"}
	}

	if h.brk != nil {
		state := h.brk.State()
		components["circuit_breaker"] = map[string]string{"state": state.String()}
		if state != breaker.StateClosed && overall == "healthy" {
			overall = "degraded"
		}
	}

	if h.queue != nil {
		components["event_queue"] = map[string]int{
			"depth":    h.queue.Depth(),
			"capacity": h.queue.Capacity(),
		}
	}

	writeJSON(w, status, map[string]any{
		"overall_status": overall,
		"components":     components,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"checked_at":     time.Now().UTC().Format(time.RFC3339),
	})
}
