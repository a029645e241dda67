package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/pipeline"
	"github.com/l3acucm/urepricer/internal/platform/walmart"
)

const (
	// maxWebhookBody caps a single webhook request body.
	maxWebhookBody = 1 << 20 // 1 MiB

	// maxBatchBody caps a batch request body.
	maxBatchBody = 16 << 20 // 16 MiB

	// maxBatchSize caps the number of events in one batch call.
	maxBatchSize = 1000
)

// EventSink accepts raw intake events for asynchronous processing.
// Satisfied by pipeline.Orchestrator.
type EventSink interface {
	Submit(ev pipeline.RawEvent) error
}

// WebhookHandler serves the Walmart buybox-changed webhook endpoints. It
// validates payload shape syntactically, enqueues the raw body, and responds
// immediately; normalization and repricing happen in the worker pool.
type WebhookHandler struct {
	sink   EventSink
	logger *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler feeding the given sink.
func NewWebhookHandler(sink EventSink, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		sink:   sink,
		logger: logger.With(slog.String("handler", "webhook")),
	}
}

// Receive accepts one buybox-changed event.
// POST /walmart/webhook
//
// Returns 202 on accept, 400 on a malformed payload, and 503 with Retry-After
// when the internal event stream is saturated. Duplicate deliveries are fine:
// downstream writes are idempotent per (seller, sku).
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxWebhookBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var p walmart.WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := walmart.ValidateShape(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	ev := pipeline.RawEvent{
		ID:         eventID(p),
		Source:     domain.SourceWalmart,
		Body:       body,
		ReceivedAt: now,
	}
	if err := h.sink.Submit(ev); err != nil {
		h.rejectSaturated(w, err)
		return
	}

	h.logger.DebugContext(r.Context(), "webhook accepted",
		slog.String("item_id", p.ItemID),
		slog.String("seller_id", p.SellerID),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "accepted",
		"item_id":     p.ItemID,
		"seller_id":   p.SellerID,
		"received_at": now.Format(time.RFC3339),
	})
}

// ReceiveBatch accepts up to 1000 buybox-changed events in one call. The
// batch is validated before any element is enqueued; one malformed element
// rejects the whole request.
// POST /walmart/webhook/batch
func (h *WebhookHandler) ReceiveBatch(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxBatchBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		writeError(w, http.StatusBadRequest, "expected a JSON array of webhooks")
		return
	}
	if len(raws) == 0 {
		writeError(w, http.StatusBadRequest, "empty webhook batch")
		return
	}
	if len(raws) > maxBatchSize {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("batch size too large (max %d webhooks)", maxBatchSize))
		return
	}

	payloads := make([]walmart.WebhookPayload, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, &payloads[i]); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("webhook %d: invalid JSON", i))
			return
		}
		if err := walmart.ValidateShape(payloads[i]); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("webhook %d: %v", i, err))
			return
		}
	}

	now := time.Now().UTC()
	accepted := 0
	for i, raw := range raws {
		ev := pipeline.RawEvent{
			ID:         eventID(payloads[i]),
			Source:     domain.SourceWalmart,
			Body:       raw,
			ReceivedAt: now,
		}
		if err := h.sink.Submit(ev); err != nil {
			break
		}
		accepted++
	}

	if accepted < len(raws) {
		h.logger.WarnContext(r.Context(), "webhook batch partially rejected",
			slog.Int("accepted", accepted),
			slog.Int("batch_size", len(raws)),
		)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":      "event stream saturated",
			"accepted":   accepted,
			"batch_size": len(raws),
		})
		return
	}

	h.logger.InfoContext(r.Context(), "webhook batch accepted",
		slog.Int("batch_size", len(raws)),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "accepted",
		"batch_size":  len(raws),
		"received_at": now.Format(time.RFC3339),
	})
}

func (h *WebhookHandler) rejectSaturated(w http.ResponseWriter, err error) {
	if !errors.Is(err, domain.ErrQueueFull) {
		writeError(w, http.StatusInternalServerError, "failed to enqueue event")
		return
	}
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusServiceUnavailable, "event stream saturated")
}

// readBody reads the request body with a hard size cap.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("request body unreadable or too large")
	}
	return body, nil
}

// eventID prefers the caller-supplied webhook id so retried deliveries share
// an id in the logs.
func eventID(p walmart.WebhookPayload) string {
	if p.WebhookID != "" {
		return p.WebhookID
	}
	return uuid.NewString()
}
