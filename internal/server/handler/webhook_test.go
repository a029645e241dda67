package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/pipeline"
)

type fakeSink struct {
	events []pipeline.RawEvent
	err    error
	// capacity rejects submissions beyond this count when > 0.
	capacity int
}

func (f *fakeSink) Submit(ev pipeline.RawEvent) error {
	if f.err != nil {
		return f.err
	}
	if f.capacity > 0 && len(f.events) >= f.capacity {
		return domain.ErrQueueFull
	}
	f.events = append(f.events, ev)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const validWebhook = `{
	"eventType": "buybox_changed",
	"itemId": "W1",
	"sellerId": "S1",
	"currentBuyboxPrice": 26.50,
	"currentBuyboxWinner": "S2",
	"offers": [{"sellerId": "S2", "price": 26.50, "condition": "NEW"}]
}`

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/walmart/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func batchBody(events ...string) string {
	return "[" + strings.Join(events, ",") + "]"
}

func TestWebhookReceive(t *testing.T) {
	t.Run("accepts a valid event", func(t *testing.T) {
		sink := &fakeSink{}
		h := NewWebhookHandler(sink, discardLogger())

		rec := post(h.Receive, validWebhook)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		require.Len(t, sink.events, 1)
		assert.Equal(t, domain.SourceWalmart, sink.events[0].Source)
		assert.NotEmpty(t, sink.events[0].ID)
		assert.JSONEq(t, validWebhook, string(sink.events[0].Body))

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "accepted", resp["status"])
		assert.Equal(t, "W1", resp["item_id"])
		assert.Equal(t, "S1", resp["seller_id"])
	})

	t.Run("keeps the caller webhook id", func(t *testing.T) {
		sink := &fakeSink{}
		h := NewWebhookHandler(sink, discardLogger())

		post(h.Receive, `{"webhookId":"hook-7","eventType":"buybox_changed","itemId":"W1","sellerId":"S1","currentBuyboxPrice":1.00,"currentBuyboxWinner":"S2"}`)

		require.Len(t, sink.events, 1)
		assert.Equal(t, "hook-7", sink.events[0].ID)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		sink := &fakeSink{}
		h := NewWebhookHandler(sink, discardLogger())

		rec := post(h.Receive, `{not json`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, sink.events)
	})

	t.Run("rejects a payload without sellerId", func(t *testing.T) {
		sink := &fakeSink{}
		h := NewWebhookHandler(sink, discardLogger())

		rec := post(h.Receive, `{"eventType":"buybox_changed","itemId":"W1"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, sink.events)
	})

	t.Run("rejects an unknown event type", func(t *testing.T) {
		sink := &fakeSink{}
		h := NewWebhookHandler(sink, discardLogger())

		rec := post(h.Receive, `{"eventType":"listing_deleted","itemId":"W1","sellerId":"S1"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, sink.events)
	})

	t.Run("saturated stream returns 503 with Retry-After", func(t *testing.T) {
		sink := &fakeSink{err: domain.ErrQueueFull}
		h := NewWebhookHandler(sink, discardLogger())

		rec := post(h.Receive, validWebhook)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("other sink failures return 500", func(t *testing.T) {
		sink := &fakeSink{err: errors.New("sink exploded")}
		h := NewWebhookHandler(sink, discardLogger())

		rec := post(h.Receive, validWebhook)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, rec.Header().Get("Retry-After"))
	})
}

func TestWebhookReceiveBatch(t *testing.T) {
	t.Run("accepts a full batch", func(t *testing.T) {
		sink := &fakeSink{}
		h := NewWebhookHandler(sink, discardLogger())

		rec := post(h.ReceiveBatch, batchBody(validWebhook, validWebhook))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Len(t, sink.events, 2)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.EqualValues(t, 2, resp["batch_size"])
	})

	t.Run("one malformed element rejects the whole batch", func(t *testing.T) {
		sink := &fakeSink{}
		h := NewWebhookHandler(sink, discardLogger())

		rec := post(h.ReceiveBatch, batchBody(validWebhook, `{"eventType":"buybox_changed","itemId":"W2"}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, sink.events)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp["error"], "webhook 1")
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		h := NewWebhookHandler(&fakeSink{}, discardLogger())
		rec := post(h.ReceiveBatch, `[]`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-array body is rejected", func(t *testing.T) {
		h := NewWebhookHandler(&fakeSink{}, discardLogger())
		rec := post(h.ReceiveBatch, validWebhook)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("partial enqueue reports saturation", func(t *testing.T) {
		sink := &fakeSink{capacity: 1}
		h := NewWebhookHandler(sink, discardLogger())

		rec := post(h.ReceiveBatch, batchBody(validWebhook, validWebhook, validWebhook))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.EqualValues(t, 1, resp["accepted"])
		assert.EqualValues(t, 3, resp["batch_size"])
	})
}
