package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/engine"
)

type fakeStrategies struct {
	m map[string]domain.Strategy
}

func (f *fakeStrategies) GetStrategy(_ context.Context, id string) (domain.Strategy, error) {
	s, ok := f.m[id]
	if !ok {
		return domain.Strategy{}, domain.ErrNotFound
	}
	return s, nil
}

func newTestOrchestrator(listings *fakeListings, prices *fakePrices, stats *Stats) *Orchestrator {
	repricer := engine.NewRepricer(engine.Deps{
		Listings: listings,
		Strategies: &fakeStrategies{m: map[string]domain.Strategy{
			"2": {
				ID:           "2",
				CompeteWith:  domain.CompeteMatchBuyBox,
				BeatBy:       domain.Price(-1),
				MinPriceRule: domain.RuleJumpToMin,
				MaxPriceRule: domain.RuleJumpToMax,
			},
		}},
		Prices: prices,
	}, 0, discard())
	return NewOrchestrator(repricer, stats, Config{}, discard())
}

func walmartListing() domain.Listing {
	return domain.Listing{
		ASIN:        "W1",
		SellerID:    "S1",
		SKU:         "K1",
		ListedPrice: domain.PricePtr(2999),
		MinPrice:    domain.PricePtr(2000),
		MaxPrice:    domain.PricePtr(5000),
		StrategyID:  "2",
		Status:      domain.ListingActive,
		Quantity:    5,
	}
}

func TestOrchestratorProcess(t *testing.T) {
	body := []byte(`{
		"eventType": "buybox_changed",
		"itemId": "W1",
		"sellerId": "S1",
		"currentBuyboxPrice": 26.50,
		"currentBuyboxWinner": "S2",
		"offers": [{"sellerId": "S2", "price": 26.50, "condition": "NEW"}]
	}`)

	t.Run("valid event reprices end to end", func(t *testing.T) {
		prices := &fakePrices{}
		stats := NewStats()
		o := newTestOrchestrator(&fakeListings{listings: []domain.Listing{walmartListing()}}, prices, stats)

		out := o.process(context.Background(), RawEvent{
			ID:         "e1",
			Source:     domain.SourceWalmart,
			Body:       body,
			ReceivedAt: time.Now(),
		})

		assert.Equal(t, domain.OutcomeOK, out)
		require.Len(t, prices.written, 1)
		assert.Equal(t, domain.Price(2649), prices.written[0].NewPrice)

		snap := stats.Snapshot()
		assert.Equal(t, int64(1), snap.MessagesProcessed)
		assert.Equal(t, int64(1), snap.SuccessfulReprices)
		assert.Equal(t, int64(1), snap.PricesUpdated)
	})

	t.Run("malformed body is dropped as a skip", func(t *testing.T) {
		stats := NewStats()
		o := newTestOrchestrator(&fakeListings{}, &fakePrices{}, stats)

		out := o.process(context.Background(), RawEvent{
			ID:     "e2",
			Source: domain.SourceWalmart,
			Body:   []byte(`{not json`),
		})

		assert.Equal(t, domain.OutcomeSkip, out)
		assert.Equal(t, int64(1), stats.Snapshot().SkippedReprices)
	})

	t.Run("unknown source is dropped as a skip", func(t *testing.T) {
		o := newTestOrchestrator(&fakeListings{}, &fakePrices{}, NewStats())

		out := o.process(context.Background(), RawEvent{
			ID:     "e3",
			Source: domain.Source("carrier-pigeon"),
			Body:   body,
		})

		assert.Equal(t, domain.OutcomeSkip, out)
	})
}

func TestOrchestratorSubmit(t *testing.T) {
	o := newTestOrchestrator(&fakeListings{}, &fakePrices{}, NewStats())
	// Queue bound defaults to 1000 without Run draining it.
	assert.Equal(t, 1000, o.Capacity())

	require.NoError(t, o.Submit(RawEvent{ID: "e1", Source: domain.SourceWalmart}))
	assert.Equal(t, 1, o.Depth())
}

func TestOrchestratorSubmitQueueFull(t *testing.T) {
	repricer := engine.NewRepricer(engine.Deps{}, 0, discard())
	o := NewOrchestrator(repricer, NewStats(), Config{QueueSize: 1}, discard())

	require.NoError(t, o.Submit(RawEvent{ID: "e1", Source: domain.SourceWalmart}))
	err := o.Submit(RawEvent{ID: "e2", Source: domain.SourceWalmart})
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestStatsSnapshot(t *testing.T) {
	s := NewStats()
	s.RecordEvent([]domain.Result{
		{Outcome: domain.OutcomeOK, Written: true, Elapsed: 4 * time.Millisecond},
		{Outcome: domain.OutcomeSkip, Elapsed: 2 * time.Millisecond},
	})
	s.RecordEvent([]domain.Result{
		{Outcome: domain.OutcomeRetry, Elapsed: 6 * time.Millisecond},
	})
	s.RecordDLQ()

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.MessagesProcessed)
	assert.Equal(t, int64(1), snap.SuccessfulReprices)
	assert.Equal(t, int64(1), snap.SkippedReprices)
	assert.Equal(t, int64(1), snap.FailedReprices)
	assert.Equal(t, int64(1), snap.PricesUpdated)
	assert.Equal(t, int64(1), snap.SentToDLQ)
	assert.InDelta(t, 1.0/3.0, snap.SuccessRate, 1e-9)
	assert.InDelta(t, 4.0, snap.AvgProcessingTimeMs, 1e-9)

	s.Reset()
	zero := s.Snapshot()
	assert.Zero(t, zero.MessagesProcessed)
	assert.Zero(t, zero.SuccessRate)
}
