package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/strategy"
)

type fakeListings struct {
	listings []domain.Listing
}

func (f *fakeListings) GetListing(_ context.Context, asin, sellerID, sku string) (domain.Listing, error) {
	for _, l := range f.listings {
		if l.ASIN == asin && l.SellerID == sellerID && l.SKU == sku {
			return l, nil
		}
	}
	return domain.Listing{}, domain.ErrNotFound
}

func (f *fakeListings) PutListing(_ context.Context, l domain.Listing) error {
	f.listings = append(f.listings, l)
	return nil
}

func (f *fakeListings) ListOwners(_ context.Context, asin string) ([]domain.ListingRef, error) {
	var refs []domain.ListingRef
	for _, l := range f.listings {
		if l.ASIN == asin {
			refs = append(refs, domain.ListingRef{SellerID: l.SellerID, SKU: l.SKU})
		}
	}
	return refs, nil
}

func (f *fakeListings) ScanListings(_ context.Context, fn func(domain.Listing) bool) error {
	for _, l := range f.listings {
		if !fn(l) {
			return nil
		}
	}
	return nil
}

type fakeResets struct {
	rules   []domain.ResetRule
	listErr error
	marked  map[string]time.Time
}

func (f *fakeResets) GetRule(_ context.Context, sellerID, marketplace string) (domain.ResetRule, error) {
	for _, r := range f.rules {
		if r.SellerID == sellerID && r.Marketplace == marketplace {
			return r, nil
		}
	}
	return domain.ResetRule{}, domain.ErrNotFound
}

func (f *fakeResets) ListRules(_ context.Context) ([]domain.ResetRule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.rules, nil
}

func (f *fakeResets) MarkReset(_ context.Context, sellerID, marketplace string, at time.Time) error {
	if f.marked == nil {
		f.marked = make(map[string]time.Time)
	}
	f.marked[sellerID+":"+marketplace] = at
	return nil
}

type fakePrices struct {
	written []domain.CalculatedPrice
	err     error
}

func (f *fakePrices) PutCalculatedPrice(_ context.Context, rec domain.CalculatedPrice) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, rec)
	return nil
}

func (f *fakePrices) GetCalculatedPrice(_ context.Context, sellerID, sku string) (domain.CalculatedPrice, error) {
	for _, rec := range f.written {
		if rec.SellerID == sellerID && rec.SKU == sku {
			return rec, nil
		}
	}
	return domain.CalculatedPrice{}, domain.ErrNotFound
}

func (f *fakePrices) ListCalculatedPrices(_ context.Context, sellerID string) ([]domain.CalculatedPrice, error) {
	var out []domain.CalculatedPrice
	for _, rec := range f.written {
		if rec.SellerID == sellerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakePublisher struct {
	published []domain.CalculatedPrice
}

func (f *fakePublisher) PublishRepriced(_ context.Context, rec domain.CalculatedPrice) error {
	f.published = append(f.published, rec)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newResetJob(listings *fakeListings, resets *fakeResets, prices *fakePrices, pub domain.RepricedPublisher, now time.Time) *ResetJob {
	j := NewResetJob(listings, resets, prices, pub, discard())
	j.now = func() time.Time { return now }
	return j
}

func listing(seller, sku string, listed, def, max *domain.Price) domain.Listing {
	return domain.Listing{
		ASIN:         "B0RESET0001",
		SellerID:     seller,
		SKU:          sku,
		ListedPrice:  listed,
		DefaultPrice: def,
		MaxPrice:     max,
		Status:       domain.ListingActive,
		Quantity:     3,
	}
}

func TestResetJobRun(t *testing.T) {
	// 23:30 UTC, inside a 22-04 cross-midnight window.
	now := time.Date(2026, 6, 1, 23, 30, 0, 0, time.UTC)
	rule := domain.ResetRule{SellerID: "S1", Marketplace: "UK", ResetAll: true, HourStart: 22, HourEnd: 4}

	t.Run("resets to default and marks the rule", func(t *testing.T) {
		listings := &fakeListings{listings: []domain.Listing{
			listing("S1", "SKU-1", domain.PricePtr(2999), domain.PricePtr(2499), nil),
		}}
		resets := &fakeResets{rules: []domain.ResetRule{rule}}
		prices := &fakePrices{}
		pub := &fakePublisher{}

		require.NoError(t, newResetJob(listings, resets, prices, pub, now).Run(context.Background()))

		require.Len(t, prices.written, 1)
		rec := prices.written[0]
		assert.Equal(t, domain.Price(2499), rec.NewPrice)
		assert.Equal(t, strategy.NamePriceReset, rec.StrategyUsed)
		assert.True(t, rec.PriceChanged)
		require.Len(t, pub.published, 1)
		assert.Equal(t, now, resets.marked["S1:UK"])
	})

	t.Run("falls back to max when default is unset", func(t *testing.T) {
		listings := &fakeListings{listings: []domain.Listing{
			listing("S1", "SKU-1", domain.PricePtr(2999), nil, domain.PricePtr(5000)),
		}}
		resets := &fakeResets{rules: []domain.ResetRule{rule}}
		prices := &fakePrices{}

		require.NoError(t, newResetJob(listings, resets, prices, nil, now).Run(context.Background()))

		require.Len(t, prices.written, 1)
		assert.Equal(t, domain.Price(5000), prices.written[0].NewPrice)
	})

	t.Run("skips listings with neither default nor max", func(t *testing.T) {
		listings := &fakeListings{listings: []domain.Listing{
			listing("S1", "SKU-1", domain.PricePtr(2999), nil, nil),
		}}
		resets := &fakeResets{rules: []domain.ResetRule{rule}}
		prices := &fakePrices{}

		require.NoError(t, newResetJob(listings, resets, prices, nil, now).Run(context.Background()))

		assert.Empty(t, prices.written)
		// The window still counts as handled.
		assert.Contains(t, resets.marked, "S1:UK")
	})

	t.Run("skips listings already at the target", func(t *testing.T) {
		listings := &fakeListings{listings: []domain.Listing{
			listing("S1", "SKU-1", domain.PricePtr(2499), domain.PricePtr(2499), nil),
		}}
		resets := &fakeResets{rules: []domain.ResetRule{rule}}
		prices := &fakePrices{}

		require.NoError(t, newResetJob(listings, resets, prices, nil, now).Run(context.Background()))
		assert.Empty(t, prices.written)
	})

	t.Run("ignores sellers without a pending rule", func(t *testing.T) {
		listings := &fakeListings{listings: []domain.Listing{
			listing("S1", "SKU-1", domain.PricePtr(2999), domain.PricePtr(2499), nil),
			listing("S2", "SKU-2", domain.PricePtr(1999), domain.PricePtr(1500), nil),
		}}
		resets := &fakeResets{rules: []domain.ResetRule{rule}}
		prices := &fakePrices{}

		require.NoError(t, newResetJob(listings, resets, prices, nil, now).Run(context.Background()))

		require.Len(t, prices.written, 1)
		assert.Equal(t, "S1", prices.written[0].SellerID)
	})

	t.Run("window already reset this opening", func(t *testing.T) {
		resetAt := time.Date(2026, 6, 1, 22, 15, 0, 0, time.UTC)
		done := rule
		done.PriceResetAt = &resetAt

		listings := &fakeListings{listings: []domain.Listing{
			listing("S1", "SKU-1", domain.PricePtr(2999), domain.PricePtr(2499), nil),
		}}
		resets := &fakeResets{rules: []domain.ResetRule{done}}
		prices := &fakePrices{}

		require.NoError(t, newResetJob(listings, resets, prices, nil, now).Run(context.Background()))
		assert.Empty(t, prices.written)
		assert.Empty(t, resets.marked)
	})

	t.Run("reset from a previous window runs again", func(t *testing.T) {
		resetAt := time.Date(2026, 5, 31, 22, 15, 0, 0, time.UTC) // yesterday's opening
		again := rule
		again.PriceResetAt = &resetAt

		listings := &fakeListings{listings: []domain.Listing{
			listing("S1", "SKU-1", domain.PricePtr(2999), domain.PricePtr(2499), nil),
		}}
		resets := &fakeResets{rules: []domain.ResetRule{again}}
		prices := &fakePrices{}

		require.NoError(t, newResetJob(listings, resets, prices, nil, now).Run(context.Background()))
		assert.Len(t, prices.written, 1)
	})

	t.Run("outside the window nothing happens", func(t *testing.T) {
		noon := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		listings := &fakeListings{listings: []domain.Listing{
			listing("S1", "SKU-1", domain.PricePtr(2999), domain.PricePtr(2499), nil),
		}}
		resets := &fakeResets{rules: []domain.ResetRule{rule}}
		prices := &fakePrices{}

		require.NoError(t, newResetJob(listings, resets, prices, nil, noon).Run(context.Background()))
		assert.Empty(t, prices.written)
		assert.Empty(t, resets.marked)
	})

	t.Run("rule listing failure surfaces", func(t *testing.T) {
		resets := &fakeResets{listErr: errors.New("redis down")}
		err := newResetJob(&fakeListings{}, resets, &fakePrices{}, nil, now).Run(context.Background())
		assert.Error(t, err)
	})
}

func TestWindowStart(t *testing.T) {
	rule := domain.ResetRule{HourStart: 22, HourEnd: 4}

	// Before midnight the window opened today.
	now := time.Date(2026, 6, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC), windowStart(rule, now))

	// After midnight it opened yesterday.
	early := time.Date(2026, 6, 2, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC), windowStart(rule, early))
}
