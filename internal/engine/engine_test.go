package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3acucm/urepricer/internal/breaker"
	"github.com/l3acucm/urepricer/internal/domain"
)

type fakeListings struct {
	listings map[string]domain.Listing
	order    []domain.ListingRef
	asin     string
	getErr   error
	listErr  error
	getCalls int
}

func newFakeListings(ls ...domain.Listing) *fakeListings {
	f := &fakeListings{listings: make(map[string]domain.Listing)}
	for _, l := range ls {
		f.asin = l.ASIN
		f.listings[l.SellerID+"/"+l.SKU] = l
		f.order = append(f.order, domain.ListingRef{SellerID: l.SellerID, SKU: l.SKU})
	}
	return f
}

func (f *fakeListings) GetListing(_ context.Context, _, sellerID, sku string) (domain.Listing, error) {
	f.getCalls++
	if f.getErr != nil {
		return domain.Listing{}, f.getErr
	}
	l, ok := f.listings[sellerID+"/"+sku]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (f *fakeListings) PutListing(_ context.Context, l domain.Listing) error {
	f.listings[l.SellerID+"/"+l.SKU] = l
	return nil
}

func (f *fakeListings) ListOwners(_ context.Context, asin string) ([]domain.ListingRef, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if asin != f.asin {
		return nil, nil
	}
	return f.order, nil
}

func (f *fakeListings) ScanListings(_ context.Context, fn func(domain.Listing) bool) error {
	for _, ref := range f.order {
		if !fn(f.listings[ref.SellerID+"/"+ref.SKU]) {
			return nil
		}
	}
	return nil
}

type fakeStrategies struct {
	m   map[string]domain.Strategy
	err error
}

func (f *fakeStrategies) GetStrategy(_ context.Context, id string) (domain.Strategy, error) {
	if f.err != nil {
		return domain.Strategy{}, f.err
	}
	s, ok := f.m[id]
	if !ok {
		return domain.Strategy{}, domain.ErrNotFound
	}
	return s, nil
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

type fakeResets struct {
	rules map[string]domain.ResetRule
}

func (f *fakeResets) GetRule(_ context.Context, sellerID, marketplace string) (domain.ResetRule, error) {
	r, ok := f.rules[sellerID+":"+marketplace]
	if !ok {
		return domain.ResetRule{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeResets) ListRules(_ context.Context) ([]domain.ResetRule, error) {
	var out []domain.ResetRule
	for _, r := range f.rules {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeResets) MarkReset(_ context.Context, _, _ string, _ time.Time) error { return nil }

type fakePublisher struct {
	recs []domain.CalculatedPrice
	err  error
}

func (f *fakePublisher) PublishRepriced(_ context.Context, rec domain.CalculatedPrice) error {
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

type fakeLocks struct {
	held     map[string]bool
	acquired []string
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.acquired = append(f.acquired, key)
	return func() {}, nil
}

var errConnRefused = errors.New("connection refused")

func transientErr() error {
	return domain.NewError(domain.CategoryNetwork, domain.SeverityHigh, "redis: hget", errConnRefused)
}

func decodeErr() error {
	return domain.NewError(domain.CategoryValidation, domain.SeverityMedium, "redis: hget", errors.New("bad json"))
}

func newTestRepricer(deps Deps) *Repricer {
	return NewRepricer(deps, 10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedListing(t *testing.T) domain.Listing {
	t.Helper()
	return domain.Listing{
		ASIN:        "X1",
		SellerID:    "S1",
		SKU:         "K1",
		ListedPrice: price(t, "29.99"),
		MinPrice:    price(t, "20.00"),
		MaxPrice:    price(t, "50.00"),
		StrategyID:  "2",
		Status:      domain.ListingActive,
		Quantity:    5,
	}
}

func seedStrategy(t *testing.T) domain.Strategy {
	t.Helper()
	return domain.Strategy{
		ID:           "2",
		CompeteWith:  domain.CompeteMatchBuyBox,
		BeatBy:       *price(t, "-0.01"),
		MinPriceRule: domain.RuleJumpToMin,
		MaxPriceRule: domain.RuleJumpToMax,
	}
}

func buyboxChange(t *testing.T) *domain.OfferChange {
	t.Helper()
	return &domain.OfferChange{
		EventID:        "evt-1",
		Source:         domain.SourceAmazon,
		ASIN:           "X1",
		TotalOffers:    2,
		BuyBoxWinnerID: "S2",
		Offers: []domain.CompetitorOffer{
			{SellerID: "S2", ListingPrice: *price(t, "26.50"), IsBuyBoxWinner: true},
			{SellerID: "S3", ListingPrice: *price(t, "27.00")},
		},
	}
}

func TestProcessRepricesAndPersists(t *testing.T) {
	listings := newFakeListings(seedListing(t))
	prices := &fakePrices{}
	pub := &fakePublisher{}
	r := newTestRepricer(Deps{
		Listings:   listings,
		Strategies: &fakeStrategies{m: map[string]domain.Strategy{"2": seedStrategy(t)}},
		Prices:     prices,
		Publisher:  pub,
	})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, domain.OutcomeOK, res.Outcome)
	assert.Equal(t, "ok", res.Reason)
	assert.True(t, res.Written)
	assert.Equal(t, "S1", res.SellerID)
	assert.Equal(t, "K1", res.SKU)

	require.Len(t, prices.written, 1)
	assert.Equal(t, *price(t, "26.49"), prices.written[0].NewPrice)
	assert.Equal(t, "ChaseBuyBox", prices.written[0].StrategyUsed)
	assert.True(t, prices.written[0].PriceChanged)
	require.Len(t, pub.recs, 1)
	assert.Equal(t, domain.OutcomeOK, domain.ReduceOutcomes(results))
}

func TestProcessPriceUnchangedElidesWrite(t *testing.T) {
	l := seedListing(t)
	l.ListedPrice = price(t, "26.49")
	prices := &fakePrices{}
	pub := &fakePublisher{}
	r := newTestRepricer(Deps{
		Listings:   newFakeListings(l),
		Strategies: &fakeStrategies{m: map[string]domain.Strategy{"2": seedStrategy(t)}},
		Prices:     prices,
		Publisher:  pub,
	})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeSkip, results[0].Outcome)
	assert.Equal(t, domain.SkipPriceUnchanged, results[0].Reason)
	assert.False(t, results[0].Written)
	require.NotNil(t, results[0].Price)
	assert.Empty(t, prices.written)
	assert.Empty(t, pub.recs)
}

func TestProcessFansOutToAllOwners(t *testing.T) {
	second := seedListing(t)
	second.SellerID, second.SKU = "S9", "K9"
	listings := newFakeListings(seedListing(t), second)
	strategies := &fakeStrategies{m: map[string]domain.Strategy{"2": seedStrategy(t)}}

	t.Run("queue event reaches every owner", func(t *testing.T) {
		prices := &fakePrices{}
		r := newTestRepricer(Deps{Listings: listings, Strategies: strategies, Prices: prices})

		results := r.Process(context.Background(), buyboxChange(t))
		require.Len(t, results, 2)
		assert.Equal(t, "S1", results[0].SellerID)
		assert.Equal(t, "S9", results[1].SellerID)
		assert.Len(t, prices.written, 2)
	})

	t.Run("webhook event is filtered to its seller", func(t *testing.T) {
		prices := &fakePrices{}
		r := newTestRepricer(Deps{Listings: listings, Strategies: strategies, Prices: prices})

		change := buyboxChange(t)
		change.Source = domain.SourceWalmart
		change.SellerID = "S9"
		results := r.Process(context.Background(), change)
		require.Len(t, results, 1)
		assert.Equal(t, "S9", results[0].SellerID)
		assert.Equal(t, "K9", results[0].SKU)
	})
}

func TestProcessUnknownOwner(t *testing.T) {
	r := newTestRepricer(Deps{
		Listings:   newFakeListings(),
		Strategies: &fakeStrategies{},
		Prices:     &fakePrices{},
	})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeSkip, results[0].Outcome)
	assert.Equal(t, domain.SkipUnknownOwner, results[0].Reason)
	assert.Equal(t, domain.OutcomeSkip, domain.ReduceOutcomes(results))
}

func TestProcessListingNotFound(t *testing.T) {
	listings := newFakeListings(seedListing(t))
	delete(listings.listings, "S1/K1") // owner field exists, record expired

	r := newTestRepricer(Deps{
		Listings:   listings,
		Strategies: &fakeStrategies{},
		Prices:     &fakePrices{},
	})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeSkip, results[0].Outcome)
	assert.Equal(t, domain.SkipProductNotFound, results[0].Reason)
}

func TestProcessRetryOnTransientReadFailure(t *testing.T) {
	listings := newFakeListings(seedListing(t))
	listings.getErr = transientErr()
	prices := &fakePrices{}
	r := newTestRepricer(Deps{Listings: listings, Strategies: &fakeStrategies{}, Prices: prices})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeRetry, results[0].Outcome)
	assert.Error(t, results[0].Err)
	assert.Empty(t, prices.written)
	assert.Equal(t, domain.OutcomeRetry, domain.ReduceOutcomes(results))
}

func TestProcessSkipsUnreadableListing(t *testing.T) {
	listings := newFakeListings(seedListing(t))
	r := newTestRepricer(Deps{Listings: listings, Strategies: &fakeStrategies{}, Prices: &fakePrices{}})

	// Owner resolution succeeds, then the record read hits garbage.
	change := buyboxChange(t)
	change.SellerID = "S1"
	listings.getErr = decodeErr()

	results := r.Process(context.Background(), change)
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeSkip, results[0].Outcome)
	assert.Equal(t, domain.SkipInvalidRecord, results[0].Reason)
}

func TestProcessStrategyUnreadableReportsMissing(t *testing.T) {
	r := newTestRepricer(Deps{
		Listings:   newFakeListings(seedListing(t)),
		Strategies: &fakeStrategies{err: decodeErr()},
		Prices:     &fakePrices{},
	})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeSkip, results[0].Outcome)
	assert.Equal(t, domain.SkipStrategyMissing, results[0].Reason)
}

func TestProcessLockContention(t *testing.T) {
	locks := &fakeLocks{held: map[string]bool{"S1:K1": true}}
	prices := &fakePrices{}
	r := newTestRepricer(Deps{
		Listings:   newFakeListings(seedListing(t)),
		Strategies: &fakeStrategies{m: map[string]domain.Strategy{"2": seedStrategy(t)}},
		Prices:     prices,
		Locks:      locks,
	})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeRetry, results[0].Outcome)
	assert.ErrorIs(t, results[0].Err, domain.ErrLockHeld)
	assert.Empty(t, prices.written)
}

func TestProcessLockAcquiredAndReleased(t *testing.T) {
	locks := &fakeLocks{held: map[string]bool{}}
	r := newTestRepricer(Deps{
		Listings:   newFakeListings(seedListing(t)),
		Strategies: &fakeStrategies{m: map[string]domain.Strategy{"2": seedStrategy(t)}},
		Prices:     &fakePrices{},
		Locks:      locks,
	})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeOK, results[0].Outcome)
	assert.Equal(t, []string{"S1:K1"}, locks.acquired)
}

func TestProcessBreakerOpenFailsFast(t *testing.T) {
	b := breaker.New(breaker.Config{
		FailureRatio: 0.5,
		Window:       30 * time.Second,
		Cooldown:     time.Minute,
		MinSamples:   1,
	})
	b.Failure() // trips immediately at one sample

	listings := newFakeListings(seedListing(t))
	r := newTestRepricer(Deps{
		Listings:   listings,
		Strategies: &fakeStrategies{},
		Prices:     &fakePrices{},
		Breaker:    b,
	})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeRetry, results[0].Outcome)
	assert.ErrorIs(t, results[0].Err, domain.ErrBreakerOpen)
	assert.Zero(t, listings.getCalls)
}

func TestProcessResetWindowSkips(t *testing.T) {
	resets := &fakeResets{rules: map[string]domain.ResetRule{
		"S1:US": {SellerID: "S1", Marketplace: "US", HourStart: 9, HourEnd: 12},
	}}
	prices := &fakePrices{}
	r := newTestRepricer(Deps{
		Listings:   newFakeListings(seedListing(t)),
		Strategies: &fakeStrategies{m: map[string]domain.Strategy{"2": seedStrategy(t)}},
		Prices:     prices,
		Resets:     resets,
	})
	r.now = func() time.Time { return time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC) }

	change := buyboxChange(t)
	change.Marketplace = "US"
	results := r.Process(context.Background(), change)
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeSkip, results[0].Outcome)
	assert.Equal(t, domain.SkipResetWindow, results[0].Reason)
	assert.Empty(t, prices.written)
}

func TestProcessPublishFailureStillSucceeds(t *testing.T) {
	pub := &fakePublisher{err: errors.New("pubsub down")}
	prices := &fakePrices{}
	r := newTestRepricer(Deps{
		Listings:   newFakeListings(seedListing(t)),
		Strategies: &fakeStrategies{m: map[string]domain.Strategy{"2": seedStrategy(t)}},
		Prices:     prices,
		Publisher:  pub,
	})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeOK, results[0].Outcome)
	assert.True(t, results[0].Written)
	assert.Len(t, prices.written, 1)
}

func TestProcessRetryOnWriteFailure(t *testing.T) {
	prices := &fakePrices{err: transientErr()}
	r := newTestRepricer(Deps{
		Listings:   newFakeListings(seedListing(t)),
		Strategies: &fakeStrategies{m: map[string]domain.Strategy{"2": seedStrategy(t)}},
		Prices:     prices,
	})

	results := r.Process(context.Background(), buyboxChange(t))
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeRetry, results[0].Outcome)
	assert.Error(t, results[0].Err)
	assert.False(t, results[0].Written)
}
