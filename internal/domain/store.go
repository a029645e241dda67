package domain

import (
	"context"
	"time"
)

// ListingRef identifies one (seller, sku) listing of an ASIN.
type ListingRef struct {
	SellerID string
	SKU      string
}

// ListingStore reads and writes product listings under their ASIN hash.
// Implementations honor application-level expiry: stale records read as
// ErrNotFound.
type ListingStore interface {
	GetListing(ctx context.Context, asin, sellerID, sku string) (Listing, error)
	PutListing(ctx context.Context, l Listing) error
	// ListOwners returns every (seller, sku) that lists the ASIN.
	ListOwners(ctx context.Context, asin string) ([]ListingRef, error)
	// ScanListings visits every stored listing; fn returns false to stop.
	ScanListings(ctx context.Context, fn func(Listing) bool) error
}

// StrategyStore loads pricing strategy configurations.
type StrategyStore interface {
	GetStrategy(ctx context.Context, id string) (Strategy, error)
}

// PriceStore persists calculated prices per seller.
type PriceStore interface {
	PutCalculatedPrice(ctx context.Context, rec CalculatedPrice) error
	GetCalculatedPrice(ctx context.Context, sellerID, sku string) (CalculatedPrice, error)
	ListCalculatedPrices(ctx context.Context, sellerID string) ([]CalculatedPrice, error)
}

// ResetRuleStore loads per-seller price-reset windows.
type ResetRuleStore interface {
	GetRule(ctx context.Context, sellerID, marketplace string) (ResetRule, error)
	ListRules(ctx context.Context) ([]ResetRule, error)
	MarkReset(ctx context.Context, sellerID, marketplace string, at time.Time) error
}

// RepricedPublisher fans a successful repricing out to live consumers (the
// repriced-products list, pub/sub subscribers, websocket clients, archives).
// Publish failures are logged, never surfaced to the pipeline.
type RepricedPublisher interface {
	PublishRepriced(ctx context.Context, rec CalculatedPrice) error
}

// HistoryStore appends a durable audit trail of calculated prices.
type HistoryStore interface {
	AppendPrice(ctx context.Context, rec CalculatedPrice) error
	ListRecentPrices(ctx context.Context, sellerID string, limit int) ([]CalculatedPrice, error)
}

// LockManager serializes writers on a per-listing key.
type LockManager interface {
	// Acquire returns an unlock function, or ErrLockHeld when another holder
	// has the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds request rates per client key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ChannelRepriced is the pub/sub channel carrying one JSON CalculatedPrice
// per successful repricing.
const ChannelRepriced = "repricing_notifications"

// Bus is the pub/sub fabric for repricing notifications.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads; it closes when ctx ends.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
