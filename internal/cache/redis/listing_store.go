package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/l3acucm/urepricer/internal/domain"
)

// ListingStore implements domain.ListingStore using Redis hashes with
// JSON-serialized listings.
//
// Key schema:
//
//	ASIN_{asin} - hash, one field per owner, field "{sellerID}:{sku}"
//
// Every write refreshes the container key's TTL so listings that stop being
// synced age out on their own.
type ListingStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewListingStore creates a ListingStore backed by the given Client. ttl is
// applied to the ASIN hash on every write.
func NewListingStore(c *Client, ttl time.Duration) *ListingStore {
	return &ListingStore{rdb: c.Underlying(), ttl: ttl}
}

const asinKeyPrefix = "ASIN_"

func asinKey(asin string) string             { return asinKeyPrefix + asin }
func ownerField(sellerID, sku string) string { return sellerID + ":" + sku }

// GetListing retrieves the listing stored at (asin, sellerID, sku).
// It returns domain.ErrNotFound when no such listing exists; malformed stored
// data is classified as a validation failure so callers skip instead of
// retrying.
func (ls *ListingStore) GetListing(ctx context.Context, asin, sellerID, sku string) (domain.Listing, error) {
	data, err := ls.rdb.HGet(ctx, asinKey(asin), ownerField(sellerID, sku)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, netErr(fmt.Sprintf("get listing %s %s:%s", asin, sellerID, sku), err)
	}

	var l domain.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return domain.Listing{}, decodeErr(fmt.Sprintf("unmarshal listing %s %s:%s", asin, sellerID, sku), err)
	}

	// The hash field is authoritative for identity; stored JSON may lag.
	l.ASIN = asin
	l.SellerID = sellerID
	l.SKU = sku

	if err := l.Validate(); err != nil {
		return domain.Listing{}, decodeErr(fmt.Sprintf("validate listing %s %s:%s", asin, sellerID, sku), err)
	}
	return l, nil
}

// PutListing stores a listing under its ASIN hash and refreshes the key TTL.
func (ls *ListingStore) PutListing(ctx context.Context, l domain.Listing) error {
	if err := l.Validate(); err != nil {
		return decodeErr(fmt.Sprintf("put listing %s %s:%s", l.ASIN, l.SellerID, l.SKU), err)
	}

	data, err := json.Marshal(l)
	if err != nil {
		return decodeErr(fmt.Sprintf("marshal listing %s %s:%s", l.ASIN, l.SellerID, l.SKU), err)
	}

	key := asinKey(l.ASIN)

	pipe := ls.rdb.TxPipeline()
	pipe.HSet(ctx, key, ownerField(l.SellerID, l.SKU), data)
	pipe.Expire(ctx, key, ls.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return netErr(fmt.Sprintf("put listing %s %s:%s", l.ASIN, l.SellerID, l.SKU), err)
	}
	return nil
}

// ListOwners returns every (seller, sku) pair that lists the given ASIN.
// Fields that do not follow the "{sellerID}:{sku}" convention are skipped.
func (ls *ListingStore) ListOwners(ctx context.Context, asin string) ([]domain.ListingRef, error) {
	fields, err := ls.rdb.HKeys(ctx, asinKey(asin)).Result()
	if err != nil {
		return nil, netErr(fmt.Sprintf("list owners %s", asin), err)
	}

	refs := make([]domain.ListingRef, 0, len(fields))
	for _, f := range fields {
		sellerID, sku, ok := strings.Cut(f, ":")
		if !ok || sellerID == "" || sku == "" {
			continue
		}
		refs = append(refs, domain.ListingRef{SellerID: sellerID, SKU: sku})
	}
	return refs, nil
}

// ScanListings visits every stored listing across all ASIN hashes. fn returns
// false to stop early. Malformed entries are skipped, not surfaced: a scan is
// a maintenance sweep and one bad record must not abort it.
func (ls *ListingStore) ScanListings(ctx context.Context, fn func(domain.Listing) bool) error {
	iter := ls.rdb.Scan(ctx, 0, asinKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		asin := strings.TrimPrefix(key, asinKeyPrefix)

		vals, err := ls.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return netErr(fmt.Sprintf("scan listings %s", key), err)
		}

		for field, raw := range vals {
			sellerID, sku, ok := strings.Cut(field, ":")
			if !ok {
				continue
			}

			var l domain.Listing
			if err := json.Unmarshal([]byte(raw), &l); err != nil {
				continue
			}
			l.ASIN = asin
			l.SellerID = sellerID
			l.SKU = sku

			if !fn(l) {
				return nil
			}
		}
	}
	if err := iter.Err(); err != nil {
		return netErr("scan listings", err)
	}
	return nil
}

// netErr classifies a driver failure as transient so the pipeline retries the
// triggering event.
func netErr(op string, err error) error {
	return domain.NewError(domain.CategoryNetwork, domain.SeverityHigh, "redis: "+op, err)
}

// decodeErr classifies malformed stored data as structural so the pipeline
// skips instead of redelivering an event that can never succeed.
func decodeErr(op string, err error) error {
	return domain.NewError(domain.CategoryValidation, domain.SeverityMedium, "redis: "+op, err)
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
