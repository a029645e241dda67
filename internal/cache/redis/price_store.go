package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/l3acucm/urepricer/internal/domain"
)

// PriceStore implements domain.PriceStore using Redis hashes with
// JSON-serialized calculated prices.
//
// Key schema:
//
//	CALCULATED_PRICES:{sellerID} - hash, field "{sku}" containing JSON
//
// Downstream feed publishers poll these hashes, push the prices to the
// marketplaces, and delete the fields they have consumed. Every write
// refreshes the container key's TTL so unconsumed prices expire.
type PriceStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceStore creates a PriceStore backed by the given Client. ttl is
// applied to the seller hash on every write.
func NewPriceStore(c *Client, ttl time.Duration) *PriceStore {
	return &PriceStore{rdb: c.Underlying(), ttl: ttl}
}

func calculatedKey(sellerID string) string { return "CALCULATED_PRICES:" + sellerID }

// PutCalculatedPrice stores a calculated price under the seller hash and
// refreshes the key TTL.
func (ps *PriceStore) PutCalculatedPrice(ctx context.Context, rec domain.CalculatedPrice) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return decodeErr(fmt.Sprintf("marshal calculated price %s/%s", rec.SellerID, rec.SKU), err)
	}

	key := calculatedKey(rec.SellerID)

	pipe := ps.rdb.TxPipeline()
	pipe.HSet(ctx, key, rec.SKU, data)
	pipe.Expire(ctx, key, ps.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return netErr(fmt.Sprintf("put calculated price %s/%s", rec.SellerID, rec.SKU), err)
	}
	return nil
}

// GetCalculatedPrice retrieves the calculated price for one SKU.
// It returns domain.ErrNotFound when no price has been calculated.
func (ps *PriceStore) GetCalculatedPrice(ctx context.Context, sellerID, sku string) (domain.CalculatedPrice, error) {
	data, err := ps.rdb.HGet(ctx, calculatedKey(sellerID), sku).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CalculatedPrice{}, domain.ErrNotFound
		}
		return domain.CalculatedPrice{}, netErr(fmt.Sprintf("get calculated price %s/%s", sellerID, sku), err)
	}

	var rec domain.CalculatedPrice
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.CalculatedPrice{}, decodeErr(fmt.Sprintf("unmarshal calculated price %s/%s", sellerID, sku), err)
	}
	return rec, nil
}

// ListCalculatedPrices returns every calculated price stored for a seller.
// Malformed entries are skipped so one bad record cannot hide the rest.
func (ps *PriceStore) ListCalculatedPrices(ctx context.Context, sellerID string) ([]domain.CalculatedPrice, error) {
	vals, err := ps.rdb.HGetAll(ctx, calculatedKey(sellerID)).Result()
	if err != nil {
		return nil, netErr(fmt.Sprintf("list calculated prices %s", sellerID), err)
	}

	out := make([]domain.CalculatedPrice, 0, len(vals))
	for _, raw := range vals {
		var rec domain.CalculatedPrice
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.PriceStore = (*PriceStore)(nil)
