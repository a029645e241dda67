package redis

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/l3acucm/urepricer/internal/domain"
)

const (
	// repricedListMax caps the per-seller repriced-products list.
	repricedListMax = 1000
	// repricedListTTL ages out lists of sellers with no recent repricings.
	repricedListTTL = 7 * 24 * time.Hour
	// repricedStream is a durable trail of repricings for replay tooling.
	repricedStream = "repriced:events"
)

// RepricedFeed implements domain.RepricedPublisher. Each successful repricing
// is pushed to a capped per-seller list, announced on the notification
// channel, and appended to a trimmed stream.
//
// Key schema:
//
//	repricing_cache:{sellerID}_repriced_products - list of JSON records,
//	newest first, trimmed to 1000 entries, 7-day TTL
type RepricedFeed struct {
	rdb *redis.Client
	bus *Bus
}

// NewRepricedFeed creates a RepricedFeed backed by the given Client.
func NewRepricedFeed(c *Client) *RepricedFeed {
	return &RepricedFeed{rdb: c.Underlying(), bus: NewBus(c)}
}

func repricedListKey(sellerID string) string {
	return "repricing_cache:" + sellerID + "_repriced_products"
}

// PublishRepriced records one successful repricing in the seller's feed and
// announces it to live subscribers. The caller treats failures as log-only;
// a lost notification must never fail the repricing itself.
func (rf *RepricedFeed) PublishRepriced(ctx context.Context, rec domain.CalculatedPrice) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return decodeErr(fmt.Sprintf("marshal repriced %s/%s", rec.SellerID, rec.SKU), err)
	}

	key := repricedListKey(rec.SellerID)

	pipe := rf.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, repricedListMax-1)
	pipe.Expire(ctx, key, repricedListTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return netErr(fmt.Sprintf("push repriced %s/%s", rec.SellerID, rec.SKU), err)
	}

	if err := rf.bus.Publish(ctx, domain.ChannelRepriced, data); err != nil {
		return err
	}
	return rf.bus.StreamAppend(ctx, repricedStream, data)
}

// RecentRepriced returns up to limit most-recent repricings for a seller,
// newest first.
func (rf *RepricedFeed) RecentRepriced(ctx context.Context, sellerID string, limit int) ([]domain.CalculatedPrice, error) {
	if limit <= 0 || limit > repricedListMax {
		limit = repricedListMax
	}

	raws, err := rf.rdb.LRange(ctx, repricedListKey(sellerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, netErr(fmt.Sprintf("recent repriced %s", sellerID), err)
	}

	out := make([]domain.CalculatedPrice, 0, len(raws))
	for _, raw := range raws {
		var rec domain.CalculatedPrice
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.RepricedPublisher = (*RepricedFeed)(nil)
