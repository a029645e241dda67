package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"

	"github.com/l3acucm/urepricer/internal/domain"
)

// ResetRuleStore implements domain.ResetRuleStore on Redis flat hashes with a
// small in-process read cache in front. The decision engine consults the rule
// for every event of a seller, so uncached reads would hit Redis once per
// offer change; a short-TTL ristretto cache absorbs that while keeping rule
// edits visible within minutes.
//
// Key schema:
//
//	reset_rules.{sellerID}:{marketplace} - hash with fields reset_all,
//	hour_start, hour_end, price_reset_time
type ResetRuleStore struct {
	rdb      *redis.Client
	cache    *ristretto.Cache
	cacheTTL time.Duration
}

// cachedRule is the cache entry; found=false memoizes "no rule configured".
type cachedRule struct {
	rule  domain.ResetRule
	found bool
}

const resetKeyPrefix = "reset_rules."

func resetKey(sellerID, marketplace string) string {
	return resetKeyPrefix + sellerID + ":" + marketplace
}

// NewResetRuleStore creates a ResetRuleStore backed by the given Client.
// cacheTTL bounds how stale a cached rule may be.
func NewResetRuleStore(c *Client, cacheTTL time.Duration) (*ResetRuleStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000, // ~10x expected distinct (seller, marketplace) pairs
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: reset rule cache: %w", err)
	}
	return &ResetRuleStore{rdb: c.Underlying(), cache: cache, cacheTTL: cacheTTL}, nil
}

// Close releases the in-process cache.
func (rs *ResetRuleStore) Close() {
	rs.cache.Close()
}

// GetRule loads the reset rule for (sellerID, marketplace). It returns
// domain.ErrNotFound when no rule is configured; the absence is cached too,
// since most sellers have no reset window.
func (rs *ResetRuleStore) GetRule(ctx context.Context, sellerID, marketplace string) (domain.ResetRule, error) {
	ck := sellerID + ":" + marketplace
	if v, ok := rs.cache.Get(ck); ok {
		entry := v.(cachedRule)
		if !entry.found {
			return domain.ResetRule{}, domain.ErrNotFound
		}
		return entry.rule, nil
	}

	vals, err := rs.rdb.HGetAll(ctx, resetKey(sellerID, marketplace)).Result()
	if err != nil {
		return domain.ResetRule{}, netErr(fmt.Sprintf("get reset rule %s:%s", sellerID, marketplace), err)
	}
	if len(vals) == 0 {
		rs.cache.SetWithTTL(ck, cachedRule{}, 1, rs.cacheTTL)
		return domain.ResetRule{}, domain.ErrNotFound
	}

	rule, err := parseResetRule(sellerID, marketplace, vals)
	if err != nil {
		return domain.ResetRule{}, decodeErr(fmt.Sprintf("parse reset rule %s:%s", sellerID, marketplace), err)
	}

	rs.cache.SetWithTTL(ck, cachedRule{rule: rule, found: true}, 1, rs.cacheTTL)
	return rule, nil
}

// ListRules scans every configured reset rule. Used by the hourly reset job;
// not cached.
func (rs *ResetRuleStore) ListRules(ctx context.Context) ([]domain.ResetRule, error) {
	var rules []domain.ResetRule

	iter := rs.rdb.Scan(ctx, 0, resetKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		sellerID, marketplace, ok := strings.Cut(strings.TrimPrefix(key, resetKeyPrefix), ":")
		if !ok || sellerID == "" || marketplace == "" {
			continue
		}

		vals, err := rs.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, netErr(fmt.Sprintf("list reset rules %s", key), err)
		}
		if len(vals) == 0 {
			continue
		}

		rule, err := parseResetRule(sellerID, marketplace, vals)
		if err != nil {
			continue
		}
		rules = append(rules, rule)
	}
	if err := iter.Err(); err != nil {
		return nil, netErr("list reset rules", err)
	}
	return rules, nil
}

// MarkReset records when the hourly job last reset the seller's prices and
// drops the cached copy of the rule.
func (rs *ResetRuleStore) MarkReset(ctx context.Context, sellerID, marketplace string, at time.Time) error {
	err := rs.rdb.HSet(ctx, resetKey(sellerID, marketplace), "price_reset_time", at.UTC().Format(time.RFC3339)).Err()
	if err != nil {
		return netErr(fmt.Sprintf("mark reset %s:%s", sellerID, marketplace), err)
	}
	rs.cache.Del(sellerID + ":" + marketplace)
	return nil
}

// PutRule writes a reset rule hash. Used by tests and seed scripts.
func (rs *ResetRuleStore) PutRule(ctx context.Context, rule domain.ResetRule) error {
	fields := map[string]interface{}{
		"reset_all":  strconv.FormatBool(rule.ResetAll),
		"hour_start": strconv.Itoa(rule.HourStart),
		"hour_end":   strconv.Itoa(rule.HourEnd),
	}
	if rule.PriceResetAt != nil {
		fields["price_reset_time"] = rule.PriceResetAt.UTC().Format(time.RFC3339)
	}

	if err := rs.rdb.HSet(ctx, resetKey(rule.SellerID, rule.Marketplace), fields).Err(); err != nil {
		return netErr(fmt.Sprintf("put reset rule %s:%s", rule.SellerID, rule.Marketplace), err)
	}
	rs.cache.Del(rule.SellerID + ":" + rule.Marketplace)
	return nil
}

func parseResetRule(sellerID, marketplace string, vals map[string]string) (domain.ResetRule, error) {
	rule := domain.ResetRule{SellerID: sellerID, Marketplace: marketplace}

	if raw, ok := vals["reset_all"]; ok && raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.ResetRule{}, fmt.Errorf("reset_all %q: %w", raw, err)
		}
		rule.ResetAll = b
	}

	for field, dst := range map[string]*int{
		"hour_start": &rule.HourStart,
		"hour_end":   &rule.HourEnd,
	} {
		raw, ok := vals[field]
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.ResetRule{}, fmt.Errorf("%s %q: %w", field, raw, err)
		}
		if n < 0 || n > 23 {
			return domain.ResetRule{}, fmt.Errorf("%s %d out of range 0-23", field, n)
		}
		*dst = n
	}

	if raw, ok := vals["price_reset_time"]; ok && raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.ResetRule{}, fmt.Errorf("price_reset_time %q: %w", raw, err)
		}
		rule.PriceResetAt = &t
	}

	return rule, nil
}

// Compile-time interface check.
var _ domain.ResetRuleStore = (*ResetRuleStore)(nil)
