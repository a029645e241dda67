package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/l3acucm/urepricer/internal/domain"
)

// StrategyStore implements domain.StrategyStore on Redis flat hashes.
//
// Key schema:
//
//	strategy.{strategyID} - hash with one field per scalar attribute
//
// Strategies are written by external management tooling; this store only
// reads and carries no TTL refresh.
type StrategyStore struct {
	rdb *redis.Client
}

// NewStrategyStore creates a StrategyStore backed by the given Client.
func NewStrategyStore(c *Client) *StrategyStore {
	return &StrategyStore{rdb: c.Underlying()}
}

func strategyKey(id string) string { return "strategy." + id }

// GetStrategy loads the strategy hash for the given id. It returns
// domain.ErrNotFound when the hash does not exist, and a validation-classified
// error when the stored fields do not parse.
func (ss *StrategyStore) GetStrategy(ctx context.Context, id string) (domain.Strategy, error) {
	vals, err := ss.rdb.HGetAll(ctx, strategyKey(id)).Result()
	if err != nil {
		return domain.Strategy{}, netErr(fmt.Sprintf("get strategy %s", id), err)
	}
	if len(vals) == 0 {
		return domain.Strategy{}, domain.ErrNotFound
	}

	s := domain.Strategy{
		ID:            id,
		CompeteWith:   domain.CompeteWith(vals["compete_with"]),
		MinPriceRule:  domain.BoundsRule(vals["min_price_rule"]),
		MaxPriceRule:  domain.BoundsRule(vals["max_price_rule"]),
		B2BCompeteFor: domain.B2BCompeteFor(vals["b2b_compete_for"]),
		B2BPriceRule:  domain.B2BPriceRule(vals["b2b_price_rule"]),
	}

	if raw, ok := vals["beat_by"]; ok && raw != "" {
		s.BeatBy, err = domain.ParsePrice(raw)
		if err != nil {
			return domain.Strategy{}, decodeErr(fmt.Sprintf("parse strategy %s beat_by", id), err)
		}
	}

	if err := s.Validate(); err != nil {
		return domain.Strategy{}, decodeErr(fmt.Sprintf("validate strategy %s", id), err)
	}
	return s, nil
}

// PutStrategy writes a strategy hash. Production writes come from management
// tooling; this is here for tests and seed scripts.
func (ss *StrategyStore) PutStrategy(ctx context.Context, s domain.Strategy) error {
	if err := s.Validate(); err != nil {
		return decodeErr(fmt.Sprintf("put strategy %s", s.ID), err)
	}

	fields := map[string]interface{}{
		"compete_with":   string(s.CompeteWith),
		"beat_by":        s.BeatBy.String(),
		"min_price_rule": string(s.MinPriceRule),
		"max_price_rule": string(s.MaxPriceRule),
	}
	if s.B2BCompeteFor != "" {
		fields["b2b_compete_for"] = string(s.B2BCompeteFor)
	}
	if s.B2BPriceRule != "" {
		fields["b2b_price_rule"] = string(s.B2BPriceRule)
	}

	if err := ss.rdb.HSet(ctx, strategyKey(s.ID), fields).Err(); err != nil {
		return netErr(fmt.Sprintf("put strategy %s", s.ID), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StrategyStore = (*StrategyStore)(nil)
