package domain

import "fmt"

// CompeteWith selects which competing offer a strategy targets.
type CompeteWith string

const (
	CompeteLowestPrice    CompeteWith = "LOWEST_PRICE"
	CompeteLowestFBAPrice CompeteWith = "LOWEST_FBA_PRICE"
	CompeteMatchBuyBox    CompeteWith = "MATCH_BUYBOX"
)

// BoundsRule says what to do when a raw price falls outside a bound.
type BoundsRule string

const (
	RuleJumpToMin       BoundsRule = "JUMP_TO_MIN"
	RuleJumpToMax       BoundsRule = "JUMP_TO_MAX"
	RuleJumpToAvg       BoundsRule = "JUMP_TO_AVG"
	RuleDoNothing       BoundsRule = "DO_NOTHING"
	RuleDefaultPrice    BoundsRule = "DEFAULT_PRICE"
	RuleMatchCompetitor BoundsRule = "MATCH_COMPETITOR"
)

// B2BCompeteFor selects which competitor tier a business tier competes with.
type B2BCompeteFor string

const (
	B2BCompeteLow  B2BCompeteFor = "LOW"  // largest competitor min_quantity ≤ ours
	B2BCompeteHigh B2BCompeteFor = "HIGH" // smallest competitor min_quantity ≥ ours
)

// B2BPriceRule says how a business tier price is derived from its competitor.
type B2BPriceRule string

const (
	B2BRuleAverage B2BPriceRule = "AVERAGE"
	B2BRuleBeatBy  B2BPriceRule = "BEAT_BY"
)

// Strategy is a pricing strategy configuration, stored as a flat hash under
// strategy.<id> and mutated by external tooling.
type Strategy struct {
	ID            string
	CompeteWith   CompeteWith
	BeatBy        Price // negative undercuts, positive overshoots, zero matches
	MinPriceRule  BoundsRule
	MaxPriceRule  BoundsRule
	B2BCompeteFor B2BCompeteFor // empty when unset
	B2BPriceRule  B2BPriceRule  // empty when unset
}

// Validate checks that the strategy's enum fields hold known values.
func (s *Strategy) Validate() error {
	switch s.CompeteWith {
	case CompeteLowestPrice, CompeteLowestFBAPrice, CompeteMatchBuyBox:
	default:
		return fmt.Errorf("strategy %s: unknown compete_with %q", s.ID, s.CompeteWith)
	}
	for _, r := range []BoundsRule{s.MinPriceRule, s.MaxPriceRule} {
		switch r {
		case RuleJumpToMin, RuleJumpToMax, RuleJumpToAvg, RuleDoNothing,
			RuleDefaultPrice, RuleMatchCompetitor:
		default:
			return fmt.Errorf("strategy %s: unknown bounds rule %q", s.ID, r)
		}
	}
	if s.B2BCompeteFor != "" && s.B2BCompeteFor != B2BCompeteLow && s.B2BCompeteFor != B2BCompeteHigh {
		return fmt.Errorf("strategy %s: unknown b2b_compete_for %q", s.ID, s.B2BCompeteFor)
	}
	if s.B2BPriceRule != "" && s.B2BPriceRule != B2BRuleAverage && s.B2BPriceRule != B2BRuleBeatBy {
		return fmt.Errorf("strategy %s: unknown b2b_price_rule %q", s.ID, s.B2BPriceRule)
	}
	return nil
}
