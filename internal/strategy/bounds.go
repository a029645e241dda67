package strategy

import (
	"github.com/l3acucm/urepricer/internal/domain"
)

// Bounds carries the effective bounds for one price computation: the
// listing's own, or a business tier's with listing-level fallback.
type Bounds struct {
	Min     *domain.Price
	Max     *domain.Price
	Default *domain.Price
}

// ListingBounds returns the listing-level bounds.
func ListingBounds(l *domain.Listing) Bounds {
	return Bounds{Min: l.MinPrice, Max: l.MaxPrice, Default: l.DefaultPrice}
}

// Clamp applies the bounds sub-engine to a raw price. When raw falls outside
// a bound, the strategy's rule for that bound produces the final price, or a
// skip. The result is re-validated: a rule that lands outside the bounds
// (e.g. MATCH_COMPETITOR with the competitor below min) is refused with
// bounds_violation rather than written.
func Clamp(raw domain.Price, b Bounds, cfg *domain.Strategy, competitor *domain.Price) (domain.Price, error) {
	final := raw
	switch {
	case b.Max != nil && raw > *b.Max:
		f, err := applyRule(cfg.MaxPriceRule, b, competitor, domain.SkipAboveMaxNoAction)
		if err != nil {
			return 0, err
		}
		final = f
	case b.Min != nil && raw < *b.Min:
		f, err := applyRule(cfg.MinPriceRule, b, competitor, domain.SkipBelowMinNoAction)
		if err != nil {
			return 0, err
		}
		final = f
	}

	if (b.Min != nil && final < *b.Min) || (b.Max != nil && final > *b.Max) {
		return 0, domain.Skipf(domain.SkipBoundsViolation,
			"calculated=%s min=%s max=%s", final, fmtBound(b.Min), fmtBound(b.Max))
	}
	return final, nil
}

// applyRule maps one bounds rule to its replacement price. Rules whose
// required input is missing are bounds violations; DO_NOTHING skips with the
// bound-specific reason.
func applyRule(rule domain.BoundsRule, b Bounds, competitor *domain.Price, doNothingReason string) (domain.Price, error) {
	switch rule {
	case domain.RuleJumpToMin:
		if b.Min == nil {
			return 0, domain.Skipf(domain.SkipBoundsViolation, "JUMP_TO_MIN with no min price")
		}
		return *b.Min, nil

	case domain.RuleJumpToMax:
		if b.Max == nil {
			return 0, domain.Skipf(domain.SkipBoundsViolation, "JUMP_TO_MAX with no max price")
		}
		return *b.Max, nil

	case domain.RuleJumpToAvg:
		if b.Min == nil || b.Max == nil {
			return 0, domain.Skipf(domain.SkipBoundsViolation, "JUMP_TO_AVG with incomplete bounds")
		}
		return domain.Mid(*b.Min, *b.Max), nil

	case domain.RuleDefaultPrice:
		if b.Default == nil {
			return 0, domain.Skipf(domain.SkipBoundsViolation, "DEFAULT_PRICE with no default configured")
		}
		return *b.Default, nil

	case domain.RuleMatchCompetitor:
		if competitor == nil {
			return 0, domain.Skipf(domain.SkipBoundsViolation, "MATCH_COMPETITOR with no competitor")
		}
		return *competitor, nil

	case domain.RuleDoNothing:
		return 0, domain.Skip(doNothingReason)

	default:
		return 0, domain.Skipf(domain.SkipBoundsViolation, "unknown bounds rule %q", rule)
	}
}

func fmtBound(p *domain.Price) string {
	if p == nil {
		return "unset"
	}
	return p.String()
}
