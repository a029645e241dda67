package strategy

import (
	"log/slog"

	"github.com/l3acucm/urepricer/internal/domain"
)

// computeTiers prices each business tier independently against the selected
// competitor's quantity tiers. Tiers are isolated: one that cannot be priced
// is logged and omitted while the rest still go out, and the standard price
// is computed regardless.
func (c *Computer) computeTiers(in Input, competitor *domain.CompetitorOffer) []domain.TierPrice {
	if competitor == nil || len(competitor.QuantityTiers) == 0 {
		c.log.Debug("no competitor tier data for business listing",
			slog.String("seller_id", in.Listing.SellerID),
			slog.String("sku", in.Listing.SKU))
		return nil
	}

	out := make([]domain.TierPrice, 0, len(in.Listing.Tiers))
	for _, tier := range in.Listing.Tiers {
		tp, err := priceTier(in, tier, competitor.QuantityTiers)
		if err != nil {
			reason := "error"
			if se, ok := domain.AsSkip(err); ok {
				reason = se.Reason
			}
			c.log.Warn("business tier not priced",
				slog.String("seller_id", in.Listing.SellerID),
				slog.String("sku", in.Listing.SKU),
				slog.Int("min_quantity", tier.MinQuantity),
				slog.String("reason", reason),
				slog.Any("error", err))
			continue
		}
		out = append(out, tp)
	}
	return out
}

// priceTier computes one tier's final price: match a competitor tier, apply
// the business price rule, clamp against tier bounds (listing bounds as
// fallback).
func priceTier(in Input, tier domain.B2BTier, compTiers []domain.OfferTier) (domain.TierPrice, error) {
	ct := matchTier(compTiers, tier.MinQuantity, in.Config.B2BCompeteFor)
	if ct == nil {
		return domain.TierPrice{}, domain.Skipf(domain.SkipNoValidCompetitor,
			"no competitor tier for min_quantity %d", tier.MinQuantity)
	}

	var raw domain.Price
	switch in.Config.B2BPriceRule {
	case domain.B2BRuleAverage:
		raw = domain.Mid(tier.Price, ct.Price)
	default: // BEAT_BY when unset
		raw = ct.Price + in.Config.BeatBy
	}

	lo, hi, def := tier.Bounds(in.Listing)
	final, err := Clamp(raw, Bounds{Min: lo, Max: hi, Default: def}, in.Config, domain.PricePtr(ct.Price))
	if err != nil {
		return domain.TierPrice{}, err
	}

	return domain.TierPrice{
		MinQuantity:     tier.MinQuantity,
		NewPrice:        final,
		OldPrice:        domain.PricePtr(tier.Price),
		CompetitorPrice: domain.PricePtr(ct.Price),
	}, nil
}

// matchTier picks the competitor tier per the compete-for mode: LOW takes
// the largest competitor min_quantity at or below ours, HIGH the smallest at
// or above. LOW is the default.
func matchTier(tiers []domain.OfferTier, minQty int, mode domain.B2BCompeteFor) *domain.OfferTier {
	var best *domain.OfferTier
	for i := range tiers {
		t := &tiers[i]
		switch mode {
		case domain.B2BCompeteHigh:
			if t.MinQuantity >= minQty && (best == nil || t.MinQuantity < best.MinQuantity) {
				best = t
			}
		default:
			if t.MinQuantity <= minQty && (best == nil || t.MinQuantity > best.MinQuantity) {
				best = t
			}
		}
	}
	return best
}
