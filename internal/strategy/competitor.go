package strategy

import (
	"strings"

	"github.com/l3acucm/urepricer/internal/domain"
)

// selectCompetitor applies the configured compete-with mode to the event's
// non-own offers. Ties on price break toward the lexicographically smallest
// seller ID so replays of the same event always target the same offer.
func selectCompetitor(in Input) (*domain.CompetitorOffer, error) {
	competitors := in.Change.CompetitorsOf(in.Listing.SellerID)
	if len(competitors) == 0 {
		return nil, domain.Skip(domain.SkipNoValidCompetitor)
	}

	switch in.Config.CompeteWith {
	case domain.CompeteLowestPrice:
		return lowestOffer(competitors), nil

	case domain.CompeteLowestFBAPrice:
		off := lowestChannelOffer(competitors, domain.FulfillmentAmazon, in.Change.ItemCondition)
		if off == nil {
			return nil, domain.Skip(domain.SkipNoFBACompetitor)
		}
		return off, nil

	case domain.CompeteMatchBuyBox:
		for i := range competitors {
			if competitors[i].IsBuyBoxWinner {
				return &competitors[i], nil
			}
		}
		return nil, domain.Skipf(domain.SkipNoValidCompetitor, "no competing buybox offer")

	default:
		return nil, domain.Skipf(domain.SkipNoValidCompetitor, "unknown compete_with %q", in.Config.CompeteWith)
	}
}

// lowestOffer returns the cheapest offer by effective price.
func lowestOffer(offers []domain.CompetitorOffer) *domain.CompetitorOffer {
	best := &offers[0]
	for i := 1; i < len(offers); i++ {
		if cheaper(&offers[i], best) {
			best = &offers[i]
		}
	}
	return best
}

// lowestChannelOffer returns the cheapest offer in the given fulfillment
// channel whose sub-condition matches the event's item condition. Offers
// without a sub-condition are assumed to match.
func lowestChannelOffer(offers []domain.CompetitorOffer, channel domain.FulfillmentChannel, condition string) *domain.CompetitorOffer {
	var best *domain.CompetitorOffer
	for i := range offers {
		o := &offers[i]
		if o.FulfillmentChannel != channel {
			continue
		}
		if condition != "" && o.SubCondition != "" && !strings.EqualFold(o.SubCondition, condition) {
			continue
		}
		if best == nil || cheaper(o, best) {
			best = o
		}
	}
	return best
}

// cheaper orders offers by effective price, then seller ID.
func cheaper(a, b *domain.CompetitorOffer) bool {
	ap, bp := a.EffectivePrice(), b.EffectivePrice()
	if ap != bp {
		return ap < bp
	}
	return a.SellerID < b.SellerID
}
