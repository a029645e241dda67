package engine

import (
	"github.com/l3acucm/urepricer/internal/domain"
	"github.com/l3acucm/urepricer/internal/strategy"
)

// DecisionInput is the loaded state the gates evaluate. Listing and Strategy
// are nil when the store had no record for them.
type DecisionInput struct {
	Change        *domain.OfferChange
	Listing       *domain.Listing
	Strategy      *domain.Strategy
	InResetWindow bool
}

// Decide runs the ordered eligibility gates over one listing. The first gate
// that fails produces the decision; later gates are not consulted, so a
// paused listing with no stock always reports "paused".
func Decide(in DecisionInput) domain.Decision {
	l := in.Listing
	if l == nil {
		return skip(domain.SkipProductNotFound)
	}
	if l.Status != domain.ListingActive {
		return skip(domain.SkipInactive)
	}
	if l.RepricingPaused {
		return skip(domain.SkipPaused)
	}
	if in.InResetWindow {
		return skip(domain.SkipResetWindow)
	}
	if l.Quantity <= 0 {
		return skip(domain.SkipOutOfStock)
	}
	if l.StrategyID == "" || in.Strategy == nil {
		return skip(domain.SkipStrategyMissing)
	}
	if l.MinPrice != nil && l.MaxPrice != nil && *l.MinPrice >= *l.MaxPrice {
		// Equal bounds leave no room to move; inverted bounds are a seller
		// configuration error. Both park the listing until fixed.
		return skip(domain.SkipNoPriceRoom)
	}
	if reason := selfCompeting(in); reason != "" {
		return skip(reason)
	}
	return domain.Decision{ShouldReprice: true, Reason: "ok"}
}

func skip(reason string) domain.Decision {
	return domain.Decision{ShouldReprice: false, Reason: reason}
}

// selfCompeting detects the situations where repricing would only compete
// with our own offer: we already hold the buybox, every visible offer is
// ours, or our price is already strictly the lowest the strategy targets.
// A price tie is not self-competition; undercutting a tie is still useful.
func selfCompeting(in DecisionInput) string {
	change, l := in.Change, in.Listing

	if change.BuyBoxWinnerID == l.SellerID {
		return domain.SkipSelfCompetingBuyBox
	}

	if len(change.CompetitorsOf(l.SellerID)) == 0 {
		// Selection routes sole-seller listings down the OnlySeller path,
		// which prices against our own bounds. A competitive pick here
		// would have nothing real to chase.
		sel := strategy.Select(strategy.Input{Change: change, Listing: l, Config: in.Strategy})
		if sel.Name() != strategy.NameOnlySeller {
			return domain.SkipSoleSellerTrivial
		}
	}

	switch in.Strategy.CompeteWith {
	case domain.CompeteLowestPrice:
		if holdsLowest(change, l, false) {
			return domain.SkipSelfCompetingLowest
		}
	case domain.CompeteLowestFBAPrice:
		if holdsLowest(change, l, true) {
			return domain.SkipSelfCompetingFBALowest
		}
	}
	return ""
}

// holdsLowest reports whether our own price is strictly below every
// competing offer, optionally restricted to the AMAZON fulfillment channel.
func holdsLowest(change *domain.OfferChange, l *domain.Listing, fbaOnly bool) bool {
	our, ok := ownPrice(change, l, fbaOnly)
	if !ok {
		return false
	}
	low, ok := lowestCompeting(change, l, fbaOnly)
	if !ok {
		return false
	}
	return our < low
}

// ownPrice prefers our visible offer from the notification over the stored
// listed price; the notification is fresher.
func ownPrice(change *domain.OfferChange, l *domain.Listing, fbaOnly bool) (domain.Price, bool) {
	if own, found := change.OwnOffer(l.SellerID); found {
		if fbaOnly && own.FulfillmentChannel != domain.FulfillmentAmazon {
			return 0, false
		}
		return own.EffectivePrice(), true
	}
	if fbaOnly && l.FulfillmentChannel != domain.FulfillmentAmazon {
		return 0, false
	}
	if l.ListedPrice == nil {
		return 0, false
	}
	return *l.ListedPrice, true
}

func lowestCompeting(change *domain.OfferChange, l *domain.Listing, fbaOnly bool) (domain.Price, bool) {
	var low domain.Price
	found := false
	for _, o := range change.CompetitorsOf(l.SellerID) {
		if fbaOnly && o.FulfillmentChannel != domain.FulfillmentAmazon {
			continue
		}
		if p := o.EffectivePrice(); !found || p < low {
			low, found = p, true
		}
	}
	return low, found
}
