package strategy

import (
	"github.com/l3acucm/urepricer/internal/domain"
)

// MaximiseProfit raises our price to match the competitor exactly when we
// already hold the buybox: the buybox is won, so leaving money below the
// next-best offer gains nothing. It never lowers a price.
type MaximiseProfit struct{}

// Name returns the strategy identifier.
func (MaximiseProfit) Name() string { return NameMaximiseProfit }

// SelectCompetitor targets the offer named by the compete-with mode.
func (MaximiseProfit) SelectCompetitor(in Input) (*domain.CompetitorOffer, error) {
	return selectCompetitor(in)
}

// ComputeRaw returns the competitor's price, but only when it sits above our
// current listed price; otherwise matching would be a price cut, and the
// event is skipped as already_cheaper.
func (MaximiseProfit) ComputeRaw(in Input, competitor *domain.CompetitorOffer) (domain.Price, error) {
	if competitor == nil {
		return 0, domain.Skip(domain.SkipNoValidCompetitor)
	}

	var listed domain.Price
	if in.Listing.ListedPrice != nil {
		listed = *in.Listing.ListedPrice
	}

	comp := competitor.EffectivePrice()
	if comp <= listed {
		return 0, domain.Skipf(domain.SkipAlreadyCheaper, "competitor %s not above listed %s", comp, listed)
	}
	return comp, nil
}
