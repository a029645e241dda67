package strategy

import (
	"github.com/l3acucm/urepricer/internal/domain"
)

// OnlySeller prices a listing with no visible competition. With nobody to
// chase, the listing moves to its default price, or to the middle of its
// bounds when no default is configured.
type OnlySeller struct{}

// Name returns the strategy identifier.
func (OnlySeller) Name() string { return NameOnlySeller }

// SelectCompetitor returns nil: this strategy needs no competitor.
func (OnlySeller) SelectCompetitor(Input) (*domain.CompetitorOffer, error) {
	return nil, nil
}

// ComputeRaw returns the default price when set, else the midpoint of the
// listing bounds when both are set, else skips with no_default.
func (OnlySeller) ComputeRaw(in Input, _ *domain.CompetitorOffer) (domain.Price, error) {
	l := in.Listing
	if l.DefaultPrice != nil {
		return *l.DefaultPrice, nil
	}
	if l.MinPrice != nil && l.MaxPrice != nil {
		return domain.Mid(*l.MinPrice, *l.MaxPrice), nil
	}
	return 0, domain.Skipf(domain.SkipNoDefault, "no default price and bounds incomplete for %s/%s", l.SellerID, l.SKU)
}
