// Package strategy implements the pricing strategies (ChaseBuyBox,
// MaximiseProfit, OnlySeller), competitor targeting, the bounds clamping
// sub-engine, and business-tier pricing. Everything here is pure price math:
// no I/O, no clocks beyond timestamping the result, no shared state.
package strategy

import (
	"github.com/l3acucm/urepricer/internal/domain"
)

// Strategy names as they appear in the strategy_used field of persisted
// records. External dashboards group on these.
const (
	NameChaseBuyBox    = "ChaseBuyBox"
	NameMaximiseProfit = "MaximiseProfit"
	NameOnlySeller     = "OnlySeller"
	// NamePriceReset marks records written by the reset job rather than a
	// pricer.
	NamePriceReset = "PRICE_RESET"
)

// Input bundles everything one price computation needs. All fields are
// required; Config is the listing's resolved strategy configuration.
type Input struct {
	Change  *domain.OfferChange
	Listing *domain.Listing
	Config  *domain.Strategy
}

// Pricer is the contract shared by the three strategies. They differ only in
// how they target a competitor and derive the raw price; clamping and tier
// pricing are common.
type Pricer interface {
	Name() string
	// SelectCompetitor picks the offer to compete against, or nil when the
	// strategy needs none. It returns a skip error when targeting fails.
	SelectCompetitor(in Input) (*domain.CompetitorOffer, error)
	// ComputeRaw derives the unclamped price in cents.
	ComputeRaw(in Input, competitor *domain.CompetitorOffer) (domain.Price, error)
}

// Select picks the strategy variant for one accepted event:
//
//   - OnlySeller when no competing offer is visible or the ASIN has at most
//     one offer in total
//   - MaximiseProfit when we hold the buybox on a non-business listing
//   - ChaseBuyBox otherwise
func Select(in Input) Pricer {
	if len(in.Change.CompetitorsOf(in.Listing.SellerID)) == 0 || in.Change.TotalOffers <= 1 {
		return OnlySeller{}
	}
	if in.Change.BuyBoxWinnerID == in.Listing.SellerID && !in.Listing.IsB2B {
		return MaximiseProfit{}
	}
	return ChaseBuyBox{}
}

// Names returns the strategy names in selection-independent, sorted order.
func Names() []string {
	return []string{NameChaseBuyBox, NameMaximiseProfit, NameOnlySeller}
}
