// Package domain defines the repricing engine's core records (listings,
// offer changes, strategies, calculated prices) and the interfaces its
// adapters implement. All types are plain values; no component holds shared
// mutable state across events.
package domain

import "time"

// Source identifies which marketplace produced an offer-change event.
type Source string

const (
	SourceAmazon  Source = "amazon"
	SourceWalmart Source = "walmart"
)

// CompetitorOffer is one visible offer for an ASIN.
type CompetitorOffer struct {
	SellerID           string
	ListingPrice       Price
	LandedPrice        *Price // price incl. shipping; preferred when present
	FulfillmentChannel FulfillmentChannel
	IsBuyBoxWinner     bool
	SubCondition       string
	// QuantityTiers carries the offer's business quantity discounts when the
	// notification includes them; empty for standard offers.
	QuantityTiers []OfferTier
}

// OfferTier is one business quantity price point on a competitor offer.
type OfferTier struct {
	MinQuantity int
	Price       Price
}

// EffectivePrice returns the landed price when present, else the listing price.
func (o CompetitorOffer) EffectivePrice() Price {
	if o.LandedPrice != nil {
		return *o.LandedPrice
	}
	return o.ListingPrice
}

// OfferChange is the canonical record both intake sources normalize into.
// SellerID is empty for Amazon events until listing ownership is resolved
// against the store.
type OfferChange struct {
	EventID         string
	Source          Source
	ASIN            string
	SellerID        string
	Marketplace     string
	ItemCondition   string
	Offers          []CompetitorOffer
	BuyBoxWinnerID  string // empty when the buybox is suppressed
	TotalOffers     int
	LowestByChannel map[FulfillmentChannel]Price
	BuyBoxPrice     *Price
	OccurredAt      time.Time
	ReceivedAt      time.Time
}

// CompetitorsOf returns the offers not owned by sellerID.
func (c *OfferChange) CompetitorsOf(sellerID string) []CompetitorOffer {
	out := make([]CompetitorOffer, 0, len(c.Offers))
	for _, o := range c.Offers {
		if o.SellerID != sellerID {
			out = append(out, o)
		}
	}
	return out
}

// OwnOffer returns our own visible offer, if any.
func (c *OfferChange) OwnOffer(sellerID string) (CompetitorOffer, bool) {
	for _, o := range c.Offers {
		if o.SellerID == sellerID {
			return o, true
		}
	}
	return CompetitorOffer{}, false
}
