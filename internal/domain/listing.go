package domain

import (
	"fmt"
	"time"
)

// FulfillmentChannel identifies who ships an offer.
type FulfillmentChannel string

const (
	FulfillmentAmazon   FulfillmentChannel = "AMAZON"
	FulfillmentMerchant FulfillmentChannel = "MERCHANT"
)

// ListingStatus is the lifecycle state of a product listing.
type ListingStatus string

const (
	ListingActive   ListingStatus = "Active"
	ListingInactive ListingStatus = "Inactive"
)

// B2BTier is a business-buyer price point attached to a minimum purchase
// quantity. Tier-local bounds override the listing-level bounds when set.
type B2BTier struct {
	MinQuantity  int    `json:"min_quantity"`
	Price        Price  `json:"price"`
	MinPrice     *Price `json:"min_price,omitempty"`
	MaxPrice     *Price `json:"max_price,omitempty"`
	DefaultPrice *Price `json:"default_price,omitempty"`
}

// Listing is one seller's product listing, stored as JSON under the hash key
// ASIN_<asin>, field <seller_id>:<sku>. The field names are part of the store
// layout shared with external tooling and must not change.
type Listing struct {
	ASIN               string             `json:"asin"`
	SellerID           string             `json:"seller_id"`
	SKU                string             `json:"sku"`
	ListedPrice        *Price             `json:"listed_price,omitempty"`
	MinPrice           *Price             `json:"min_price,omitempty"`
	MaxPrice           *Price             `json:"max_price,omitempty"`
	DefaultPrice       *Price             `json:"default_price,omitempty"`
	StrategyID         string             `json:"strategy_id,omitempty"`
	ItemCondition      string             `json:"item_condition,omitempty"`
	FulfillmentChannel FulfillmentChannel `json:"fulfillment_channel,omitempty"`
	Status             ListingStatus      `json:"status"`
	Quantity           int                `json:"quantity"`
	IsB2B              bool               `json:"is_b2b,omitempty"`
	Tiers              []B2BTier          `json:"b2b_tiers,omitempty"`
	RepricingPaused    bool               `json:"repricing_paused,omitempty"`
	UpdatedAt          *time.Time         `json:"updated_at,omitempty"`
}

// HasBounds reports whether both price bounds are set.
func (l *Listing) HasBounds() bool {
	return l.MinPrice != nil && l.MaxPrice != nil
}

// Bounds returns the listing-level bounds for a tier, preferring the tier's
// own bounds where set.
func (t B2BTier) Bounds(l *Listing) (min, max, def *Price) {
	min, max, def = l.MinPrice, l.MaxPrice, l.DefaultPrice
	if t.MinPrice != nil {
		min = t.MinPrice
	}
	if t.MaxPrice != nil {
		max = t.MaxPrice
	}
	if t.DefaultPrice != nil {
		def = t.DefaultPrice
	}
	return min, max, def
}

// Validate checks the listing's pricing invariants. Records that fail are
// treated as structurally invalid by the store and never repriced.
func (l *Listing) Validate() error {
	if l.ASIN == "" {
		return fmt.Errorf("listing: missing asin")
	}
	if l.SellerID == "" {
		return fmt.Errorf("listing %s: missing seller_id", l.ASIN)
	}
	if l.SKU == "" {
		return fmt.Errorf("listing %s/%s: missing sku", l.ASIN, l.SellerID)
	}

	for _, p := range []struct {
		name  string
		price *Price
	}{
		{"listed_price", l.ListedPrice},
		{"min_price", l.MinPrice},
		{"max_price", l.MaxPrice},
		{"default_price", l.DefaultPrice},
	} {
		if p.price != nil && *p.price < 0 {
			return fmt.Errorf("listing %s/%s: negative %s %s", l.ASIN, l.SKU, p.name, *p.price)
		}
	}

	if l.HasBounds() && *l.MinPrice > *l.MaxPrice {
		return fmt.Errorf("listing %s/%s: min_price %s above max_price %s",
			l.ASIN, l.SKU, *l.MinPrice, *l.MaxPrice)
	}
	if l.HasBounds() && l.ListedPrice != nil {
		if *l.ListedPrice < *l.MinPrice || *l.ListedPrice > *l.MaxPrice {
			return fmt.Errorf("listing %s/%s: listed_price %s outside bounds [%s, %s]",
				l.ASIN, l.SKU, *l.ListedPrice, *l.MinPrice, *l.MaxPrice)
		}
	}
	if l.HasBounds() && l.DefaultPrice != nil {
		if *l.DefaultPrice < *l.MinPrice || *l.DefaultPrice > *l.MaxPrice {
			return fmt.Errorf("listing %s/%s: default_price %s outside bounds [%s, %s]",
				l.ASIN, l.SKU, *l.DefaultPrice, *l.MinPrice, *l.MaxPrice)
		}
	}

	prevQty := -1
	for i, t := range l.Tiers {
		if t.MinQuantity <= prevQty {
			return fmt.Errorf("listing %s/%s: tier %d min_quantity %d not increasing",
				l.ASIN, l.SKU, i, t.MinQuantity)
		}
		prevQty = t.MinQuantity
		if t.Price < 0 {
			return fmt.Errorf("listing %s/%s: tier %d negative price", l.ASIN, l.SKU, i)
		}
		if t.MinPrice != nil && t.MaxPrice != nil && *t.MinPrice > *t.MaxPrice {
			return fmt.Errorf("listing %s/%s: tier %d min_price above max_price", l.ASIN, l.SKU, i)
		}
	}

	return nil
}
