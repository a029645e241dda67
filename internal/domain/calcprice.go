package domain

import "time"

// TierPrice is the calculated price for one B2B quantity tier.
type TierPrice struct {
	MinQuantity     int    `json:"min_quantity"`
	NewPrice        Price  `json:"new_price"`
	OldPrice        *Price `json:"old_price,omitempty"`
	CompetitorPrice *Price `json:"competitor_price,omitempty"`
}

// CalculatedPrice is the repricing output, stored as JSON under the hash key
// CALCULATED_PRICES:<seller_id>, field <sku>. Downstream feed builders read
// this layout; field names must not change. A later write for the same
// (seller, sku) overwrites the previous value.
type CalculatedPrice struct {
	ASIN             string      `json:"asin"`
	SellerID         string      `json:"seller_id"`
	SKU              string      `json:"sku"`
	NewPrice         Price       `json:"new_price"`
	OldPrice         *Price      `json:"old_price,omitempty"`
	StrategyUsed     string      `json:"strategy_used"`
	StrategyID       string      `json:"strategy_id,omitempty"`
	CompetitorPrice  *Price      `json:"competitor_price,omitempty"` // nil for OnlySeller
	PriceChanged     bool        `json:"price_changed"`
	Tiers            []TierPrice `json:"tiers,omitempty"`
	CalculatedAt     time.Time   `json:"calculated_at"`
	ProcessingTimeMs int64       `json:"processing_time_ms,omitempty"`
}
