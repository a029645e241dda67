package amazon

// --------------------------------------------------------------------------
// SP-API ANY_OFFER_CHANGED DTOs
// --------------------------------------------------------------------------

// snsEnvelope is the wrapper SNS adds when a notification is relayed through
// a topic subscription. The real notification sits in Message as a JSON
// string.
type snsEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	TopicArn  string `json:"TopicArn"`
	Message   string `json:"Message"`
	Timestamp string `json:"Timestamp"`
}

// Notification is the top-level ANY_OFFER_CHANGED document.
type Notification struct {
	NotificationVersion string  `json:"NotificationVersion"`
	NotificationType    string  `json:"NotificationType"`
	PayloadVersion      string  `json:"PayloadVersion"`
	EventTime           string  `json:"EventTime"`
	Payload             Payload `json:"Payload"`
}

// Payload carries the notification body. SP-API nests it under
// AnyOfferChangedNotification; some relays flatten the body into the payload
// object itself, so both shapes are accepted.
type Payload struct {
	AnyOfferChangedNotification *NotificationBody `json:"AnyOfferChangedNotification"`
	NotificationBody
}

// Body returns the notification body regardless of nesting.
func (p *Payload) Body() *NotificationBody {
	if p.AnyOfferChangedNotification != nil {
		return p.AnyOfferChangedNotification
	}
	return &p.NotificationBody
}

// NotificationBody holds the trigger, market summary, and the top-20 offers.
type NotificationBody struct {
	SellerID           string             `json:"SellerId"`
	OfferChangeTrigger OfferChangeTrigger `json:"OfferChangeTrigger"`
	Summary            Summary            `json:"Summary"`
	Offers             []Offer            `json:"Offers"`
}

// OfferChangeTrigger identifies the item whose offers changed.
type OfferChangeTrigger struct {
	MarketplaceID     string `json:"MarketplaceId"`
	ASIN              string `json:"ASIN"`
	ItemCondition     string `json:"ItemCondition"`
	TimeOfOfferChange string `json:"TimeOfOfferChange"`
	OfferChangeType   string `json:"OfferChangeType"` // "External", "Internal", "FeaturedOffer"
}

// Summary aggregates per-condition/per-channel market statistics.
type Summary struct {
	NumberOfOffers []OfferCount `json:"NumberOfOffers"`
	LowestPrices   []PricePoint `json:"LowestPrices"`
	BuyBoxPrices   []PricePoint `json:"BuyBoxPrices"`
}

// OfferCount is one (condition, channel) bucket of the total offer count.
type OfferCount struct {
	Condition          string `json:"Condition"`
	FulfillmentChannel string `json:"FulfillmentChannel"` // "Amazon" or "Merchant"
	OfferCount         int    `json:"OfferCount"`
}

// PricePoint is a summary price entry (lowest price or buybox price).
type PricePoint struct {
	Condition          string `json:"Condition"`
	FulfillmentChannel string `json:"FulfillmentChannel,omitempty"`
	LandedPrice        *Money `json:"LandedPrice"`
	ListingPrice       *Money `json:"ListingPrice"`
	Shipping           *Money `json:"Shipping"`
}

// Offer is one visible offer for the ASIN.
type Offer struct {
	SellerID               string             `json:"SellerId"`
	SubCondition           string             `json:"SubCondition"`
	ListingPrice           Money              `json:"ListingPrice"`
	LandedPrice            *Money             `json:"LandedPrice"`
	Shipping               *Money             `json:"Shipping"`
	FulfillmentChannel     string             `json:"FulfillmentChannel"`
	IsFulfilledByAmazon    bool               `json:"IsFulfilledByAmazon"`
	IsBuyBoxWinner         bool               `json:"IsBuyBoxWinner"`
	IsFeaturedMerchant     bool               `json:"IsFeaturedMerchant"`
	QuantityDiscountPrices []QuantityDiscount `json:"QuantityDiscountPrices,omitempty"`
}

// QuantityDiscount is one business-pricing tier on a B2B offer.
type QuantityDiscount struct {
	QuantityTier         int    `json:"QuantityTier"`
	QuantityDiscountType string `json:"QuantityDiscountType"`
	ListingPrice         Money  `json:"ListingPrice"`
}

// Money is an SP-API currency amount.
type Money struct {
	Amount       float64 `json:"Amount"`
	CurrencyCode string  `json:"CurrencyCode"`
}
