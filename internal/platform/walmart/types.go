package walmart

// EventBuyBoxChanged is the only webhook event type the engine reprices on.
const EventBuyBoxChanged = "buybox_changed"

// WebhookPayload is the buybox-changed document Walmart posts to the webhook
// endpoint.
type WebhookPayload struct {
	EventType           string         `json:"eventType"`
	WebhookID           string         `json:"webhookId"`
	ItemID              string         `json:"itemId"`
	SellerID            string         `json:"sellerId"`
	Marketplace         string         `json:"marketplace"`
	Timestamp           string         `json:"timestamp"`
	EventTime           string         `json:"eventTime"`
	CurrentBuyBoxPrice  float64        `json:"currentBuyboxPrice"`
	CurrentBuyBoxWinner string         `json:"currentBuyboxWinner"`
	Offers              []WebhookOffer `json:"offers"`
}

// WebhookOffer is one entry in the payload's offers array.
type WebhookOffer struct {
	SellerID  string  `json:"sellerId"`
	Price     float64 `json:"price"`
	Condition string  `json:"condition"`
}
