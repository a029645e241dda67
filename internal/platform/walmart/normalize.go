// Package walmart parses buybox-changed webhook payloads into the engine's
// canonical offer-change record.
package walmart

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/l3acucm/urepricer/internal/domain"
)

// Parse decodes a webhook body into the canonical offer-change record.
// Walmart payloads always name the selling account, so unlike Amazon events
// no ownership resolution is needed downstream.
func Parse(body []byte, receivedAt time.Time) (*domain.OfferChange, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("walmart: decode webhook: %w", err)
	}
	return Normalize(p, receivedAt)
}

// ValidateShape checks the syntactic requirements of a webhook payload: a
// known event type and non-empty item and seller identifiers. The webhook
// endpoints use it to reject malformed requests before enqueueing; full
// normalization happens later in the pipeline.
func ValidateShape(p WebhookPayload) error {
	if p.EventType != "" && p.EventType != EventBuyBoxChanged {
		return fmt.Errorf("walmart: unexpected event type %q", p.EventType)
	}
	if p.ItemID == "" {
		return fmt.Errorf("walmart: webhook has no itemId")
	}
	if p.SellerID == "" {
		return fmt.Errorf("walmart: webhook for %s has no sellerId", p.ItemID)
	}
	return nil
}

// Normalize converts an already-decoded payload. Split out from Parse so the
// batch endpoint can validate each element before committing the whole batch.
func Normalize(p WebhookPayload, receivedAt time.Time) (*domain.OfferChange, error) {
	if err := ValidateShape(p); err != nil {
		return nil, err
	}

	marketplace := p.Marketplace
	if marketplace == "" {
		marketplace = "US"
	}

	change := &domain.OfferChange{
		EventID:       p.WebhookID,
		Source:        domain.SourceWalmart,
		ASIN:          p.ItemID,
		SellerID:      p.SellerID,
		Marketplace:   marketplace,
		ItemCondition: "NEW",
		OccurredAt:    parseEventTime(p.EventTime, p.Timestamp, receivedAt),
		ReceivedAt:    receivedAt,
	}

	for _, off := range p.Offers {
		if off.SellerID == "" || off.Price <= 0 {
			continue
		}
		condition := strings.ToUpper(off.Condition)
		if condition == "" {
			condition = "NEW"
		}
		change.Offers = append(change.Offers, domain.CompetitorOffer{
			SellerID:           off.SellerID,
			ListingPrice:       domain.PriceFromFloat(off.Price),
			FulfillmentChannel: domain.FulfillmentMerchant,
			IsBuyBoxWinner:     off.SellerID == p.CurrentBuyBoxWinner,
			SubCondition:       condition,
		})
	}

	// Thin payloads sometimes carry only the buybox fields; synthesize the
	// winning offer so the strategies still have a competitor to look at.
	if len(change.Offers) == 0 && p.CurrentBuyBoxWinner != "" && p.CurrentBuyBoxPrice > 0 {
		change.Offers = append(change.Offers, domain.CompetitorOffer{
			SellerID:           p.CurrentBuyBoxWinner,
			ListingPrice:       domain.PriceFromFloat(p.CurrentBuyBoxPrice),
			FulfillmentChannel: domain.FulfillmentMerchant,
			IsBuyBoxWinner:     true,
			SubCondition:       "NEW",
		})
	}
	if len(change.Offers) == 0 {
		return nil, fmt.Errorf("walmart: webhook for %s has no offers", p.ItemID)
	}

	change.BuyBoxWinnerID = p.CurrentBuyBoxWinner
	change.TotalOffers = len(change.Offers)
	if p.CurrentBuyBoxPrice > 0 {
		change.BuyBoxPrice = domain.PricePtr(domain.PriceFromFloat(p.CurrentBuyBoxPrice))
	}

	return change, nil
}

func parseEventTime(eventTime, timestamp string, fallback time.Time) time.Time {
	for _, s := range []string{eventTime, timestamp} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return fallback
}
