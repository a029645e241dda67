// Package amazon parses SP-API ANY_OFFER_CHANGED notifications, delivered
// over SQS with or without an SNS envelope, into the engine's canonical
// offer-change record.
package amazon

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/l3acucm/urepricer/internal/domain"
)

// marketplaceCodes maps Amazon marketplace IDs to the two-letter codes the
// reset-rule and listing records are keyed by.
var marketplaceCodes = map[string]string{
	"ATVPDKIKX0DER":  "US",
	"A2EUQ1WTGCTBG2": "CA",
	"A1AM78C64UM0Y8": "MX",
	"A2Q3Y263D00KWC": "BR",
	"A1F83G8C2ARO7P": "UK",
	"A1PA6795UKMFR9": "DE",
	"A13V1IB3VIYZZH": "FR",
	"APJ6JRA9NG5V4":  "IT",
	"A1RKKUPIHCS9HS": "ES",
	"A1805IZSGTT6HS": "NL",
	"A1C3SOZRARQ6R3": "PL",
	"A33AVAJ2PDY3EV": "TR",
	"A2VIGQ35RCS4UG": "AE",
	"A17E79C6D8DWNP": "SA",
	"ARBP9OOSHTCHU":  "EG",
	"A21TJRUUN4KGV":  "IN",
	"A19VAU5U5O7RUS": "SG",
	"A39IBJ37TRP1C6": "AU",
}

// MarketplaceCode translates an Amazon marketplace ID such as
// "ATVPDKIKX0DER" to its country code, defaulting to US for unknown IDs.
func MarketplaceCode(marketplaceID string) string {
	if code, ok := marketplaceCodes[marketplaceID]; ok {
		return code
	}
	return "US"
}

// Parse decodes a raw queue message into the canonical offer-change record.
// An SNS envelope (Type "Notification" carrying the real document as a JSON
// string in Message) is unwrapped transparently. The returned record has no
// seller; ownership is resolved downstream against the listing store.
func Parse(body []byte, receivedAt time.Time) (*domain.OfferChange, error) {
	eventID := ""

	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Type == "Notification" && env.Message != "" {
		body = []byte(env.Message)
		eventID = env.MessageID
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("amazon: decode notification: %w", err)
	}
	if !isAnyOfferChanged(n.NotificationType) {
		return nil, fmt.Errorf("amazon: unexpected notification type %q", n.NotificationType)
	}

	nb := n.Payload.Body()
	trigger := nb.OfferChangeTrigger
	if trigger.ASIN == "" {
		return nil, fmt.Errorf("amazon: notification has no ASIN")
	}
	if len(nb.Offers) == 0 {
		return nil, fmt.Errorf("amazon: notification for %s has no offers", trigger.ASIN)
	}

	change := &domain.OfferChange{
		EventID:       eventID,
		Source:        domain.SourceAmazon,
		ASIN:          trigger.ASIN,
		Marketplace:   MarketplaceCode(trigger.MarketplaceID),
		ItemCondition: strings.ToUpper(trigger.ItemCondition),
		Offers:        make([]domain.CompetitorOffer, 0, len(nb.Offers)),
		OccurredAt:    parseEventTime(trigger.TimeOfOfferChange, n.EventTime, receivedAt),
		ReceivedAt:    receivedAt,
	}

	for _, off := range nb.Offers {
		co := domain.CompetitorOffer{
			SellerID:           off.SellerID,
			ListingPrice:       domain.PriceFromFloat(off.ListingPrice.Amount),
			FulfillmentChannel: channelOf(off),
			IsBuyBoxWinner:     off.IsBuyBoxWinner,
			SubCondition:       off.SubCondition,
		}
		if off.LandedPrice != nil {
			co.LandedPrice = domain.PricePtr(domain.PriceFromFloat(off.LandedPrice.Amount))
		}
		for _, qd := range off.QuantityDiscountPrices {
			co.QuantityTiers = append(co.QuantityTiers, domain.OfferTier{
				MinQuantity: qd.QuantityTier,
				Price:       domain.PriceFromFloat(qd.ListingPrice.Amount),
			})
		}
		change.Offers = append(change.Offers, co)

		if off.IsBuyBoxWinner && change.BuyBoxWinnerID == "" {
			change.BuyBoxWinnerID = off.SellerID
		}
	}

	change.TotalOffers = totalOffers(nb.Summary, len(nb.Offers), trigger.ItemCondition)
	change.LowestByChannel = lowestByChannel(nb.Summary, trigger.ItemCondition)
	change.BuyBoxPrice = buyBoxPrice(nb.Summary, trigger.ItemCondition)

	return change, nil
}

// isAnyOfferChanged accepts both spellings SP-API has used for the type.
func isAnyOfferChanged(t string) bool {
	return strings.EqualFold(strings.ReplaceAll(t, "_", ""), "anyofferchanged")
}

// channelOf prefers the explicit channel field, falling back to the FBA flag.
func channelOf(off Offer) domain.FulfillmentChannel {
	switch strings.ToUpper(off.FulfillmentChannel) {
	case "AMAZON":
		return domain.FulfillmentAmazon
	case "MERCHANT":
		return domain.FulfillmentMerchant
	}
	if off.IsFulfilledByAmazon {
		return domain.FulfillmentAmazon
	}
	return domain.FulfillmentMerchant
}

// totalOffers sums the per-(condition, channel) counts for the triggering
// condition; when the summary carries none the visible offer list stands in.
func totalOffers(s Summary, visible int, condition string) int {
	total := 0
	for _, oc := range s.NumberOfOffers {
		if conditionMatches(oc.Condition, condition) {
			total += oc.OfferCount
		}
	}
	if total == 0 {
		return visible
	}
	return total
}

// lowestByChannel extracts the per-channel floor prices for the triggering
// condition, preferring landed over listing amounts.
func lowestByChannel(s Summary, condition string) map[domain.FulfillmentChannel]domain.Price {
	if len(s.LowestPrices) == 0 {
		return nil
	}
	out := make(map[domain.FulfillmentChannel]domain.Price, 2)
	for _, pp := range s.LowestPrices {
		if !conditionMatches(pp.Condition, condition) {
			continue
		}
		price, ok := pricePointAmount(pp)
		if !ok {
			continue
		}
		ch := domain.FulfillmentMerchant
		if strings.EqualFold(pp.FulfillmentChannel, "Amazon") {
			ch = domain.FulfillmentAmazon
		}
		if cur, seen := out[ch]; !seen || price < cur {
			out[ch] = price
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// buyBoxPrice returns the summary buybox price for the triggering condition,
// or nil when the buybox is suppressed.
func buyBoxPrice(s Summary, condition string) *domain.Price {
	for _, pp := range s.BuyBoxPrices {
		if !conditionMatches(pp.Condition, condition) {
			continue
		}
		if price, ok := pricePointAmount(pp); ok {
			return domain.PricePtr(price)
		}
	}
	return nil
}

func pricePointAmount(pp PricePoint) (domain.Price, bool) {
	if pp.LandedPrice != nil {
		return domain.PriceFromFloat(pp.LandedPrice.Amount), true
	}
	if pp.ListingPrice != nil {
		return domain.PriceFromFloat(pp.ListingPrice.Amount), true
	}
	return 0, false
}

// conditionMatches compares summary and trigger conditions loosely; summary
// entries without a condition apply to everything.
func conditionMatches(entry, trigger string) bool {
	return entry == "" || trigger == "" || strings.EqualFold(entry, trigger)
}

// parseEventTime picks the first parseable timestamp, falling back to the
// receive time.
func parseEventTime(triggerTime, eventTime string, fallback time.Time) time.Time {
	for _, s := range []string{triggerTime, eventTime} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return fallback
}
