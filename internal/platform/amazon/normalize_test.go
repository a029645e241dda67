package amazon

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3acucm/urepricer/internal/domain"
)

const sampleNotification = `{
	"NotificationVersion": "1.0",
	"NotificationType": "ANY_OFFER_CHANGED",
	"PayloadVersion": "1.0",
	"EventTime": "2024-03-01T12:00:30Z",
	"Payload": {
		"AnyOfferChangedNotification": {
			"SellerId": "A1SELLER",
			"OfferChangeTrigger": {
				"MarketplaceId": "ATVPDKIKX0DER",
				"ASIN": "B00X1",
				"ItemCondition": "New",
				"TimeOfOfferChange": "2024-03-01T12:00:00Z",
				"OfferChangeType": "External"
			},
			"Summary": {
				"NumberOfOffers": [
					{"Condition": "new", "FulfillmentChannel": "Amazon", "OfferCount": 3},
					{"Condition": "new", "FulfillmentChannel": "Merchant", "OfferCount": 4},
					{"Condition": "used", "FulfillmentChannel": "Merchant", "OfferCount": 9}
				],
				"LowestPrices": [
					{
						"Condition": "new",
						"FulfillmentChannel": "Amazon",
						"LandedPrice": {"Amount": 26.49, "CurrencyCode": "USD"},
						"ListingPrice": {"Amount": 24.49, "CurrencyCode": "USD"}
					},
					{
						"Condition": "new",
						"FulfillmentChannel": "Merchant",
						"ListingPrice": {"Amount": 23.99, "CurrencyCode": "USD"}
					}
				],
				"BuyBoxPrices": [
					{
						"Condition": "New",
						"LandedPrice": {"Amount": 26.49, "CurrencyCode": "USD"},
						"ListingPrice": {"Amount": 26.49, "CurrencyCode": "USD"}
					}
				]
			},
			"Offers": [
				{
					"SellerId": "A1RIVAL",
					"SubCondition": "new",
					"ListingPrice": {"Amount": 24.49, "CurrencyCode": "USD"},
					"LandedPrice": {"Amount": 26.49, "CurrencyCode": "USD"},
					"IsFulfilledByAmazon": true,
					"IsBuyBoxWinner": true
				},
				{
					"SellerId": "A1SELLER",
					"SubCondition": "new",
					"ListingPrice": {"Amount": 27.99, "CurrencyCode": "USD"},
					"FulfillmentChannel": "Merchant",
					"IsBuyBoxWinner": false
				}
			]
		}
	}
}`

func TestParseNotification(t *testing.T) {
	received := time.Date(2024, 3, 1, 12, 0, 45, 0, time.UTC)

	change, err := Parse([]byte(sampleNotification), received)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceAmazon, change.Source)
	assert.Equal(t, "B00X1", change.ASIN)
	assert.Empty(t, change.SellerID, "ownership is resolved downstream")
	assert.Equal(t, "US", change.Marketplace)
	assert.Equal(t, "NEW", change.ItemCondition)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), change.OccurredAt)
	assert.Equal(t, received, change.ReceivedAt)

	require.Len(t, change.Offers, 2)
	rival := change.Offers[0]
	assert.Equal(t, "A1RIVAL", rival.SellerID)
	assert.Equal(t, domain.Price(2449), rival.ListingPrice)
	require.NotNil(t, rival.LandedPrice)
	assert.Equal(t, domain.Price(2649), *rival.LandedPrice)
	assert.Equal(t, domain.FulfillmentAmazon, rival.FulfillmentChannel)
	assert.True(t, rival.IsBuyBoxWinner)

	own := change.Offers[1]
	assert.Equal(t, domain.FulfillmentMerchant, own.FulfillmentChannel)
	assert.Nil(t, own.LandedPrice)

	assert.Equal(t, "A1RIVAL", change.BuyBoxWinnerID)
	assert.Equal(t, 7, change.TotalOffers, "used-condition bucket not counted")
	require.NotNil(t, change.BuyBoxPrice)
	assert.Equal(t, domain.Price(2649), *change.BuyBoxPrice)
	assert.Equal(t, domain.Price(2649), change.LowestByChannel[domain.FulfillmentAmazon])
	assert.Equal(t, domain.Price(2399), change.LowestByChannel[domain.FulfillmentMerchant])
}

func TestParseSNSEnvelope(t *testing.T) {
	env, err := json.Marshal(map[string]string{
		"Type":      "Notification",
		"MessageId": "msg-42",
		"Message":   sampleNotification,
	})
	require.NoError(t, err)

	change, err := Parse(env, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "msg-42", change.EventID)
	assert.Equal(t, "B00X1", change.ASIN)
}

func TestParseFlattenedPayload(t *testing.T) {
	// Some relays drop the AnyOfferChangedNotification nesting.
	flat := `{
		"NotificationType": "AnyOfferChanged",
		"Payload": {
			"OfferChangeTrigger": {"MarketplaceId": "A1F83G8C2ARO7P", "ASIN": "B00X2", "ItemCondition": "New"},
			"Offers": [
				{"SellerId": "A1RIVAL", "SubCondition": "new", "ListingPrice": {"Amount": 10.00}, "IsBuyBoxWinner": true}
			]
		}
	}`

	change, err := Parse([]byte(flat), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "B00X2", change.ASIN)
	assert.Equal(t, "UK", change.Marketplace)
	assert.Equal(t, 1, change.TotalOffers, "falls back to visible offer count")
	assert.Nil(t, change.LowestByChannel)
	assert.Nil(t, change.BuyBoxPrice)
}

func TestParseQuantityDiscounts(t *testing.T) {
	payload := `{
		"NotificationType": "ANY_OFFER_CHANGED",
		"Payload": {
			"OfferChangeTrigger": {"ASIN": "B00X3", "ItemCondition": "New"},
			"Offers": [{
				"SellerId": "A1B2B",
				"ListingPrice": {"Amount": 50.00},
				"QuantityDiscountPrices": [
					{"QuantityTier": 5, "QuantityDiscountType": "QUANTITY_DISCOUNT", "ListingPrice": {"Amount": 47.50}},
					{"QuantityTier": 10, "QuantityDiscountType": "QUANTITY_DISCOUNT", "ListingPrice": {"Amount": 45.00}}
				]
			}]
		}
	}`

	change, err := Parse([]byte(payload), time.Now())
	require.NoError(t, err)
	require.Len(t, change.Offers, 1)
	require.Len(t, change.Offers[0].QuantityTiers, 2)
	assert.Equal(t, 5, change.Offers[0].QuantityTiers[0].MinQuantity)
	assert.Equal(t, domain.Price(4750), change.Offers[0].QuantityTiers[0].Price)
}

func TestParseRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "not json",
			body:    `{{`,
			wantErr: "decode",
		},
		{
			name:    "wrong type",
			body:    `{"NotificationType": "FEED_PROCESSING_FINISHED", "Payload": {}}`,
			wantErr: "unexpected notification type",
		},
		{
			name:    "missing asin",
			body:    `{"NotificationType": "ANY_OFFER_CHANGED", "Payload": {"OfferChangeTrigger": {"ItemCondition": "New"}}}`,
			wantErr: "no ASIN",
		},
		{
			name:    "no offers",
			body:    `{"NotificationType": "ANY_OFFER_CHANGED", "Payload": {"OfferChangeTrigger": {"ASIN": "B00X1"}}}`,
			wantErr: "no offers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body), time.Now())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMarketplaceCode(t *testing.T) {
	assert.Equal(t, "US", MarketplaceCode("ATVPDKIKX0DER"))
	assert.Equal(t, "DE", MarketplaceCode("A1PA6795UKMFR9"))
	assert.Equal(t, "US", MarketplaceCode("UNKNOWN"))
}
