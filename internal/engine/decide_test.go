package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/l3acucm/urepricer/internal/domain"
)

func price(t *testing.T, s string) *domain.Price {
	t.Helper()
	p, err := domain.ParsePrice(s)
	if err != nil {
		t.Fatalf("parse price %q: %v", s, err)
	}
	return &p
}

// eligibleInput builds a state every gate accepts: active listing with
// stock, resolvable strategy, open bounds, and a cheaper competitor.
func eligibleInput(t *testing.T) DecisionInput {
	t.Helper()
	return DecisionInput{
		Change: &domain.OfferChange{
			ASIN:           "X1",
			TotalOffers:    2,
			BuyBoxWinnerID: "S2",
			Offers: []domain.CompetitorOffer{
				{SellerID: "S2", ListingPrice: *price(t, "26.50"), IsBuyBoxWinner: true},
			},
		},
		Listing: &domain.Listing{
			ASIN:        "X1",
			SellerID:    "S1",
			SKU:         "K1",
			ListedPrice: price(t, "29.99"),
			MinPrice:    price(t, "20.00"),
			MaxPrice:    price(t, "50.00"),
			StrategyID:  "2",
			Status:      domain.ListingActive,
			Quantity:    5,
		},
		Strategy: &domain.Strategy{
			ID:           "2",
			CompeteWith:  domain.CompeteLowestPrice,
			MinPriceRule: domain.RuleJumpToMin,
			MaxPriceRule: domain.RuleJumpToMax,
		},
	}
}

func TestDecideGates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DecisionInput)
		want   string
	}{
		{
			name:   "all gates pass",
			mutate: func(in *DecisionInput) {},
			want:   "ok",
		},
		{
			name:   "listing missing",
			mutate: func(in *DecisionInput) { in.Listing = nil },
			want:   domain.SkipProductNotFound,
		},
		{
			name: "inactive wins over later gates",
			mutate: func(in *DecisionInput) {
				in.Listing.Status = domain.ListingInactive
				in.Listing.Quantity = 0
				in.Listing.StrategyID = ""
			},
			want: domain.SkipInactive,
		},
		{
			name:   "repricing paused",
			mutate: func(in *DecisionInput) { in.Listing.RepricingPaused = true },
			want:   domain.SkipPaused,
		},
		{
			name: "reset window open",
			mutate: func(in *DecisionInput) {
				in.InResetWindow = true
				in.Listing.Quantity = 0
			},
			want: domain.SkipResetWindow,
		},
		{
			name:   "no stock",
			mutate: func(in *DecisionInput) { in.Listing.Quantity = 0 },
			want:   domain.SkipOutOfStock,
		},
		{
			name:   "strategy id unset",
			mutate: func(in *DecisionInput) { in.Listing.StrategyID = "" },
			want:   domain.SkipStrategyMissing,
		},
		{
			name:   "strategy not loadable",
			mutate: func(in *DecisionInput) { in.Strategy = nil },
			want:   domain.SkipStrategyMissing,
		},
		{
			name: "inverted bounds",
			mutate: func(in *DecisionInput) {
				in.Listing.MinPrice = price(t, "30.00")
				in.Listing.MaxPrice = price(t, "20.00")
			},
			want: domain.SkipNoPriceRoom,
		},
		{
			name: "equal bounds",
			mutate: func(in *DecisionInput) {
				in.Listing.MinPrice = price(t, "25.00")
				in.Listing.MaxPrice = price(t, "25.00")
			},
			want: domain.SkipNoPriceRoom,
		},
		{
			name: "single bound is fine",
			mutate: func(in *DecisionInput) {
				in.Listing.MaxPrice = nil
			},
			want: "ok",
		},
		{
			name: "we hold the buybox",
			mutate: func(in *DecisionInput) {
				in.Change.BuyBoxWinnerID = "S1"
			},
			want: domain.SkipSelfCompetingBuyBox,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := eligibleInput(t)
			tt.mutate(&in)
			d := Decide(in)
			assert.Equal(t, tt.want, d.Reason)
			assert.Equal(t, tt.want == "ok", d.ShouldReprice)
		})
	}
}

func TestDecideSoleSellerProceedsAsOnlySeller(t *testing.T) {
	in := eligibleInput(t)
	in.Change.BuyBoxWinnerID = ""
	in.Change.Offers = []domain.CompetitorOffer{
		{SellerID: "S1", ListingPrice: *price(t, "29.99")},
	}
	in.Change.TotalOffers = 1

	d := Decide(in)
	assert.True(t, d.ShouldReprice)
	assert.Equal(t, "ok", d.Reason)
}

func TestDecideSelfCompetingLowest(t *testing.T) {
	t.Run("stored price already lowest", func(t *testing.T) {
		in := eligibleInput(t)
		in.Listing.ListedPrice = price(t, "20.00")
		d := Decide(in)
		assert.Equal(t, domain.SkipSelfCompetingLowest, d.Reason)
	})

	t.Run("notification price beats stale stored price", func(t *testing.T) {
		in := eligibleInput(t)
		in.Listing.ListedPrice = price(t, "40.00") // stale
		in.Change.Offers = append(in.Change.Offers, domain.CompetitorOffer{
			SellerID:     "S1",
			ListingPrice: *price(t, "25.00"),
		})
		d := Decide(in)
		assert.Equal(t, domain.SkipSelfCompetingLowest, d.Reason)
	})

	t.Run("price tie still reprices", func(t *testing.T) {
		in := eligibleInput(t)
		in.Listing.ListedPrice = price(t, "26.50")
		d := Decide(in)
		assert.True(t, d.ShouldReprice)
	})
}

func TestDecideSelfCompetingFBALowest(t *testing.T) {
	base := func(t *testing.T) DecisionInput {
		in := eligibleInput(t)
		in.Strategy.CompeteWith = domain.CompeteLowestFBAPrice
		in.Change.Offers = []domain.CompetitorOffer{
			{SellerID: "S2", ListingPrice: *price(t, "18.00"), FulfillmentChannel: domain.FulfillmentMerchant},
			{SellerID: "S3", ListingPrice: *price(t, "26.50"), FulfillmentChannel: domain.FulfillmentAmazon},
		}
		in.Change.BuyBoxWinnerID = "S3"
		return in
	}

	t.Run("lowest fba is ours despite cheaper merchant", func(t *testing.T) {
		in := base(t)
		in.Listing.FulfillmentChannel = domain.FulfillmentAmazon
		in.Listing.ListedPrice = price(t, "24.00")
		d := Decide(in)
		assert.Equal(t, domain.SkipSelfCompetingFBALowest, d.Reason)
	})

	t.Run("merchant listing cannot hold lowest fba", func(t *testing.T) {
		in := base(t)
		in.Listing.FulfillmentChannel = domain.FulfillmentMerchant
		in.Listing.ListedPrice = price(t, "24.00")
		d := Decide(in)
		assert.True(t, d.ShouldReprice)
	})
}
