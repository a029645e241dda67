package strategy

import (
	"log/slog"
	"time"

	"github.com/l3acucm/urepricer/internal/domain"
)

// Computer runs one full price computation: variant selection, competitor
// targeting, raw price, bounds clamping, and business tiers.
type Computer struct {
	log *slog.Logger
	now func() time.Time
}

// NewComputer creates a Computer.
func NewComputer(log *slog.Logger) *Computer {
	return &Computer{
		log: log.With(slog.String("component", "strategy")),
		now: time.Now,
	}
}

// Compute prices one listing against one offer change. Failures are always
// skip errors: price math has nothing a redelivery could fix.
func (c *Computer) Compute(in Input) (*domain.CalculatedPrice, error) {
	p := Select(in)

	competitor, err := p.SelectCompetitor(in)
	if err != nil {
		return nil, err
	}

	raw, err := p.ComputeRaw(in, competitor)
	if err != nil {
		return nil, err
	}

	var compPrice *domain.Price
	if competitor != nil {
		compPrice = domain.PricePtr(competitor.EffectivePrice())
	}

	final, err := Clamp(raw, ListingBounds(in.Listing), in.Config, compPrice)
	if err != nil {
		return nil, err
	}

	l := in.Listing
	rec := &domain.CalculatedPrice{
		ASIN:            l.ASIN,
		SellerID:        l.SellerID,
		SKU:             l.SKU,
		NewPrice:        final,
		OldPrice:        l.ListedPrice,
		StrategyUsed:    p.Name(),
		StrategyID:      in.Config.ID,
		CompetitorPrice: compPrice,
		PriceChanged:    l.ListedPrice == nil || *l.ListedPrice != final,
		CalculatedAt:    c.now().UTC(),
	}

	if l.IsB2B && len(l.Tiers) > 0 {
		rec.Tiers = c.computeTiers(in, competitor)
	}
	return rec, nil
}
