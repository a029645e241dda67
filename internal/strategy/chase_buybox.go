package strategy

import (
	"github.com/l3acucm/urepricer/internal/domain"
)

// ChaseBuyBox prices against the configured competitor with the strategy's
// beat-by offset applied. It is the default competitive strategy whenever
// another seller holds the buybox.
type ChaseBuyBox struct{}

// Name returns the strategy identifier.
func (ChaseBuyBox) Name() string { return NameChaseBuyBox }

// SelectCompetitor targets the offer named by the compete-with mode.
func (ChaseBuyBox) SelectCompetitor(in Input) (*domain.CompetitorOffer, error) {
	return selectCompetitor(in)
}

// ComputeRaw returns competitor price plus beat-by. A negative beat-by
// undercuts, a positive one prices above, zero matches exactly.
func (ChaseBuyBox) ComputeRaw(in Input, competitor *domain.CompetitorOffer) (domain.Price, error) {
	if competitor == nil {
		return 0, domain.Skip(domain.SkipNoValidCompetitor)
	}
	return competitor.EffectivePrice() + in.Config.BeatBy, nil
}
