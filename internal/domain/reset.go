package domain

import "time"

// ResetRule is a per-(seller, marketplace) nightly price-reset window, stored
// as a flat hash under reset_rules.<seller>:<marketplace>. While the window
// is open, competitive repricing for the seller is suspended and an hourly
// job resets listed prices.
type ResetRule struct {
	SellerID      string
	Marketplace   string
	ResetAll      bool
	HourStart     int // 0-23, inclusive
	HourEnd       int // 0-23, exclusive
	PriceResetAt  *time.Time
}

// InWindow reports whether t falls inside the reset window. Windows may cross
// midnight (e.g. start 22, end 4).
func (r ResetRule) InWindow(t time.Time) bool {
	h := t.Hour()
	if r.HourStart == r.HourEnd {
		return false
	}
	if r.HourStart < r.HourEnd {
		return h >= r.HourStart && h < r.HourEnd
	}
	return h >= r.HourStart || h < r.HourEnd
}
