package domain

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Price is a monetary amount in cents. Marketplace payloads and the store
// layout carry prices as decimal numbers with two fractional digits; holding
// cents in an integer keeps beat-by arithmetic and bounds comparisons exact.
type Price int64

// priceEpsilon absorbs binary-representation noise so that a payload value of
// 26.485 (stored as 26.48499…) still rounds up to 26.49.
const priceEpsilon = 1e-6

// PriceFromFloat converts a decimal amount to cents, rounding the half cent
// away from zero.
func PriceFromFloat(f float64) Price {
	if f >= 0 {
		return Price(math.Floor(f*100 + 0.5 + priceEpsilon))
	}
	return Price(math.Ceil(f*100 - 0.5 - priceEpsilon))
}

// ParsePrice parses a decimal string such as "26.49" or "-0.01" into cents.
func ParsePrice(s string) (Price, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return PriceFromFloat(f), nil
}

// Float64 returns the decimal value.
func (p Price) Float64() float64 {
	return float64(p) / 100
}

// String formats the amount with exactly two decimals.
func (p Price) String() string {
	v := int64(p)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the price as a plain JSON number with two decimals,
// matching the layout external tooling reads.
func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		return nil
	}
	data = bytes.Trim(data, `"`)
	v, err := ParsePrice(string(data))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Mid returns the midpoint of a and b with the half cent rounded up.
func Mid(a, b Price) Price {
	sum := int64(a) + int64(b)
	if sum >= 0 {
		return Price((sum + 1) / 2)
	}
	return Price(-((-sum + 1) / 2))
}

// PricePtr returns a pointer to p; convenient for optional fields.
func PricePtr(p Price) *Price {
	return &p
}
