package model

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round2 rounds a price to cent precision. Applied immediately after every
// computed price so float drift cannot compound across repeated matches.
func Round2(p float64) float64 {
	return math.Round(p*100) / 100
}

// DecimalFromPrice converts an engine price to its stored form, rounding to
// cents on the way.
func DecimalFromPrice(p float64) decimal.Decimal {
	return decimal.NewFromFloat(Round2(p))
}
