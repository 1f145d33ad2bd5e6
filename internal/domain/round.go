package domain

import "github.com/shopspring/decimal"

// Round rounds v half away from zero to the given number of decimal places.
// Rounding goes through a decimal representation so that prices such as 1.23455 round as written.
func Round(v float64, places int) float64 {
	if places < 0 {
		places = 0
	}
	return decimal.NewFromFloat(v).Round(int32(places)).InexactFloat64()
}
