// Package money handles integer minor-unit amounts.
package money

import (
	"fmt"
	"math"
	"strings"
)

// PercentOf returns cents × rate / 100 rounded half away from zero to a whole
// cent. rate is a percentage with at most two decimals (e.g. 12.5).
func PercentOf(cents int64, rate float64) int64 {
	basisPoints := int64(math.Round(rate * 100))
	product := cents * basisPoints
	if product >= 0 {
		return (product + 5000) / 10000
	}
	return -((-product + 5000) / 10000)
}

// Format renders cents for humans, e.g. "$12.50" or "12.50 EUR".
func Format(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	value := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	switch strings.ToLower(currency) {
	case "", "usd":
		return sign + "$" + value
	default:
		return sign + value + " " + strings.ToUpper(currency)
	}
}
