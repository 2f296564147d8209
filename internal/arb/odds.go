// Package arb implements the two-way cross-bookmaker arbitrage math: odds
// conversion and the pure detection pass over a game's odds snapshot.
package arb

import "math"

// AmericanToDecimal converts a price in American odds notation to its decimal
// odds equivalent. Non-negative prices use the profit-per-100 branch, so a
// price of 0 maps to decimal 1.0.
func AmericanToDecimal(price float64) float64 {
	if price >= 0 {
		return price/100 + 1
	}
	return 100/math.Abs(price) + 1
}

// ImpliedProbability returns the bookmaker-implied chance of an outcome given
// its decimal odds.
func ImpliedProbability(decimal float64) float64 {
	return 1 / decimal
}
