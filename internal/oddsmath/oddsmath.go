// Package oddsmath converts between American odds, decimal odds, and
// implied probabilities.
package oddsmath

import (
	"fmt"
	"math"
)

// AmericanToDecimal converts American odds to decimal odds.
// +150 → 2.50, -150 → 1.67.
func AmericanToDecimal(american int) (float64, error) {
	if american == 0 {
		return 0, fmt.Errorf("oddsmath: american odds cannot be 0")
	}
	if american > 0 {
		return (float64(american) / 100.0) + 1.0, nil
	}
	return (100.0 / float64(-american)) + 1.0, nil
}

// DecimalToAmerican converts decimal odds to American odds.
// 2.50 → +150, 1.67 → -150.
func DecimalToAmerican(decimal float64) (int, error) {
	if decimal <= 1.0 {
		return 0, fmt.Errorf("oddsmath: decimal odds must be > 1.0, got %v", decimal)
	}
	if decimal >= 2.0 {
		return int(math.Round((decimal - 1.0) * 100.0)), nil
	}
	return int(math.Round(-100.0 / (decimal - 1.0))), nil
}

// AmericanToImplied converts American odds to the market-implied win
// probability. -110 → 0.524, +150 → 0.40.
func AmericanToImplied(american int) (float64, error) {
	decimal, err := AmericanToDecimal(american)
	if err != nil {
		return 0, err
	}
	return 1.0 / decimal, nil
}

// ImpliedToAmerican converts a win probability to American odds.
func ImpliedToAmerican(probability float64) (int, error) {
	if probability <= 0 || probability >= 1 {
		return 0, fmt.Errorf("oddsmath: probability must be in (0,1), got %v", probability)
	}
	return DecimalToAmerican(1.0 / probability)
}

// Edge is the model's estimated probability minus the market-implied
// probability for the same outcome.
func Edge(modelProb float64, american int) (float64, error) {
	implied, err := AmericanToImplied(american)
	if err != nil {
		return 0, err
	}
	return modelProb - implied, nil
}
