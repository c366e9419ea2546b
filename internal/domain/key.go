package domain

import (
	"fmt"
	"math"
)

// DefaultLineEpsilon tolerates representational drift between stages
// ("+3.5" vs "3.5" vs 3.50) when matching picks by composite key.
const DefaultLineEpsilon = 0.01

// PickKey is the composite key (game, bet type, line value) used to
// correlate a pick across stage outputs.
type PickKey struct {
	GameID  int64   `json:"game_id"`
	BetType BetType `json:"bet_type"`
	Line    float64 `json:"line"`
}

// String renders the key for logs: "42/spread/-3.5".
func (k PickKey) String() string {
	return fmt.Sprintf("%d/%s/%g", k.GameID, k.BetType, k.Line)
}

// Match reports whether two keys identify the same pick. Line values are
// compared within epsilon; moneyline bets carry no line, so any line value
// matches for them.
func (k PickKey) Match(other PickKey, epsilon float64) bool {
	if k.GameID != other.GameID || k.BetType != other.BetType {
		return false
	}
	if k.BetType == BetMoneyline {
		return true
	}
	if epsilon <= 0 {
		epsilon = DefaultLineEpsilon
	}
	return math.Abs(k.Line-other.Line) <= epsilon
}
