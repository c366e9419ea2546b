// Package kelly sizes a card of picks against the bankroll using a
// fractional Kelly criterion with per-pick and daily exposure limits.
// Everything here is deterministic arithmetic; the sizing stage calls
// Size once per iteration and never mutates the bankroll in place.
package kelly

import (
	"math"

	"github.com/kingrea/courtside/internal/domain"
	"github.com/kingrea/courtside/internal/oddsmath"
)

// Config holds the sizing knobs. Fractions are of current balance.
type Config struct {
	Fraction    float64 `yaml:"fraction"`
	PerPickMax  float64 `yaml:"per_pick_max"`
	MaxExposure float64 `yaml:"max_exposure"`
	MinBalance  float64 `yaml:"min_balance"`
	UnitPercent float64 `yaml:"unit_percent"`
}

// DefaultConfig is quarter Kelly with the standard exposure limits.
func DefaultConfig() Config {
	return Config{
		Fraction:    0.25,
		PerPickMax:  0.05,
		MaxExposure: 0.05,
		MinBalance:  1000,
		UnitPercent: 0.01,
	}
}

// Stake computes the fractional Kelly stake for one bet.
// Full Kelly is (p*b - q) / b with b the net decimal payout; a negative
// result (no edge) stakes zero.
func Stake(winProb float64, odds int, bankroll, fraction float64) float64 {
	decimal, err := oddsmath.AmericanToDecimal(odds)
	if err != nil {
		return 0
	}
	b := decimal - 1
	if b <= 0 {
		return 0
	}
	q := 1 - winProb
	pct := (winProb*b - q) / b * fraction
	if pct <= 0 {
		return 0
	}
	return bankroll * pct
}

// ExpectedValue returns the EV of a stake at the given probability and odds.
func ExpectedValue(winProb float64, odds int, stake float64) float64 {
	decimal, err := oddsmath.AmericanToDecimal(odds)
	if err != nil {
		return 0
	}
	return winProb*stake*(decimal-1) - (1-winProb)*stake
}

// ExposureCap returns the total stake allowed for one run. The cap scales
// with the candidate count so a thin card risks less than a full slate,
// and is recomputed from the balance every run.
func ExposureCap(balance float64, candidates int, cfg Config) float64 {
	if candidates <= 0 || balance <= 0 {
		return 0
	}
	fraction := math.Min(cfg.MaxExposure, float64(candidates)*cfg.PerPickMax/2)
	return balance * fraction
}

// Size allocates stakes across the candidate picks. Below the minimum
// balance floor every pick sizes to zero units; the picks are still
// carried so compliance and approval see the full card.
func Size(picks []domain.Pick, bank domain.BankrollState, cfg Config) []domain.SizedPick {
	out := make([]domain.SizedPick, len(picks))
	for i, p := range picks {
		out[i] = domain.SizedPick{Pick: p}
	}
	if bank.Balance < cfg.MinBalance {
		return out
	}

	unit := bank.UnitSize
	if unit <= 0 {
		unit = bank.Balance * cfg.UnitPercent
	}
	if unit <= 0 {
		return out
	}

	perPickCap := bank.Balance * cfg.PerPickMax
	total := 0.0
	for i, p := range picks {
		implied, err := oddsmath.AmericanToImplied(p.Odds)
		if err != nil {
			continue
		}
		winProb := clamp(implied+p.Edge, 0.05, 0.95)
		stake := Stake(winProb, p.Odds, bank.Balance, cfg.Fraction)
		if stake > perPickCap {
			stake = perPickCap
		}
		out[i].StakeAmount = stake
		total += stake
	}

	// Scale the whole card down proportionally when it breaches the
	// daily exposure cap.
	limit := ExposureCap(bank.Balance, len(picks), cfg)
	if total > limit && total > 0 {
		scale := limit / total
		for i := range out {
			out[i].StakeAmount *= scale
		}
	}

	for i := range out {
		out[i].Units = out[i].StakeAmount / unit
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
