// Package policy implements the quality gates that decide whether a
// pipeline iteration needs a revision pass. Evaluate is a pure function
// over the reconciled board: it computes one ratio per gate, compares it
// to the configured threshold, and emits revision requests. Which board
// metric feeds which gate is fixed; every number is configuration.
package policy

import (
	"fmt"

	"github.com/kingrea/courtside/internal/domain"
	"github.com/kingrea/courtside/internal/reconcile"
)

// Thresholds are the gate trigger ratios and the per-record quality
// floors each ratio counts against.
type Thresholds struct {
	// Trigger ratios: a gate fires when its low-quality fraction
	// exceeds the ratio.
	Research   float64 `yaml:"research"`
	Modeling   float64 `yaml:"modeling"`
	Selection  float64 `yaml:"selection"`
	Compliance float64 `yaml:"compliance"`

	// Per-record floors.
	DataQualityFloor float64 `yaml:"data_quality_floor"`
	ConfidenceFloor  float64 `yaml:"confidence_floor"`
	EdgeFloor        float64 `yaml:"edge_floor"`
}

// DefaultThresholds mirrors the operating defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Research:         0.30,
		Modeling:         0.40,
		Selection:        0.50,
		Compliance:       0.50,
		DataQualityFloor: 0.6,
		ConfidenceFloor:  0.5,
		EdgeFloor:        0.05,
	}
}

// Evaluate inspects the iteration's reconciled state and returns a
// revision request per gate that fired. An empty board section skips its
// gate; no gate ever fires on missing data.
func Evaluate(board reconcile.Board, th Thresholds) []domain.RevisionRequest {
	var requests []domain.RevisionRequest

	if n := len(board.Insights); n > 0 {
		low := 0
		for _, ins := range board.Insights {
			if ins.DataQuality < th.DataQualityFloor {
				low++
			}
		}
		if ratio(low, n) > th.Research {
			requests = append(requests, domain.RevisionRequest{
				Stage: domain.ReviseResearch,
				Reason: fmt.Sprintf("%d of %d games have data quality below %.2f; gather more complete statistics and injury data",
					low, n, th.DataQualityFloor),
				Priority: "high",
			})
		}
	}

	if n := len(board.Predictions); n > 0 {
		low := 0
		for _, pred := range board.Predictions {
			if pred.Confidence < th.ConfidenceFloor {
				low++
			}
		}
		if ratio(low, n) > th.Modeling {
			requests = append(requests, domain.RevisionRequest{
				Stage: domain.ReviseModeling,
				Reason: fmt.Sprintf("%d of %d predictions fall below the %.2f confidence floor; review model inputs",
					low, n, th.ConfidenceFloor),
				Priority: "medium",
			})
		}
	}

	if n := len(board.Picks); n > 0 {
		low := 0
		for _, p := range board.Picks {
			if p.Edge < th.EdgeFloor {
				low++
			}
		}
		if ratio(low, n) > th.Selection {
			requests = append(requests, domain.RevisionRequest{
				Stage: domain.ReviseSelection,
				Reason: fmt.Sprintf("%d of %d picks carry an edge below %.2f; keep only the strongest opportunities",
					low, n, th.EdgeFloor),
				Priority: "high",
			})
		}
	}

	if n := len(board.Compliance); n > 0 {
		rejected := 0
		for _, r := range board.Compliance {
			if !r.Approved() {
				rejected++
			}
		}
		if ratio(rejected, n) > th.Compliance {
			requests = append(requests, domain.RevisionRequest{
				Stage: domain.ReviseCompliance,
				Reason: fmt.Sprintf("compliance rejected %d of %d picks; revisit the card before resubmitting",
					rejected, n),
				Priority: "medium",
			})
		}
	}

	return requests
}

// EarliestStage returns the re-entry point for a set of revision requests:
// the earliest named stage, since everything downstream re-runs anyway.
func EarliestStage(requests []domain.RevisionRequest) (domain.RevisionStage, bool) {
	if len(requests) == 0 {
		return "", false
	}
	earliest := requests[0].Stage
	for _, req := range requests[1:] {
		if req.Stage.Earlier(earliest) {
			earliest = req.Stage
		}
	}
	return earliest, true
}

func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
