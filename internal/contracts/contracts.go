// Package contracts defines the JSON schemas the reasoning service must
// return per stage, and validates responses before any typed record is
// constructed. Invalid shapes never propagate past this boundary.
package contracts

import (
	"encoding/json"
	"fmt"
)

// RawInsight is one game's research payload as the service emits it.
// Game references arrive as strings: numeric IDs, team names, or pair
// strings — the reconciler sorts that out.
type RawInsight struct {
	GameID       string   `json:"game_id"`
	Summary      string   `json:"summary"`
	Injuries     []string `json:"injuries,omitempty"`
	Angles       []string `json:"angles,omitempty"`
	DataQuality  float64  `json:"data_quality"`
	RestDaysHome int      `json:"rest_days_home,omitempty"`
	RestDaysAway int      `json:"rest_days_away,omitempty"`
}

// ResearchResponse is the research stage output schema.
type ResearchResponse struct {
	Insights []RawInsight `json:"insights"`
}

// RawMarket is a per-market probability estimate inside a game model.
type RawMarket struct {
	Market      string  `json:"market"`
	Probability float64 `json:"probability"`
}

// RawGameModel is one game's model output.
type RawGameModel struct {
	GameID          string      `json:"game_id"`
	PredictedSpread float64     `json:"predicted_spread"`
	PredictedTotal  float64     `json:"predicted_total,omitempty"`
	HomeWinProb     float64     `json:"home_win_prob"`
	Confidence      float64     `json:"confidence"`
	Markets         []RawMarket `json:"markets,omitempty"`
}

// ModelResponse is the model stage output schema.
type ModelResponse struct {
	GameModels []RawGameModel `json:"game_models"`
}

// RawPick is a candidate pick as the picker emits it. Odds come as strings
// ("-110", "+150", sometimes "market_unavailable"); Line may be absent when
// the value is embedded in Selection.
type RawPick struct {
	GameID        string   `json:"game_id"`
	BetType       string   `json:"bet_type"`
	Selection     string   `json:"selection"`
	Line          *float64 `json:"line,omitempty"`
	Odds          string   `json:"odds"`
	Book          string   `json:"book,omitempty"`
	EdgeEstimate  float64  `json:"edge_estimate"`
	Confidence    float64  `json:"confidence"`
	Justification []string `json:"justification,omitempty"`
	BestBet       bool     `json:"best_bet,omitempty"`
}

// PickResponse is the pick stage output schema.
type PickResponse struct {
	CandidatePicks []RawPick `json:"candidate_picks"`
}

// RawVerdict is one pick's compliance result.
type RawVerdict struct {
	GameID          string   `json:"game_id"`
	BetType         string   `json:"bet_type"`
	Selection       string   `json:"selection"`
	Verdict         string   `json:"verdict"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ComplianceResponse is the compliance stage output schema.
type ComplianceResponse struct {
	Results []RawVerdict `json:"results"`
}

// RawPickRef references a pick by its composite key components.
type RawPickRef struct {
	GameID    string `json:"game_id"`
	BetType   string `json:"bet_type"`
	Selection string `json:"selection"`
	BestBet   bool   `json:"best_bet,omitempty"`
}

// RawRejection is a pick the approver kept off the card.
type RawRejection struct {
	RawPickRef
	Reason string `json:"reason"`
}

// RawRevision asks for a stage re-run.
type RawRevision struct {
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
	Priority string `json:"priority,omitempty"`
}

// ApprovalResponse is the approval stage output schema.
type ApprovalResponse struct {
	ApprovedPicks    []RawPickRef   `json:"approved_picks"`
	RejectedPicks    []RawRejection `json:"rejected_picks"`
	RevisionRequests []RawRevision  `json:"revision_requests,omitempty"`
	Notes            string         `json:"notes,omitempty"`
}

// Decode unmarshals a raw service response into the given schema.
func Decode(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("contracts: empty response")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("contracts: decode response: %w", err)
	}
	return nil
}
