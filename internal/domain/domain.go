// Package domain defines the canonical records a pipeline run operates on.
// Stage adapters produce loosely-typed JSON; the reconcile package maps it
// onto these types, and everything downstream works with them only.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// BetType enumerates the supported bet markets.
type BetType string

const (
	BetSpread    BetType = "spread"
	BetTotal     BetType = "total"
	BetMoneyline BetType = "moneyline"
)

// Valid reports whether the bet type is one of the supported markets.
func (b BetType) Valid() bool {
	switch b {
	case BetSpread, BetTotal, BetMoneyline:
		return true
	}
	return false
}

// GameStatus tracks a game's lifecycle.
type GameStatus string

const (
	GameScheduled GameStatus = "scheduled"
	GameFinal     GameStatus = "final"
	GamePostponed GameStatus = "postponed"
)

// Game is a scheduled matchup. Immutable once scraped for a given date.
type Game struct {
	ID     int64      `json:"id"`
	Home   string     `json:"home"`
	Away   string     `json:"away"`
	Date   time.Time  `json:"date"`
	Venue  string     `json:"venue,omitempty"`
	Status GameStatus `json:"status"`
}

// Teams returns "Away @ Home" for logging and prompts.
func (g Game) Teams() string {
	return fmt.Sprintf("%s @ %s", g.Away, g.Home)
}

// LineKey uniquely identifies a betting line within a run.
type LineKey struct {
	GameID int64
	Market BetType
	Book   string
}

// BettingLine is one market quote for a game at one sportsbook.
type BettingLine struct {
	GameID    int64     `json:"game_id"`
	Market    BetType   `json:"market"`
	Line      float64   `json:"line"`
	Odds      int       `json:"odds"`
	Book      string    `json:"book"`
	Team      string    `json:"team,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Key returns the (game, market, book) identity of the line.
func (l BettingLine) Key() LineKey {
	return LineKey{GameID: l.GameID, Market: l.Market, Book: strings.ToLower(l.Book)}
}

// GameInsight is the research payload for one game. DataQuality in [0,1]
// feeds the revision policy's research gate.
type GameInsight struct {
	GameID       int64     `json:"game_id"`
	Summary      string    `json:"summary"`
	Injuries     []string  `json:"injuries,omitempty"`
	Angles       []string  `json:"angles,omitempty"`
	DataQuality  float64   `json:"data_quality"`
	RestDaysHome int       `json:"rest_days_home,omitempty"`
	RestDaysAway int       `json:"rest_days_away,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MarketEstimate is the model's view of one market on a game.
type MarketEstimate struct {
	Market      BetType `json:"market"`
	Probability float64 `json:"probability"`
	Edge        float64 `json:"edge"`
}

// GamePrediction is the model stage output for one game: estimated
// probabilities per market plus the derived edge against the quoted line.
type GamePrediction struct {
	GameID          int64            `json:"game_id"`
	PredictedSpread float64          `json:"predicted_spread"`
	PredictedTotal  float64          `json:"predicted_total,omitempty"`
	HomeWinProb     float64          `json:"home_win_prob"`
	Markets         []MarketEstimate `json:"markets,omitempty"`
	Confidence      float64          `json:"confidence"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Pick is a proposed bet. Its PickKey correlates the record across every
// later stage output.
type Pick struct {
	GameID     int64   `json:"game_id"`
	BetType    BetType `json:"bet_type"`
	Line       float64 `json:"line"`
	Odds       int     `json:"odds"`
	Book       string  `json:"book"`
	Selection  string  `json:"selection"`
	Edge       float64 `json:"edge"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	BestBet    bool    `json:"best_bet,omitempty"`
}

// Key returns the composite key used for cross-stage matching.
func (p Pick) Key() PickKey {
	return PickKey{GameID: p.GameID, BetType: p.BetType, Line: p.Line}
}

// SizedPick augments a Pick with a stake. Units of zero means "do not bet";
// it is still carried so compliance and approval can see the full card.
type SizedPick struct {
	Pick
	Units       float64 `json:"units"`
	StakeAmount float64 `json:"stake_amount"`
}

// ComplianceVerdict enumerates compliance outcomes for one pick.
type ComplianceVerdict string

const (
	VerdictApproved    ComplianceVerdict = "approved"
	VerdictWithWarning ComplianceVerdict = "approved_with_warning"
	VerdictRejected    ComplianceVerdict = "rejected"
)

// ComplianceResult is the compliance stage verdict for one pick key.
type ComplianceResult struct {
	Key             PickKey           `json:"key"`
	Verdict         ComplianceVerdict `json:"verdict"`
	Issues          []string          `json:"issues,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
}

// Approved reports whether the pick may go on the card.
func (r ComplianceResult) Approved() bool {
	return r.Verdict == VerdictApproved || r.Verdict == VerdictWithWarning
}

// RevisionStage names a pipeline stage a revision request can target,
// ordered so the controller can re-enter at the earliest one.
type RevisionStage string

const (
	ReviseResearch   RevisionStage = "research"
	ReviseModeling   RevisionStage = "modeling"
	ReviseSelection  RevisionStage = "selection"
	ReviseCompliance RevisionStage = "compliance"
)

// revisionOrder maps stages to pipeline order for earliest-stage selection.
var revisionOrder = map[RevisionStage]int{
	ReviseResearch:   0,
	ReviseModeling:   1,
	ReviseSelection:  2,
	ReviseCompliance: 3,
}

// Earlier reports whether s comes before other in pipeline order. Unknown
// stages sort last so a malformed request never wins the re-entry point.
func (s RevisionStage) Earlier(other RevisionStage) bool {
	si, ok := revisionOrder[s]
	if !ok {
		return false
	}
	oi, ok := revisionOrder[other]
	if !ok {
		return true
	}
	return si < oi
}

// RevisionRequest asks the controller to redo a stage.
type RevisionRequest struct {
	Stage    RevisionStage `json:"stage"`
	Reason   string        `json:"reason"`
	Priority string        `json:"priority,omitempty"`
}

// RejectedPick records why a pick was kept off the card.
type RejectedPick struct {
	Pick   SizedPick `json:"pick"`
	Reason string    `json:"reason"`
}

// CardReview is the terminal artifact of one pipeline run. Approved and
// Rejected partition every pick seen in the final iteration: no pick is
// dropped without appearing in exactly one of the two lists.
type CardReview struct {
	RunID            string            `json:"run_id"`
	Date             time.Time         `json:"date"`
	Approved         []SizedPick       `json:"approved"`
	Rejected         []RejectedPick    `json:"rejected"`
	RevisionRequests []RevisionRequest `json:"revision_requests,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	Iterations       int               `json:"iterations"`
	Err              string            `json:"error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// RiskMode selects how aggressively the sizing stage stakes.
type RiskMode string

const (
	RiskConservative RiskMode = "conservative"
	RiskStandard     RiskMode = "standard"
	RiskAggressive   RiskMode = "aggressive"
)

// BankrollState is the bankroll snapshot a run starts from. The sizing stage
// returns a derived copy; nothing mutates it in place.
type BankrollState struct {
	Balance  float64   `json:"balance"`
	UnitSize float64   `json:"unit_size"`
	Mode     RiskMode  `json:"mode"`
	AsOf     time.Time `json:"as_of"`
}
