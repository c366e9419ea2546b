package reconcile

import (
	"fmt"
	"time"

	"github.com/kingrea/courtside/internal/contracts"
	"github.com/kingrea/courtside/internal/domain"
	"github.com/kingrea/courtside/internal/oddsmath"
)

// InsightsFromRaw resolves research items against known games. Items whose
// game reference cannot be resolved are dropped and logged, never invented.
func InsightsFromRaw(items []contracts.RawInsight, games []domain.Game, now time.Time) ([]domain.GameInsight, []Unresolved) {
	var (
		out     []domain.GameInsight
		dropped []Unresolved
	)
	for _, item := range items {
		gameID, ok := ResolveGame(item.GameID, games)
		if !ok {
			dropped = append(dropped, Unresolved{
				Stage:   "research",
				Ref:     item.GameID,
				Reason:  "game not resolved",
				Excerpt: excerpt(item.Summary),
			})
			continue
		}
		out = append(out, domain.GameInsight{
			GameID:       gameID,
			Summary:      item.Summary,
			Injuries:     item.Injuries,
			Angles:       item.Angles,
			DataQuality:  item.DataQuality,
			RestDaysHome: item.RestDaysHome,
			RestDaysAway: item.RestDaysAway,
			CreatedAt:    now,
		})
	}
	return out, dropped
}

// PredictionsFromRaw resolves model items and derives the edge for each
// market estimate from the board's quoted lines. An estimate for a market
// with no quoted line keeps probability but zero edge.
func PredictionsFromRaw(items []contracts.RawGameModel, board Board, now time.Time) ([]domain.GamePrediction, []Unresolved) {
	var (
		out     []domain.GamePrediction
		dropped []Unresolved
	)
	for _, item := range items {
		gameID, ok := ResolveGame(item.GameID, board.Games)
		if !ok {
			dropped = append(dropped, Unresolved{
				Stage:  "model",
				Ref:    item.GameID,
				Reason: "game not resolved",
			})
			continue
		}
		pred := domain.GamePrediction{
			GameID:          gameID,
			PredictedSpread: item.PredictedSpread,
			PredictedTotal:  item.PredictedTotal,
			HomeWinProb:     item.HomeWinProb,
			Confidence:      item.Confidence,
			CreatedAt:       now,
		}
		for _, m := range item.Markets {
			market := ParseBetType(m.Market)
			estimate := domain.MarketEstimate{Market: market, Probability: m.Probability}
			if line, ok := board.LineFor(gameID, market); ok {
				if edge, err := oddsmath.Edge(m.Probability, line.Odds); err == nil {
					estimate.Edge = edge
				}
			}
			pred.Markets = append(pred.Markets, estimate)
		}
		out = append(out, pred)
	}
	return out, dropped
}

// PicksFromRaw normalizes candidate picks onto canonical keys. A pick must
// resolve to exactly one known game and one quoted line for its market, or
// it is dropped with a logged mismatch — never silently duplicated or
// fabricated. Spread and total picks additionally require a parseable line
// value; moneyline picks carry none.
func PicksFromRaw(items []contracts.RawPick, board Board, defaultOdds int) ([]domain.Pick, []Unresolved) {
	if defaultOdds == 0 {
		defaultOdds = DefaultOdds
	}
	var (
		out     []domain.Pick
		dropped []Unresolved
	)
	for _, item := range items {
		gameID, ok := ResolveGame(item.GameID, board.Games)
		if !ok {
			dropped = append(dropped, Unresolved{
				Stage:   "pick",
				Ref:     item.GameID,
				Reason:  "game not resolved",
				Excerpt: excerpt(item.Selection),
			})
			continue
		}

		betType := ParseBetType(item.BetType)
		if item.BetType == "" {
			betType = InferBetType(item.Selection)
		}

		line, haveLine := 0.0, false
		if item.Line != nil {
			line, haveLine = *item.Line, true
		} else if v, ok := ExtractLine(item.Selection); ok {
			line, haveLine = v, true
		}
		if !haveLine && betType != domain.BetMoneyline {
			dropped = append(dropped, Unresolved{
				Stage:   "pick",
				Ref:     fmt.Sprintf("%d/%s", gameID, betType),
				Reason:  "no parseable line value",
				Excerpt: excerpt(item.Selection),
			})
			continue
		}
		if betType == domain.BetMoneyline {
			line = 0
		}

		quoted, ok := board.LineFor(gameID, betType)
		if !ok {
			dropped = append(dropped, Unresolved{
				Stage:   "pick",
				Ref:     domain.PickKey{GameID: gameID, BetType: betType, Line: line}.String(),
				Reason:  "no betting line for market",
				Excerpt: excerpt(item.Selection),
			})
			continue
		}

		odds := ParseOdds(item.Odds, defaultOdds)
		book := item.Book
		if book == "" {
			book = quoted.Book
		}
		out = append(out, domain.Pick{
			GameID:     gameID,
			BetType:    betType,
			Line:       line,
			Odds:       odds,
			Book:       book,
			Selection:  item.Selection,
			Edge:       item.EdgeEstimate,
			Confidence: item.Confidence,
			Rationale:  joinRationale(item.Justification),
			BestBet:    item.BestBet,
		})
	}
	return out, dropped
}

// VerdictsFromRaw maps compliance results back onto pick keys. An
// unresolvable game drops the verdict; a key that matches no current pick
// is kept anyway — enrichment is additive, and MergeCompliance records it
// as a new entity.
func VerdictsFromRaw(items []contracts.RawVerdict, board Board) ([]domain.ComplianceResult, []Unresolved) {
	var (
		out     []domain.ComplianceResult
		dropped []Unresolved
	)
	for _, item := range items {
		key, ok := keyFromRef(item.GameID, item.BetType, item.Selection, board)
		if !ok {
			dropped = append(dropped, Unresolved{
				Stage:   "compliance",
				Ref:     item.GameID,
				Reason:  "game not resolved",
				Excerpt: excerpt(item.Selection),
			})
			continue
		}
		out = append(out, domain.ComplianceResult{
			Key:             key,
			Verdict:         domain.ComplianceVerdict(item.Verdict),
			Issues:          item.Issues,
			Recommendations: item.Recommendations,
		})
	}
	return out, dropped
}

// Approval is the approval stage's response reconciled onto pick keys.
type Approval struct {
	Approved         []domain.PickKey
	BestBets         []domain.PickKey
	Rejected         []RejectedKey
	RevisionRequests []domain.RevisionRequest
	Notes            string
}

// RejectedKey pairs a pick key with the approver's stated reason.
type RejectedKey struct {
	Key    domain.PickKey
	Reason string
}

// ApprovalFromRaw resolves the approval response. Pick references that do
// not resolve to a known game are dropped and logged; the controller's
// partition pass decides the fate of picks the approver never mentioned.
func ApprovalFromRaw(resp contracts.ApprovalResponse, board Board) (Approval, []Unresolved) {
	var (
		approval Approval
		dropped  []Unresolved
	)
	approval.Notes = resp.Notes
	for _, ref := range resp.ApprovedPicks {
		key, ok := keyFromRef(ref.GameID, ref.BetType, ref.Selection, board)
		if !ok {
			dropped = append(dropped, Unresolved{
				Stage:   "approve",
				Ref:     ref.GameID,
				Reason:  "approved pick not resolved",
				Excerpt: excerpt(ref.Selection),
			})
			continue
		}
		approval.Approved = append(approval.Approved, key)
		if ref.BestBet {
			approval.BestBets = append(approval.BestBets, key)
		}
	}
	for _, ref := range resp.RejectedPicks {
		key, ok := keyFromRef(ref.GameID, ref.BetType, ref.Selection, board)
		if !ok {
			dropped = append(dropped, Unresolved{
				Stage:   "approve",
				Ref:     ref.GameID,
				Reason:  "rejected pick not resolved",
				Excerpt: excerpt(ref.Selection),
			})
			continue
		}
		approval.Rejected = append(approval.Rejected, RejectedKey{Key: key, Reason: ref.Reason})
	}
	for _, req := range resp.RevisionRequests {
		approval.RevisionRequests = append(approval.RevisionRequests, domain.RevisionRequest{
			Stage:    domain.RevisionStage(req.Stage),
			Reason:   req.Reason,
			Priority: req.Priority,
		})
	}
	return approval, dropped
}

// keyFromRef rebuilds a composite key from the string-keyed reference
// shape every post-pick stage uses.
func keyFromRef(gameRef, betType, selection string, board Board) (domain.PickKey, bool) {
	gameID, ok := ResolveGame(gameRef, board.Games)
	if !ok {
		return domain.PickKey{}, false
	}
	bt := ParseBetType(betType)
	if betType == "" {
		bt = InferBetType(selection)
	}
	line := 0.0
	if bt != domain.BetMoneyline {
		if v, ok := ExtractLine(selection); ok {
			line = v
		}
	}
	return domain.PickKey{GameID: gameID, BetType: bt, Line: line}, true
}

func joinRationale(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " | "
		}
		out += p
	}
	return out
}

// excerpt truncates raw payload text for log lines.
func excerpt(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
