package reconcile

import (
	"testing"
	"time"

	"github.com/kingrea/courtside/internal/contracts"
	"github.com/kingrea/courtside/internal/domain"
)

func boardWithLines(t *testing.T) Board {
	t.Helper()
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	return boardWithGames(t).MergeLines([]domain.BettingLine{
		{GameID: 42, Market: domain.BetSpread, Line: -3.5, Odds: -110, Book: "dk", FetchedAt: now},
		{GameID: 42, Market: domain.BetMoneyline, Odds: -160, Book: "dk", FetchedAt: now},
		{GameID: 43, Market: domain.BetTotal, Line: 145.5, Odds: -110, Book: "fd", FetchedAt: now},
	})
}

func TestInsightsFromRaw(t *testing.T) {
	now := time.Now()
	insights, dropped := InsightsFromRaw([]contracts.RawInsight{
		{GameID: "App State", Summary: "healthy rotation", DataQuality: 0.8},
		{GameID: "Kentucky", Summary: "not on the slate"},
	}, testGames(), now)

	if len(insights) != 1 {
		t.Fatalf("got %d insights, want 1", len(insights))
	}
	if insights[0].GameID != 42 || insights[0].DataQuality != 0.8 {
		t.Fatalf("insight = %+v", insights[0])
	}
	if len(dropped) != 1 || dropped[0].Ref != "Kentucky" {
		t.Fatalf("dropped = %v, want the unknown game logged", dropped)
	}
}

func TestPredictionsFromRawDerivesEdge(t *testing.T) {
	b := boardWithLines(t)
	preds, dropped := PredictionsFromRaw([]contracts.RawGameModel{
		{
			GameID:      "42",
			HomeWinProb: 0.6,
			Confidence:  0.7,
			Markets: []contracts.RawMarket{
				{Market: "spread", Probability: 0.58},
				{Market: "total", Probability: 0.55},
			},
		},
	}, b, time.Now())

	if len(dropped) != 0 || len(preds) != 1 {
		t.Fatalf("preds=%d dropped=%v", len(preds), dropped)
	}
	var spread, total domain.MarketEstimate
	for _, m := range preds[0].Markets {
		switch m.Market {
		case domain.BetSpread:
			spread = m
		case domain.BetTotal:
			total = m
		}
	}
	// -110 implies 110/210; 0.58 beats it.
	if spread.Edge <= 0 {
		t.Fatalf("spread edge = %v, want positive against -110", spread.Edge)
	}
	// No total line quoted for game 42: probability kept, edge zero.
	if total.Probability != 0.55 || total.Edge != 0 {
		t.Fatalf("total estimate = %+v, want zero edge without a quote", total)
	}
}

func TestPicksFromRaw(t *testing.T) {
	b := boardWithLines(t)
	line := 3.5
	picks, dropped := PicksFromRaw([]contracts.RawPick{
		{GameID: "42", BetType: "spread", Selection: "App State +3.5", Line: &line, Odds: "-110", EdgeEstimate: 0.06},
		{GameID: "42", Selection: "Duke ML", Odds: "-160"},
		{GameID: "Kentucky", BetType: "spread", Selection: "Kentucky -4"},
		{GameID: "42", BetType: "spread", Selection: "App State", Odds: "-110"},
		{GameID: "43", BetType: "total", Selection: "Under 145.5", Odds: "garbage"},
	}, b, 0)

	if len(picks) != 3 {
		t.Fatalf("got %d picks, want 3: %+v", len(picks), picks)
	}
	if len(dropped) != 2 {
		t.Fatalf("got %d dropped, want unknown game and lineless spread: %v", len(dropped), dropped)
	}

	sp := picks[0]
	if sp.Key() != (domain.PickKey{GameID: 42, BetType: domain.BetSpread, Line: 3.5}) {
		t.Fatalf("spread key = %v", sp.Key())
	}
	if sp.Book != "dk" {
		t.Fatalf("book = %q, want filled from quoted line", sp.Book)
	}

	ml := picks[1]
	if ml.BetType != domain.BetMoneyline || ml.Line != 0 {
		t.Fatalf("moneyline pick = %+v, want inferred type and zero line", ml)
	}

	tot := picks[2]
	if tot.Odds != -110 {
		t.Fatalf("odds = %d, want default on unparseable quote", tot.Odds)
	}
	if tot.Line != 145.5 {
		t.Fatalf("line = %v, want extracted from selection", tot.Line)
	}
}

func TestVerdictsFromRaw(t *testing.T) {
	b := boardWithLines(t)
	results, dropped := VerdictsFromRaw([]contracts.RawVerdict{
		{GameID: "42", BetType: "spread", Selection: "App State +3.5", Verdict: "approved"},
		{GameID: "Kentucky", BetType: "spread", Selection: "Kentucky -4", Verdict: "rejected"},
	}, b)

	if len(results) != 1 || len(dropped) != 1 {
		t.Fatalf("results=%d dropped=%d, want 1 and 1", len(results), len(dropped))
	}
	want := domain.PickKey{GameID: 42, BetType: domain.BetSpread, Line: 3.5}
	if results[0].Key != want || !results[0].Approved() {
		t.Fatalf("verdict = %+v", results[0])
	}
}

func TestApprovalFromRaw(t *testing.T) {
	b := boardWithLines(t)
	approval, dropped := ApprovalFromRaw(contracts.ApprovalResponse{
		ApprovedPicks: []contracts.RawPickRef{
			{GameID: "42", BetType: "spread", Selection: "App State +3.5", BestBet: true},
		},
		RejectedPicks: []contracts.RawRejection{
			{RawPickRef: contracts.RawPickRef{GameID: "43", BetType: "total", Selection: "Over 145.5"}, Reason: "edge too thin"},
			{RawPickRef: contracts.RawPickRef{GameID: "Kentucky", Selection: "Kentucky -4"}, Reason: "?"},
		},
		RevisionRequests: []contracts.RawRevision{
			{Stage: "modeling", Reason: "confidence collapsed"},
		},
		Notes: "light card",
	}, b)

	if len(dropped) != 1 {
		t.Fatalf("dropped = %v, want the unknown rejection logged", dropped)
	}
	if len(approval.Approved) != 1 || len(approval.BestBets) != 1 {
		t.Fatalf("approved=%v bestbets=%v", approval.Approved, approval.BestBets)
	}
	if len(approval.Rejected) != 1 || approval.Rejected[0].Reason != "edge too thin" {
		t.Fatalf("rejected = %+v", approval.Rejected)
	}
	if len(approval.RevisionRequests) != 1 || approval.RevisionRequests[0].Stage != domain.ReviseModeling {
		t.Fatalf("revisions = %+v", approval.RevisionRequests)
	}
	if approval.Notes != "light card" {
		t.Fatalf("notes = %q", approval.Notes)
	}
}
