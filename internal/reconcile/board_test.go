package reconcile

import (
	"testing"
	"time"

	"github.com/kingrea/courtside/internal/domain"
)

func boardWithGames(t *testing.T) Board {
	t.Helper()
	return NewBoard().MergeGames(testGames())
}

func TestMergeGamesFirstRecordWins(t *testing.T) {
	b := boardWithGames(t)
	b = b.MergeGames([]domain.Game{{ID: 42, Home: "Somebody Else"}})
	g, ok := b.Game(42)
	if !ok {
		t.Fatal("game 42 missing after merge")
	}
	if g.Home != "Duke Blue Devils" {
		t.Fatalf("game 42 home = %q, want original record kept", g.Home)
	}
}

func TestMergeLinesFresherQuoteWins(t *testing.T) {
	b := boardWithGames(t)
	old := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	fresh := old.Add(time.Hour)

	b = b.MergeLines([]domain.BettingLine{
		{GameID: 42, Market: domain.BetSpread, Line: -7.5, Odds: -110, Book: "dk", FetchedAt: old},
	})
	b = b.MergeLines([]domain.BettingLine{
		{GameID: 42, Market: domain.BetSpread, Line: -8.0, Odds: -105, Book: "dk", FetchedAt: fresh},
	})
	line, ok := b.LineFor(42, domain.BetSpread)
	if !ok {
		t.Fatal("no spread line for game 42")
	}
	if line.Line != -8.0 || line.Odds != -105 {
		t.Fatalf("got line %.1f at %d, want fresher quote -8.0 at -105", line.Line, line.Odds)
	}

	// A stale re-delivery must not clobber the fresher quote.
	b = b.MergeLines([]domain.BettingLine{
		{GameID: 42, Market: domain.BetSpread, Line: -7.5, Odds: -110, Book: "dk", FetchedAt: old},
	})
	line, _ = b.LineFor(42, domain.BetSpread)
	if line.Line != -8.0 {
		t.Fatalf("stale quote replaced fresh one: line = %.1f", line.Line)
	}
}

func TestMergeLinesUnknownGameDropped(t *testing.T) {
	b := boardWithGames(t)
	b = b.MergeLines([]domain.BettingLine{
		{GameID: 999, Market: domain.BetTotal, Line: 145.5, Book: "fd"},
	})
	if len(b.Lines) != 0 {
		t.Fatalf("line for unknown game was kept: %v", b.Lines)
	}
	if len(b.Unresolved) != 1 || b.Unresolved[0].Stage != "scrape" {
		t.Fatalf("unresolved = %v, want one scrape entry", b.Unresolved)
	}
}

func TestMergePicksIdempotent(t *testing.T) {
	b := boardWithGames(t)
	picks := []domain.Pick{
		{GameID: 42, BetType: domain.BetSpread, Line: 3.5, Odds: -110, Selection: "App State +3.5"},
		{GameID: 43, BetType: domain.BetTotal, Line: 145.5, Odds: -110, Selection: "Over 145.5"},
	}
	once := b.MergePicks(picks)
	twice := once.MergePicks(picks)
	if len(once.Picks) != 2 || len(twice.Picks) != 2 {
		t.Fatalf("pick counts: once=%d twice=%d, want 2 and 2", len(once.Picks), len(twice.Picks))
	}
}

func TestMergePicksEnrichesWithinEpsilon(t *testing.T) {
	b := boardWithGames(t)
	b = b.MergePicks([]domain.Pick{
		{GameID: 42, BetType: domain.BetSpread, Line: 3.5, Odds: -110, Selection: "App State +3.5"},
	})
	// Same key within tolerance: enrich, do not duplicate.
	b = b.MergePicks([]domain.Pick{
		{GameID: 42, BetType: domain.BetSpread, Line: 3.5000001, Edge: 0.07, Confidence: 0.8, BestBet: true},
	})
	if len(b.Picks) != 1 {
		t.Fatalf("got %d picks, want enrichment of the existing one", len(b.Picks))
	}
	p := b.Picks[0]
	if p.Edge != 0.07 || p.Confidence != 0.8 || !p.BestBet {
		t.Fatalf("pick not enriched: %+v", p)
	}
	if p.Selection != "App State +3.5" || p.Odds != -110 {
		t.Fatalf("enrichment clobbered existing fields: %+v", p)
	}
}

func TestMergePicksUnmatchedKeyAddsNewPick(t *testing.T) {
	b := boardWithGames(t)
	b = b.MergePicks([]domain.Pick{
		{GameID: 42, BetType: domain.BetSpread, Line: 3.5},
	})
	// Different line value beyond epsilon is a distinct entity.
	b = b.MergePicks([]domain.Pick{
		{GameID: 42, BetType: domain.BetSpread, Line: 4.5},
	})
	if len(b.Picks) != 2 {
		t.Fatalf("got %d picks, want 2 distinct keys", len(b.Picks))
	}
}

func TestMergePicksMoneylineIgnoresLine(t *testing.T) {
	b := boardWithGames(t)
	b = b.MergePicks([]domain.Pick{
		{GameID: 43, BetType: domain.BetMoneyline, Line: 0, Odds: -240},
	})
	b = b.MergePicks([]domain.Pick{
		{GameID: 43, BetType: domain.BetMoneyline, Line: 1.0, Confidence: 0.9},
	})
	if len(b.Picks) != 1 {
		t.Fatalf("moneyline picks split on line value: %d picks", len(b.Picks))
	}
}

func TestMergeComplianceUpserts(t *testing.T) {
	b := boardWithGames(t)
	key := domain.PickKey{GameID: 42, BetType: domain.BetSpread, Line: 3.5}
	b = b.MergeCompliance([]domain.ComplianceResult{{Key: key, Verdict: domain.VerdictRejected}})
	b = b.MergeCompliance([]domain.ComplianceResult{{Key: key, Verdict: domain.VerdictApproved}})
	if len(b.Compliance) != 1 {
		t.Fatalf("got %d verdicts, want upsert to 1", len(b.Compliance))
	}
	r, ok := b.ComplianceFor(key)
	if !ok || r.Verdict != domain.VerdictApproved {
		t.Fatalf("verdict = %v, want later approved to win", r.Verdict)
	}
}

func TestMergeDoesNotMutateReceiver(t *testing.T) {
	b := boardWithGames(t)
	before := len(b.Picks)
	_ = b.MergePicks([]domain.Pick{{GameID: 42, BetType: domain.BetSpread, Line: 3.5}})
	if len(b.Picks) != before {
		t.Fatal("merge mutated the receiver board")
	}
}

func TestResetIteration(t *testing.T) {
	b := boardWithGames(t)
	now := time.Now()
	b = b.MergeLines([]domain.BettingLine{
		{GameID: 42, Market: domain.BetSpread, Line: -7.5, Book: "dk", FetchedAt: now},
	})
	b = b.MergeInsights([]domain.GameInsight{{GameID: 42, DataQuality: 0.9}})
	b = b.MergePredictions([]domain.GamePrediction{{GameID: 42, Confidence: 0.7}})
	b = b.MergePicks([]domain.Pick{{GameID: 42, BetType: domain.BetSpread, Line: 3.5}})
	b = b.MergeCompliance([]domain.ComplianceResult{{
		Key: domain.PickKey{GameID: 42, BetType: domain.BetSpread, Line: 3.5}, Verdict: domain.VerdictApproved,
	}})

	reset := b.ResetIteration(domain.ReviseModeling)
	if len(reset.Insights) != 1 {
		t.Fatal("modeling re-entry cleared research insights")
	}
	if len(reset.Predictions) != 0 || len(reset.Picks) != 0 || len(reset.Compliance) != 0 {
		t.Fatalf("modeling re-entry kept downstream records: %d predictions, %d picks, %d verdicts",
			len(reset.Predictions), len(reset.Picks), len(reset.Compliance))
	}
	if len(reset.Games) != len(b.Games) || len(reset.Lines) != len(b.Lines) {
		t.Fatal("scraped games or lines lost on reset")
	}

	full := b.ResetIteration(domain.ReviseResearch)
	if len(full.Insights) != 0 {
		t.Fatal("research re-entry kept insights")
	}
}
