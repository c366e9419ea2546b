// Package reconcile maps loosely-typed stage outputs onto canonical records
// and maintains the merged per-run state. Merging is a pure function over
// (existing board, new records): associative, idempotent, and applied as one
// atomic pass per stage so no reader observes a half-merged picture.
package reconcile

import (
	"strconv"

	"github.com/kingrea/courtside/internal/domain"
)

// Unresolved records a stage output item the reconciler dropped, with
// enough context to diagnose the mismatch without crashing the run.
type Unresolved struct {
	Stage   string `json:"stage"`
	Ref     string `json:"ref"`
	Reason  string `json:"reason"`
	Excerpt string `json:"excerpt,omitempty"`
}

// Board is the canonical state of one pipeline run: everything the stages
// have produced, keyed for cross-stage matching.
type Board struct {
	Games       []domain.Game
	Lines       map[domain.LineKey]domain.BettingLine
	Insights    map[int64]domain.GameInsight
	Predictions map[int64]domain.GamePrediction
	Picks       []domain.Pick
	Sized       []domain.SizedPick
	Compliance  []domain.ComplianceResult
	Unresolved  []Unresolved

	// Epsilon tolerates line-value drift when matching pick keys.
	Epsilon float64
}

// NewBoard returns an empty board with the default matching tolerance.
func NewBoard() Board {
	return Board{
		Lines:       map[domain.LineKey]domain.BettingLine{},
		Insights:    map[int64]domain.GameInsight{},
		Predictions: map[int64]domain.GamePrediction{},
		Epsilon:     domain.DefaultLineEpsilon,
	}
}

// Clone returns a deep copy so merges never alias the previous snapshot.
func (b Board) Clone() Board {
	out := Board{
		Games:       append([]domain.Game(nil), b.Games...),
		Lines:       make(map[domain.LineKey]domain.BettingLine, len(b.Lines)),
		Insights:    make(map[int64]domain.GameInsight, len(b.Insights)),
		Predictions: make(map[int64]domain.GamePrediction, len(b.Predictions)),
		Picks:       append([]domain.Pick(nil), b.Picks...),
		Sized:       append([]domain.SizedPick(nil), b.Sized...),
		Compliance:  append([]domain.ComplianceResult(nil), b.Compliance...),
		Unresolved:  append([]Unresolved(nil), b.Unresolved...),
		Epsilon:     b.Epsilon,
	}
	for k, v := range b.Lines {
		out.Lines[k] = v
	}
	for k, v := range b.Insights {
		out.Insights[k] = v
	}
	for k, v := range b.Predictions {
		out.Predictions[k] = v
	}
	return out
}

// Game looks up a canonical game by ID.
func (b Board) Game(id int64) (domain.Game, bool) {
	for _, g := range b.Games {
		if g.ID == id {
			return g, true
		}
	}
	return domain.Game{}, false
}

// LinesFor returns all betting lines attached to a game.
func (b Board) LinesFor(gameID int64) []domain.BettingLine {
	var out []domain.BettingLine
	for _, line := range b.Lines {
		if line.GameID == gameID {
			out = append(out, line)
		}
	}
	return out
}

// LineFor returns the first line for a game and market, any book.
func (b Board) LineFor(gameID int64, market domain.BetType) (domain.BettingLine, bool) {
	for _, line := range b.Lines {
		if line.GameID == gameID && line.Market == market {
			return line, true
		}
	}
	return domain.BettingLine{}, false
}

// FindPick locates the canonical pick matching key within the board's
// epsilon. At most one canonical pick exists per key per run.
func (b Board) FindPick(key domain.PickKey) (int, bool) {
	for i, p := range b.Picks {
		if p.Key().Match(key, b.Epsilon) {
			return i, true
		}
	}
	return -1, false
}

// MergeGames adds games the board has not seen; known IDs keep their first
// (immutable) record.
func (b Board) MergeGames(games []domain.Game) Board {
	out := b.Clone()
	for _, g := range games {
		if _, ok := out.Game(g.ID); !ok {
			out.Games = append(out.Games, g)
		}
	}
	return out
}

// MergeLines upserts betting lines by (game, market, book). A fresher quote
// for the same key replaces the stale one.
func (b Board) MergeLines(lines []domain.BettingLine) Board {
	out := b.Clone()
	for _, line := range lines {
		if _, ok := out.Game(line.GameID); !ok {
			out.Unresolved = append(out.Unresolved, Unresolved{
				Stage:  "scrape",
				Ref:    line.Key().Book,
				Reason: "line references unknown game",
			})
			continue
		}
		existing, ok := out.Lines[line.Key()]
		if ok && existing.FetchedAt.After(line.FetchedAt) {
			continue
		}
		out.Lines[line.Key()] = line
	}
	return out
}

// MergeInsights replaces insights per game: a revision re-run supersedes the
// earlier attempt wholesale.
func (b Board) MergeInsights(insights []domain.GameInsight) Board {
	out := b.Clone()
	for _, ins := range insights {
		if _, ok := out.Game(ins.GameID); !ok {
			out.Unresolved = append(out.Unresolved, Unresolved{
				Stage:  "research",
				Ref:    formatGameRef(ins.GameID),
				Reason: "insight references unknown game",
			})
			continue
		}
		out.Insights[ins.GameID] = ins
	}
	return out
}

// MergePredictions replaces predictions per game, same policy as insights.
func (b Board) MergePredictions(predictions []domain.GamePrediction) Board {
	out := b.Clone()
	for _, pred := range predictions {
		if _, ok := out.Game(pred.GameID); !ok {
			out.Unresolved = append(out.Unresolved, Unresolved{
				Stage:  "model",
				Ref:    formatGameRef(pred.GameID),
				Reason: "prediction references unknown game",
			})
			continue
		}
		out.Predictions[pred.GameID] = pred
	}
	return out
}

// MergePicks upserts picks by composite key. Re-applying the same stage
// output is a no-op; a matched key enriches the existing pick (non-zero
// fields win) instead of duplicating it. Unmatched keys become new picks —
// enrichment is additive, never required.
func (b Board) MergePicks(picks []domain.Pick) Board {
	out := b.Clone()
	for _, p := range picks {
		idx, ok := out.FindPick(p.Key())
		if !ok {
			out.Picks = append(out.Picks, p)
			continue
		}
		out.Picks[idx] = enrichPick(out.Picks[idx], p)
	}
	return out
}

// MergeSized replaces the sized card for the current iteration. Sizing is
// derived wholesale from the pick set, so partial merges make no sense here.
func (b Board) MergeSized(sized []domain.SizedPick) Board {
	out := b.Clone()
	out.Sized = append([]domain.SizedPick(nil), sized...)
	return out
}

// MergeCompliance upserts verdicts by pick key.
func (b Board) MergeCompliance(results []domain.ComplianceResult) Board {
	out := b.Clone()
	for _, r := range results {
		replaced := false
		for i, existing := range out.Compliance {
			if existing.Key.Match(r.Key, out.Epsilon) {
				out.Compliance[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			out.Compliance = append(out.Compliance, r)
		}
	}
	return out
}

// ComplianceFor returns the verdict recorded for a pick key, if any.
func (b Board) ComplianceFor(key domain.PickKey) (domain.ComplianceResult, bool) {
	for _, r := range b.Compliance {
		if r.Key.Match(key, b.Epsilon) {
			return r, true
		}
	}
	return domain.ComplianceResult{}, false
}

// ResetIteration clears the per-iteration outputs before a revision re-run
// while keeping scraped games and lines, which are immutable for the date.
// Stages at or after the re-entry point regenerate their records; the
// unresolved log is cumulative across iterations.
func (b Board) ResetIteration(from domain.RevisionStage) Board {
	out := b.Clone()
	switch from {
	case domain.ReviseResearch:
		out.Insights = map[int64]domain.GameInsight{}
		fallthrough
	case domain.ReviseModeling:
		out.Predictions = map[int64]domain.GamePrediction{}
		fallthrough
	case domain.ReviseSelection:
		out.Picks = nil
		out.Sized = nil
		fallthrough
	case domain.ReviseCompliance:
		out.Compliance = nil
	}
	return out
}

func enrichPick(existing, incoming domain.Pick) domain.Pick {
	if existing.Odds == 0 && incoming.Odds != 0 {
		existing.Odds = incoming.Odds
	}
	if existing.Book == "" {
		existing.Book = incoming.Book
	}
	if existing.Selection == "" {
		existing.Selection = incoming.Selection
	}
	if incoming.Edge != 0 {
		existing.Edge = incoming.Edge
	}
	if incoming.Confidence != 0 {
		existing.Confidence = incoming.Confidence
	}
	if incoming.Rationale != "" {
		existing.Rationale = incoming.Rationale
	}
	existing.BestBet = existing.BestBet || incoming.BestBet
	return existing
}

func formatGameRef(id int64) string {
	return "game:" + strconv.FormatInt(id, 10)
}
