package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kingrea/courtside/internal/contracts"
	"github.com/kingrea/courtside/internal/domain"
	"github.com/kingrea/courtside/internal/reconcile"
)

// Stages bundles the reasoning stages of one pipeline. All of them share
// the adapter's batching and retry behavior and return whatever subset of
// items survived validation.
type Stages struct {
	adapter     *Adapter
	log         *logrus.Entry
	defaultOdds int
	now         func() time.Time
}

// NewStages wires the stage set.
func NewStages(adapter *Adapter, log *logrus.Entry, defaultOdds int) *Stages {
	return &Stages{adapter: adapter, log: log, defaultOdds: defaultOdds, now: time.Now}
}

type gameBrief struct {
	GameID string `json:"game_id"`
	Home   string `json:"home"`
	Away   string `json:"away"`
	Venue  string `json:"venue,omitempty"`
}

type lineBrief struct {
	Market string  `json:"market"`
	Line   float64 `json:"line,omitempty"`
	Odds   int     `json:"odds"`
	Book   string  `json:"book"`
}

func brief(g domain.Game) gameBrief {
	return gameBrief{
		GameID: fmt.Sprintf("%d", g.ID),
		Home:   g.Home,
		Away:   g.Away,
		Venue:  g.Venue,
	}
}

func briefLines(board reconcile.Board, gameID int64) []lineBrief {
	var out []lineBrief
	for _, line := range board.LinesFor(gameID) {
		out = append(out, lineBrief{
			Market: string(line.Market),
			Line:   line.Line,
			Odds:   line.Odds,
			Book:   line.Book,
		})
	}
	return out
}

// Research gathers qualitative insight per game. Items that fail
// validation or game resolution are dropped and logged; the stage errors
// only when every batch failed.
func (s *Stages) Research(ctx context.Context, date time.Time, board reconcile.Board, feedback string) ([]domain.GameInsight, []reconcile.Unresolved, error) {
	type payload struct {
		Date     string      `json:"date"`
		Games    []gameBrief `json:"games"`
		Feedback string      `json:"revision_feedback,omitempty"`
	}
	var payloads []string
	for _, group := range batch(board.Games, s.adapter.batchSize) {
		games := make([]gameBrief, 0, len(group))
		for _, g := range group {
			games = append(games, brief(g))
		}
		body, err := json.Marshal(payload{Date: date.Format("2006-01-02"), Games: games, Feedback: feedback})
		if err != nil {
			return nil, nil, fmt.Errorf("stage: encode research payload: %w", err)
		}
		payloads = append(payloads, string(body))
	}

	results, err := s.adapter.callBatches(ctx, "research", researchSystem, payloads)
	if err != nil {
		return nil, nil, err
	}

	var raws []contracts.RawInsight
	for _, raw := range results {
		if raw == nil {
			continue
		}
		var resp contracts.ResearchResponse
		if err := contracts.Decode(raw, &resp); err != nil {
			s.logSchemaViolation("research", raw, err)
			continue
		}
		for _, item := range resp.Insights {
			if errs := contracts.ValidateInsight(item); len(errs) > 0 {
				s.logInvalidItem("research", item.GameID, errs)
				continue
			}
			raws = append(raws, item)
		}
	}
	insights, dropped := reconcile.InsightsFromRaw(raws, board.Games, s.now())
	return insights, dropped, nil
}

// Model turns research and lines into per-game predictions.
func (s *Stages) Model(ctx context.Context, board reconcile.Board, feedback string) ([]domain.GamePrediction, []reconcile.Unresolved, error) {
	type gameInput struct {
		gameBrief
		Research string      `json:"research,omitempty"`
		Lines    []lineBrief `json:"lines"`
	}
	type payload struct {
		Games    []gameInput `json:"games"`
		Feedback string      `json:"revision_feedback,omitempty"`
	}
	var payloads []string
	for _, group := range batch(board.Games, s.adapter.batchSize) {
		games := make([]gameInput, 0, len(group))
		for _, g := range group {
			input := gameInput{gameBrief: brief(g), Lines: briefLines(board, g.ID)}
			if ins, ok := board.Insights[g.ID]; ok {
				input.Research = ins.Summary
			}
			games = append(games, input)
		}
		body, err := json.Marshal(payload{Games: games, Feedback: feedback})
		if err != nil {
			return nil, nil, fmt.Errorf("stage: encode model payload: %w", err)
		}
		payloads = append(payloads, string(body))
	}

	results, err := s.adapter.callBatches(ctx, "model", modelSystem, payloads)
	if err != nil {
		return nil, nil, err
	}

	var raws []contracts.RawGameModel
	for _, raw := range results {
		if raw == nil {
			continue
		}
		var resp contracts.ModelResponse
		if err := contracts.Decode(raw, &resp); err != nil {
			s.logSchemaViolation("model", raw, err)
			continue
		}
		for _, item := range resp.GameModels {
			if errs := contracts.ValidateGameModel(item); len(errs) > 0 {
				s.logInvalidItem("model", item.GameID, errs)
				continue
			}
			raws = append(raws, item)
		}
	}
	predictions, dropped := reconcile.PredictionsFromRaw(raws, board, s.now())
	return predictions, dropped, nil
}

// Pick selects candidate bets from the whole modeled slate in one call:
// selection needs the full picture to weigh games against each other.
func (s *Stages) Pick(ctx context.Context, board reconcile.Board, feedback string) ([]domain.Pick, []reconcile.Unresolved, error) {
	type gameInput struct {
		gameBrief
		Prediction *domain.GamePrediction `json:"prediction,omitempty"`
		Lines      []lineBrief            `json:"lines"`
	}
	type payload struct {
		Games    []gameInput `json:"games"`
		Feedback string      `json:"revision_feedback,omitempty"`
	}
	games := make([]gameInput, 0, len(board.Games))
	for _, g := range board.Games {
		input := gameInput{gameBrief: brief(g), Lines: briefLines(board, g.ID)}
		if pred, ok := board.Predictions[g.ID]; ok {
			input.Prediction = &pred
		}
		games = append(games, input)
	}
	body, err := json.Marshal(payload{Games: games, Feedback: feedback})
	if err != nil {
		return nil, nil, fmt.Errorf("stage: encode pick payload: %w", err)
	}

	results, err := s.adapter.callBatches(ctx, "pick", pickSystem, []string{string(body)})
	if err != nil {
		return nil, nil, err
	}

	var raws []contracts.RawPick
	for _, raw := range results {
		if raw == nil {
			continue
		}
		var resp contracts.PickResponse
		if err := contracts.Decode(raw, &resp); err != nil {
			s.logSchemaViolation("pick", raw, err)
			continue
		}
		for _, item := range resp.CandidatePicks {
			if errs := contracts.ValidatePick(item); len(errs) > 0 {
				s.logInvalidItem("pick", item.GameID, errs)
				continue
			}
			raws = append(raws, item)
		}
	}
	picks, dropped := reconcile.PicksFromRaw(raws, board, s.defaultOdds)
	return picks, dropped, nil
}

// Compliance reviews the sized card in batches of picks.
func (s *Stages) Compliance(ctx context.Context, board reconcile.Board) ([]domain.ComplianceResult, []reconcile.Unresolved, error) {
	type pickInput struct {
		GameID    string  `json:"game_id"`
		Matchup   string  `json:"matchup"`
		BetType   string  `json:"bet_type"`
		Selection string  `json:"selection"`
		Odds      int     `json:"odds"`
		Units     float64 `json:"units"`
		Edge      float64 `json:"edge"`
		Rationale string  `json:"rationale,omitempty"`
	}
	type payload struct {
		Picks []pickInput `json:"picks"`
	}
	var payloads []string
	for _, group := range batch(board.Sized, s.adapter.batchSize) {
		picks := make([]pickInput, 0, len(group))
		for _, sp := range group {
			input := pickInput{
				GameID:    fmt.Sprintf("%d", sp.GameID),
				BetType:   string(sp.BetType),
				Selection: sp.Selection,
				Odds:      sp.Odds,
				Units:     sp.Units,
				Edge:      sp.Edge,
				Rationale: sp.Rationale,
			}
			if g, ok := board.Game(sp.GameID); ok {
				input.Matchup = g.Teams()
			}
			picks = append(picks, input)
		}
		body, err := json.Marshal(payload{Picks: picks})
		if err != nil {
			return nil, nil, fmt.Errorf("stage: encode compliance payload: %w", err)
		}
		payloads = append(payloads, string(body))
	}

	results, err := s.adapter.callBatches(ctx, "compliance", complianceSystem, payloads)
	if err != nil {
		return nil, nil, err
	}

	var raws []contracts.RawVerdict
	for _, raw := range results {
		if raw == nil {
			continue
		}
		var resp contracts.ComplianceResponse
		if err := contracts.Decode(raw, &resp); err != nil {
			s.logSchemaViolation("compliance", raw, err)
			continue
		}
		for _, item := range resp.Results {
			if errs := contracts.ValidateVerdict(item); len(errs) > 0 {
				s.logInvalidItem("compliance", item.GameID, errs)
				continue
			}
			raws = append(raws, item)
		}
	}
	verdicts, dropped := reconcile.VerdictsFromRaw(raws, board)
	return verdicts, dropped, nil
}

// Approve reviews the whole card and decides between finalizing and
// requesting revisions. Single call: the decision is holistic.
func (s *Stages) Approve(ctx context.Context, board reconcile.Board, bank domain.BankrollState, iteration, maxRevisions int) (reconcile.Approval, []reconcile.Unresolved, error) {
	type pickInput struct {
		GameID    string   `json:"game_id"`
		Matchup   string   `json:"matchup"`
		BetType   string   `json:"bet_type"`
		Selection string   `json:"selection"`
		Odds      int      `json:"odds"`
		Units     float64  `json:"units"`
		Edge      float64  `json:"edge"`
		Verdict   string   `json:"compliance_verdict,omitempty"`
		Issues    []string `json:"compliance_issues,omitempty"`
	}
	type payload struct {
		Picks        []pickInput `json:"picks"`
		Balance      float64     `json:"bankroll_balance"`
		Iteration    int         `json:"iteration"`
		MaxRevisions int         `json:"max_revisions"`
	}
	picks := make([]pickInput, 0, len(board.Sized))
	for _, sp := range board.Sized {
		input := pickInput{
			GameID:    fmt.Sprintf("%d", sp.GameID),
			BetType:   string(sp.BetType),
			Selection: sp.Selection,
			Odds:      sp.Odds,
			Units:     sp.Units,
			Edge:      sp.Edge,
		}
		if g, ok := board.Game(sp.GameID); ok {
			input.Matchup = g.Teams()
		}
		if r, ok := board.ComplianceFor(sp.Key()); ok {
			input.Verdict = string(r.Verdict)
			input.Issues = r.Issues
		}
		picks = append(picks, input)
	}
	body, err := json.Marshal(payload{
		Picks:        picks,
		Balance:      bank.Balance,
		Iteration:    iteration,
		MaxRevisions: maxRevisions,
	})
	if err != nil {
		return reconcile.Approval{}, nil, fmt.Errorf("stage: encode approval payload: %w", err)
	}

	results, err := s.adapter.callBatches(ctx, "approve", approveSystem, []string{string(body)})
	if err != nil {
		return reconcile.Approval{}, nil, err
	}

	var resp contracts.ApprovalResponse
	decoded := false
	for _, raw := range results {
		if raw == nil {
			continue
		}
		if err := contracts.Decode(raw, &resp); err != nil {
			s.logSchemaViolation("approve", raw, err)
			continue
		}
		decoded = true
		break
	}
	if !decoded {
		return reconcile.Approval{}, nil, fmt.Errorf("%w: stage approve", ErrAllBatchesFailed)
	}
	if errs := contracts.ValidateApproval(resp); len(errs) > 0 {
		s.logInvalidItem("approve", "card", errs)
		// Drop only the malformed revision requests; keep the decisions.
		resp.RevisionRequests = validRevisions(resp.RevisionRequests)
	}
	approval, dropped := reconcile.ApprovalFromRaw(resp, board)
	return approval, dropped, nil
}

func validRevisions(requests []contracts.RawRevision) []contracts.RawRevision {
	var out []contracts.RawRevision
	for _, req := range requests {
		switch domain.RevisionStage(req.Stage) {
		case domain.ReviseResearch, domain.ReviseModeling, domain.ReviseSelection, domain.ReviseCompliance:
			if req.Reason != "" {
				out = append(out, req)
			}
		}
	}
	return out
}

func (s *Stages) logSchemaViolation(stage string, raw json.RawMessage, err error) {
	excerpt := string(raw)
	if len(excerpt) > 120 {
		excerpt = excerpt[:120]
	}
	s.log.WithError(err).WithFields(logrus.Fields{
		"stage":   stage,
		"excerpt": excerpt,
	}).Warn("response failed schema validation")
}

func (s *Stages) logInvalidItem(stage, ref string, errs []error) {
	s.log.WithFields(logrus.Fields{
		"stage":  stage,
		"ref":    ref,
		"errors": errs,
	}).Warn("item dropped by validation")
}
