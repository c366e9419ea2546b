// Package pipeline drives one daily run through the stage sequence
// Scrape → Research → Model → Pick → Size → Compliance → Approve and the
// bounded revision loop behind it. Every run terminates in exactly one
// CardReview, even when stages fail wholesale; only cancellation and setup
// trouble abort without a review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kingrea/courtside/internal/cache"
	"github.com/kingrea/courtside/internal/domain"
	"github.com/kingrea/courtside/internal/kelly"
	"github.com/kingrea/courtside/internal/logging"
	"github.com/kingrea/courtside/internal/policy"
	"github.com/kingrea/courtside/internal/reconcile"
	"github.com/kingrea/courtside/internal/scrape"
	"github.com/kingrea/courtside/internal/stage"
	"github.com/kingrea/courtside/internal/store"
)

// Config tunes the controller.
type Config struct {
	// MaxRevisions bounds how many times the run may re-enter an earlier
	// stage before the reviewer's verdict is accepted as-is.
	MaxRevisions   int
	InitialBalance float64

	// LineEpsilon overrides the board's key-matching tolerance. Zero keeps
	// the default.
	LineEpsilon float64
}

// RunOptions carries per-invocation flags.
type RunOptions struct {
	ForceRefresh bool
	TestCap      int
	GameFilter   int64
}

// Controller owns one run at a time. It is not safe for concurrent runs.
type Controller struct {
	stages     *stage.Stages
	fetcher    *scrape.Fetcher
	cacheStore cache.Store
	store      store.Store
	sizing     kelly.Config
	thresholds policy.Thresholds
	cfg        Config
	log        *logrus.Entry

	states   StateStore
	observe  func(RunState)
	clock    func() time.Time
	newRunID func() string
}

// Option customizes the controller.
type Option func(*Controller)

// WithClock injects a deterministic clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithRunID injects a deterministic run ID generator for tests.
func WithRunID(gen func() string) Option {
	return func(c *Controller) {
		if gen != nil {
			c.newRunID = gen
		}
	}
}

// WithStateStore persists a snapshot at every phase transition.
func WithStateStore(states StateStore) Option {
	return func(c *Controller) { c.states = states }
}

// WithObserver receives the same snapshots the state store does. The TUI
// subscribes here.
func WithObserver(observe func(RunState)) Option {
	return func(c *Controller) { c.observe = observe }
}

// New wires a controller.
func New(stages *stage.Stages, fetcher *scrape.Fetcher, cacheStore cache.Store, st store.Store,
	sizing kelly.Config, thresholds policy.Thresholds, cfg Config, log *logrus.Entry, opts ...Option) (*Controller, error) {
	if stages == nil {
		return nil, fmt.Errorf("pipeline: stages are required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("pipeline: fetcher is required")
	}
	if st == nil {
		return nil, fmt.Errorf("pipeline: store is required")
	}
	if cacheStore == nil {
		cacheStore = cache.NewMemory()
	}
	if cfg.MaxRevisions < 0 {
		cfg.MaxRevisions = 0
	}
	c := &Controller{
		stages:     stages,
		fetcher:    fetcher,
		cacheStore: cacheStore,
		store:      st,
		sizing:     sizing,
		thresholds: thresholds,
		cfg:        cfg,
		log:        log,
		clock:      time.Now,
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes one full pipeline run for the slate date. It returns the
// finalized CardReview, or an error only when the run was cancelled or
// could not start.
func (c *Controller) Run(ctx context.Context, date time.Time, opts RunOptions) (domain.CardReview, error) {
	runID := c.newRunID()
	log := logging.ForRun(c.log.Logger, runID, date)
	log.Info("run starting")

	bank, err := c.loadBankroll(ctx)
	if err != nil {
		return domain.CardReview{}, err
	}
	log.WithField("balance", bank.Balance).Info("bankroll loaded")

	board := reconcile.NewBoard()
	if c.cfg.LineEpsilon > 0 {
		board.Epsilon = c.cfg.LineEpsilon
	}
	c.transition(runID, date, PhaseScrape, 0, board, "")
	slate, err := c.fetcher.Fetch(ctx, date, scrape.Options{
		ForceRefresh: opts.ForceRefresh,
		TestCap:      opts.TestCap,
		GameFilter:   opts.GameFilter,
	})
	if err != nil {
		return domain.CardReview{}, fmt.Errorf("pipeline: scrape: %w", err)
	}
	board = board.MergeGames(slate.Games).MergeLines(slate.Lines)
	if len(board.Games) == 0 {
		log.Info("no games on the slate")
		return c.finalize(ctx, log, runID, date, 0, board, reconcile.Approval{Notes: "no games scheduled"}, nil)
	}
	log.WithFields(logrus.Fields{"games": len(board.Games), "lines": len(board.Lines)}).Info("slate assembled")

	entry := domain.ReviseResearch
	feedback := map[domain.RevisionStage]string{}
	iteration := 0
	for {
		if err := ctx.Err(); err != nil {
			return domain.CardReview{}, err
		}

		if runsFrom(entry, domain.ReviseResearch) {
			c.transition(runID, date, PhaseResearch, iteration, board, "")
			insights, dropped, err := c.research(ctx, log, date, board, feedback[domain.ReviseResearch], opts, iteration)
			if err != nil {
				return c.handleStageFailure(ctx, log, runID, date, iteration, board, err)
			}
			board = board.MergeInsights(insights)
			board.Unresolved = append(board.Unresolved, dropped...)
		}

		if runsFrom(entry, domain.ReviseModeling) {
			if err := ctx.Err(); err != nil {
				return domain.CardReview{}, err
			}
			c.transition(runID, date, PhaseModel, iteration, board, "")
			predictions, dropped, err := c.stages.Model(ctx, board, feedback[domain.ReviseModeling])
			if err != nil {
				return c.handleStageFailure(ctx, log, runID, date, iteration, board, err)
			}
			board = board.MergePredictions(predictions)
			board.Unresolved = append(board.Unresolved, dropped...)
		}

		if runsFrom(entry, domain.ReviseSelection) {
			if err := ctx.Err(); err != nil {
				return domain.CardReview{}, err
			}
			c.transition(runID, date, PhasePick, iteration, board, "")
			picks, dropped, err := c.stages.Pick(ctx, board, feedback[domain.ReviseSelection])
			if err != nil {
				return c.handleStageFailure(ctx, log, runID, date, iteration, board, err)
			}
			board = board.MergePicks(picks)
			board.Unresolved = append(board.Unresolved, dropped...)

			c.transition(runID, date, PhaseSize, iteration, board, "")
			board = board.MergeSized(kelly.Size(board.Picks, bank, c.sizing))
		}

		if err := ctx.Err(); err != nil {
			return domain.CardReview{}, err
		}
		c.transition(runID, date, PhaseCompliance, iteration, board, "")
		verdicts, dropped, err := c.stages.Compliance(ctx, board)
		if err != nil {
			return c.handleStageFailure(ctx, log, runID, date, iteration, board, err)
		}
		board = board.MergeCompliance(verdicts)
		board.Unresolved = append(board.Unresolved, dropped...)

		if err := ctx.Err(); err != nil {
			return domain.CardReview{}, err
		}
		c.transition(runID, date, PhaseApprove, iteration, board, "")
		approval, dropped, err := c.stages.Approve(ctx, board, bank, iteration, c.cfg.MaxRevisions)
		if err != nil {
			return c.handleStageFailure(ctx, log, runID, date, iteration, board, err)
		}
		board.Unresolved = append(board.Unresolved, dropped...)

		requests := append(policy.Evaluate(board, c.thresholds), approval.RevisionRequests...)
		if len(requests) == 0 {
			return c.finalize(ctx, log, runID, date, iteration, board, approval, nil)
		}
		if iteration >= c.cfg.MaxRevisions {
			log.WithField("requests", len(requests)).Warn("revision budget exhausted, accepting card as-is")
			return c.finalize(ctx, log, runID, date, iteration, board, approval, requests)
		}

		next, _ := policy.EarliestStage(requests)
		feedback = feedbackByStage(requests)
		log.WithFields(logrus.Fields{
			"iteration": iteration + 1,
			"stage":     next,
			"requests":  len(requests),
		}).Info("revision requested")
		board = board.ResetIteration(next)
		entry = next
		iteration++
	}
}

// loadBankroll reads the latest snapshot, seeding the configured starting
// balance on first run.
func (c *Controller) loadBankroll(ctx context.Context) (domain.BankrollState, error) {
	bank, err := c.store.LatestBankroll(ctx)
	if errors.Is(err, store.ErrNotFound) {
		bank = domain.BankrollState{
			Balance: c.cfg.InitialBalance,
			Mode:    domain.RiskStandard,
			AsOf:    c.clock(),
		}
		if err := c.store.SaveBankroll(ctx, bank); err != nil {
			c.log.WithError(err).Warn("seed bankroll snapshot")
		}
		return bank, nil
	}
	if err != nil {
		return domain.BankrollState{}, fmt.Errorf("pipeline: load bankroll: %w", err)
	}
	return bank, nil
}

// research serves cached insights on the first iteration unless the caller
// forced a refresh; revision re-runs always hit the service, since the
// point of the revision is new work.
func (c *Controller) research(ctx context.Context, log *logrus.Entry, date time.Time, board reconcile.Board,
	feedback string, opts RunOptions, iteration int) ([]domain.GameInsight, []reconcile.Unresolved, error) {
	key := cache.Key("research", date, board.Games)
	if iteration == 0 && !opts.ForceRefresh {
		var cached []domain.GameInsight
		if err := c.cacheStore.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
			log.WithField("insights", len(cached)).Info("research served from cache")
			return cached, nil, nil
		}
	}
	insights, dropped, err := c.stages.Research(ctx, date, board, feedback)
	if err != nil {
		return nil, nil, err
	}
	if err := c.cacheStore.Set(ctx, key, insights, cache.TTLResearch); err != nil {
		log.WithError(err).Warn("cache research")
	}
	return insights, dropped, nil
}

// handleStageFailure distinguishes total stage failure, which still ends in
// a (marked, empty) CardReview, from cancellation, which aborts the run.
func (c *Controller) handleStageFailure(ctx context.Context, log *logrus.Entry, runID string, date time.Time,
	iteration int, board reconcile.Board, err error) (domain.CardReview, error) {
	if errors.Is(err, stage.ErrAllBatchesFailed) {
		log.WithError(err).Error("stage failed wholesale, finalizing empty card")
		review := domain.CardReview{
			RunID:      runID,
			Date:       date,
			Iterations: iteration + 1,
			Err:        err.Error(),
			CreatedAt:  c.clock(),
		}
		c.persistReview(ctx, log, review)
		c.transition(runID, date, PhaseFinalize, iteration, board, err.Error())
		return review, nil
	}
	if ctx.Err() != nil {
		return domain.CardReview{}, ctx.Err()
	}
	return domain.CardReview{}, fmt.Errorf("pipeline: stage: %w", err)
}

// finalize partitions the sized card into approved and rejected, persists
// the review, and emits the terminal snapshot. Carried revision requests
// (budget exhausted) ride along on the review for the record.
func (c *Controller) finalize(ctx context.Context, log *logrus.Entry, runID string, date time.Time,
	iteration int, board reconcile.Board, approval reconcile.Approval, carried []domain.RevisionRequest) (domain.CardReview, error) {
	approved, rejected := partition(board, approval)
	review := domain.CardReview{
		RunID:            runID,
		Date:             date,
		Approved:         approved,
		Rejected:         rejected,
		RevisionRequests: carried,
		Notes:            approval.Notes,
		Iterations:       iteration + 1,
		CreatedAt:        c.clock(),
	}
	c.persistReview(ctx, log, review)
	c.transition(runID, date, PhaseFinalize, iteration, board, "")
	log.WithFields(logrus.Fields{
		"approved":   len(approved),
		"rejected":   len(rejected),
		"iterations": review.Iterations,
		"unresolved": len(board.Unresolved),
	}).Info("run finalized")
	return review, nil
}

func (c *Controller) persistReview(ctx context.Context, log *logrus.Entry, review domain.CardReview) {
	if err := c.store.SaveReview(ctx, review); err != nil {
		log.WithError(err).Error("persist card review")
	}
}

// partition assigns every sized pick to exactly one of approved or
// rejected. Compliance rejection wins over the reviewer's approval; picks
// the reviewer never mentioned are rejected rather than silently dropped.
func partition(board reconcile.Board, approval reconcile.Approval) ([]domain.SizedPick, []domain.RejectedPick) {
	var approved []domain.SizedPick
	var rejected []domain.RejectedPick
	for _, sp := range board.Sized {
		key := sp.Key()
		if r, ok := board.ComplianceFor(key); ok && !r.Approved() {
			reason := "rejected by compliance"
			if len(r.Issues) > 0 {
				reason = "compliance: " + strings.Join(r.Issues, "; ")
			}
			rejected = append(rejected, domain.RejectedPick{Pick: sp, Reason: reason})
			continue
		}
		if reason, ok := rejectionReason(approval.Rejected, key, board.Epsilon); ok {
			rejected = append(rejected, domain.RejectedPick{Pick: sp, Reason: reason})
			continue
		}
		if containsKey(approval.Approved, key, board.Epsilon) {
			sp.BestBet = sp.BestBet || containsKey(approval.BestBets, key, board.Epsilon)
			approved = append(approved, sp)
			continue
		}
		rejected = append(rejected, domain.RejectedPick{Pick: sp, Reason: "not approved in final review"})
	}
	return approved, rejected
}

func containsKey(keys []domain.PickKey, key domain.PickKey, epsilon float64) bool {
	for _, k := range keys {
		if k.Match(key, epsilon) {
			return true
		}
	}
	return false
}

func rejectionReason(rejected []reconcile.RejectedKey, key domain.PickKey, epsilon float64) (string, bool) {
	for _, r := range rejected {
		if r.Key.Match(key, epsilon) {
			return r.Reason, true
		}
	}
	return "", false
}

// runsFrom reports whether a stage runs this iteration given the re-entry
// point.
func runsFrom(entry, s domain.RevisionStage) bool {
	return entry == s || entry.Earlier(s)
}

func feedbackByStage(requests []domain.RevisionRequest) map[domain.RevisionStage]string {
	out := map[domain.RevisionStage]string{}
	for _, r := range requests {
		if out[r.Stage] != "" {
			out[r.Stage] += " | "
		}
		out[r.Stage] += r.Reason
	}
	return out
}

func (c *Controller) transition(runID string, date time.Time, phase Phase, iteration int, board reconcile.Board, errMsg string) {
	state := RunState{
		RunID:      runID,
		Date:       date.Format("2006-01-02"),
		Phase:      phase,
		Iteration:  iteration,
		Games:      len(board.Games),
		Picks:      len(board.Picks),
		Sized:      len(board.Sized),
		Unresolved: append([]reconcile.Unresolved(nil), board.Unresolved...),
		Err:        errMsg,
		UpdatedAt:  c.clock(),
	}
	if c.states != nil {
		if err := c.states.Save(state); err != nil {
			c.log.WithError(err).Warn("persist run state")
		}
	}
	if c.observe != nil {
		c.observe(state)
	}
}
