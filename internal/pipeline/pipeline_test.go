package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kingrea/courtside/internal/agent"
	"github.com/kingrea/courtside/internal/cache"
	"github.com/kingrea/courtside/internal/domain"
	"github.com/kingrea/courtside/internal/kelly"
	"github.com/kingrea/courtside/internal/policy"
	"github.com/kingrea/courtside/internal/scrape"
	"github.com/kingrea/courtside/internal/stage"
	"github.com/kingrea/courtside/internal/store"
)

var runDate = time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

type fixtureGames struct{ games []domain.Game }

func (f fixtureGames) Games(context.Context, time.Time) ([]domain.Game, error) {
	return f.games, nil
}

type fixtureLines struct{ lines []domain.BettingLine }

func (f fixtureLines) Lines(context.Context, []domain.Game) ([]domain.BettingLine, error) {
	return f.lines, nil
}

func slateFixture() (fixtureGames, fixtureLines) {
	games := fixtureGames{games: []domain.Game{
		{ID: 42, Home: "Duke Blue Devils", Away: "App State Mountaineers", Date: runDate, Status: domain.GameScheduled},
		{ID: 43, Home: "Gonzaga Bulldogs", Away: "Kansas Jayhawks", Date: runDate, Status: domain.GameScheduled},
	}}
	lines := fixtureLines{lines: []domain.BettingLine{
		{GameID: 42, Market: domain.BetSpread, Line: -3.5, Odds: -110, Book: "dk", FetchedAt: runDate},
		{GameID: 42, Market: domain.BetMoneyline, Odds: -160, Book: "dk", FetchedAt: runDate},
		{GameID: 43, Market: domain.BetSpread, Line: 2.5, Odds: -110, Book: "dk", FetchedAt: runDate},
		{GameID: 43, Market: domain.BetTotal, Line: 145.5, Odds: -110, Book: "fd", FetchedAt: runDate},
	}}
	return games, lines
}

// queueClient pops one scripted response per agent call in stage order.
// The literal "FAIL" fails the call.
type queueClient struct {
	mu    sync.Mutex
	queue []string
}

func (c *queueClient) Complete(context.Context, agent.Request) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, errors.New("scripted queue exhausted")
	}
	head := c.queue[0]
	c.queue = c.queue[1:]
	if head == "FAIL" {
		return nil, errors.New("scripted failure")
	}
	return json.RawMessage(head), nil
}

func (c *queueClient) remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func researchResponse(quality42, quality43 float64) string {
	return fmt.Sprintf(`{"insights":[
		{"game_id":"42","summary":"Duke at full strength","data_quality":%g},
		{"game_id":"43","summary":"Gonzaga on short rest","data_quality":%g}
	]}`, quality42, quality43)
}

const modelResponse = `{"game_models":[
	{"game_id":"42","predicted_spread":-6.5,"home_win_prob":0.72,"confidence":0.8},
	{"game_id":"43","predicted_spread":1.0,"home_win_prob":0.47,"confidence":0.75}
]}`

const pickResponse = `{"candidate_picks":[
	{"game_id":"42","bet_type":"moneyline","selection":"Duke Blue Devils ML",
	 "odds":"-160","edge_estimate":0.08,"confidence":0.7,
	 "justification":["model likes Duke well past the implied number"]}
]}`

const pickResponseWithUnknown = `{"candidate_picks":[
	{"game_id":"42","bet_type":"moneyline","selection":"Duke Blue Devils ML",
	 "odds":"-160","edge_estimate":0.08,"confidence":0.7},
	{"game_id":"Kentucky","bet_type":"spread","selection":"Kentucky -2.5",
	 "odds":"-110","edge_estimate":0.06,"confidence":0.6}
]}`

func complianceResponse(verdict string) string {
	return fmt.Sprintf(`{"results":[
		{"game_id":"42","bet_type":"moneyline","selection":"Duke Blue Devils ML","verdict":%q}
	]}`, verdict)
}

const approveResponse = `{
	"approved_picks":[{"game_id":"42","bet_type":"moneyline","selection":"Duke Blue Devils ML","best_bet":true}],
	"rejected_picks":[],
	"notes":"single playable edge"
}`

func approveRevise(stageName string) string {
	return fmt.Sprintf(`{
		"approved_picks":[],
		"rejected_picks":[],
		"revision_requests":[{"stage":%q,"reason":"needs another look"}],
		"notes":"not ready"
	}`, stageName)
}

func newTestController(t *testing.T, client agent.Client, st store.Store, cacheStore cache.Store,
	maxRevisions int, observe func(RunState)) *Controller {
	t.Helper()
	return newTestControllerCfg(t, client, st, cacheStore,
		Config{MaxRevisions: maxRevisions, InitialBalance: 10000}, observe)
}

func newTestControllerCfg(t *testing.T, client agent.Client, st store.Store, cacheStore cache.Store,
	cfg Config, observe func(RunState)) *Controller {
	t.Helper()
	log := testLogger()
	adapter := stage.NewAdapter(client, log, stage.AdapterConfig{MaxRetries: 1})
	stages := stage.NewStages(adapter, log, -110)
	games, lines := slateFixture()
	fetcher := scrape.NewFetcher(games, lines, cacheStore, log)
	ctrl, err := New(stages, fetcher, cacheStore, st,
		kelly.DefaultConfig(), policy.DefaultThresholds(), cfg, log,
		WithClock(func() time.Time { return runDate.Add(9 * time.Hour) }),
		WithRunID(func() string { return "run-test" }),
		WithObserver(observe),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ctrl
}

func TestRunFinalizesCleanCard(t *testing.T) {
	client := &queueClient{queue: []string{
		researchResponse(0.8, 0.75),
		modelResponse,
		pickResponse,
		complianceResponse("approved"),
		approveResponse,
	}}
	st := store.NewMemory()
	ctrl := newTestController(t, client, st, cache.NewMemory(), 2, nil)

	review, err := ctrl.Run(context.Background(), runDate, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.remaining() != 0 {
		t.Errorf("%d scripted responses unused", client.remaining())
	}
	if review.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", review.Iterations)
	}
	if review.Err != "" {
		t.Errorf("unexpected error marker %q", review.Err)
	}
	if len(review.Approved) != 1 {
		t.Fatalf("approved = %d, want 1: %+v", len(review.Approved), review)
	}
	pick := review.Approved[0]
	if pick.GameID != 42 || pick.BetType != domain.BetMoneyline {
		t.Errorf("approved pick = %+v", pick.Pick)
	}
	if !pick.BestBet {
		t.Error("best bet flag lost in partition")
	}
	if pick.Units <= 0 {
		t.Errorf("positive edge sized to %v units", pick.Units)
	}
	if len(review.Rejected) != 0 {
		t.Errorf("rejected = %+v, want none", review.Rejected)
	}

	saved, err := st.ReviewByDate(context.Background(), runDate)
	if err != nil {
		t.Fatalf("ReviewByDate: %v", err)
	}
	if saved.RunID != "run-test" {
		t.Errorf("saved run id = %q", saved.RunID)
	}
	bank, err := st.LatestBankroll(context.Background())
	if err != nil {
		t.Fatalf("LatestBankroll: %v", err)
	}
	if bank.Balance != 10000 {
		t.Errorf("seeded balance = %v, want 10000", bank.Balance)
	}
}

func TestRunRevisionLoopBounded(t *testing.T) {
	// Approve always asks for a modeling revision: two revisions run, then
	// the third verdict is accepted as-is.
	client := &queueClient{queue: []string{
		researchResponse(0.8, 0.75), modelResponse, pickResponse, complianceResponse("approved"), approveRevise("modeling"),
		modelResponse, pickResponse, complianceResponse("approved"), approveRevise("modeling"),
		modelResponse, pickResponse, complianceResponse("approved"), approveRevise("modeling"),
	}}
	st := store.NewMemory()
	ctrl := newTestController(t, client, st, cache.NewMemory(), 2, nil)

	review, err := ctrl.Run(context.Background(), runDate, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.remaining() != 0 {
		t.Errorf("%d scripted responses unused; loop did not run the expected iterations", client.remaining())
	}
	if review.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", review.Iterations)
	}
	if len(review.RevisionRequests) == 0 {
		t.Error("forced finalize should carry the outstanding revision requests")
	}
	// The final approval rejected nothing and approved nothing: the sized
	// pick must still land in exactly one partition.
	if len(review.Approved)+len(review.Rejected) != 1 {
		t.Errorf("partition lost the pick: approved=%d rejected=%d", len(review.Approved), len(review.Rejected))
	}
	if len(review.Rejected) != 1 || review.Rejected[0].Reason != "not approved in final review" {
		t.Errorf("rejected = %+v", review.Rejected)
	}
}

func TestRunResearchGateTriggersRevision(t *testing.T) {
	// One of two insights below the data quality floor is a 50% low-quality
	// ratio, over the 30% research threshold, so iteration one revises even
	// though the reviewer approved the card.
	client := &queueClient{queue: []string{
		researchResponse(0.4, 0.8), modelResponse, pickResponse, complianceResponse("approved"), approveResponse,
		researchResponse(0.8, 0.8), modelResponse, pickResponse, complianceResponse("approved"), approveResponse,
	}}
	st := store.NewMemory()
	ctrl := newTestController(t, client, st, cache.NewMemory(), 2, nil)

	review, err := ctrl.Run(context.Background(), runDate, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.remaining() != 0 {
		t.Errorf("%d scripted responses unused", client.remaining())
	}
	if review.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", review.Iterations)
	}
	if len(review.Approved) != 1 {
		t.Errorf("approved = %d, want 1", len(review.Approved))
	}
	if len(review.RevisionRequests) != 0 {
		t.Errorf("clean finalize should carry no requests: %+v", review.RevisionRequests)
	}
}

func TestRunStageFailureFinalizesEmptyCard(t *testing.T) {
	client := &queueClient{queue: []string{"FAIL"}}
	st := store.NewMemory()
	ctrl := newTestController(t, client, st, cache.NewMemory(), 2, nil)

	review, err := ctrl.Run(context.Background(), runDate, RunOptions{})
	if err != nil {
		t.Fatalf("total stage failure must still finalize, got error %v", err)
	}
	if review.Err == "" {
		t.Error("review missing the terminal error marker")
	}
	if len(review.Approved) != 0 || len(review.Rejected) != 0 {
		t.Errorf("failed run produced picks: %+v", review)
	}
	if _, err := st.ReviewByDate(context.Background(), runDate); err != nil {
		t.Errorf("failed run review not persisted: %v", err)
	}
}

func TestRunBelowMinimumBalanceZeroesUnits(t *testing.T) {
	client := &queueClient{queue: []string{
		researchResponse(0.8, 0.75),
		modelResponse,
		pickResponse,
		complianceResponse("approved"),
		approveResponse,
	}}
	st := store.NewMemory()
	if err := st.SaveBankroll(context.Background(), domain.BankrollState{
		Balance: 500, Mode: domain.RiskStandard, AsOf: runDate,
	}); err != nil {
		t.Fatalf("SaveBankroll: %v", err)
	}
	ctrl := newTestController(t, client, st, cache.NewMemory(), 2, nil)

	review, err := ctrl.Run(context.Background(), runDate, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(review.Approved) != 1 {
		t.Fatalf("approved = %d, want 1 (zero-unit picks are still carried)", len(review.Approved))
	}
	if review.Approved[0].Units != 0 {
		t.Errorf("units = %v, want 0 below the bankroll floor", review.Approved[0].Units)
	}
}

func TestRunRecordsUnresolvedPicks(t *testing.T) {
	client := &queueClient{queue: []string{
		researchResponse(0.8, 0.75),
		modelResponse,
		pickResponseWithUnknown,
		complianceResponse("approved"),
		approveResponse,
	}}
	st := store.NewMemory()
	var last RunState
	ctrl := newTestController(t, client, st, cache.NewMemory(), 2, func(s RunState) { last = s })

	review, err := ctrl.Run(context.Background(), runDate, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(review.Approved)+len(review.Rejected) != 1 {
		t.Errorf("unresolvable pick leaked into the card: %+v", review)
	}
	if last.Phase != PhaseFinalize {
		t.Fatalf("final snapshot phase = %q", last.Phase)
	}
	found := false
	for _, u := range last.Unresolved {
		if u.Ref == "Kentucky" {
			found = true
		}
	}
	if !found {
		t.Errorf("unresolved log missing the dropped pick: %+v", last.Unresolved)
	}
}

func TestRunServesResearchFromCacheOnSecondRun(t *testing.T) {
	shared := cache.NewMemory()
	st := store.NewMemory()

	first := &queueClient{queue: []string{
		researchResponse(0.8, 0.75), modelResponse, pickResponse, complianceResponse("approved"), approveResponse,
	}}
	if _, err := newTestController(t, first, st, shared, 2, nil).Run(context.Background(), runDate, RunOptions{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// No research entry in the second queue: it must come from the cache.
	second := &queueClient{queue: []string{
		modelResponse, pickResponse, complianceResponse("approved"), approveResponse,
	}}
	review, err := newTestController(t, second, st, shared, 2, nil).Run(context.Background(), runDate, RunOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.remaining() != 0 {
		t.Errorf("%d scripted responses unused", second.remaining())
	}
	if len(review.Approved) != 1 {
		t.Errorf("approved = %d, want 1", len(review.Approved))
	}
}

func TestRunConfiguredEpsilonWidensKeyMatching(t *testing.T) {
	// The approver quotes the spread at a shopped number 0.3 off the pick's
	// line. Under the default tolerance the keys do not match and the pick
	// falls out of the approval; a configured tolerance of 0.5 absorbs the
	// drift.
	const spreadPick = `{"candidate_picks":[
		{"game_id":"42","bet_type":"spread","selection":"Duke Blue Devils -3.5",
		 "odds":"-110","edge_estimate":0.08,"confidence":0.7}
	]}`
	const spreadCompliance = `{"results":[
		{"game_id":"42","bet_type":"spread","selection":"Duke Blue Devils -3.5","verdict":"approved"}
	]}`
	const approveDrifted = `{
		"approved_picks":[{"game_id":"42","bet_type":"spread","selection":"Duke Blue Devils -3.8"}],
		"rejected_picks":[],
		"notes":"approved at the shopped number"
	}`
	queue := func() []string {
		return []string{
			researchResponse(0.8, 0.75), modelResponse, spreadPick, spreadCompliance, approveDrifted,
		}
	}

	strict := newTestControllerCfg(t, &queueClient{queue: queue()}, store.NewMemory(), cache.NewMemory(),
		Config{MaxRevisions: 2, InitialBalance: 10000}, nil)
	review, err := strict.Run(context.Background(), runDate, RunOptions{})
	if err != nil {
		t.Fatalf("Run (default epsilon): %v", err)
	}
	if len(review.Approved) != 0 || len(review.Rejected) != 1 {
		t.Fatalf("default epsilon matched the drifted key: %+v", review)
	}

	loose := newTestControllerCfg(t, &queueClient{queue: queue()}, store.NewMemory(), cache.NewMemory(),
		Config{MaxRevisions: 2, InitialBalance: 10000, LineEpsilon: 0.5}, nil)
	review, err = loose.Run(context.Background(), runDate, RunOptions{})
	if err != nil {
		t.Fatalf("Run (epsilon 0.5): %v", err)
	}
	if len(review.Approved) != 1 || len(review.Rejected) != 0 {
		t.Fatalf("configured epsilon not applied to key matching: %+v", review)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &queueClient{}
	ctrl := newTestController(t, client, store.NewMemory(), cache.NewMemory(), 2, nil)

	if _, err := ctrl.Run(ctx, runDate, RunOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	repo := NewRepository(t.TempDir())
	if _, err := repo.Load(); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("empty repository Load: %v", err)
	}
	want := RunState{
		RunID:     "run-test",
		Date:      "2026-02-14",
		Phase:     PhaseApprove,
		Iteration: 1,
		Games:     2,
		Picks:     1,
		UpdatedAt: runDate,
	}
	if err := repo.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != want.RunID || got.Phase != want.Phase || got.Iteration != want.Iteration {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
