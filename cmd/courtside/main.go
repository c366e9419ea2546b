// cmd/courtside/main.go
//
// Entry point for the daily card run. One invocation drives one pipeline
// run for one slate date and exits 0 once a CardReview is finalized, even
// when the card is empty. Non-zero exits are reserved for setup errors
// and cancellation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/kingrea/courtside/internal/agent"
	"github.com/kingrea/courtside/internal/cache"
	"github.com/kingrea/courtside/internal/config"
	"github.com/kingrea/courtside/internal/domain"
	"github.com/kingrea/courtside/internal/logging"
	"github.com/kingrea/courtside/internal/notify"
	"github.com/kingrea/courtside/internal/pipeline"
	"github.com/kingrea/courtside/internal/scrape"
	"github.com/kingrea/courtside/internal/stage"
	"github.com/kingrea/courtside/internal/store"
	"github.com/kingrea/courtside/internal/tui"
)

const stateDir = ".courtside"

func main() {
	var (
		dateFlag     = flag.String("date", "", "slate date YYYY-MM-DD (default today)")
		configFlag   = flag.String("config", config.DefaultPath, "path to the yaml config")
		testFlag     = flag.Int("test", 0, "cap the slate to the first N games")
		forceRefresh = flag.Bool("force-refresh", false, "bypass cached lines and research")
		gameFlag     = flag.Int64("game", 0, "run a single game by id")
		flushCache   = flag.Bool("flush-cache", false, "drop every cached entry before the run")
		tuiFlag      = flag.Bool("tui", false, "show the live run view")
	)
	flag.Parse()

	if err := run(*dateFlag, *configFlag, *testFlag, *forceRefresh, *gameFlag, *flushCache, *tuiFlag); err != nil {
		fmt.Fprintf(os.Stderr, "courtside: %v\n", err)
		os.Exit(1)
	}
}

func run(dateFlag, configPath string, testCap int, forceRefresh bool, gameFilter int64, flushCache, useTUI bool) error {
	// .env is optional; real environments set the variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	date, err := slateDate(dateFlag, time.Now)
	if err != nil {
		return err
	}

	log, closeLog, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Dir)
	if err != nil {
		return err
	}
	defer closeLog()
	entry := logrus.NewEntry(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := agent.NewHTTP(cfg.Agent.APIKey, cfg.Agent.Model, entry, agentOptions(cfg)...)
	if err != nil {
		return err
	}
	adapter := stage.NewAdapter(client, entry, stage.AdapterConfig{
		BatchSize:   cfg.Pipeline.BatchSize,
		MaxRetries:  cfg.Pipeline.MaxRetries,
		Workers:     cfg.Pipeline.Workers,
		Timeout:     cfg.Pipeline.StageTimeout(),
		Temperature: cfg.Agent.Temperature,
		MaxTokens:   cfg.Agent.MaxTokens,
	})
	stages := stage.NewStages(adapter, entry, cfg.Pipeline.DefaultOdds)

	cacheStore := buildCache(ctx, cfg, entry)
	if flushCache {
		if err := cacheStore.InvalidateAll(ctx); err != nil {
			entry.WithError(err).Warn("cache flush failed, stale entries may survive")
		}
	}
	st := buildStore(ctx, cfg, entry)
	defer st.Close()

	fetcher := scrape.NewFetcher(gameSource(cfg), lineSource(cfg), cacheStore, entry)

	opts := []pipeline.Option{pipeline.WithStateStore(pipeline.NewRepository(stateDir))}
	var program *tea.Program
	if useTUI {
		program = tea.NewProgram(tui.New(cancel), tea.WithAltScreen())
		opts = append(opts, pipeline.WithObserver(func(s pipeline.RunState) {
			program.Send(tui.StateMsg(s))
		}))
	}

	ctrl, err := pipeline.New(stages, fetcher, cacheStore, st,
		cfg.Sizing, cfg.Thresholds,
		pipeline.Config{
			MaxRevisions:   cfg.Pipeline.MaxRevisions,
			InitialBalance: cfg.Pipeline.InitialBalance,
			LineEpsilon:    cfg.Pipeline.LineEpsilon,
		},
		entry, opts...)
	if err != nil {
		return err
	}

	runOpts := pipeline.RunOptions{
		ForceRefresh: forceRefresh,
		TestCap:      testCap,
		GameFilter:   gameFilter,
	}

	var review domain.CardReview
	if useTUI {
		var runErr error
		go func() {
			review, runErr = ctrl.Run(ctx, date, runOpts)
			program.Send(tui.RunResultMsg{Review: review, Err: runErr})
		}()
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		err = runErr
	} else {
		review, err = ctrl.Run(ctx, date, runOpts)
	}
	if err != nil {
		return err
	}

	fmt.Println(notify.FormatCard(review))
	announce(ctx, cfg, entry, review)
	return nil
}

// slateDate resolves the run's calendar day. Without -date the local
// calendar day is used, normalized to UTC midnight so stored dates compare
// regardless of where the run happened.
func slateDate(flagValue string, now func() time.Time) (time.Time, error) {
	if flagValue != "" {
		d, err := time.Parse("2006-01-02", flagValue)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse -date %q: %w", flagValue, err)
		}
		return d, nil
	}
	y, m, d := now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func agentOptions(cfg config.Config) []agent.Option {
	var opts []agent.Option
	if cfg.Agent.BaseURL != "" {
		opts = append(opts, agent.WithBaseURL(cfg.Agent.BaseURL))
	}
	return opts
}

// buildCache prefers redis when configured, degrading to the in-process
// store when it is unreachable.
func buildCache(ctx context.Context, cfg config.Config, log *logrus.Entry) cache.Store {
	if cfg.Cache.RedisAddr == "" {
		return cache.NewMemory()
	}
	redis, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword)
	if err != nil {
		log.WithError(err).Warn("redis unreachable, using in-memory cache")
		return cache.NewMemory()
	}
	return redis
}

// buildStore prefers postgres when a DSN is set, degrading to the
// in-process store so a database outage never blocks the day's card.
func buildStore(ctx context.Context, cfg config.Config, log *logrus.Entry) store.Store {
	if cfg.Store.PostgresDSN == "" {
		return store.NewMemory()
	}
	pg, err := store.NewPostgres(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		log.WithError(err).Warn("postgres unreachable, using in-memory store")
		return store.NewMemory()
	}
	return pg
}

func gameSource(cfg config.Config) scrape.GameSource {
	if cfg.Scrape.GamesSource == "mock" {
		return scrape.NewMockSource()
	}
	return scrape.NewESPNSource()
}

func lineSource(cfg config.Config) scrape.LineSource {
	if cfg.Scrape.LinesSource == "mock" || cfg.Scrape.OddsAPIKey == "" {
		return scrape.NewMockSource()
	}
	return scrape.NewOddsAPISource(cfg.Scrape.OddsAPIKey, cfg.Scrape.Books)
}

func announce(ctx context.Context, cfg config.Config, log *logrus.Entry, review domain.CardReview) {
	if !cfg.Notify.Telegram {
		return
	}
	notifier := notify.NewNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
	if err := notifier.NotifyCard(ctx, review); err != nil {
		log.WithError(err).Warn("telegram announcement failed")
	}
}
