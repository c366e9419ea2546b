// Package scrape fetches the day's slate: scheduled games and the betting
// lines quoted on them. Sources degrade to a deterministic mock generator
// on failure so a dead upstream never aborts a run, and line fetches go
// through the TTL cache.
package scrape

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kingrea/courtside/internal/cache"
	"github.com/kingrea/courtside/internal/domain"
)

// GameSource lists the games scheduled on a date.
type GameSource interface {
	Games(ctx context.Context, date time.Time) ([]domain.Game, error)
}

// LineSource quotes betting lines for a set of games.
type LineSource interface {
	Lines(ctx context.Context, games []domain.Game) ([]domain.BettingLine, error)
}

// Slate is everything scraped for one date.
type Slate struct {
	Games []domain.Game        `json:"games"`
	Lines []domain.BettingLine `json:"lines"`
}

// Options narrow a fetch.
type Options struct {
	// ForceRefresh bypasses the cache lookup but still writes through.
	ForceRefresh bool
	// TestCap limits the slate to the first N games, 0 for no cap.
	TestCap int
	// GameFilter keeps only the named game, 0 for all.
	GameFilter int64
}

// Fetcher combines the sources with the cache.
type Fetcher struct {
	games GameSource
	lines LineSource
	store cache.Store
	log   *logrus.Entry
}

// NewFetcher wires a fetcher. A nil store disables caching.
func NewFetcher(games GameSource, lines LineSource, store cache.Store, log *logrus.Entry) *Fetcher {
	if store == nil {
		store = cache.NewMemory()
	}
	return &Fetcher{games: games, lines: lines, store: store, log: log}
}

// Fetch returns the slate for a date. Source failures fall back to mock
// data; the only errors surfaced are context cancellations.
func (f *Fetcher) Fetch(ctx context.Context, date time.Time, opts Options) (Slate, error) {
	games, err := f.games.Games(ctx, date)
	if err != nil {
		if ctx.Err() != nil {
			return Slate{}, ctx.Err()
		}
		f.log.WithError(err).Warn("game source failed, falling back to mock slate")
		games, _ = NewMockSource().Games(ctx, date)
	}
	games = narrow(games, opts)
	if len(games) == 0 {
		return Slate{Games: nil, Lines: nil}, nil
	}

	key := cache.Key("lines", date, games)
	if !opts.ForceRefresh {
		var cached Slate
		if err := f.store.Get(ctx, key, &cached); err == nil {
			f.log.WithField("games", len(cached.Games)).Debug("slate served from cache")
			return cached, nil
		}
	}

	lines, err := f.lines.Lines(ctx, games)
	if err != nil {
		if ctx.Err() != nil {
			return Slate{}, ctx.Err()
		}
		f.log.WithError(err).Warn("line source failed, falling back to mock lines")
		lines, _ = NewMockSource().Lines(ctx, games)
	}

	slate := Slate{Games: games, Lines: lines}
	if err := f.store.Set(ctx, key, slate, cache.TTLLines); err != nil {
		f.log.WithError(err).Warn("slate cache write failed")
	}
	return slate, nil
}

func narrow(games []domain.Game, opts Options) []domain.Game {
	if opts.GameFilter != 0 {
		for _, g := range games {
			if g.ID == opts.GameFilter {
				return []domain.Game{g}
			}
		}
		return nil
	}
	if opts.TestCap > 0 && len(games) > opts.TestCap {
		return games[:opts.TestCap]
	}
	return games
}
