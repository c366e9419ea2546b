package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kingrea/courtside/internal/domain"
	"github.com/kingrea/courtside/internal/reconcile"
)

const oddsAPIURL = "https://api.the-odds-api.com/v4/sports/basketball_ncaab/odds"

// OddsAPISource quotes lines from the-odds-api.com.
type OddsAPISource struct {
	baseURL string
	apiKey  string
	books   []string
	http    *http.Client
	now     func() time.Time
}

// NewOddsAPISource builds a line source for the given sportsbooks.
func NewOddsAPISource(apiKey string, books []string) *OddsAPISource {
	if len(books) == 0 {
		books = []string{"draftkings", "fanduel"}
	}
	return &OddsAPISource{
		baseURL: oddsAPIURL,
		apiKey:  apiKey,
		books:   books,
		http:    &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
}

// NewOddsAPISourceURL targets an alternate endpoint, for tests.
func NewOddsAPISourceURL(url, apiKey string, books []string) *OddsAPISource {
	s := NewOddsAPISource(apiKey, books)
	s.baseURL = url
	return s
}

type oddsOutcome struct {
	Name  string  `json:"name"`
	Price int     `json:"price"`
	Point float64 `json:"point"`
}

type oddsMarket struct {
	Key      string        `json:"key"`
	Outcomes []oddsOutcome `json:"outcomes"`
}

type oddsBookmaker struct {
	Key     string       `json:"key"`
	Markets []oddsMarket `json:"markets"`
}

type oddsEvent struct {
	HomeTeam   string          `json:"home_team"`
	AwayTeam   string          `json:"away_team"`
	Bookmakers []oddsBookmaker `json:"bookmakers"`
}

func (s *OddsAPISource) Lines(ctx context.Context, games []domain.Game) ([]domain.BettingLine, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("scrape: odds api key not configured")
	}
	url := fmt.Sprintf("%s?apiKey=%s&regions=us&markets=spreads,totals,h2h&oddsFormat=american&bookmakers=%s",
		s.baseURL, s.apiKey, joinBooks(s.books))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape: build odds request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch odds: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape: odds api status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("scrape: read odds: %w", err)
	}
	var events []oddsEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("scrape: decode odds: %w", err)
	}

	fetched := s.now()
	var lines []domain.BettingLine
	for _, event := range events {
		// Events cover the whole sport; keep only games on our slate.
		gameID, ok := reconcile.ResolveGame(event.HomeTeam, games)
		if !ok {
			continue
		}
		for _, bm := range event.Bookmakers {
			for _, market := range bm.Markets {
				lines = append(lines, linesFromMarket(gameID, bm.Key, market.Key, market.Outcomes, event.HomeTeam, fetched)...)
			}
		}
	}
	return lines, nil
}

func linesFromMarket(gameID int64, book, marketKey string, outcomes []oddsOutcome, homeTeam string, fetched time.Time) []domain.BettingLine {
	var market domain.BetType
	switch marketKey {
	case "spreads":
		market = domain.BetSpread
	case "totals":
		market = domain.BetTotal
	case "h2h":
		market = domain.BetMoneyline
	default:
		return nil
	}
	var out []domain.BettingLine
	for _, o := range outcomes {
		// One canonical quote per (game, market, book): the home side
		// for spreads and moneylines, the over for totals.
		switch market {
		case domain.BetTotal:
			if o.Name != "Over" {
				continue
			}
		default:
			if o.Name != homeTeam {
				continue
			}
		}
		out = append(out, domain.BettingLine{
			GameID:    gameID,
			Market:    market,
			Line:      o.Point,
			Odds:      o.Price,
			Book:      book,
			Team:      o.Name,
			FetchedAt: fetched,
		})
	}
	return out
}

func joinBooks(books []string) string {
	out := ""
	for i, b := range books {
		if i > 0 {
			out += ","
		}
		out += b
	}
	return out
}
