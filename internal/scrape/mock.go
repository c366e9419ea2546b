package scrape

import (
	"context"
	"math/rand"
	"time"

	"github.com/kingrea/courtside/internal/domain"
)

// mockMatchups is a fixed rivalry slate the generator draws from.
var mockMatchups = []struct {
	home, away, venue string
}{
	{"Duke Blue Devils", "North Carolina Tar Heels", "Cameron Indoor Stadium"},
	{"Kentucky Wildcats", "Louisville Cardinals", "Rupp Arena"},
	{"Kansas Jayhawks", "Baylor Bears", "Allen Fieldhouse"},
	{"Gonzaga Bulldogs", "Saint Marys Gaels", "McCarthey Athletic Center"},
	{"Purdue Boilermakers", "Indiana Hoosiers", "Mackey Arena"},
}

// MockSource generates a deterministic slate for a date: the same date
// always yields the same games, IDs, and lines, so offline runs and tests
// are reproducible.
type MockSource struct{}

// NewMockSource returns the fallback source.
func NewMockSource() *MockSource {
	return &MockSource{}
}

func (m *MockSource) Games(_ context.Context, date time.Time) ([]domain.Game, error) {
	base := int64(date.Year())*10000 + int64(date.YearDay())*10
	games := make([]domain.Game, 0, len(mockMatchups))
	for i, mu := range mockMatchups {
		games = append(games, domain.Game{
			ID:     base + int64(i),
			Home:   mu.home,
			Away:   mu.away,
			Date:   date,
			Venue:  mu.venue,
			Status: domain.GameScheduled,
		})
	}
	return games, nil
}

func (m *MockSource) Lines(_ context.Context, games []domain.Game) ([]domain.BettingLine, error) {
	var lines []domain.BettingLine
	for _, g := range games {
		rng := rand.New(rand.NewSource(g.ID))
		spread := -(float64(rng.Intn(28)) + 2) / 2 // home favored, half-point steps
		total := 130 + float64(rng.Intn(30)) + 0.5
		mlHome := -110 - rng.Intn(200)
		for _, book := range []string{"draftkings", "fanduel"} {
			fetched := g.Date
			lines = append(lines,
				domain.BettingLine{GameID: g.ID, Market: domain.BetSpread, Line: spread, Odds: -110, Book: book, Team: g.Home, FetchedAt: fetched},
				domain.BettingLine{GameID: g.ID, Market: domain.BetTotal, Line: total, Odds: -110, Book: book, FetchedAt: fetched},
				domain.BettingLine{GameID: g.ID, Market: domain.BetMoneyline, Odds: mlHome, Book: book, Team: g.Home, FetchedAt: fetched},
			)
		}
	}
	return lines, nil
}
