package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/courtside/internal/domain"
)

const scoreboardURL = "https://site.api.espn.com/apis/site/v2/sports/basketball/mens-college-basketball/scoreboard"

// ESPNSource reads the public scoreboard API.
type ESPNSource struct {
	baseURL string
	http    *http.Client
}

// NewESPNSource builds the default game source.
func NewESPNSource() *ESPNSource {
	return &ESPNSource{
		baseURL: scoreboardURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// NewESPNSourceURL targets an alternate endpoint, for tests.
func NewESPNSourceURL(url string) *ESPNSource {
	s := NewESPNSource()
	s.baseURL = url
	return s
}

type scoreboardResponse struct {
	Events []struct {
		ID           string `json:"id"`
		Competitions []struct {
			Competitors []struct {
				HomeAway string `json:"homeAway"`
				Team     struct {
					DisplayName string `json:"displayName"`
				} `json:"team"`
			} `json:"competitors"`
			Venue struct {
				FullName string `json:"fullName"`
			} `json:"venue"`
		} `json:"competitions"`
		Status struct {
			Type struct {
				ID string `json:"id"`
			} `json:"type"`
		} `json:"status"`
	} `json:"events"`
}

func (s *ESPNSource) Games(ctx context.Context, date time.Time) ([]domain.Game, error) {
	url := fmt.Sprintf("%s?dates=%s&limit=100", s.baseURL, date.Format("20060102"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape: build scoreboard request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch scoreboard: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape: scoreboard status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("scrape: read scoreboard: %w", err)
	}
	var parsed scoreboardResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("scrape: decode scoreboard: %w", err)
	}

	var games []domain.Game
	for _, event := range parsed.Events {
		if len(event.Competitions) == 0 {
			continue
		}
		comp := event.Competitions[0]
		var home, away string
		for _, c := range comp.Competitors {
			if c.HomeAway == "home" {
				home = c.Team.DisplayName
			} else {
				away = c.Team.DisplayName
			}
		}
		if home == "" || away == "" {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(event.ID), 10, 64)
		if err != nil {
			continue
		}
		games = append(games, domain.Game{
			ID:     id,
			Home:   home,
			Away:   away,
			Date:   date,
			Venue:  comp.Venue.FullName,
			Status: statusFromESPN(event.Status.Type.ID),
		})
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("scrape: scoreboard has no games for %s", date.Format("2006-01-02"))
	}
	return games, nil
}

func statusFromESPN(id string) domain.GameStatus {
	switch id {
	case "3":
		return domain.GameFinal
	default:
		return domain.GameScheduled
	}
}
