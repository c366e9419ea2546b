package reconcile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kingrea/courtside/internal/domain"
)

// DefaultOdds is the standard price substituted when a stage emits odds the
// parser cannot read ("market_unavailable", "N/A", garbage).
const DefaultOdds = -110

var (
	numberPattern   = regexp.MustCompile(`[+-]?\d+\.?\d*`)
	bigOddsPattern  = regexp.MustCompile(`[+-]\d{3,}`)
	punctuation     = regexp.MustCompile(`['’.]`)
	nonAlphaNumeric = regexp.MustCompile(`[^a-z0-9 ]+`)
	multiSpace      = regexp.MustCompile(`\s+`)
)

// ParseOdds normalizes an American odds string to a signed integer.
// Malformed or unavailable odds yield fallback (use DefaultOdds) rather
// than an error: a bad price should never sink an otherwise good record.
func ParseOdds(s string, fallback int) int {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "", "market_unavailable", "unavailable", "n/a", "na", "none":
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimPrefix(trimmed, "+"))
	if err != nil || value == 0 {
		return fallback
	}
	return value
}

// ExtractLine pulls the signed line value out of free selection text:
// "App State +3.5" → 3.5, "Over 145.5" → 145.5. The second return is false
// when the text carries no number ("App State ML"), which is fine for
// moneyline bets and fatal for spread/total matching.
func ExtractLine(selection string) (float64, bool) {
	match := numberPattern.FindString(selection)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// InferBetType guesses the market from selection text when a stage omits
// the bet_type field. Over/under means total; an explicit ML marker or a
// bare three-digit price means moneyline; everything else is a spread.
func InferBetType(selection string) domain.BetType {
	lower := strings.ToLower(selection)
	if strings.Contains(lower, "over") || strings.Contains(lower, "under") {
		return domain.BetTotal
	}
	if strings.Contains(lower, "moneyline") || hasStandaloneML(lower) {
		return domain.BetMoneyline
	}
	if bigOddsPattern.MatchString(lower) &&
		!strings.Contains(lower, "spread") && !strings.Contains(lower, "total") {
		return domain.BetMoneyline
	}
	return domain.BetSpread
}

func hasStandaloneML(lower string) bool {
	for _, field := range strings.Fields(lower) {
		if field == "ml" {
			return true
		}
	}
	return false
}

// ParseBetType validates an explicit bet_type string, falling back to
// spread when it is empty or unknown.
func ParseBetType(s string) domain.BetType {
	t := domain.BetType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return domain.BetSpread
}

// teamPrefixes are club designators stripped before comparison so
// "St. Mary's Gaels" and "Saint Marys" land on the same token stream.
var teamPrefixes = []string{"the "}

// teamSuffixes commonly appended by one source but not another.
var teamSuffixes = []string{" university", " college", " state u"}

// NormalizeTeam lowercases a team name and strips punctuation, extra
// whitespace, and filler designators so containment checks are stable
// across independently-evolving producers.
func NormalizeTeam(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "&", " and ")
	s = punctuation.ReplaceAllString(s, "")
	s = nonAlphaNumeric.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	for _, prefix := range teamPrefixes {
		s = strings.TrimPrefix(s, prefix)
	}
	for _, suffix := range teamSuffixes {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}

// ResolveGame maps a stage's game reference onto a known game ID.
// Resolution order: numeric ID (decimal string) first, then fuzzy matching
// on normalized team names — equality or containment against either team,
// or against the "away_home" pair string some producers emit. No match
// returns ok=false; callers drop and log the record, never fabricate one.
func ResolveGame(ref string, games []domain.Game) (int64, bool) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		for _, g := range games {
			if g.ID == id {
				return id, true
			}
		}
		return 0, false
	}

	norm := NormalizeTeam(trimmed)
	if norm == "" {
		return 0, false
	}
	for _, g := range games {
		home := NormalizeTeam(g.Home)
		away := NormalizeTeam(g.Away)
		if norm == home || norm == away {
			return g.ID, true
		}
		pair := away + " " + home
		reversed := home + " " + away
		if strings.Contains(pair, norm) || strings.Contains(reversed, norm) ||
			strings.Contains(norm, pair) || strings.Contains(norm, reversed) {
			return g.ID, true
		}
		if teamContains(home, norm) || teamContains(away, norm) {
			return g.ID, true
		}
	}

	// Pair references with shortened names ("App State @ Duke") resolve
	// through either side.
	lower := strings.ToLower(trimmed)
	for _, sep := range []string{"@", " vs. ", " vs "} {
		idx := strings.Index(lower, sep)
		if idx < 0 {
			continue
		}
		if id, ok := ResolveGame(trimmed[:idx], games); ok {
			return id, true
		}
		if id, ok := ResolveGame(trimmed[idx+len(sep):], games); ok {
			return id, true
		}
	}
	return 0, false
}

// teamContains guards plain substring containment against trivially short
// fragments matching everything.
func teamContains(team, candidate string) bool {
	if len(candidate) < 4 {
		return false
	}
	return strings.Contains(team, candidate) || strings.Contains(candidate, team)
}
