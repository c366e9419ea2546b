// Package cache provides TTL-scoped storage for expensive pipeline inputs
// so re-runs within a window reuse scraped lines and research instead of
// refetching them. Corrupt or expired entries read as misses, never errors:
// the pipeline can always fall back to fetching fresh.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kingrea/courtside/internal/domain"
)

// ErrMiss is returned by Get when no usable entry exists for the key.
var ErrMiss = errors.New("cache: miss")

// Default TTLs per cache domain. Lines move throughout the day; research
// is stable for a slate.
const (
	TTLLines    = time.Hour
	TTLResearch = 24 * time.Hour
)

// Store is the cache backend. Get decodes the stored entry into out and
// returns ErrMiss when the key is absent, expired, or undecodable.
// InvalidateAll drops every entry this engine wrote, leaving other tenants
// of a shared backend untouched.
type Store interface {
	Get(ctx context.Context, key string, out any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	InvalidateAll(ctx context.Context) error
}

// keyPrefix scopes every key this engine writes, so InvalidateAll on a
// shared backend only touches our entries.
const keyPrefix = "courtside:"

// Key builds a cache key scoped to a data kind ("lines", "research"), a
// slate date, and the set of games on the slate. Runs over different game
// sets never share entries.
func Key(kind string, date time.Time, games []domain.Game) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, kind, date.Format("2006-01-02"), Fingerprint(games))
}

// Fingerprint hashes the game ID set, order-independent.
func Fingerprint(games []domain.Game) string {
	ids := make([]string, 0, len(games))
	for _, g := range games {
		ids = append(ids, fmt.Sprintf("%d", g.ID))
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])[:16]
}
