package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kingrea/courtside/internal/domain"
)

type linesPayload struct {
	Lines []domain.BettingLine `json:"lines"`
}

func TestMemoryHitBeforeExpiry(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	clock := now
	m := NewMemory(WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	in := linesPayload{Lines: []domain.BettingLine{{GameID: 42, Market: domain.BetSpread, Line: -3.5}}}
	if err := m.Set(ctx, "k", in, TTLLines); err != nil {
		t.Fatalf("set: %v", err)
	}

	clock = now.Add(TTLLines - time.Second)
	var out linesPayload
	if err := m.Get(ctx, "k", &out); err != nil {
		t.Fatalf("get just before expiry: %v", err)
	}
	if len(out.Lines) != 1 || out.Lines[0].Line != -3.5 {
		t.Fatalf("payload round-trip: %+v", out)
	}
}

func TestMemoryMissAfterExpiry(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	clock := now
	m := NewMemory(WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	if err := m.Set(ctx, "k", linesPayload{}, TTLLines); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock = now.Add(TTLLines)
	var out linesPayload
	if err := m.Get(ctx, "k", &out); !errors.Is(err, ErrMiss) {
		t.Fatalf("get at expiry = %v, want ErrMiss", err)
	}
}

func TestMemoryCorruptEntryIsMiss(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Set(ctx, "k", linesPayload{}, TTLResearch); err != nil {
		t.Fatalf("set: %v", err)
	}
	m.Corrupt("k")
	var out linesPayload
	if err := m.Get(ctx, "k", &out); !errors.Is(err, ErrMiss) {
		t.Fatalf("corrupt get = %v, want ErrMiss", err)
	}
}

func TestMemoryMissUnknownKey(t *testing.T) {
	m := NewMemory()
	var out linesPayload
	if err := m.Get(context.Background(), "nope", &out); !errors.Is(err, ErrMiss) {
		t.Fatalf("get = %v, want ErrMiss", err)
	}
}

func TestMemoryInvalidateAll(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, k := range []string{"courtside:lines:a", "courtside:research:b"} {
		if err := m.Set(ctx, k, linesPayload{}, TTLResearch); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if err := m.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	var out linesPayload
	for _, k := range []string{"courtside:lines:a", "courtside:research:b"} {
		if err := m.Get(ctx, k, &out); !errors.Is(err, ErrMiss) {
			t.Fatalf("get %s after invalidate = %v, want ErrMiss", k, err)
		}
	}
	// The store stays usable afterwards.
	if err := m.Set(ctx, "courtside:lines:a", linesPayload{}, TTLLines); err != nil {
		t.Fatalf("set after invalidate: %v", err)
	}
	if err := m.Get(ctx, "courtside:lines:a", &out); err != nil {
		t.Fatalf("get after re-set: %v", err)
	}
}

func TestKeyScoping(t *testing.T) {
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	slateA := []domain.Game{{ID: 42}, {ID: 43}}
	slateB := []domain.Game{{ID: 42}, {ID: 44}}

	a := Key("lines", date, slateA)
	b := Key("lines", date, slateB)
	if a == b {
		t.Fatal("different game sets share a key")
	}
	if Key("research", date, slateA) == a {
		t.Fatal("different domains share a key")
	}
	if Key("lines", date.AddDate(0, 0, 1), slateA) == a {
		t.Fatal("different dates share a key")
	}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := Fingerprint([]domain.Game{{ID: 42}, {ID: 43}})
	b := Fingerprint([]domain.Game{{ID: 43}, {ID: 42}})
	if a != b {
		t.Fatalf("fingerprint depends on order: %s vs %s", a, b)
	}
}
