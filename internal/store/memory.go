package store

import (
	"context"
	"sync"
	"time"

	"github.com/kingrea/courtside/internal/domain"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store for runs without a database and for tests.
type Memory struct {
	mu        sync.Mutex
	reviews   map[string]domain.CardReview
	bankrolls []domain.BankrollState
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{reviews: map[string]domain.CardReview{}}
}

func (m *Memory) SaveReview(_ context.Context, review domain.CardReview) error {
	m.mu.Lock()
	m.reviews[review.Date.Format("2006-01-02")] = review
	m.mu.Unlock()
	return nil
}

func (m *Memory) ReviewByDate(_ context.Context, date time.Time) (domain.CardReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	review, ok := m.reviews[date.Format("2006-01-02")]
	if !ok {
		return domain.CardReview{}, ErrNotFound
	}
	return review, nil
}

func (m *Memory) SaveBankroll(_ context.Context, state domain.BankrollState) error {
	m.mu.Lock()
	m.bankrolls = append(m.bankrolls, state)
	m.mu.Unlock()
	return nil
}

func (m *Memory) LatestBankroll(_ context.Context) (domain.BankrollState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bankrolls) == 0 {
		return domain.BankrollState{}, ErrNotFound
	}
	latest := m.bankrolls[0]
	for _, s := range m.bankrolls[1:] {
		if s.AsOf.After(latest.AsOf) {
			latest = s
		}
	}
	return latest, nil
}

func (m *Memory) Close() error {
	return nil
}
