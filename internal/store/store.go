// Package store persists run artifacts: the final CardReview per date and
// bankroll snapshots. The controller writes one review at Finalize and
// reads the latest bankroll at run start.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kingrea/courtside/internal/domain"
)

// ErrNotFound is returned when no record exists for the query.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence backend.
type Store interface {
	SaveReview(ctx context.Context, review domain.CardReview) error
	ReviewByDate(ctx context.Context, date time.Time) (domain.CardReview, error)
	SaveBankroll(ctx context.Context, state domain.BankrollState) error
	LatestBankroll(ctx context.Context) (domain.BankrollState, error)
	Close() error
}
