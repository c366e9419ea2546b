package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kingrea/courtside/internal/domain"
)

var _ Store = (*Postgres)(nil)

// Postgres persists artifacts in PostgreSQL. Reviews are stored as one
// JSONB document per date; bankroll snapshots are append-only rows.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection, verifies it, and ensures the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	s := &Postgres{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	return s, nil
}

func (s *Postgres) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS card_reviews (
		review_date DATE PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS bankroll_snapshots (
		id SERIAL PRIMARY KEY,
		balance DECIMAL(14, 2) NOT NULL,
		unit_size DECIMAL(14, 2) NOT NULL,
		mode VARCHAR(32) NOT NULL,
		as_of TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_bankroll_snapshots_as_of ON bankroll_snapshots(as_of);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// SaveReview upserts the review for its date: a re-run of the same date
// replaces the earlier artifact.
func (s *Postgres) SaveReview(ctx context.Context, review domain.CardReview) error {
	payload, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("store: encode review: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO card_reviews (review_date, run_id, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (review_date)
		DO UPDATE SET run_id = EXCLUDED.run_id, payload = EXCLUDED.payload, created_at = NOW()`,
		review.Date.Format("2006-01-02"), review.RunID, payload)
	if err != nil {
		return fmt.Errorf("store: save review %s: %w", review.Date.Format("2006-01-02"), err)
	}
	return nil
}

func (s *Postgres) ReviewByDate(ctx context.Context, date time.Time) (domain.CardReview, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM card_reviews WHERE review_date = $1`,
		date.Format("2006-01-02")).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.CardReview{}, ErrNotFound
	}
	if err != nil {
		return domain.CardReview{}, fmt.Errorf("store: load review: %w", err)
	}
	var review domain.CardReview
	if err := json.Unmarshal(payload, &review); err != nil {
		return domain.CardReview{}, fmt.Errorf("store: decode review: %w", err)
	}
	return review, nil
}

func (s *Postgres) SaveBankroll(ctx context.Context, state domain.BankrollState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bankroll_snapshots (balance, unit_size, mode, as_of)
		VALUES ($1, $2, $3, $4)`,
		state.Balance, state.UnitSize, string(state.Mode), state.AsOf)
	if err != nil {
		return fmt.Errorf("store: save bankroll: %w", err)
	}
	return nil
}

func (s *Postgres) LatestBankroll(ctx context.Context) (domain.BankrollState, error) {
	var (
		state domain.BankrollState
		mode  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT balance, unit_size, mode, as_of
		FROM bankroll_snapshots
		ORDER BY as_of DESC, id DESC
		LIMIT 1`).Scan(&state.Balance, &state.UnitSize, &mode, &state.AsOf)
	if err == sql.ErrNoRows {
		return domain.BankrollState{}, ErrNotFound
	}
	if err != nil {
		return domain.BankrollState{}, fmt.Errorf("store: load bankroll: %w", err)
	}
	state.Mode = domain.RiskMode(mode)
	return state, nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}
