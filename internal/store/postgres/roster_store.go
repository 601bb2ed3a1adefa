package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hfchan/whalebot/internal/domain"
)

// RosterStore implements domain.RosterStore using PostgreSQL. Replace
// rewrites the roster wholesale inside a transaction so readers loading on
// restart never see a half-written roster.
type RosterStore struct {
	pool *pgxpool.Pool
}

// NewRosterStore creates a new RosterStore backed by the given connection pool.
func NewRosterStore(pool *pgxpool.Pool) *RosterStore {
	return &RosterStore{pool: pool}
}

// Replace persists a freshly computed roster snapshot.
func (s *RosterStore) Replace(ctx context.Context, roster *domain.TierRoster) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: replace roster: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM tier_rosters`); err != nil {
		return fmt.Errorf("postgres: replace roster: clear: %w", err)
	}

	for _, tf := range domain.Timeframes {
		for rank, m := range roster.Tiers[tf] {
			_, err := tx.Exec(ctx, `
				INSERT INTO tier_rosters (timeframe, rank, wallet, win_rate, trade_count, multiplier, computed_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				string(tf), rank, m.Wallet, m.WinRate, m.TradeCount, m.Multiplier, roster.ComputedAt,
			)
			if err != nil {
				return fmt.Errorf("postgres: replace roster: insert %s/%s: %w", tf, m.Wallet, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: replace roster: commit: %w", err)
	}
	return nil
}

// Load re-derives the roster snapshot from durable storage, preserving the
// per-tier rank order.
func (s *RosterStore) Load(ctx context.Context) (*domain.TierRoster, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT timeframe, wallet, win_rate, trade_count, multiplier, computed_at
		FROM tier_rosters
		ORDER BY timeframe, rank`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load roster: %w", err)
	}
	defer rows.Close()

	roster := domain.EmptyRoster()
	var computedAt time.Time
	for rows.Next() {
		var tf string
		var m domain.RosterMember
		if err := rows.Scan(&tf, &m.Wallet, &m.WinRate, &m.TradeCount, &m.Multiplier, &computedAt); err != nil {
			return nil, fmt.Errorf("postgres: load roster: scan: %w", err)
		}
		key := domain.Timeframe(tf)
		roster.Tiers[key] = append(roster.Tiers[key], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load roster: %w", err)
	}
	roster.ComputedAt = computedAt
	return roster, nil
}

// Compile-time interface check.
var _ domain.RosterStore = (*RosterStore)(nil)
