package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hfchan/whalebot/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. The primary key
// on capital_ledger.position_id guarantees at most one delta per position no
// matter how many times a resolution is replayed.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Seed records the starting capital once. Subsequent calls (restarts) are
// no-ops; the original seed survives.
func (s *LedgerStore) Seed(ctx context.Context, starting float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_meta (id, starting_capital)
		VALUES (TRUE, $1)
		ON CONFLICT (id) DO NOTHING`, starting)
	if err != nil {
		return fmt.Errorf("postgres: seed ledger: %w", err)
	}
	return nil
}

// ApplyDelta appends one realized P&L delta. It reports applied == false if a
// delta for this position already exists.
func (s *LedgerStore) ApplyDelta(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO capital_ledger (position_id, delta, outcome, applied_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (position_id) DO NOTHING`,
		entry.PositionID, entry.Delta, string(entry.Outcome), entry.AppliedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: apply ledger delta %s: %w", entry.PositionID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Summary computes current capital as starting plus the sum of all deltas.
func (s *LedgerStore) Summary(ctx context.Context) (domain.LedgerSummary, error) {
	var sum domain.LedgerSummary

	err := s.pool.QueryRow(ctx,
		`SELECT starting_capital FROM ledger_meta WHERE id = TRUE`,
	).Scan(&sum.Starting)
	if err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("postgres: ledger summary: starting: %w", err)
	}

	var total float64
	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(delta), 0),
		       COUNT(*) FILTER (WHERE outcome = 'WIN'),
		       COUNT(*) FILTER (WHERE outcome = 'LOSS'),
		       COALESCE(MAX(applied_at), NOW())
		FROM capital_ledger`,
	).Scan(&total, &sum.Wins, &sum.Losses, &sum.UpdatedAt)
	if err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("postgres: ledger summary: %w", err)
	}

	sum.Current = sum.Starting + total
	return sum, nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
