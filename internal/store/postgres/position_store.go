package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hfchan/whalebot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Terminal
// transitions are conditional updates on status = 'PENDING'; once a position
// is RESOLVED or CANCELLED no statement in this store can change it again.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, market_id, token_id, side, quantity, entry_price,
	total_cost, whale, confidence, tier, timeframe, status, outcome, pnl,
	needs_review, opened_at, est_resolution, resolved_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, tier, timeframe, status string
	var outcome *string

	err := row.Scan(
		&p.ID, &p.MarketID, &p.TokenID, &side, &p.Quantity, &p.EntryPrice,
		&p.TotalCost, &p.Whale, &p.Confidence, &tier, &timeframe, &status,
		&outcome, &p.PnL, &p.NeedsReview, &p.OpenedAt, &p.EstResolution,
		&p.ResolvedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.TradeSide(side)
	p.Tier = domain.Timeframe(tier)
	p.Timeframe = domain.Timeframe(timeframe)
	p.Status = domain.PositionStatus(status)
	if outcome != nil {
		o := domain.Outcome(*outcome)
		p.Outcome = &o
	}
	return p, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts a new PENDING position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, market_id, token_id, side, quantity, entry_price, total_cost,
			whale, confidence, tier, timeframe, status, needs_review,
			opened_at, est_resolution, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, FALSE,
			$13, $14, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MarketID, p.TokenID, string(p.Side), p.Quantity, p.EntryPrice,
		p.TotalCost, p.Whale, p.Confidence, string(p.Tier), string(p.Timeframe),
		string(p.Status), p.OpenedAt, p.EstResolution,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns a position or domain.ErrNotFound.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// MarkResolved transitions PENDING → RESOLVED, setting outcome and pnl. It
// reports applied == false when the position was already terminal, which
// makes reprocessing an already-resolved position a no-op.
func (s *PositionStore) MarkResolved(ctx context.Context, id string, outcome domain.Outcome, pnl float64, at time.Time) (bool, error) {
	const query = `
		UPDATE positions SET
			status      = 'RESOLVED',
			outcome     = $2,
			pnl         = $3,
			resolved_at = $4,
			updated_at  = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := s.pool.Exec(ctx, query, id, string(outcome), pnl, at)
	if err != nil {
		return false, fmt.Errorf("postgres: resolve position %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCancelled transitions PENDING → CANCELLED. Like MarkResolved it is
// gated on the position still being PENDING.
func (s *PositionStore) MarkCancelled(ctx context.Context, id string) (bool, error) {
	const query = `
		UPDATE positions SET
			status     = 'CANCELLED',
			updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("postgres: cancel position %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkNeedsReview flags a stale pending position for manual reconciliation.
func (s *PositionStore) MarkNeedsReview(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE positions SET needs_review = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return fmt.Errorf("postgres: flag position %s: %w", id, err)
	}
	return nil
}

// ListPending returns every open position.
func (s *PositionStore) ListPending(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'PENDING' ORDER BY est_resolution`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending positions: %w", err)
	}
	return collectPositions(rows)
}

// ListPendingDue returns open positions whose estimated resolution is at or
// before dueBy, soonest first.
func (s *PositionStore) ListPendingDue(ctx context.Context, dueBy time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'PENDING' AND est_resolution <= $1
		 ORDER BY est_resolution`, dueBy)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due positions: %w", err)
	}
	return collectPositions(rows)
}

// CountPending returns the number of open positions.
func (s *PositionStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM positions WHERE status = 'PENDING'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count pending positions: %w", err)
	}
	return n, nil
}

// ListResolvedBefore returns terminal positions resolved before the cutoff,
// oldest first, for archival.
func (s *PositionStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Position, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'RESOLVED' AND resolved_at < $1
		 ORDER BY resolved_at
		 LIMIT $2 OFFSET $3`, cutoff, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved positions: %w", err)
	}
	return collectPositions(rows)
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
