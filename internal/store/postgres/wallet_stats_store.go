package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hfchan/whalebot/internal/domain"
)

// WalletStatsStore implements domain.WalletStatsStore using PostgreSQL. The
// observed_trades table is the source of truth; wallet_observations holds the
// incrementally maintained per-(wallet, timeframe) aggregate.
type WalletStatsStore struct {
	pool *pgxpool.Pool
}

// NewWalletStatsStore creates a new WalletStatsStore backed by the given
// connection pool.
func NewWalletStatsStore(pool *pgxpool.Pool) *WalletStatsStore {
	return &WalletStatsStore{pool: pool}
}

// RecordPending registers an observed whale trade. Re-recording the same
// trade ID is a no-op reported via first == false, so replayed fill events
// cannot inflate the pending count or the side balance.
func (s *WalletStatsStore) RecordPending(ctx context.Context, obs domain.ObservedTrade) (bool, error) {
	wallet := strings.ToLower(obs.Wallet)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: record pending %s: begin: %w", obs.TradeID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO observed_trades (trade_id, wallet, timeframe, market_id, side, notional, copied, status, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
		ON CONFLICT (trade_id) DO NOTHING`,
		obs.TradeID, wallet, string(obs.Timeframe), obs.MarketID,
		string(obs.Side), obs.Notional, obs.Copied, obs.RecordedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: record pending %s: %w", obs.TradeID, err)
	}
	if tag.RowsAffected() == 0 {
		// Already recorded.
		return false, tx.Commit(ctx)
	}

	buyInc, sellInc := 0, 0
	if obs.Side == domain.TradeSideBuy {
		buyInc = 1
	} else {
		sellInc = 1
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_observations (wallet, timeframe, pending_count, buy_count, sell_count, updated_at)
		VALUES ($1, $2, 1, $3, $4, NOW())
		ON CONFLICT (wallet, timeframe) DO UPDATE SET
			pending_count = wallet_observations.pending_count + 1,
			buy_count     = wallet_observations.buy_count + $3,
			sell_count    = wallet_observations.sell_count + $4,
			updated_at    = NOW()`,
		wallet, string(obs.Timeframe), buyInc, sellInc,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: record pending %s: aggregate: %w", obs.TradeID, err)
	}

	return true, tx.Commit(ctx)
}

// RecordResolved turns a pending observed trade into a win or loss. It is
// idempotent: the conditional UPDATE on status = 'pending' is the gate, and a
// second application for the same trade ID returns applied == false without
// touching the aggregate.
func (s *WalletStatsStore) RecordResolved(ctx context.Context, tradeID string, won bool, profit float64) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: record resolved %s: begin: %w", tradeID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var wallet, timeframe string
	err = tx.QueryRow(ctx, `
		UPDATE observed_trades
		SET status = 'resolved', won = $2, resolved_at = NOW()
		WHERE trade_id = $1 AND status = 'pending'
		RETURNING wallet, timeframe`,
		tradeID, won,
	).Scan(&wallet, &timeframe)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already resolved, or never observed.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: record resolved %s: %w", tradeID, err)
	}

	winInc := 0
	if won {
		winInc = 1
	}

	_, err = tx.Exec(ctx, `
		UPDATE wallet_observations SET
			trade_count   = trade_count + 1,
			win_count     = win_count + $3,
			pending_count = GREATEST(pending_count - 1, 0),
			profit        = profit + $4,
			updated_at    = NOW()
		WHERE wallet = $1 AND timeframe = $2`,
		wallet, timeframe, winInc, profit,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: record resolved %s: aggregate: %w", tradeID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: record resolved %s: commit: %w", tradeID, err)
	}
	return true, nil
}

// Query returns the aggregate for one (wallet, timeframe). A wallet that has
// never been observed returns a zero-valued aggregate, not an error.
func (s *WalletStatsStore) Query(ctx context.Context, wallet string, tf domain.Timeframe) (domain.WalletStats, error) {
	stats := domain.WalletStats{Wallet: strings.ToLower(wallet), Timeframe: tf}

	err := s.pool.QueryRow(ctx, `
		SELECT trade_count, win_count, pending_count, profit, buy_count, sell_count, updated_at
		FROM wallet_observations
		WHERE wallet = $1 AND timeframe = $2`,
		stats.Wallet, string(tf),
	).Scan(
		&stats.TradeCount, &stats.WinCount, &stats.PendingCount,
		&stats.Profit, &stats.BuyCount, &stats.SellCount, &stats.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return domain.WalletStats{}, fmt.Errorf("postgres: query stats %s/%s: %w", wallet, tf, err)
	}
	return stats, nil
}

// QueryTop returns wallets in a timeframe clearing both the trade-count and
// win-rate floors, best win rate first.
func (s *WalletStatsStore) QueryTop(ctx context.Context, q domain.TopQuery) ([]domain.WalletStats, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT wallet, trade_count, win_count, pending_count, profit, buy_count, sell_count, updated_at
		FROM wallet_observations
		WHERE timeframe = $1
		  AND trade_count > 0
		  AND trade_count >= $2
		  AND win_count::float / trade_count >= $3
		ORDER BY win_count::float / trade_count DESC, trade_count DESC
		LIMIT $4`,
		string(q.Timeframe), q.MinTrades, q.MinWinRate, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: query top %s: %w", q.Timeframe, err)
	}
	defer rows.Close()

	var out []domain.WalletStats
	for rows.Next() {
		st := domain.WalletStats{Timeframe: q.Timeframe}
		if err := rows.Scan(
			&st.Wallet, &st.TradeCount, &st.WinCount, &st.PendingCount,
			&st.Profit, &st.BuyCount, &st.SellCount, &st.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: query top %s: scan: %w", q.Timeframe, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListPendingByMarket returns the unresolved observed trades for a market so
// the resolution poller can close them out when the market concludes.
func (s *WalletStatsStore) ListPendingByMarket(ctx context.Context, marketID string) ([]domain.ObservedTrade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT trade_id, wallet, timeframe, market_id, side, notional, copied, status, won, recorded_at, resolved_at
		FROM observed_trades
		WHERE market_id = $1 AND status = 'pending'
		ORDER BY recorded_at`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.ObservedTrade
	for rows.Next() {
		var obs domain.ObservedTrade
		var tf, side, status string
		if err := rows.Scan(
			&obs.TradeID, &obs.Wallet, &tf, &obs.MarketID, &side,
			&obs.Notional, &obs.Copied, &status, &obs.Won,
			&obs.RecordedAt, &obs.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: list pending for market %s: scan: %w", marketID, err)
		}
		obs.Timeframe = domain.Timeframe(tf)
		obs.Side = domain.TradeSide(side)
		obs.Status = domain.ObservedTradeStatus(status)
		out = append(out, obs)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.WalletStatsStore = (*WalletStatsStore)(nil)
