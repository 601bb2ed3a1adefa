package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hfchan/whalebot/internal/domain"
	"github.com/hfchan/whalebot/internal/service"
)

// StatusHandler exposes the operator's view: capital, win/loss record,
// the current rosters, pending positions, and the breaker.
type StatusHandler struct {
	ledger    domain.LedgerStore
	positions domain.PositionStore
	tiers     *service.TierService
	lifecycle *service.LifecycleService
	logger    *slog.Logger
}

func NewStatusHandler(
	ledger domain.LedgerStore,
	positions domain.PositionStore,
	tiers *service.TierService,
	lifecycle *service.LifecycleService,
	logger *slog.Logger,
) *StatusHandler {
	return &StatusHandler{
		ledger:    ledger,
		positions: positions,
		tiers:     tiers,
		lifecycle: lifecycle,
		logger:    logger.With("handler", "status"),
	}
}

// Status summarizes the system state.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sum, err := h.ledger.Summary(ctx)
	if err != nil {
		h.logger.Error("ledger summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	pending, err := h.positions.CountPending(ctx)
	if err != nil {
		h.logger.Error("pending count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "positions unavailable")
		return
	}

	roster := h.tiers.Roster()
	tiers := make(map[string]any, len(roster.Tiers))
	for tf, members := range roster.Tiers {
		out := make([]map[string]any, 0, len(members))
		for _, m := range members {
			out = append(out, map[string]any{
				"wallet":   m.Wallet,
				"win_rate": m.WinRate,
				"trades":   m.TradeCount,
			})
		}
		tiers[string(tf)] = out
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"capital": map[string]any{
			"starting": sum.Starting,
			"current":  sum.Current,
			"pnl":      sum.RealizedPnL(),
			"drawdown": sum.DrawdownFraction(),
		},
		"record": map[string]any{
			"wins":   sum.Wins,
			"losses": sum.Losses,
		},
		"pending_positions": pending,
		"breaker_tripped":   h.lifecycle.BreakerTripped(),
		"tiers":             tiers,
		"roster_computed":   roster.ComputedAt,
	})
}

// ListPending returns the open positions.
// GET /api/positions
func (h *StatusHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListPending(r.Context())
	if err != nil {
		h.logger.Error("list pending failed", "error", err)
		writeError(w, http.StatusInternalServerError, "positions unavailable")
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// ClearBreaker re-arms copying after operator review.
// POST /api/breaker/clear
func (h *StatusHandler) ClearBreaker(w http.ResponseWriter, r *http.Request) {
	h.lifecycle.ClearBreaker(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"breaker_tripped": h.lifecycle.BreakerTripped(),
	})
}

// CancelPosition voids a pending position that will never resolve,
// typically one flagged needs_review. No capital moves; an
// already-terminal position is left as is.
// POST /api/positions/{id}/cancel
func (h *StatusHandler) CancelPosition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if _, err := h.positions.GetByID(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.Error("load position failed", "position_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "positions unavailable")
		return
	}

	if err := h.lifecycle.Cancel(ctx, id, "operator_cancel"); err != nil {
		h.logger.Error("cancel position failed", "position_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}

	pos, err := h.positions.GetByID(ctx, id)
	if err != nil {
		h.logger.Error("reload position failed", "position_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "positions unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position_id": pos.ID,
		"status":      pos.Status,
	})
}
