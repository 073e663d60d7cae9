package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"riskpilot/src/cooldown"
	"riskpilot/src/ledger"
	"riskpilot/src/model"
	"riskpilot/src/repository"
	"riskpilot/src/stats"
)

type ledgerViewer interface {
	Snapshot() ledger.Snapshot
}

type cooldownViewer interface {
	Snapshots() map[string]cooldown.Snapshot
}

type tradeLister interface {
	RecentTrades(ctx context.Context, limit int) ([]model.ClosedTrade, error)
	AllTrades(ctx context.Context) ([]model.ClosedTrade, error)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// AccountHandler returns the current account snapshot without open positions.
func AccountHandler(l ledgerViewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := l.Snapshot()
		writeJSON(w, map[string]interface{}{
			"cash_balance":       snapshot.CashBalance,
			"initial_balance":    snapshot.InitialBalance,
			"realized_pnl_total": snapshot.RealizedPnLTotal,
			"reserved_margin":    snapshot.ReservedMargin,
			"open_positions":     snapshot.OpenCount(),
		})
	}
}

// PositionsHandler lists every open position.
func PositionsHandler(l ledgerViewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, l.Snapshot().Positions)
	}
}

// CooldownsHandler lists every cooldown tracker keyed by scope/key.
func CooldownsHandler(m cooldownViewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, m.Snapshots())
	}
}

// TradesHandler lists closed trades, newest first, bounded by the limit query
// parameter.
func TradesHandler(repo tradeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		trades, err := repo.RecentTrades(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, trades)
	}
}

// StatsHandler summarizes realized performance over the full trade history.
func StatsHandler(repo tradeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trades, err := repo.AllTrades(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to load trade history")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, stats.Compute(trades))
	}
}

// DefaultTradesHandler wires the handler to the production repository implementation.
func DefaultTradesHandler() http.HandlerFunc {
	return TradesHandler(repository.NewLedgerRepository())
}

// DefaultStatsHandler wires the handler to the production repository implementation.
func DefaultStatsHandler() http.HandlerFunc {
	return StatsHandler(repository.NewLedgerRepository())
}
