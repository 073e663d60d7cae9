// Package events is the engine's observability output. Every admission decision,
// cooldown transition and position close is emitted here as a structured logrus
// event and mirrored into Prometheus series served at /metrics.
package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"riskpilot/src/model"
)

var (
	mtxAdmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_admissions_total",
			Help: "Admission decisions by outcome and rejection reason",
		},
		[]string{"outcome", "reason"},
	)

	mtxOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_positions_opened_total",
			Help: "Positions opened by direction",
		},
		[]string{"direction"},
	)

	mtxCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_positions_closed_total",
			Help: "Positions closed by reason and direction",
		},
		[]string{"reason", "direction"},
	)

	mtxCooldowns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_cooldown_transitions_total",
			Help: "Cooldown activations and deactivations by scope and key",
		},
		[]string{"transition", "scope", "key"},
	)

	mtxEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_equity_usd",
			Help: "Current total equity snapshot",
		},
	)

	mtxStaleQuotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_stale_quotes_total",
			Help: "Monitor ticks skipped because price data was stale or missing",
		},
		[]string{"instrument"},
	)

	mtxTrailingUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_trailing_stop_updates_total",
			Help: "Trailing stop revisions applied by direction",
		},
		[]string{"direction"},
	)
)

func init() {
	prometheus.MustRegister(mtxAdmissions, mtxOpens, mtxCloses)
	prometheus.MustRegister(mtxCooldowns, mtxEquity)
	prometheus.MustRegister(mtxStaleQuotes, mtxTrailingUpdates)
}

// AdmissionDecided records one admission controller verdict. Reason is empty
// for admitted entries.
func AdmissionDecided(instrument string, direction model.Direction, admitted bool, reason string) {
	outcome := "admitted"
	if !admitted {
		outcome = "rejected"
	}
	mtxAdmissions.WithLabelValues(outcome, reason).Inc()

	logger.WithFields(map[string]interface{}{
		"event":      "admission",
		"instrument": instrument,
		"direction":  direction,
		"outcome":    outcome,
		"reason":     reason,
	}).Info("Admission decision")
}

// PositionOpened records a filled, ledgered entry.
func PositionOpened(position *model.Position) {
	mtxOpens.WithLabelValues(string(position.Direction)).Inc()

	logger.WithFields(map[string]interface{}{
		"event":       "position_opened",
		"instrument":  position.Instrument,
		"direction":   position.Direction,
		"entry_price": position.EntryPrice,
		"notional":    position.Notional,
		"leverage":    position.Leverage,
		"margin_used": position.MarginUsed,
	}).Info("Position opened")
}

// PositionClosed records a finished trade with its close reason.
func PositionClosed(trade *model.ClosedTrade) {
	mtxCloses.WithLabelValues(string(trade.Reason), string(trade.Direction)).Inc()

	logger.WithFields(map[string]interface{}{
		"event":        "position_closed",
		"instrument":   trade.Instrument,
		"direction":    trade.Direction,
		"exit_price":   trade.ExitPrice,
		"realized_pnl": trade.RealizedPnL,
		"fees":         trade.Fees,
		"reason":       trade.Reason,
	}).Info("Position closed")
}

// CooldownActivated records a breaker trip.
func CooldownActivated(scope, key, reason string, cycles int) {
	mtxCooldowns.WithLabelValues("activated", scope, key).Inc()

	logger.WithFields(map[string]interface{}{
		"event":  "cooldown_activated",
		"scope":  scope,
		"key":    key,
		"reason": reason,
		"cycles": cycles,
	}).Warn("Cooldown activated")
}

// CooldownDeactivated records cycle decay reaching zero.
func CooldownDeactivated(scope, key string) {
	mtxCooldowns.WithLabelValues("deactivated", scope, key).Inc()

	logger.WithFields(map[string]interface{}{
		"event": "cooldown_deactivated",
		"scope": scope,
		"key":   key,
	}).Info("Cooldown deactivated")
}

// EquityUpdated publishes the latest total-equity snapshot.
func EquityUpdated(equity decimal.Decimal) {
	f, _ := equity.Float64()
	mtxEquity.Set(f)
}

// StaleQuote records a monitor tick skipped on missing or stale price data.
func StaleQuote(instrument string) {
	mtxStaleQuotes.WithLabelValues(instrument).Inc()

	logger.WithFields(map[string]interface{}{
		"event":      "stale_quote",
		"instrument": instrument,
	}).Warn("Skipping instrument on stale price data")
}

// TrailingStopUpdated records a monotonic stop revision.
func TrailingStopUpdated(position *model.Position, newStop decimal.Decimal) {
	mtxTrailingUpdates.WithLabelValues(string(position.Direction)).Inc()

	logger.WithFields(map[string]interface{}{
		"event":      "trailing_stop_updated",
		"instrument": position.Instrument,
		"direction":  position.Direction,
		"new_stop":   newStop,
	}).Info("Trailing stop updated")
}
