package trailing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"riskpilot/src/connectors"
	"riskpilot/src/events"
	"riskpilot/src/feed"
	"riskpilot/src/ledger"
)

// Monitor sweeps every open position each tick: marks unrealized P&L, closes
// positions whose exit conditions fire and ratchets trailing stops on the
// rest. Errors on one instrument never block the others.
type Monitor struct {
	ledger  *ledger.Ledger
	source  feed.Source
	adapter connectors.ExecutionAdapter
	config  Config
	now     func() time.Time
}

func NewMonitor(l *ledger.Ledger, source feed.Source, adapter connectors.ExecutionAdapter, config Config) *Monitor {
	return &Monitor{
		ledger:  l,
		source:  source,
		adapter: adapter,
		config:  config,
		now:     time.Now,
	}
}

// Sweep runs one monitoring pass over all open positions.
func (m *Monitor) Sweep(ctx context.Context) {
	snapshot := m.ledger.Snapshot()
	now := m.now().UTC()

	for i := range snapshot.Positions {
		position := snapshot.Positions[i]
		log := logger.WithFields(map[string]interface{}{
			"instrument": position.Instrument,
			"direction":  position.Direction,
		})

		quote, ok := m.source.Quote(position.Instrument)
		if !ok || quote.Stale(now, m.config.QuoteMaxAge) {
			events.StaleQuote(position.Instrument)
			continue
		}
		price := quote.Price

		unrealized, err := m.ledger.Mark(ctx, position.Instrument, price)
		if err != nil {
			log.WithError(err).Error("Failed to mark position")
			continue
		}
		// Mark may have advanced the loss cycle counter; re-read before the
		// stagnant-cut check.
		current, exists := m.ledger.Position(position.Instrument)
		if !exists {
			continue
		}

		if reason, exit := ExitReason(&current, price, unrealized, m.config); exit {
			fill, err := m.adapter.SubmitExit(ctx, current.Instrument, current.Quantity, reason)
			if err != nil {
				log.WithError(err).WithField("reason", reason).Error("Failed to submit exit order")
				continue
			}
			if _, err := m.ledger.Close(ctx, current.Instrument, fill.Price, fill.Fee, reason); err != nil {
				log.WithError(err).WithField("reason", reason).Error("Failed to book closed position")
			}
			continue
		}

		if !ShouldTrail(&current, price, now, m.config) {
			continue
		}

		atr, ok := m.atr(current.Instrument)
		if !ok {
			log.Debug("No ATR available, using fallback buffer")
		}
		newStop, moved := NextStop(&current, price, atr, m.config)
		if !moved {
			continue
		}
		if _, err := m.ledger.TightenStop(ctx, current.Instrument, newStop); err != nil {
			log.WithError(err).Error("Failed to persist trailing stop revision")
		}
	}
}

// StartLoop runs Sweep on the given period until the context ends.
func (m *Monitor) StartLoop(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	logger.WithField("period", period).Info("Starting trailing monitor loop")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Trailing monitor loop stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

func (m *Monitor) atr(instrument string) (decimal.Decimal, bool) {
	ind, ok := m.source.Indicators(instrument)
	if !ok {
		return decimal.Zero, false
	}
	return ind.ATR, true
}
