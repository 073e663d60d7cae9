package connectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"riskpilot/src/feed"
	"riskpilot/src/model"
)

// SimulatedAdapter fills orders instantaneously at the quoted price, with a
// configurable taker fee and slippage in basis points. It remembers fills by
// idempotency key so reconciliation behaves like a real exchange.
type SimulatedAdapter struct {
	mu          sync.Mutex
	source      feed.Source
	feeBps      decimal.Decimal
	slippageBps decimal.Decimal
	fills       map[string]*Fill
}

func NewSimulatedAdapter(source feed.Source, feeBps, slippageBps decimal.Decimal) *SimulatedAdapter {
	return &SimulatedAdapter{
		source:      source,
		feeBps:      feeBps,
		slippageBps: slippageBps,
		fills:       make(map[string]*Fill),
	}
}

const bpsDenominator = 10000

func (a *SimulatedAdapter) SubmitEntry(_ context.Context, order EntryOrder) (*Fill, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Idempotent: resubmitting an already-filled key returns the same fill.
	if fill, ok := a.fills[order.IdempotencyKey]; ok {
		return fill, nil
	}

	quote, ok := a.source.Quote(order.Instrument)
	if !ok {
		return nil, fmt.Errorf("%w: no quote for %s", ErrExecutionFailed, order.Instrument)
	}

	price := a.slip(quote.Price, order.Direction, true)
	fill := &Fill{
		Price:     price,
		Quantity:  order.NotionalUSD.Div(price),
		Fee:       a.fee(order.NotionalUSD),
		Timestamp: time.Now().UTC(),
	}
	a.fills[order.IdempotencyKey] = fill

	logger.WithFields(map[string]interface{}{
		"connector":  "simulated",
		"instrument": order.Instrument,
		"direction":  order.Direction,
		"price":      price,
	}).Debug("Simulated entry fill")

	return fill, nil
}

func (a *SimulatedAdapter) SubmitExit(_ context.Context, instrument string, quantity decimal.Decimal, reason model.CloseReason) (*Fill, error) {
	quote, ok := a.source.Quote(instrument)
	if !ok {
		return nil, fmt.Errorf("%w: no quote for %s", ErrExecutionFailed, instrument)
	}

	logger.WithFields(map[string]interface{}{
		"connector":  "simulated",
		"instrument": instrument,
		"reason":     reason,
	}).Debug("Simulated exit fill")

	return &Fill{
		Price:     quote.Price,
		Quantity:  quantity,
		Fee:       a.fee(quote.Price.Mul(quantity)),
		Timestamp: time.Now().UTC(),
	}, nil
}

func (a *SimulatedAdapter) LookupEntry(_ context.Context, idempotencyKey string) (*Fill, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fill, ok := a.fills[idempotencyKey]
	return fill, ok, nil
}

func (a *SimulatedAdapter) fee(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(a.feeBps).Div(decimal.NewFromInt(bpsDenominator))
}

// slip nudges the fill price against the taker: entries pay up, exits receive
// less, mirroring real taker flow.
func (a *SimulatedAdapter) slip(price decimal.Decimal, direction model.Direction, entry bool) decimal.Decimal {
	if a.slippageBps.IsZero() {
		return price
	}
	adjust := price.Mul(a.slippageBps).Div(decimal.NewFromInt(bpsDenominator))
	adverse := direction == model.DirectionLong
	if !entry {
		adverse = !adverse
	}
	if adverse {
		return price.Add(adjust)
	}
	return price.Sub(adjust)
}
