// Package decider is the boundary to the strategy brain. The engine assembles
// a Context, the Provider returns Decisions, and validation at this boundary
// turns any malformed decision into a rejection instead of an engine error.
package decider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"riskpilot/src/cooldown"
	"riskpilot/src/ledger"
	"riskpilot/src/model"
	"riskpilot/src/stats"
)

var ErrProviderUnavailable = errors.New("decision provider unavailable")

// Action is what the provider wants done with an instrument.
type Action string

const (
	ActionEnter Action = "enter"
	ActionClose Action = "close"
	ActionHold  Action = "hold"
)

// Context is everything the provider sees for one decision cycle.
type Context struct {
	Account      ledger.Snapshot              `json:"account"`
	Cooldowns    map[string]cooldown.Snapshot `json:"cooldowns"`
	Indicators   []model.IndicatorSnapshot    `json:"indicators"`
	RecentTrades []model.ClosedTrade          `json:"recent_trades"`
	Performance  stats.Summary                `json:"performance"`
}

// Decision is one instruction from the provider. Enter decisions carry sizing
// and protective levels; close decisions only need the instrument.
type Decision struct {
	Action       Action          `json:"action"`
	Instrument   string          `json:"instrument"`
	Direction    model.Direction `json:"direction,omitempty"`
	Confidence   float64         `json:"confidence,omitempty"`
	Leverage     int             `json:"leverage,omitempty"`
	NotionalUSD  decimal.Decimal `json:"notional_usd,omitempty"`
	StopLoss     decimal.Decimal `json:"stop_loss,omitempty"`
	ProfitTarget decimal.Decimal `json:"profit_target,omitempty"`
	Rationale    string          `json:"rationale,omitempty"`
}

// Provider produces decisions from a context. Implementations may call out to
// a model service or replay a fixed script.
type Provider interface {
	Decide(ctx context.Context, decisionCtx Context) ([]Decision, error)
}

// Validate checks an enter decision's structural soundness. A nil error means
// the decision can become an admission proposal; any error maps to the
// malformed-input rejection.
func Validate(d Decision) error {
	if d.Instrument == "" {
		return errors.New("decision missing instrument")
	}
	switch d.Action {
	case ActionClose, ActionHold:
		return nil
	case ActionEnter:
	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}

	if !d.Direction.Valid() {
		return fmt.Errorf("invalid direction %q", d.Direction)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", d.Confidence)
	}
	if d.Leverage < 1 {
		return fmt.Errorf("leverage %d below 1", d.Leverage)
	}
	if !d.NotionalUSD.IsPositive() {
		return fmt.Errorf("notional %s not positive", d.NotionalUSD)
	}
	if !d.StopLoss.IsPositive() || !d.ProfitTarget.IsPositive() {
		return errors.New("enter decision requires positive stop loss and profit target")
	}

	switch d.Direction {
	case model.DirectionLong:
		if d.StopLoss.GreaterThanOrEqual(d.ProfitTarget) {
			return errors.New("long stop loss must sit below profit target")
		}
	case model.DirectionShort:
		if d.StopLoss.LessThanOrEqual(d.ProfitTarget) {
			return errors.New("short stop loss must sit above profit target")
		}
	}
	return nil
}
