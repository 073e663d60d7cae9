// Package admission gate-keeps proposed entries. The checks are pure functions
// of their snapshot inputs; the controller wraps them with capacity
// reservation, the out-of-lock execution call and compensating rollback.
package admission

import (
	"github.com/shopspring/decimal"

	"riskpilot/src/cooldown"
	"riskpilot/src/ledger"
	"riskpilot/src/model"
	"riskpilot/src/risk"
)

// RejectionReason enumerates why a proposal was refused. Rejections are
// expected outcomes, not errors; the decision simply is not executed.
type RejectionReason string

const (
	ReasonMalformedInput       RejectionReason = "malformed_input"
	ReasonLowConfidence        RejectionReason = "low_confidence"
	ReasonDirectionalCooldown  RejectionReason = "directional_cooldown"
	ReasonInstrumentCooldown   RejectionReason = "instrument_cooldown"
	ReasonPortfolioFull        RejectionReason = "portfolio_full"
	ReasonDirectionSlotsFull   RejectionReason = "direction_slots_full"
	ReasonInsufficientCapacity RejectionReason = "insufficient_capacity"
	ReasonLeverageExceeded     RejectionReason = "leverage_exceeded"
	ReasonDuplicatePosition    RejectionReason = "duplicate_position"
)

// Proposal is a validated entry request. Construction happens at the decision
// boundary; by the time a Proposal reaches Check its fields are well-formed.
type Proposal struct {
	Instrument   string
	Direction    model.Direction
	Confidence   float64
	Leverage     int
	NotionalUSD  decimal.Decimal
	StopLoss     decimal.Decimal
	ProfitTarget decimal.Decimal
}

// Margin is the capital the proposal would reserve from cash.
func (p Proposal) Margin() decimal.Decimal {
	if p.Leverage < 1 {
		return p.NotionalUSD
	}
	return p.NotionalUSD.Div(decimal.NewFromInt(int64(p.Leverage)))
}

// Verdict is the admission outcome. Reason is empty when admitted.
type Verdict struct {
	Admitted bool
	Reason   RejectionReason
}

func admitted() Verdict                       { return Verdict{Admitted: true} }
func rejected(reason RejectionReason) Verdict { return Verdict{Reason: reason} }

// Check runs the ordered admission rules against the given snapshots. The
// first failing rule is the rejection reason; later rules are not consulted.
func Check(
	proposal Proposal,
	ledgerSnap ledger.Snapshot,
	directionCD cooldown.Snapshot,
	instrumentCD cooldown.Snapshot,
	limits risk.Limits,
) Verdict {
	if proposal.Confidence < limits.MinConfidence {
		return rejected(ReasonLowConfidence)
	}
	if directionCD.Active {
		return rejected(ReasonDirectionalCooldown)
	}
	if instrumentCD.Active {
		return rejected(ReasonInstrumentCooldown)
	}
	if ledgerSnap.OpenCount() >= limits.MaxPositions {
		return rejected(ReasonPortfolioFull)
	}
	if ledgerSnap.DirectionCount(proposal.Direction) >= limits.MaxSameDirection {
		return rejected(ReasonDirectionSlotsFull)
	}
	if proposal.NotionalUSD.GreaterThan(limits.MaxTradeNotionalUSD) {
		return rejected(ReasonInsufficientCapacity)
	}
	margin := proposal.Margin()
	spendable := ledgerSnap.CashBalance.Sub(ledgerSnap.ReservedMargin).Sub(limits.CashProtectionFloor)
	if margin.GreaterThan(spendable) {
		return rejected(ReasonInsufficientCapacity)
	}
	if margin.LessThan(limits.MinPositionMarginUSD) {
		return rejected(ReasonInsufficientCapacity)
	}
	if proposal.Leverage > limits.MaxLeverage {
		return rejected(ReasonLeverageExceeded)
	}
	if ledgerSnap.Has(proposal.Instrument) {
		return rejected(ReasonDuplicatePosition)
	}
	return admitted()
}
