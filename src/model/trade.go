package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CloseReason describes which path closed a position. Every closure funnels
// through one ClosedTrade event regardless of who triggered it.
type CloseReason string

const (
	CloseReasonSignal      CloseReason = "signal"
	CloseReasonStopLoss    CloseReason = "stop_loss_hit"
	CloseReasonTakeProfit  CloseReason = "take_profit_hit"
	CloseReasonMarginCut   CloseReason = "margin_loss_cut"
	CloseReasonStagnantCut CloseReason = "stagnant_loss_cut"
)

// ClosedTrade is the durable record of a finished position. Rows are inserted
// in close order, so the auto-increment ID doubles as the trade chronology used
// by the cooldown state machine.
type ClosedTrade struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Instrument  string          `gorm:"type:varchar(50);not null;index:idx_closed_trades_instrument" json:"instrument"`
	Direction   Direction       `gorm:"type:varchar(10);not null;index:idx_closed_trades_direction" json:"direction"`
	EntryPrice  decimal.Decimal `gorm:"type:double precision;not null" json:"entry_price"`
	ExitPrice   decimal.Decimal `gorm:"type:double precision;not null" json:"exit_price"`
	Quantity    decimal.Decimal `gorm:"type:double precision;not null" json:"quantity"`
	Leverage    int             `gorm:"not null" json:"leverage"`
	MarginUsed  decimal.Decimal `gorm:"type:double precision;not null" json:"margin_used"`
	Notional    decimal.Decimal `gorm:"type:double precision;not null" json:"notional"`
	RealizedPnL decimal.Decimal `gorm:"type:double precision;not null" json:"realized_pnl"`
	Fees        decimal.Decimal `gorm:"type:double precision;not null" json:"fees"`
	Reason      CloseReason     `gorm:"type:varchar(30);not null" json:"reason"`
	OpenedAt    time.Time       `gorm:"not null" json:"opened_at"`
	ClosedAt    time.Time       `gorm:"not null;index:idx_closed_trades_closed_at" json:"closed_at"`
}

func (ClosedTrade) TableName() string {
	return "closed_trades"
}

// IsLoss reports whether the trade realized a negative P&L.
func (t *ClosedTrade) IsLoss() bool {
	return t.RealizedPnL.IsNegative()
}
