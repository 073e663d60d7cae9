package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a leveraged position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Sign returns +1 for longs and -1 for shorts, as a decimal multiplier for P&L math.
func (d Direction) Sign() decimal.Decimal {
	if d == DirectionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Valid reports whether the direction is one of the two known sides.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// Position is an open leveraged exposure in one instrument. There is at most one
// open position per instrument; hedging both sides of the same instrument is not
// supported by this design.
type Position struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Instrument     string          `gorm:"type:varchar(50);not null;index:idx_positions_instrument" json:"instrument"`
	Direction      Direction       `gorm:"type:varchar(10);not null" json:"direction"`
	EntryPrice     decimal.Decimal `gorm:"type:double precision;not null" json:"entry_price"`
	Quantity       decimal.Decimal `gorm:"type:double precision;not null" json:"quantity"`
	Leverage       int             `gorm:"not null" json:"leverage"`
	MarginUsed     decimal.Decimal `gorm:"type:double precision;not null" json:"margin_used"`
	Notional       decimal.Decimal `gorm:"type:double precision;not null" json:"notional"`
	StopLoss       decimal.Decimal `gorm:"type:double precision" json:"stop_loss"`
	ProfitTarget   decimal.Decimal `gorm:"type:double precision" json:"profit_target"`
	Confidence     float64         `json:"confidence"`
	EntryFee       decimal.Decimal `gorm:"type:double precision;not null" json:"entry_fee"`
	IdempotencyKey string          `gorm:"type:varchar(64);uniqueIndex:ux_positions_idem_key" json:"idempotency_key"`
	EntryTime      time.Time       `gorm:"not null" json:"entry_time"`
	LossCycleCount int             `json:"loss_cycle_count"`
	TrailingActive bool            `json:"trailing_active"`
	Status         string          `gorm:"size:50;not null;default:open" json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// UnrealizedPnL computes the mark-to-market P&L of the position at the given price.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.EntryPrice).Mul(p.Quantity).Mul(p.Direction.Sign())
}

// Age is the time the position has been open as of the given instant.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// TargetProgress returns the fraction of the distance from entry price to profit
// target covered by the given price. 1.0 means the target has been reached; the
// same expression works for both directions because the span carries the sign.
// Returns zero when the target coincides with the entry price.
func (p *Position) TargetProgress(price decimal.Decimal) decimal.Decimal {
	span := p.ProfitTarget.Sub(p.EntryPrice)
	if span.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.EntryPrice).Div(span)
}
