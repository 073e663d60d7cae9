package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CooldownScopeDirection  = "direction"
	CooldownScopeInstrument = "instrument"
)

// CooldownRecord is the persisted form of one cooldown tracker. One row exists
// per tracked key (a side, or an instrument when per-instrument cooldowns are
// enabled) and is rewritten on every counter change.
type CooldownRecord struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Scope             string          `gorm:"type:varchar(20);not null;uniqueIndex:ux_cooldowns_scope_key,priority:1" json:"scope"`
	Key               string          `gorm:"type:varchar(50);not null;uniqueIndex:ux_cooldowns_scope_key,priority:2" json:"key"`
	CyclesRemaining   int             `json:"cycles_remaining"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	LossStreakUSD     decimal.Decimal `gorm:"type:double precision;not null" json:"loss_streak_usd"`
	TriggerReason     string          `gorm:"type:varchar(30)" json:"trigger_reason"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (CooldownRecord) TableName() string {
	return "cooldowns"
}
