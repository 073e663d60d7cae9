package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountState is the single persisted row holding the ledger's cash balance.
// It is rewritten synchronously after every ledger mutation so a restart resumes
// from the last durable state.
type AccountState struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	CashBalance      decimal.Decimal `gorm:"type:double precision;not null" json:"cash_balance"`
	InitialBalance   decimal.Decimal `gorm:"type:double precision;not null" json:"initial_balance"`
	RealizedPnLTotal decimal.Decimal `gorm:"type:double precision;not null" json:"realized_pnl_total"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (AccountState) TableName() string {
	return "account_state"
}
