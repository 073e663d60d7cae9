package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// IndicatorSnapshot is the per-instrument, per-timeframe technical data
// supplied fresh each cycle by the market-data collaborator. The engine only
// consumes ATR (trailing buffer); everything else passes through to the
// decision-maker context untouched.
type IndicatorSnapshot struct {
	Instrument string          `json:"instrument"`
	Timeframe  string          `json:"timeframe"`
	Price      decimal.Decimal `json:"price"`
	EMA20      decimal.Decimal `json:"ema20"`
	RSI14      decimal.Decimal `json:"rsi14"`
	MACD       decimal.Decimal `json:"macd"`
	ATR        decimal.Decimal `json:"atr"`
	Volume     decimal.Decimal `json:"volume"`
	AvgVolume  decimal.Decimal `json:"avg_volume"`
	At         time.Time       `json:"at"`
}
