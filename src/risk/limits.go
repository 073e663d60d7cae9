package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Limits is the configuration snapshot every admission and sizing decision is
// checked against. It is immutable for the lifetime of a run unless the process
// is explicitly reconfigured and restarted.
type Limits struct {
	MaxPositions         int
	MaxSameDirection     int
	MaxLeverage          int
	MaxTradeNotionalUSD  decimal.Decimal
	MinConfidence        float64
	MinPositionMarginUSD decimal.Decimal
	CashProtectionFloor  decimal.Decimal
	MaxPortfolioRiskPct  decimal.Decimal
	MaxPositionRiskPct   decimal.Decimal
}

type limitsEnv struct {
	MaxPositions         int     `envconfig:"MAX_POSITIONS" default:"5"`
	MaxSameDirection     int     `envconfig:"MAX_SAME_DIRECTION" default:"3"`
	MaxLeverage          int     `envconfig:"MAX_LEVERAGE" default:"20"`
	MaxTradeNotionalUSD  float64 `envconfig:"MAX_TRADE_NOTIONAL_USD" default:"1000"`
	MinConfidence        float64 `envconfig:"MIN_CONFIDENCE" default:"0.4"`
	MinPositionMarginUSD float64 `envconfig:"MIN_POSITION_MARGIN_USD" default:"15"`
	CashProtectionFloor  float64 `envconfig:"CASH_PROTECTION_FLOOR" default:"10"`
	MaxPortfolioRiskPct  float64 `envconfig:"MAX_PORTFOLIO_RISK_PCT" default:"0.25"`
	MaxPositionRiskPct   float64 `envconfig:"MAX_POSITION_RISK_PCT" default:"0.10"`
}

// GetLimits builds the registry from the environment, falling back to the
// defaults above for anything unset.
func GetLimits() Limits {
	var env limitsEnv
	if err := envconfig.Process("", &env); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}

	return Limits{
		MaxPositions:         env.MaxPositions,
		MaxSameDirection:     env.MaxSameDirection,
		MaxLeverage:          env.MaxLeverage,
		MaxTradeNotionalUSD:  decimal.NewFromFloat(env.MaxTradeNotionalUSD),
		MinConfidence:        env.MinConfidence,
		MinPositionMarginUSD: decimal.NewFromFloat(env.MinPositionMarginUSD),
		CashProtectionFloor:  decimal.NewFromFloat(env.CashProtectionFloor),
		MaxPortfolioRiskPct:  decimal.NewFromFloat(env.MaxPortfolioRiskPct),
		MaxPositionRiskPct:   decimal.NewFromFloat(env.MaxPositionRiskPct),
	}
}

// Validate rejects registries that could never admit a trade.
func (l Limits) Validate() error {
	if l.MaxPositions < 1 {
		return fmt.Errorf("max_positions must be at least 1, got %d", l.MaxPositions)
	}
	if l.MaxSameDirection < 1 || l.MaxSameDirection > l.MaxPositions {
		return fmt.Errorf("max_same_direction must be in [1, max_positions], got %d", l.MaxSameDirection)
	}
	if l.MaxLeverage < 1 {
		return fmt.Errorf("max_leverage must be at least 1, got %d", l.MaxLeverage)
	}
	if l.MinConfidence < 0 || l.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0, 1], got %f", l.MinConfidence)
	}
	if l.MaxTradeNotionalUSD.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("max_trade_notional_usd must be positive, got %s", l.MaxTradeNotionalUSD)
	}
	if l.CashProtectionFloor.IsNegative() {
		return fmt.Errorf("cash_protection_floor must not be negative, got %s", l.CashProtectionFloor)
	}
	one := decimal.NewFromInt(1)
	if l.MaxPortfolioRiskPct.IsNegative() || l.MaxPortfolioRiskPct.GreaterThan(one) {
		return fmt.Errorf("max_portfolio_risk_pct must be in [0, 1], got %s", l.MaxPortfolioRiskPct)
	}
	if l.MaxPositionRiskPct.IsNegative() || l.MaxPositionRiskPct.GreaterThan(one) {
		return fmt.Errorf("max_position_risk_pct must be in [0, 1], got %s", l.MaxPositionRiskPct)
	}
	return nil
}
