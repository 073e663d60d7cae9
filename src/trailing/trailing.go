// Package trailing recomputes stop-loss targets for profitable positions and
// decides exits. The stop functions are pure over decimals, in the same spirit
// as the directional clamp rules they replace: a long's stop only rises, a
// short's only falls.
package trailing

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"riskpilot/src/model"
)

type Config struct {
	// ProgressTrigger activates trailing once unrealized progress toward the
	// profit target reaches this fraction.
	ProgressTrigger float64 `envconfig:"TRAILING_PROGRESS_TRIGGER" default:"0.80"`
	// TimeProgressFloor is the progress required for time-based activation.
	TimeProgressFloor float64 `envconfig:"TRAILING_TIME_PROGRESS_FLOOR" default:"0.50"`
	// TimeInTrade is the position age required for time-based activation.
	TimeInTrade time.Duration `envconfig:"TRAILING_TIME_IN_TRADE" default:"20m"`
	// ATRMultiplier scales the ATR-based buffer between price and stop.
	ATRMultiplier float64 `envconfig:"TRAILING_ATR_MULTIPLIER" default:"1.2"`
	// FallbackBufferPct is the price-relative buffer used when ATR is unavailable.
	FallbackBufferPct float64 `envconfig:"TRAILING_FALLBACK_BUFFER_PCT" default:"0.004"`
	// MinImprovementPct suppresses churn from negligible stop updates.
	MinImprovementPct float64 `envconfig:"TRAILING_MIN_IMPROVEMENT_PCT" default:"0.0005"`
	// MinOffset is the absolute improvement floor for tiny-priced instruments.
	MinOffset float64 `envconfig:"TRAILING_MIN_OFFSET" default:"0.0001"`
	// MarginLossCutUSD force-closes a position once its unrealized loss
	// reaches this many dollars, regardless of the nominal stop.
	MarginLossCutUSD float64 `envconfig:"MARGIN_LOSS_CUT_USD" default:"25"`
	// StagnantLossCycles force-closes a position stuck underwater for this
	// many consecutive monitoring ticks.
	StagnantLossCycles int `envconfig:"STAGNANT_LOSS_CYCLES" default:"10"`
	// QuoteMaxAge marks price data older than this as stale.
	QuoteMaxAge time.Duration `envconfig:"QUOTE_MAX_AGE" default:"90s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// ShouldTrail reports whether trailing is active for the position at the
// given price and time. A position at a loss is never trailed; the margin
// loss cut covers that side.
func ShouldTrail(position *model.Position, price decimal.Decimal, now time.Time, cfg Config) bool {
	if !position.UnrealizedPnL(price).IsPositive() {
		return false
	}

	progress := position.TargetProgress(price)
	if progress.GreaterThanOrEqual(decimal.NewFromFloat(cfg.ProgressTrigger)) {
		return true
	}
	if position.Age(now) >= cfg.TimeInTrade &&
		progress.GreaterThanOrEqual(decimal.NewFromFloat(cfg.TimeProgressFloor)) {
		return true
	}
	return false
}

// NextStop computes the revised stop for an actively trailing position.
// Returns (stop, false) when no revision applies: the candidate must clear the
// existing stop by the minimum improvement, and may only move toward the
// current price, never away.
//
// Long:
//   - buffer: max(atr*mult, price*minImprovementPct); fallback price*fallbackPct without ATR
//   - candidate = price - buffer, clamped up to entry+minImprovement and
//     existingStop+minImprovement
//   - update: stop = max(stop, candidate)
//
// Short: mirror image with every inequality reversed.
func NextStop(position *model.Position, price, atr decimal.Decimal, cfg Config) (decimal.Decimal, bool) {
	buffer := atrBuffer(price, atr, cfg)
	minImprovement := decimal.Max(
		price.Mul(decimal.NewFromFloat(cfg.MinImprovementPct)),
		decimal.NewFromFloat(cfg.MinOffset),
	)

	switch position.Direction {
	case model.DirectionLong:
		candidate := price.Sub(buffer)
		// never trail below breakeven once active
		if floor := position.EntryPrice.Add(minImprovement); candidate.LessThan(floor) {
			candidate = floor
		}
		if candidate.GreaterThanOrEqual(position.StopLoss.Add(minImprovement)) && candidate.LessThan(price) {
			return candidate, true
		}
		return position.StopLoss, false

	case model.DirectionShort:
		candidate := price.Add(buffer)
		if ceiling := position.EntryPrice.Sub(minImprovement); candidate.GreaterThan(ceiling) {
			candidate = ceiling
		}
		if candidate.LessThanOrEqual(position.StopLoss.Sub(minImprovement)) && candidate.GreaterThan(price) {
			return candidate, true
		}
		return position.StopLoss, false

	default:
		return position.StopLoss, false
	}
}

func atrBuffer(price, atr decimal.Decimal, cfg Config) decimal.Decimal {
	if atr.LessThanOrEqual(decimal.Zero) {
		return price.Mul(decimal.NewFromFloat(cfg.FallbackBufferPct))
	}
	return decimal.Max(
		atr.Mul(decimal.NewFromFloat(cfg.ATRMultiplier)),
		price.Mul(decimal.NewFromFloat(cfg.MinImprovementPct)),
	)
}

// ExitReason decides whether the position must close at the given price.
// Stop and target crossings are checked first, then the margin-based loss cut
// and the stagnant-loss cleanup, every tick regardless of trailing state.
func ExitReason(position *model.Position, price, unrealized decimal.Decimal, cfg Config) (model.CloseReason, bool) {
	switch position.Direction {
	case model.DirectionLong:
		if position.StopLoss.IsPositive() && price.LessThanOrEqual(position.StopLoss) {
			return model.CloseReasonStopLoss, true
		}
		if position.ProfitTarget.IsPositive() && price.GreaterThanOrEqual(position.ProfitTarget) {
			return model.CloseReasonTakeProfit, true
		}
	case model.DirectionShort:
		if position.StopLoss.IsPositive() && price.GreaterThanOrEqual(position.StopLoss) {
			return model.CloseReasonStopLoss, true
		}
		if position.ProfitTarget.IsPositive() && price.LessThanOrEqual(position.ProfitTarget) {
			return model.CloseReasonTakeProfit, true
		}
	}

	if unrealized.LessThanOrEqual(decimal.NewFromFloat(cfg.MarginLossCutUSD).Neg()) {
		return model.CloseReasonMarginCut, true
	}
	if cfg.StagnantLossCycles > 0 &&
		position.LossCycleCount >= cfg.StagnantLossCycles &&
		!unrealized.IsPositive() {
		return model.CloseReasonStagnantCut, true
	}
	return "", false
}
