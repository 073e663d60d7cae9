// Package stats summarizes closed-trade history for the decision context and
// the status server.
package stats

import (
	"github.com/shopspring/decimal"

	"riskpilot/src/model"
)

// Summary aggregates realized performance over a set of closed trades.
type Summary struct {
	TotalTrades   int             `json:"total_trades"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	WinRate       float64         `json:"win_rate"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	GrossProfit   decimal.Decimal `json:"gross_profit"`
	GrossLoss     decimal.Decimal `json:"gross_loss"`
	ProfitFactor  float64         `json:"profit_factor"`
	AverageWin    decimal.Decimal `json:"average_win"`
	AverageLoss   decimal.Decimal `json:"average_loss"`
	LargestWin    decimal.Decimal `json:"largest_win"`
	LargestLoss   decimal.Decimal `json:"largest_loss"`
	LongTrades    int             `json:"long_trades"`
	ShortTrades   int             `json:"short_trades"`
	LongWinRate   float64         `json:"long_win_rate"`
	ShortWinRate  float64         `json:"short_win_rate"`
	CurrentStreak int             `json:"current_streak"`
	ByReason      map[string]int  `json:"by_reason"`
}

// Compute builds a Summary from trades in chronological order. CurrentStreak
// is positive for a run of wins ending at the latest trade, negative for a run
// of losses.
func Compute(trades []model.ClosedTrade) Summary {
	summary := Summary{
		RealizedPnL: decimal.Zero,
		TotalFees:   decimal.Zero,
		GrossProfit: decimal.Zero,
		GrossLoss:   decimal.Zero,
		AverageWin:  decimal.Zero,
		AverageLoss: decimal.Zero,
		LargestWin:  decimal.Zero,
		LargestLoss: decimal.Zero,
		ByReason:    make(map[string]int),
	}
	if len(trades) == 0 {
		return summary
	}

	longWins, shortWins := 0, 0
	for i := range trades {
		t := &trades[i]
		summary.TotalTrades++
		summary.RealizedPnL = summary.RealizedPnL.Add(t.RealizedPnL)
		summary.TotalFees = summary.TotalFees.Add(t.Fees)
		summary.ByReason[string(t.Reason)]++

		if t.Direction == model.DirectionLong {
			summary.LongTrades++
		} else {
			summary.ShortTrades++
		}

		if t.IsLoss() {
			summary.Losses++
			summary.GrossLoss = summary.GrossLoss.Add(t.RealizedPnL.Abs())
			if t.RealizedPnL.LessThan(summary.LargestLoss) {
				summary.LargestLoss = t.RealizedPnL
			}
		} else {
			summary.Wins++
			summary.GrossProfit = summary.GrossProfit.Add(t.RealizedPnL)
			if t.RealizedPnL.GreaterThan(summary.LargestWin) {
				summary.LargestWin = t.RealizedPnL
			}
			if t.Direction == model.DirectionLong {
				longWins++
			} else {
				shortWins++
			}
		}
	}

	summary.WinRate = float64(summary.Wins) / float64(summary.TotalTrades)
	if summary.LongTrades > 0 {
		summary.LongWinRate = float64(longWins) / float64(summary.LongTrades)
	}
	if summary.ShortTrades > 0 {
		summary.ShortWinRate = float64(shortWins) / float64(summary.ShortTrades)
	}
	if summary.Wins > 0 {
		summary.AverageWin = summary.GrossProfit.Div(decimal.NewFromInt(int64(summary.Wins)))
	}
	if summary.Losses > 0 {
		summary.AverageLoss = summary.GrossLoss.Div(decimal.NewFromInt(int64(summary.Losses))).Neg()
	}
	if summary.GrossLoss.IsPositive() {
		pf, _ := summary.GrossProfit.Div(summary.GrossLoss).Float64()
		summary.ProfitFactor = pf
	}
	summary.CurrentStreak = streak(trades)

	return summary
}

func streak(trades []model.ClosedTrade) int {
	if len(trades) == 0 {
		return 0
	}
	last := trades[len(trades)-1]
	n := 0
	for i := len(trades) - 1; i >= 0; i-- {
		if trades[i].IsLoss() != last.IsLoss() {
			break
		}
		n++
	}
	if last.IsLoss() {
		return -n
	}
	return n
}
