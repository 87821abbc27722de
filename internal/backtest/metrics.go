package backtest

import (
	"math"

	"twse-backtester/internal/models"
)

// tradingDaysPerYear is the annualization factor for daily series.
const tradingDaysPerYear = 252

// computeDiagnostics aggregates the performance measures from the full
// trade ledger and equity curve after the simulation finishes.
func computeDiagnostics(trades []models.TradeRecord, curve []models.EquityPoint,
	dailyReturns, exposures []float64, maxDrawdown float64, maxDrawdownDuration int,
	initialCapital float64) models.Diagnostics {

	finalEquity := initialCapital
	if len(curve) > 0 {
		finalEquity = curve[len(curve)-1].Equity
	}
	totalReturn := 0.0
	if initialCapital != 0 {
		totalReturn = (finalEquity - initialCapital) / initialCapital
	}
	tradingDays := float64(len(curve))
	if tradingDays == 0 {
		tradingDays = 1
	}
	annualReturn := math.Pow(1+totalReturn, tradingDaysPerYear/tradingDays) - 1

	meanDaily := meanOf(dailyReturns)
	stdDaily := stdDevOf(dailyReturns)
	volatility := math.Sqrt(tradingDaysPerYear) * stdDaily

	sharpe := 0.0
	if stdDaily != 0 {
		sharpe = math.Sqrt(tradingDaysPerYear) * meanDaily / stdDaily
	}

	var downside []float64
	for _, ret := range dailyReturns {
		if ret < 0 {
			downside = append(downside, ret)
		}
	}
	downsideStd := stdDevOf(downside)
	sortino := 0.0
	if downsideStd != 0 {
		sortino = math.Sqrt(tradingDaysPerYear) * meanDaily / downsideStd
	}

	calmar := 0.0
	if maxDrawdown != 0 {
		calmar = annualReturn / maxDrawdown
	}

	var (
		wins, losses       int
		sumWins, sumLosses float64
		holdDays           int
	)
	for _, trade := range trades {
		holdDays += trade.HoldingDays
		if trade.Profit > 0 {
			wins++
			sumWins += trade.Profit
		} else if trade.Profit < 0 {
			losses++
			sumLosses += math.Abs(trade.Profit)
		}
	}

	winRate := 0.0
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades))
	}
	profitFactor := 0.0
	if sumLosses != 0 {
		profitFactor = sumWins / sumLosses
	}
	averageWin := 0.0
	if wins > 0 {
		averageWin = sumWins / float64(wins)
	}
	averageLoss := 0.0
	if losses > 0 {
		averageLoss = sumLosses / float64(losses)
	}
	avgHoldDays := 0.0
	if len(trades) > 0 {
		avgHoldDays = float64(holdDays) / float64(len(trades))
	}

	return models.Diagnostics{
		TotalTrades:         len(trades),
		WinningTrades:       wins,
		LosingTrades:        losses,
		TotalReturn:         totalReturn,
		AnnualReturn:        annualReturn,
		Volatility:          volatility,
		SharpeRatio:         sharpe,
		SortinoRatio:        sortino,
		CalmarRatio:         calmar,
		MaxDrawdown:         maxDrawdown,
		MaxDrawdownDuration: maxDrawdownDuration,
		WinRate:             winRate,
		ProfitFactor:        profitFactor,
		AverageWin:          averageWin,
		AverageLoss:         averageLoss,
		AvgHoldDays:         avgHoldDays,
		AvgExposure:         meanOf(exposures),
	}
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func stdDevOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := meanOf(values)
	var variance float64
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
