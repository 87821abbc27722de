package backtest

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twse-backtester/internal/config"
	apperrors "twse-backtester/internal/errors"
	"twse-backtester/internal/models"
)

func newTestConfig(symbols ...string) *config.StrategyConfig {
	cfg := config.Default()
	cfg.VersionCode = "TEST"
	cfg.SelectedSymbols = symbols
	cfg.EnableRSIFilter = false
	// stops disabled, limits wide open; individual tests tighten what they
	// exercise
	cfg.Risk = config.RiskConfig{MaxDrawdownPct: 10, MaxExposurePct: 10, MaxDailyLossPct: 10}
	return cfg
}

func alwaysBuyRules() []config.Rule {
	return []config.Rule{{
		When:   []config.Condition{{Field: "close", Op: "gt", Value: 0}},
		Action: "buy",
	}}
}

func TestRunDualMACrossover(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.FastPeriod = 3
	cfg.SlowPeriod = 5

	closes := []float64{100, 98, 96, 94, 92, 95, 99, 104, 110, 116}
	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", closes),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "TEST", result.VersionCode)
	require.Len(t, result.EquityCurve, len(closes))

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, "2330", trade.Symbol)
	assert.Equal(t, "2024-06-09", trade.EntryDate) // upward crossover bar
	assert.Equal(t, "2024-06-12", trade.ExitDate)
	assert.Equal(t, ReasonPeriodEnd, trade.ExitReason)
	assert.Equal(t, 3, trade.HoldingDays)
	assert.True(t, trade.Closed())
	assert.Greater(t, trade.Profit, 0.0)

	assert.Greater(t, result.Metrics.TotalReturn, 0.0)
	assert.Equal(t, 1, result.Metrics.TotalTrades)

	// coverage synthesized when none is provided
	require.Len(t, result.DatasetCoverage, 1)
	assert.Equal(t, "2330", result.DatasetCoverage[0].Symbol)
	assert.Equal(t, len(closes), result.DatasetCoverage[0].RowCount)
}

func TestRunEquityConservation(t *testing.T) {
	cfg := newTestConfig("1101", "2330")
	cfg.FastPeriod = 3
	cfg.SlowPeriod = 5

	series := map[string][]models.PriceRecord{
		"1101": pricesFromCloses("1101", []float64{50, 49, 48, 47, 46, 48, 50, 52, 54, 56}),
		"2330": pricesFromCloses("2330", []float64{100, 98, 96, 94, 92, 95, 99, 104, 110, 116}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)

	for i, snap := range result.Snapshots {
		var marketValue float64
		for _, pos := range snap.Positions {
			marketValue += pos.MarketValue
		}
		assert.InDelta(t, snap.Cash+marketValue, snap.Equity, 1e-6, "snapshot %d", i)
		assert.Equal(t, result.EquityCurve[i].Equity, snap.Equity)
	}

	previous := ""
	for _, point := range result.EquityCurve {
		assert.Greater(t, point.Date, previous)
		assert.GreaterOrEqual(t, point.DrawdownPct, 0.0)
		previous = point.Date
	}

	for _, trade := range result.Trades {
		assert.True(t, trade.Closed())
		assert.LessOrEqual(t, trade.EntryDate, trade.ExitDate)
	}
}

func TestRunInvalidMAPeriods(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.FastPeriod = 10
	cfg.SlowPeriod = 5

	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 101, 102}),
	}

	_, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidMAPeriods))
	assert.Equal(t, "長均線週期需大於短均線週期。", err.Error())
}

func TestRunNoUsableData(t *testing.T) {
	cfg := newTestConfig("9999")
	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 101, 102}),
	}

	_, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoUsableData))
}

func TestRunMaxDailyLossAlert(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.StrategyType = config.StrategyCustom
	cfg.CustomRules = alwaysBuyRules()
	cfg.Risk.MaxDailyLossPct = 0.02

	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 85, 85, 85}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)

	var found bool
	for _, alert := range result.RiskAlerts {
		if alert.Category == models.AlertMaxDailyLoss {
			found = true
			assert.Equal(t, models.SeverityCritical, alert.Severity)
			assert.Equal(t, "2024-06-04", alert.Date)
		}
	}
	assert.True(t, found, "expected a max daily loss alert")
	assert.True(t, hasLogContaining(result.Logs, "單日虧損"))
}

func TestRunDrawdownAlert(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.StrategyType = config.StrategyCustom
	cfg.CustomRules = alwaysBuyRules()
	cfg.PositionSizing.Value = 0.8
	cfg.Risk.MaxDrawdownPct = 0.05

	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 90, 85}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)

	var found bool
	for _, alert := range result.RiskAlerts {
		if alert.Category == models.AlertDrawdown {
			found = true
			assert.Equal(t, models.SeverityCritical, alert.Severity)
		}
	}
	assert.True(t, found, "expected a drawdown alert")
	assert.Greater(t, result.Metrics.MaxDrawdown, 0.05)
}

func TestRunExposureCeiling(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.StrategyType = config.StrategyCustom
	cfg.CustomRules = alwaysBuyRules()
	cfg.PositionSizing.Value = 0.95
	cfg.Risk.MaxExposurePct = 0.5

	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 100}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	var found bool
	for _, alert := range result.RiskAlerts {
		if alert.Category == models.AlertExposure {
			found = true
			assert.Contains(t, alert.Message, "預估曝險")
		}
	}
	assert.True(t, found, "expected an exposure alert")
}

func TestRunMaxPositionsGate(t *testing.T) {
	cfg := newTestConfig("1101", "2330")
	cfg.StrategyType = config.StrategyCustom
	cfg.CustomRules = alwaysBuyRules()
	cfg.PositionSizing.MaxPositions = 1

	series := map[string][]models.PriceRecord{
		"1101": pricesFromCloses("1101", []float64{50, 51}),
		"2330": pricesFromCloses("2330", []float64{100, 101}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)

	// lexicographically first symbol wins the single slot
	require.Len(t, result.Trades, 1)
	assert.Equal(t, "1101", result.Trades[0].Symbol)
	require.NotEmpty(t, result.Snapshots)
	require.Len(t, result.Snapshots[0].Positions, 1)
	assert.Equal(t, "1101", result.Snapshots[0].Positions[0].Symbol)
	assert.True(t, hasLogContaining(result.Logs, "已達最大持倉數"))
}

func TestRunStopLoss(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.StrategyType = config.StrategyCustom
	cfg.CustomRules = alwaysBuyRules()
	cfg.Risk.StopLossPct = 0.05

	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 90, 90}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)

	require.NotEmpty(t, result.Trades)
	assert.Equal(t, ReasonStopLoss, result.Trades[0].ExitReason)
	var found bool
	for _, alert := range result.RiskAlerts {
		if alert.Category == models.AlertStopLoss {
			found = true
		}
	}
	assert.True(t, found, "expected a stop loss alert")
}

func TestRunTakeProfitThenTrailingStop(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.StrategyType = config.StrategyCustom
	cfg.CustomRules = alwaysBuyRules()
	cfg.Risk.TakeProfitPct = 0.1
	cfg.Risk.TrailingStopPct = 0.05

	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 112, 105}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(result.Trades), 2)
	assert.Equal(t, ReasonTakeProfit, result.Trades[0].ExitReason)
	assert.Equal(t, ReasonTrailingStop, result.Trades[1].ExitReason)
}

func TestRunIntradayMode(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.StrategyType = config.StrategyCustom
	cfg.CustomRules = alwaysBuyRules()
	cfg.AllowOvernight = false

	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 101, 102}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 3)
	for _, trade := range result.Trades {
		assert.Equal(t, ReasonIntraday, trade.ExitReason)
		assert.Equal(t, trade.EntryDate, trade.ExitDate)
		assert.Equal(t, 0, trade.HoldingDays)
	}
	// nothing carried overnight
	for _, snap := range result.Snapshots {
		assert.LessOrEqual(t, len(snap.Positions), 1)
	}
}

func TestRunWeeklyRebalanceWindow(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.StrategyType = config.StrategyCustom
	cfg.CustomRules = alwaysBuyRules()
	cfg.PositionSizing.RebalanceFrequency = config.RebalanceWeekly
	cfg.PositionSizing.RebalanceWeekday = 5

	// Monday 2024-06-03 through Friday 2024-06-07
	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 100, 100, 100, 100}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, "2024-06-07", result.Trades[0].EntryDate)
	assert.Equal(t, ReasonPeriodEnd, result.Trades[0].ExitReason)
}

func TestRunFlatSeriesHasZeroRatios(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.FastPeriod = 3
	cfg.SlowPeriod = 5

	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 100, 100, 100, 100, 100, 100, 100}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Equal(t, 0.0, result.Metrics.TotalReturn)
	assert.Equal(t, 0.0, result.Metrics.SharpeRatio)
	assert.Equal(t, 0.0, result.Metrics.Volatility)
	for _, point := range result.EquityCurve {
		assert.Equal(t, cfg.InitialCapital, point.Equity)
	}
}

func TestRunCustomDecisionFunc(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.StrategyType = config.StrategyCustom

	fn := func(dctx DecisionContext) Decision {
		switch {
		case dctx.Index == 0:
			return Decision{Action: models.ActionBuy}
		case dctx.Index == 1 && dctx.PositionQty > 0:
			return Decision{Action: models.ActionSell}
		default:
			return Decision{Action: models.ActionHold}
		}
	}

	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 105, 102}),
	}

	result, err := NewEngine(zerolog.Nop(), WithDecisionFunc(fn)).Run(series, cfg, nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ReasonSignal, result.Trades[0].ExitReason)
	assert.Equal(t, "2024-06-04", result.Trades[0].ExitDate)
	assert.Greater(t, result.Trades[0].Profit, 0.0)
}

func TestRunCustomDecisionFuncPanicIsHold(t *testing.T) {
	cfg := newTestConfig("2330")
	cfg.StrategyType = config.StrategyCustom

	fn := func(DecisionContext) Decision { panic("bad strategy") }

	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 105, 102}),
	}

	result, err := NewEngine(zerolog.Nop(), WithDecisionFunc(fn)).Run(series, cfg, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.True(t, hasLogContaining(result.Logs, "自訂策略錯誤"))
}

func TestRunCompletionLog(t *testing.T) {
	cfg := newTestConfig("2330")
	series := map[string][]models.PriceRecord{
		"2330": pricesFromCloses("2330", []float64{100, 100, 100}),
	}

	result, err := NewEngine(zerolog.Nop()).Run(series, cfg, nil)
	require.NoError(t, err)
	assert.True(t, hasLogContaining(result.Logs, "回測完成"))
}

func hasLogContaining(logs []models.BacktestLogEntry, substr string) bool {
	for _, entry := range logs {
		if strings.Contains(entry.Message, substr) {
			return true
		}
	}
	return false
}
