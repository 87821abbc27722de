package backtest

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twse-backtester/internal/analysis/indicators"
	"twse-backtester/internal/config"
	"twse-backtester/internal/models"
)

func testRun(cfg *config.StrategyConfig) *run {
	return &run{cfg: cfg, logger: zerolog.Nop(), book: NewBook(cfg)}
}

func pricesFromCloses(symbol string, closes []float64) []models.PriceRecord {
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	records := make([]models.PriceRecord, len(closes))
	for i, close := range closes {
		records[i] = models.PriceRecord{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, i),
			Open:      close,
			High:      close * 1.01,
			Low:       close * 0.99,
			Close:     close,
			Volume:    1000,
		}
	}
	return records
}

func TestDualMASignalCrossover(t *testing.T) {
	cfg := config.Default()
	cfg.FastPeriod = 2
	cfg.SlowPeriod = 3
	cfg.EnableRSIFilter = false
	r := testRun(cfg)

	up := BuildSymbolContext("2330", pricesFromCloses("2330", []float64{10, 10, 10, 9, 12}), cfg)
	assert.Equal(t, models.ActionBuy, r.dualMASignal(up, 4, false).Action)
	// already holding, crossover up is not a sell
	assert.Equal(t, models.ActionHold, r.dualMASignal(up, 4, true).Action)
	// warmup indexes never signal
	assert.Equal(t, models.ActionHold, r.dualMASignal(up, 1, false).Action)

	down := BuildSymbolContext("2330", pricesFromCloses("2330", []float64{10, 10, 10, 12, 6}), cfg)
	assert.Equal(t, models.ActionSell, r.dualMASignal(down, 4, true).Action)
	assert.Equal(t, models.ActionHold, r.dualMASignal(down, 4, false).Action)
}

func TestDualMASignalRSIFilter(t *testing.T) {
	cfg := config.Default()
	cfg.FastPeriod = 2
	cfg.SlowPeriod = 3
	cfg.EnableRSIFilter = true
	cfg.RSIOversold = 30
	r := testRun(cfg)

	ctx := BuildSymbolContext("2330", pricesFromCloses("2330", []float64{10, 10, 10, 9, 12}), cfg)
	// RSI warmup has not filled at index 4 with the default 14 period, so
	// the filter suppresses the entry
	assert.Equal(t, models.ActionHold, r.dualMASignal(ctx, 4, false).Action)
}

func TestRSIReversalSignal(t *testing.T) {
	cfg := config.Default()
	cfg.StrategyType = config.StrategyRSIReversal
	cfg.RSIOversold = 30
	cfg.RSIOverbought = 70
	r := testRun(cfg)

	ctx := &SymbolContext{
		Symbol: "2330",
		RSI: indicators.Series{
			{},
			{Float64: 25, Valid: true},
			{Float64: 50, Valid: true},
			{Float64: 75, Valid: true},
		},
	}

	assert.Equal(t, models.ActionHold, r.rsiReversalSignal(ctx, 0, false).Action)
	assert.Equal(t, models.ActionBuy, r.rsiReversalSignal(ctx, 1, false).Action)
	assert.Equal(t, models.ActionHold, r.rsiReversalSignal(ctx, 1, true).Action)
	assert.Equal(t, models.ActionHold, r.rsiReversalSignal(ctx, 2, false).Action)
	assert.Equal(t, models.ActionSell, r.rsiReversalSignal(ctx, 3, true).Action)
	assert.Equal(t, models.ActionHold, r.rsiReversalSignal(ctx, 3, false).Action)
}

func TestEvaluateRulesFirstMatchWins(t *testing.T) {
	rules := []config.Rule{
		{When: []config.Condition{{Field: "close", Op: "gt", Value: 100}}, Action: "sell"},
		{When: []config.Condition{{Field: "close", Op: "gt", Value: 0}}, Action: "buy", Size: 50000},
	}
	dctx := DecisionContext{Bar: models.PriceRecord{Close: 50}}

	decision := evaluateRules(rules, dctx)
	assert.Equal(t, models.ActionBuy, decision.Action)
	assert.Equal(t, 50000.0, decision.Size)

	dctx.Bar.Close = 150
	assert.Equal(t, models.ActionSell, evaluateRules(rules, dctx).Action)
}

func TestEvaluateRulesEmptyWhenNeverMatches(t *testing.T) {
	rules := []config.Rule{{Action: "buy"}}
	decision := evaluateRules(rules, DecisionContext{Bar: models.PriceRecord{Close: 100}})
	assert.Equal(t, models.ActionHold, decision.Action)
}

func TestEvaluateRulesUnknownFieldOrInvalidIndicator(t *testing.T) {
	dctx := DecisionContext{Bar: models.PriceRecord{Close: 100}}

	unknown := []config.Rule{{When: []config.Condition{{Field: "sma200", Op: "gt", Value: 0}}, Action: "buy"}}
	assert.Equal(t, models.ActionHold, evaluateRules(unknown, dctx).Action)

	// indicator fields only resolve after warmup
	warmup := []config.Rule{{When: []config.Condition{{Field: "rsi", Op: "lt", Value: 30}}, Action: "buy"}}
	dctx.RSI = indicators.Series{{}}
	dctx.Index = 0
	assert.Equal(t, models.ActionHold, evaluateRules(warmup, dctx).Action)
}

func TestEvaluateRulesAllConditionsMustHold(t *testing.T) {
	rules := []config.Rule{{
		When: []config.Condition{
			{Field: "close", Op: "gt", Value: 50},
			{Field: "holding_days", Op: "ge", Value: 3},
		},
		Action: "sell",
	}}
	dctx := DecisionContext{Bar: models.PriceRecord{Close: 100}, HoldingDays: 2}
	assert.Equal(t, models.ActionHold, evaluateRules(rules, dctx).Action)

	dctx.HoldingDays = 3
	assert.Equal(t, models.ActionSell, evaluateRules(rules, dctx).Action)
}

func TestCompareOps(t *testing.T) {
	assert.True(t, compare("lt", 1, 2))
	assert.True(t, compare("le", 2, 2))
	assert.True(t, compare("gt", 3, 2))
	assert.True(t, compare("ge", 2, 2))
	assert.True(t, compare("eq", 2, 2))
	assert.True(t, compare("ne", 1, 2))
	assert.False(t, compare("between", 1, 2))
}

func TestSafeDecideRecoversPanic(t *testing.T) {
	decision, err := safeDecide(func(DecisionContext) Decision {
		panic("boom")
	}, DecisionContext{})
	require.Error(t, err)
	assert.Equal(t, models.ActionHold, decision.Action)

	decision, err = safeDecide(func(DecisionContext) Decision {
		return Decision{Action: models.ActionBuy}
	}, DecisionContext{})
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, decision.Action)
}
