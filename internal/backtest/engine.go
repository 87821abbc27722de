// Package backtest implements the deterministic portfolio backtesting
// engine: indicator precomputation, per-date signal evaluation, position
// and portfolio bookkeeping, risk enforcement and metrics aggregation.
package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"twse-backtester/internal/config"
	apperrors "twse-backtester/internal/errors"
	"twse-backtester/internal/logging"
	"twse-backtester/internal/models"
)

// Engine executes backtests. A single Engine is safe to reuse across runs;
// each run owns its state exclusively and executes in one synchronous pass
// over the sorted union of trading dates.
type Engine struct {
	logger zerolog.Logger
	custom DecisionFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithDecisionFunc registers a custom decision hook, used when the
// configured strategy type is custom and no rule set is given.
func WithDecisionFunc(fn DecisionFunc) Option {
	return func(e *Engine) { e.custom = fn }
}

// NewEngine creates a backtest engine.
func NewEngine(logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run holds the mutable state of one simulation pass. Everything here is
// owned by the pass; nothing executes concurrently.
type run struct {
	cfg      *config.StrategyConfig
	logger   zerolog.Logger
	custom   DecisionFunc
	book     *Book
	contexts []*SymbolContext

	equityCurve  []models.EquityPoint
	snapshots    []models.PortfolioSnapshot
	riskAlerts   []models.RiskAlert
	logs         []models.BacktestLogEntry
	dailyReturns []float64
	exposures    []float64

	peakEquity          float64
	maxDrawdown         float64
	drawdownDuration    int
	maxDrawdownDuration int
	haltedForDay        bool
	previousDateKey     string
}

// Run executes a backtest over the given per-symbol price series. Exactly
// two conditions are fatal, both raised before any simulation state is
// touched: no selected symbol has data, and an inconsistent moving-average
// configuration. Everything else is soft: logged or alerted, and the run
// continues to completion.
func (e *Engine) Run(series map[string][]models.PriceRecord, cfg *config.StrategyConfig, coverage []models.DatasetSummary) (*models.BacktestResult, error) {
	started := time.Now()

	selected := make([]string, 0, len(cfg.SelectedSymbols))
	for _, symbol := range cfg.SelectedSymbols {
		if len(series[symbol]) > 0 {
			selected = append(selected, symbol)
		}
	}
	// Lexicographic symbol order keeps greedy cash/exposure allocation on
	// shared dates deterministic.
	sort.Strings(selected)
	if len(selected) == 0 {
		return nil, apperrors.ErrNoUsableData
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	contexts := BuildSymbolContexts(selected, series, cfg)
	dateSet := make(map[string]bool)
	for _, ctx := range contexts {
		for key := range ctx.DateIndex {
			dateSet[key] = true
		}
	}
	allDates := make([]string, 0, len(dateSet))
	for key := range dateSet {
		allDates = append(allDates, key)
	}
	sort.Strings(allDates)
	if len(allDates) == 0 {
		return nil, apperrors.ErrEmptyDateRange
	}

	r := &run{
		cfg:        cfg,
		logger:     logging.WithStrategy(e.logger, cfg.StrategyType),
		custom:     e.custom,
		book:       NewBook(cfg),
		contexts:   contexts,
		peakEquity: cfg.InitialCapital,
	}
	for _, ctx := range contexts {
		if len(ctx.Series) > 0 {
			r.book.SetLastPrice(ctx.Symbol, ctx.Series[0].Close)
		}
	}

	for _, dateKey := range allDates {
		r.step(dateKey)
	}

	lastDate := r.equityCurve[len(r.equityCurve)-1].Date
	for _, symbol := range r.book.OpenSymbols() {
		r.closePosition(symbol, r.book.LastPrice(symbol), lastDate, ReasonPeriodEnd)
	}

	metrics := computeDiagnostics(r.book.Trades(), r.equityCurve, r.dailyReturns,
		r.exposures, r.maxDrawdown, r.maxDrawdownDuration, cfg.InitialCapital)

	r.logf(lastDate, models.LogInfo, "回測完成：總報酬 %.2f%%，最大回撤 %.2f%%",
		metrics.TotalReturn*100, metrics.MaxDrawdown*100)
	logging.LogRunComplete(r.logger, cfg.VersionCode, metrics.TotalReturn,
		metrics.MaxDrawdown, metrics.TotalTrades, time.Since(started))

	return &models.BacktestResult{
		EquityCurve:     r.equityCurve,
		Trades:          r.book.Trades(),
		Metrics:         metrics,
		RiskAlerts:      r.riskAlerts,
		Snapshots:       r.snapshots,
		Logs:            r.logs,
		DatasetCoverage: ensureDatasetCoverage(selected, contexts, coverage),
		VersionCode:     cfg.VersionCode,
	}, nil
}

// step simulates one calendar date: risk checks on open positions, signal
// evaluation in symbol order, then the end-of-date portfolio snapshot.
func (r *run) step(dateKey string) {
	r.haltedForDay = false

	type barRef struct {
		ctx   *SymbolContext
		index int
	}
	bars := make([]barRef, 0, len(r.contexts))
	for _, ctx := range r.contexts {
		if index, ok := ctx.DateIndex[dateKey]; ok {
			bars = append(bars, barRef{ctx: ctx, index: index})
		}
	}
	if len(bars) == 0 {
		return
	}
	for _, bar := range bars {
		r.book.SetLastPrice(bar.ctx.Symbol, bar.ctx.Series[bar.index].Close)
	}

	r.applyPositionRiskRules(dateKey)

	for _, bar := range bars {
		r.evaluateAndTrade(dateKey, bar.ctx, bar.index)
	}

	r.recordSnapshot(dateKey)

	if !r.cfg.AllowOvernight {
		for _, symbol := range r.book.OpenSymbols() {
			r.closePosition(symbol, r.book.LastPrice(symbol), dateKey, ReasonIntraday)
		}
	}

	r.previousDateKey = dateKey
}

// evaluateAndTrade produces the decision for one (symbol, date) pair and
// applies it through the entry gates: rebalance window, position ceiling,
// sizing, cash, exposure.
func (r *run) evaluateAndTrade(dateKey string, ctx *SymbolContext, index int) {
	symbol := ctx.Symbol
	bar := ctx.Series[index]

	dctx := DecisionContext{
		Symbol:     symbol,
		Index:      index,
		Bar:        bar,
		History:    ctx.Series[:index+1],
		Fast:       ctx.FastMA,
		Slow:       ctx.SlowMA,
		RSI:        ctx.RSI,
		Volatility: ctx.Volatility,
		Cash:       r.book.Cash(),
		Equity:     r.book.Equity(),
		Positions:  r.book.Details(),
	}
	if pos := r.book.Position(symbol); pos != nil {
		dctx.PositionQty = pos.Quantity
		dctx.HoldingDays = pos.HoldingDays
	}

	decision := r.evaluateSignal(ctx, index, dctx)

	if decision.Action == models.ActionSell && r.book.Position(symbol) != nil {
		r.closePosition(symbol, bar.Close, dateKey, ReasonSignal)
		return
	}
	if decision.Action != models.ActionBuy || r.book.Position(symbol) != nil || r.haltedForDay {
		return
	}
	if !inRebalanceWindow(dateKey, r.previousDateKey, r.cfg.PositionSizing) {
		return
	}
	if r.book.OpenCount() >= r.cfg.PositionSizing.MaxPositions {
		r.logf(dateKey, models.LogWarning, "已達最大持倉數，略過加碼。")
		return
	}

	marketValue := r.book.MarketValue()
	equity := r.book.Equity()
	target := targetNotional(r.cfg, ctx, index, equity, bar.Close, decision.Size)
	var quantity int64
	if bar.Close > 0 && target > 0 {
		quantity = int64(math.Floor(target / bar.Close))
	}
	if quantity <= 0 {
		return
	}

	costs := ApplyTradeCosts(bar.Close, quantity, models.ActionBuy, r.cfg)
	if costs.TotalCost > r.book.Cash() {
		r.logf(dateKey, models.LogWarning, "現金不足，無法執行買入。")
		return
	}

	expectedMarketValue := marketValue + costs.FillPrice*float64(quantity)
	expectedEquity := r.book.Cash() - costs.TotalCost + expectedMarketValue
	expectedExposure := 0.0
	if expectedEquity != 0 {
		expectedExposure = expectedMarketValue / expectedEquity
	}
	if expectedExposure > r.cfg.Risk.MaxExposurePct {
		r.alert(dateKey, models.SeverityWarning, models.AlertExposure,
			fmt.Sprintf("預估曝險 %.0f%% 超過設定上限", expectedExposure*100))
		return
	}

	if err := r.book.Open(symbol, dateKey, costs, quantity); err != nil {
		r.logf(dateKey, models.LogWarning, "%s 建倉失敗：%v", symbol, err)
		return
	}
	logging.LogFill(r.logger, symbol, string(models.ActionBuy), quantity, costs.FillPrice)
	r.logf(dateKey, models.LogInfo, "%s 建倉，股數 %d", symbol, quantity)
}

// recordSnapshot appends the per-date equity point and portfolio snapshot
// and runs the portfolio-level risk checks.
func (r *run) recordSnapshot(dateKey string) {
	marketValue := r.book.MarketValue()
	equity := r.book.Cash() + marketValue
	exposurePct := 0.0
	if equity != 0 {
		exposurePct = marketValue / equity
	}
	drawdownPct := 0.0
	if r.peakEquity > 0 {
		drawdownPct = math.Max(0, (r.peakEquity-equity)/r.peakEquity)
	}

	if equity > r.peakEquity {
		r.peakEquity = equity
		r.drawdownDuration = 0
	} else {
		r.drawdownDuration++
		if drawdownPct > r.maxDrawdown {
			r.maxDrawdown = drawdownPct
			r.maxDrawdownDuration = r.drawdownDuration
		}
	}

	r.checkDrawdown(dateKey, drawdownPct)

	if len(r.equityCurve) > 0 {
		previousEquity := r.equityCurve[len(r.equityCurve)-1].Equity
		if previousEquity != 0 {
			dailyReturn := (equity - previousEquity) / previousEquity
			r.dailyReturns = append(r.dailyReturns, dailyReturn)
			r.checkDailyLoss(dateKey, dailyReturn)
		}
	}

	r.exposures = append(r.exposures, exposurePct)
	r.equityCurve = append(r.equityCurve, models.EquityPoint{
		Date:        dateKey,
		Equity:      equity,
		Cash:        r.book.Cash(),
		Positions:   r.book.OpenCount(),
		ExposurePct: exposurePct,
		DrawdownPct: drawdownPct,
	})
	r.snapshots = append(r.snapshots, models.PortfolioSnapshot{
		Date:        dateKey,
		Equity:      equity,
		Cash:        r.book.Cash(),
		ExposurePct: exposurePct,
		DrawdownPct: drawdownPct,
		Positions:   r.book.Details(),
	})
}

// closePosition closes an open position and records the audit log entry.
func (r *run) closePosition(symbol string, price float64, dateKey, reason string) {
	pos := r.book.Position(symbol)
	if pos == nil {
		return
	}
	quantity := pos.Quantity
	if trade := r.book.Close(symbol, price, dateKey, reason); trade != nil {
		logging.LogFill(r.logger, symbol, string(models.ActionSell), quantity, trade.ExitPrice)
		r.logf(dateKey, models.LogInfo, "%s 平倉（%s），股數 %d", symbol, reason, quantity)
	}
}

// logf appends an audit log entry and mirrors it to the structured logger.
func (r *run) logf(dateKey string, level models.LogLevel, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	r.logs = append(r.logs, models.BacktestLogEntry{Date: dateKey, Level: level, Message: message})
	switch level {
	case models.LogError:
		r.logger.Error().Str("date", dateKey).Msg(message)
	case models.LogWarning:
		r.logger.Warn().Str("date", dateKey).Msg(message)
	default:
		r.logger.Debug().Str("date", dateKey).Msg(message)
	}
}

// alert appends a risk alert. Alerts never abort the run.
func (r *run) alert(dateKey string, severity models.Severity, category models.AlertCategory, message string) {
	r.riskAlerts = append(r.riskAlerts, models.RiskAlert{
		Date:     dateKey,
		Severity: severity,
		Category: category,
		Message:  message,
	})
	logging.LogRiskAlert(r.logger, dateKey, string(category), string(severity), message)
}
