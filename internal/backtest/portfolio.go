package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"twse-backtester/internal/config"
	"twse-backtester/internal/models"
)

// Exit reason tags, recorded on finalized trades. They mirror the labels
// shown in the product UI.
const (
	ReasonSignal       = "策略訊號"
	ReasonStopLoss     = "固定停損"
	ReasonTakeProfit   = "固定停利"
	ReasonTrailingStop = "移動停損"
	ReasonIntraday     = "日內平倉"
	ReasonPeriodEnd    = "區間結束"
)

// PositionState tracks one open position. One position per symbol at a
// time; pyramiding is not supported.
type PositionState struct {
	Symbol       string
	Quantity     int64
	AvgPrice     float64
	EntryDate    string
	Fees         float64
	SlippageCost float64
	HighestPrice float64
	LowestPrice  float64
	HoldingDays  int
}

// Book owns cash and the open-position table, enforcing the
// flat -> open -> flat lifecycle per symbol. All mutation goes through
// Open and Close.
type Book struct {
	cfg        *config.StrategyConfig
	cash       float64
	positions  map[string]*PositionState
	openTrades map[string]*models.TradeRecord
	lastPrices map[string]float64
	trades     []models.TradeRecord
}

// NewBook creates a Book seeded with the configured initial capital.
func NewBook(cfg *config.StrategyConfig) *Book {
	return &Book{
		cfg:        cfg,
		cash:       cfg.InitialCapital,
		positions:  make(map[string]*PositionState),
		openTrades: make(map[string]*models.TradeRecord),
		lastPrices: make(map[string]float64),
	}
}

// Cash returns the current cash balance.
func (b *Book) Cash() float64 { return b.cash }

// Position returns the open position for symbol, or nil while flat.
func (b *Book) Position(symbol string) *PositionState { return b.positions[symbol] }

// OpenCount returns the number of open positions.
func (b *Book) OpenCount() int { return len(b.positions) }

// SetLastPrice records the most recent close seen for symbol.
func (b *Book) SetLastPrice(symbol string, price float64) { b.lastPrices[symbol] = price }

// LastPrice returns the last known price for symbol, falling back to the
// position's average fill price.
func (b *Book) LastPrice(symbol string) float64 {
	if price, ok := b.lastPrices[symbol]; ok {
		return price
	}
	if pos := b.positions[symbol]; pos != nil {
		return pos.AvgPrice
	}
	return 0
}

// OpenSymbols returns the symbols with open positions in lexicographic
// order, keeping iteration deterministic.
func (b *Book) OpenSymbols() []string {
	symbols := make([]string, 0, len(b.positions))
	for symbol := range b.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// MarketValue returns the marked-to-market value of all open positions.
func (b *Book) MarketValue() float64 {
	var total float64
	for symbol, pos := range b.positions {
		price := b.LastPrice(symbol)
		total += price * float64(pos.Quantity)
	}
	return total
}

// Equity returns cash plus market value.
func (b *Book) Equity() float64 { return b.cash + b.MarketValue() }

// Details returns the per-position breakdown for snapshots, in
// lexicographic symbol order.
func (b *Book) Details() []models.PositionDetail {
	details := make([]models.PositionDetail, 0, len(b.positions))
	for _, symbol := range b.OpenSymbols() {
		pos := b.positions[symbol]
		price := b.LastPrice(symbol)
		details = append(details, models.PositionDetail{
			Symbol:        symbol,
			Quantity:      pos.Quantity,
			AvgPrice:      pos.AvgPrice,
			MarketValue:   price * float64(pos.Quantity),
			UnrealizedPnL: (price - pos.AvgPrice) * float64(pos.Quantity),
		})
	}
	return details
}

// Open establishes a new long position. The caller has already sized the
// order and passed it through the cost model.
func (b *Book) Open(symbol, dateKey string, costs TradeCosts, quantity int64) error {
	if b.positions[symbol] != nil {
		return fmt.Errorf("position already open for %s", symbol)
	}
	b.cash -= costs.TotalCost
	b.positions[symbol] = &PositionState{
		Symbol:       symbol,
		Quantity:     quantity,
		AvgPrice:     costs.FillPrice,
		EntryDate:    dateKey,
		Fees:         costs.TotalFee,
		SlippageCost: costs.SlippageCost,
		HighestPrice: costs.FillPrice,
		LowestPrice:  costs.FillPrice,
	}
	b.openTrades[symbol] = &models.TradeRecord{
		Symbol:       symbol,
		Direction:    models.DirectionLong,
		EntryDate:    dateKey,
		EntryPrice:   costs.FillPrice,
		Quantity:     quantity,
		Fees:         costs.TotalFee,
		SlippageCost: costs.SlippageCost,
	}
	return nil
}

// Close liquidates the position for symbol at the given reference price,
// finalizes the matching trade record and returns it. Closing a flat
// symbol is a no-op.
func (b *Book) Close(symbol string, price float64, dateKey, reason string) *models.TradeRecord {
	pos := b.positions[symbol]
	if pos == nil {
		return nil
	}
	costs := ApplyTradeCosts(price, pos.Quantity, models.ActionSell, b.cfg)
	b.cash += costs.TotalCost

	entryCost := pos.AvgPrice*float64(pos.Quantity) + pos.Fees + pos.SlippageCost
	profit := costs.TotalCost - entryCost

	trade := b.openTrades[symbol]
	if trade == nil {
		trade = &models.TradeRecord{
			Symbol:     symbol,
			Direction:  models.DirectionLong,
			EntryDate:  pos.EntryDate,
			EntryPrice: pos.AvgPrice,
			Quantity:   pos.Quantity,
		}
	}
	trade.ExitDate = dateKey
	trade.ExitPrice = costs.FillPrice
	trade.Profit = profit
	if pos.AvgPrice != 0 {
		trade.ReturnPct = profit / (pos.AvgPrice * float64(pos.Quantity))
	}
	trade.HoldingDays = pos.HoldingDays
	trade.Fees += costs.TotalFee
	trade.SlippageCost += costs.SlippageCost
	trade.ExitReason = reason

	delete(b.positions, symbol)
	delete(b.openTrades, symbol)
	b.trades = append(b.trades, *trade)
	return trade
}

// Trades returns the finalized trade ledger in close order.
func (b *Book) Trades() []models.TradeRecord { return b.trades }

// inRebalanceWindow reports whether new entries are permitted on dateKey
// under the configured rebalance frequency. Weekly windows open on the
// configured ISO weekday; monthly windows open on the first date observed
// in a new calendar month.
func inRebalanceWindow(dateKey, previousDateKey string, sizing config.SizingConfig) bool {
	if sizing.RebalanceFrequency == config.RebalanceDaily || sizing.RebalanceFrequency == "" {
		return true
	}
	current, err := time.Parse("2006-01-02", dateKey)
	if err != nil {
		return false
	}
	if sizing.RebalanceFrequency == config.RebalanceWeekly {
		weekday := int(current.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		target := sizing.RebalanceWeekday
		if target == 0 {
			target = config.DefaultRebalanceDay
		}
		return weekday == target
	}
	if previousDateKey == "" {
		return true
	}
	previous, err := time.Parse("2006-01-02", previousDateKey)
	if err != nil {
		return true
	}
	return current.Month() != previous.Month() || current.Year() != previous.Year()
}

// targetNotional computes the desired order notional under the configured
// sizing mode. A positive custom size overrides the policy.
func targetNotional(cfg *config.StrategyConfig, ctx *SymbolContext, index int, equity, price, customSize float64) float64 {
	if customSize > 0 {
		return customSize
	}
	switch cfg.PositionSizing.Mode {
	case config.SizingFixed:
		return cfg.PositionSizing.Value
	case config.SizingPercent:
		return equity * cfg.PositionSizing.Value
	case config.SizingVolatility:
		vol := 0.02
		if v := ctx.Volatility.At(index); v.Valid && v.Float64 > 0 {
			vol = v.Float64
		}
		riskBudget := equity * cfg.PositionSizing.Value
		perShareRisk := math.Max(1e-6, vol*price)
		return riskBudget / perShareRisk * price
	default:
		return equity * cfg.PositionSizing.Value
	}
}
