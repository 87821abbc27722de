package backtest

import (
	"runtime"
	"sort"
	"sync"

	"twse-backtester/internal/analysis/indicators"
	"twse-backtester/internal/config"
	"twse-backtester/internal/models"
)

// volatilityWindow is the trailing window of daily returns used for the
// per-symbol volatility series.
const volatilityWindow = 20

// SymbolContext holds the cleaned series and precomputed indicator arrays
// for one instrument. Built once per run, immutable thereafter.
type SymbolContext struct {
	Symbol     string
	Series     []models.PriceRecord
	DateIndex  map[string]int
	FastMA     indicators.Series
	SlowMA     indicators.Series
	RSI        indicators.Series
	Volatility indicators.Series
}

// BuildSymbolContext deduplicates and sorts the raw series, then computes
// the indicator arrays aligned index-for-index with it.
func BuildSymbolContext(symbol string, series []models.PriceRecord, cfg *config.StrategyConfig) *SymbolContext {
	cleaned := dedupeByDate(series)
	closes := make([]float64, len(cleaned))
	dateIndex := make(map[string]int, len(cleaned))
	for i, record := range cleaned {
		closes[i] = record.Close
		dateIndex[models.DateKey(record.Timestamp)] = i
	}
	return &SymbolContext{
		Symbol:     symbol,
		Series:     cleaned,
		DateIndex:  dateIndex,
		FastMA:     indicators.SMA(closes, cfg.FastPeriod),
		SlowMA:     indicators.SMA(closes, cfg.SlowPeriod),
		RSI:        indicators.RSI(closes, cfg.RSIPeriod),
		Volatility: indicators.RollingVolatility(closes, volatilityWindow),
	}
}

// BuildSymbolContexts precomputes the contexts for all selected symbols.
// Per-symbol work is independent, so it fans out over a small worker pool;
// results land at the symbol's input index, keeping the simulation order
// deterministic regardless of scheduling.
func BuildSymbolContexts(symbols []string, series map[string][]models.PriceRecord, cfg *config.StrategyConfig) []*SymbolContext {
	contexts := make([]*SymbolContext, len(symbols))
	workers := runtime.NumCPU()
	if workers > len(symbols) {
		workers = len(symbols)
	}
	if workers <= 1 {
		for i, symbol := range symbols {
			contexts[i] = BuildSymbolContext(symbol, series[symbol], cfg)
		}
		return contexts
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				contexts[i] = BuildSymbolContext(symbols[i], series[symbols[i]], cfg)
			}
		}()
	}
	for i := range symbols {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	return contexts
}

// dedupeByDate collapses records sharing a calendar date (the latest
// record wins) and returns the result sorted by timestamp ascending.
func dedupeByDate(records []models.PriceRecord) []models.PriceRecord {
	byDate := make(map[string]models.PriceRecord, len(records))
	for _, record := range records {
		key := models.DateKey(record.Timestamp)
		existing, ok := byDate[key]
		if !ok || !record.Timestamp.Before(existing.Timestamp) {
			byDate[key] = record
		}
	}
	cleaned := make([]models.PriceRecord, 0, len(byDate))
	for _, record := range byDate {
		cleaned = append(cleaned, record)
	}
	sort.Slice(cleaned, func(i, j int) bool {
		return cleaned[i].Timestamp.Before(cleaned[j].Timestamp)
	})
	return cleaned
}

// ensureDatasetCoverage returns the provided coverage filtered to the
// selected symbols, or synthesizes it from the contexts when absent.
func ensureDatasetCoverage(symbols []string, contexts []*SymbolContext, provided []models.DatasetSummary) []models.DatasetSummary {
	if len(provided) > 0 {
		selected := make(map[string]bool, len(symbols))
		for _, symbol := range symbols {
			selected[symbol] = true
		}
		filtered := make([]models.DatasetSummary, 0, len(provided))
		for _, summary := range provided {
			if selected[summary.Symbol] {
				filtered = append(filtered, summary)
			}
		}
		return filtered
	}

	summaries := make([]models.DatasetSummary, 0, len(contexts))
	for _, ctx := range contexts {
		if len(ctx.Series) == 0 {
			continue
		}
		summaries = append(summaries, models.DatasetSummary{
			Symbol:    ctx.Symbol,
			Name:      ctx.Symbol,
			Start:     models.DateKey(ctx.Series[0].Timestamp),
			End:       models.DateKey(ctx.Series[len(ctx.Series)-1].Timestamp),
			RowCount:  len(ctx.Series),
			Frequency: "daily",
		})
	}
	return summaries
}
