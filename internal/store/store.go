// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"twse-backtester/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Price series
	SaveCandles(ctx context.Context, symbol string, records []models.PriceRecord) error
	GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceRecord, error)
	ListSymbols(ctx context.Context) ([]string, error)

	// Backtest results
	SaveResult(ctx context.Context, id string, result *models.BacktestResult) error
	GetResult(ctx context.Context, id string) (*models.BacktestResult, error)
	ListResults(ctx context.Context) ([]ResultMeta, error)

	// Lifecycle
	Close() error
}

// ResultMeta summarizes one stored backtest result.
type ResultMeta struct {
	ID          string
	VersionCode string
	TotalReturn float64
	MaxDrawdown float64
	TotalTrades int
	CreatedAt   time.Time
}
