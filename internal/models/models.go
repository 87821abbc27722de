// Package models provides domain models for the backtesting application.
package models

import "time"

// Direction represents the direction of a trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Action represents a strategy decision for one symbol on one date.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Severity represents the severity of a risk alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertCategory classifies a risk alert.
type AlertCategory string

const (
	AlertDrawdown     AlertCategory = "drawdown"
	AlertExposure     AlertCategory = "exposure"
	AlertStopLoss     AlertCategory = "stopLoss"
	AlertTakeProfit   AlertCategory = "takeProfit"
	AlertMaxDailyLoss AlertCategory = "maxDailyLoss"
	AlertCustom       AlertCategory = "custom"
)

// LogLevel represents the level of an engine audit log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// PriceRecord represents one OHLCV bar at calendar-date granularity.
type PriceRecord struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// DateKey returns the calendar date of t in YYYY-MM-DD form. All engine
// bookkeeping is keyed by calendar date, never by intraday time.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DatasetSummary describes the coverage of one imported price series.
type DatasetSummary struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Start     string `json:"start"`
	End       string `json:"end"`
	RowCount  int    `json:"rowCount"`
	Frequency string `json:"frequency"`
}
