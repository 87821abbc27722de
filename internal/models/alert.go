package models

// RiskAlert is an observational record emitted by the risk manager. Alerts
// never mutate simulation state; the maxDailyLoss category additionally
// halts new entries for the remainder of the same date.
type RiskAlert struct {
	Date     string        `json:"date"`
	Severity Severity      `json:"severity"`
	Category AlertCategory `json:"category"`
	Message  string        `json:"message"`
}

// BacktestLogEntry is one line of the engine's textual audit trail.
type BacktestLogEntry struct {
	Date    string   `json:"date"`
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}
