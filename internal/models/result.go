package models

// Diagnostics aggregates the performance measures computed after a run.
type Diagnostics struct {
	TotalTrades         int     `json:"totalTrades"`
	WinningTrades       int     `json:"winningTrades"`
	LosingTrades        int     `json:"losingTrades"`
	TotalReturn         float64 `json:"totalReturn"`
	AnnualReturn        float64 `json:"annualReturn"`
	Volatility          float64 `json:"volatility"`
	SharpeRatio         float64 `json:"sharpeRatio"`
	SortinoRatio        float64 `json:"sortinoRatio"`
	CalmarRatio         float64 `json:"calmarRatio"`
	MaxDrawdown         float64 `json:"maxDrawdown"`
	MaxDrawdownDuration int     `json:"maxDrawdownDuration"`
	WinRate             float64 `json:"winRate"`
	ProfitFactor        float64 `json:"profitFactor"`
	AverageWin          float64 `json:"averageWin"`
	AverageLoss         float64 `json:"averageLoss"`
	AvgHoldDays         float64 `json:"avgHoldDays"`
	AvgExposure         float64 `json:"avgExposure"`
}

// BacktestResult is the complete output of one simulation run.
type BacktestResult struct {
	EquityCurve     []EquityPoint       `json:"equityCurve"`
	Trades          []TradeRecord       `json:"trades"`
	Metrics         Diagnostics         `json:"metrics"`
	RiskAlerts      []RiskAlert         `json:"riskAlerts"`
	Snapshots       []PortfolioSnapshot `json:"snapshots"`
	Logs            []BacktestLogEntry  `json:"logs"`
	DatasetCoverage []DatasetSummary    `json:"datasetCoverage"`
	VersionCode     string              `json:"versionCode"`
}
