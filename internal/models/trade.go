package models

// TradeRecord represents one round trip for a symbol. A record is created
// when a position opens; exit fields stay zero until the position closes.
type TradeRecord struct {
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	EntryDate    string    `json:"entryDate"`
	ExitDate     string    `json:"exitDate,omitempty"`
	EntryPrice   float64   `json:"entryPrice"`
	ExitPrice    float64   `json:"exitPrice,omitempty"`
	Quantity     int64     `json:"quantity"`
	Profit       float64   `json:"profit"`
	ReturnPct    float64   `json:"returnPct"`
	HoldingDays  int       `json:"holdingDays"`
	Fees         float64   `json:"fees"`
	SlippageCost float64   `json:"slippageCost"`
	ExitReason   string    `json:"exitReason,omitempty"`
}

// Closed reports whether the trade has been finalized.
func (t TradeRecord) Closed() bool {
	return t.ExitDate != ""
}

// EquityPoint is one per-date sample of the portfolio equity curve.
type EquityPoint struct {
	Date        string  `json:"date"`
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	Positions   int     `json:"positions"`
	ExposurePct float64 `json:"exposurePct"`
	DrawdownPct float64 `json:"drawdownPct"`
}

// PositionDetail is the per-position breakdown inside a PortfolioSnapshot.
type PositionDetail struct {
	Symbol        string  `json:"symbol"`
	Quantity      int64   `json:"quantity"`
	AvgPrice      float64 `json:"avgPrice"`
	MarketValue   float64 `json:"marketValue"`
	UnrealizedPnL float64 `json:"unrealizedPnl"`
}

// PortfolioSnapshot captures the full portfolio state at the end of one
// simulated date, including position-level detail.
type PortfolioSnapshot struct {
	Date        string           `json:"date"`
	Equity      float64          `json:"equity"`
	Cash        float64          `json:"cash"`
	ExposurePct float64          `json:"exposurePct"`
	DrawdownPct float64          `json:"drawdownPct"`
	Positions   []PositionDetail `json:"positions"`
}
