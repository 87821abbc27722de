package backtest

import (
	"math"

	"twse-backtester/internal/config"
	"twse-backtester/internal/models"
)

// TradeCosts breaks down the cash effect of one simulated fill.
type TradeCosts struct {
	FillPrice    float64
	TotalCost    float64 // buys: gross + fees; sells: gross - fees
	TotalFee     float64
	SlippageCost float64
	Commission   float64
	StampTax     float64
	FlowFee      float64
}

// ApplyTradeCosts models slippage, commission, sell-side stamp tax and the
// flat flow fee for a single order. Buys shift the fill price up, sells
// down. Zero-quantity requests return all-zero costs so degenerate orders
// never move cash.
func ApplyTradeCosts(price float64, quantity int64, side models.Action, cfg *config.StrategyConfig) TradeCosts {
	costs := TradeCosts{FillPrice: price}
	if quantity <= 0 {
		return costs
	}

	var slip float64
	if cfg.Slippage.Mode == config.SlippageTick {
		slip = cfg.Slippage.TickSize * float64(cfg.Slippage.TickCount)
	} else {
		slip = price * cfg.Slippage.Ratio
	}
	if side == models.ActionBuy {
		costs.FillPrice = price + slip
	} else {
		costs.FillPrice = price - slip
	}
	costs.SlippageCost = math.Abs(slip) * float64(quantity)

	gross := costs.FillPrice * float64(quantity)
	rate := math.Max(cfg.FeeRate, cfg.CommissionRate)
	costs.Commission = math.Max(gross*rate, cfg.MinCommission)
	if side == models.ActionSell {
		costs.StampTax = gross * cfg.StampTaxRate
	}
	costs.FlowFee = cfg.FlowFee
	costs.TotalFee = costs.Commission + costs.StampTax + costs.FlowFee

	if side == models.ActionBuy {
		costs.TotalCost = gross + costs.TotalFee
	} else {
		costs.TotalCost = gross - costs.TotalFee
	}
	return costs
}
