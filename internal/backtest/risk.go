package backtest

import (
	"fmt"

	"twse-backtester/internal/models"
)

// applyPositionRiskRules runs the per-position stop rules for one date in
// fixed precedence: stop-loss, then take-profit, then trailing stop. The
// first rule that triggers closes the position; the rest are skipped for
// that position on that date. Holding-day counters and running extremes
// are advanced here as well.
func (r *run) applyPositionRiskRules(dateKey string) {
	for _, symbol := range r.book.OpenSymbols() {
		pos := r.book.Position(symbol)
		if pos == nil {
			continue
		}
		pos.HoldingDays++
		price := r.book.LastPrice(symbol)
		if price > pos.HighestPrice {
			pos.HighestPrice = price
		}
		if price < pos.LowestPrice {
			pos.LowestPrice = price
		}

		pnl := (price - pos.AvgPrice) * float64(pos.Quantity)
		pnlPct := 0.0
		if pos.AvgPrice != 0 {
			pnlPct = pnl / (pos.AvgPrice * float64(pos.Quantity))
		}

		switch {
		case r.cfg.Risk.StopLossPct > 0 && pnlPct <= -r.cfg.Risk.StopLossPct:
			r.alert(dateKey, models.SeverityWarning, models.AlertStopLoss,
				fmt.Sprintf("%s 觸發固定停損 (%.2f%%)", symbol, pnlPct*100))
			r.closePosition(symbol, price, dateKey, ReasonStopLoss)
		case r.cfg.Risk.TakeProfitPct > 0 && pnlPct >= r.cfg.Risk.TakeProfitPct:
			r.alert(dateKey, models.SeverityInfo, models.AlertTakeProfit,
				fmt.Sprintf("%s 觸發固定停利 (%.2f%%)", symbol, pnlPct*100))
			r.closePosition(symbol, price, dateKey, ReasonTakeProfit)
		case r.cfg.Risk.TrailingStopPct > 0 && pos.HighestPrice > 0 &&
			(pos.HighestPrice-price)/pos.HighestPrice >= r.cfg.Risk.TrailingStopPct:
			r.alert(dateKey, models.SeverityWarning, models.AlertStopLoss,
				fmt.Sprintf("%s 觸發移動停損", symbol))
			r.closePosition(symbol, price, dateKey, ReasonTrailingStop)
		}
	}
}

// checkDrawdown raises a critical alert when the drawdown from the running
// equity peak breaches the configured ceiling. The alert is observational;
// trading continues.
func (r *run) checkDrawdown(dateKey string, drawdownPct float64) {
	if drawdownPct < r.cfg.Risk.MaxDrawdownPct {
		return
	}
	r.alert(dateKey, models.SeverityCritical, models.AlertDrawdown,
		fmt.Sprintf("權益回撤 %.2f%% 超過設定上限", drawdownPct*100))
	r.logf(dateKey, models.LogWarning, "權益回撤觸及 %.2f%%，建議降低部位或調整策略", drawdownPct*100)
}

// checkDailyLoss compares the single-day return against the daily loss
// limit. On breach it raises a critical alert and suppresses new entries
// for the remainder of the date; open positions are untouched.
func (r *run) checkDailyLoss(dateKey string, dailyReturn float64) {
	if dailyReturn > -r.cfg.Risk.MaxDailyLossPct {
		return
	}
	r.haltedForDay = true
	r.alert(dateKey, models.SeverityCritical, models.AlertMaxDailyLoss,
		fmt.Sprintf("單日虧損達 %.2f%%，停止新增倉位", dailyReturn*100))
	r.logf(dateKey, models.LogWarning, "單日虧損 %.2f%%，當日不再建立新部位", dailyReturn*100)
}
