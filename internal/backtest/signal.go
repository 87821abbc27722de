package backtest

import (
	"fmt"

	"twse-backtester/internal/analysis/indicators"
	"twse-backtester/internal/config"
	"twse-backtester/internal/models"
)

// Decision is the outcome of evaluating one (symbol, date) pair. Size, when
// positive, overrides the configured sizing policy with a target notional.
type Decision struct {
	Action models.Action
	Size   float64
}

// DecisionContext is the read-only view handed to custom strategies.
type DecisionContext struct {
	Symbol      string
	Index       int
	Bar         models.PriceRecord
	History     []models.PriceRecord
	Fast        indicators.Series
	Slow        indicators.Series
	RSI         indicators.Series
	Volatility  indicators.Series
	Cash        float64
	Equity      float64
	PositionQty int64
	HoldingDays int
	Positions   []models.PositionDetail
}

// DecisionFunc is a caller-registered custom decision hook. It must be
// synchronous and side-effect free; panics are recovered and treated as
// hold for that date.
type DecisionFunc func(DecisionContext) Decision

// evaluateSignal produces the buy/sell/hold decision for one symbol on one
// date. Exactly one action results per (symbol, date) pair.
func (r *run) evaluateSignal(ctx *SymbolContext, index int, dctx DecisionContext) Decision {
	switch r.cfg.StrategyType {
	case config.StrategyDualMA:
		return r.dualMASignal(ctx, index, dctx.PositionQty > 0)
	case config.StrategyRSIReversal:
		return r.rsiReversalSignal(ctx, index, dctx.PositionQty > 0)
	case config.StrategyCustom:
		return r.customSignal(ctx, index, dctx)
	default:
		return Decision{Action: models.ActionHold}
	}
}

// dualMASignal buys on an upward fast/slow crossover and sells an open
// position on the downward crossover, optionally gated by RSI extremes.
func (r *run) dualMASignal(ctx *SymbolContext, index int, hasPosition bool) Decision {
	fast := ctx.FastMA.At(index)
	slow := ctx.SlowMA.At(index)
	fastPrev := ctx.FastMA.At(index - 1)
	slowPrev := ctx.SlowMA.At(index - 1)
	if !fast.Valid || !slow.Valid || !fastPrev.Valid || !slowPrev.Valid {
		return Decision{Action: models.ActionHold}
	}

	rsi := ctx.RSI.At(index)
	allowBuy := !r.cfg.EnableRSIFilter || (rsi.Valid && rsi.Float64 <= r.cfg.RSIOversold)
	allowSell := !r.cfg.EnableRSIFilter || (rsi.Valid && rsi.Float64 >= r.cfg.RSIOverbought)

	crossedUp := fastPrev.Float64 <= slowPrev.Float64 && fast.Float64 > slow.Float64
	crossedDown := fastPrev.Float64 >= slowPrev.Float64 && fast.Float64 < slow.Float64

	if !hasPosition && crossedUp && allowBuy {
		return Decision{Action: models.ActionBuy}
	}
	if hasPosition && crossedDown && allowSell {
		return Decision{Action: models.ActionSell}
	}
	return Decision{Action: models.ActionHold}
}

// rsiReversalSignal buys at/below the oversold threshold while flat and
// sells at/above the overbought threshold while holding.
func (r *run) rsiReversalSignal(ctx *SymbolContext, index int, hasPosition bool) Decision {
	rsi := ctx.RSI.At(index)
	if !rsi.Valid {
		return Decision{Action: models.ActionHold}
	}
	if !hasPosition && rsi.Float64 <= r.cfg.RSIOversold {
		return Decision{Action: models.ActionBuy}
	}
	if hasPosition && rsi.Float64 >= r.cfg.RSIOverbought {
		return Decision{Action: models.ActionSell}
	}
	return Decision{Action: models.ActionHold}
}

// customSignal evaluates the declarative rule set, or the registered
// decision hook when one is present. Failures are logged as non-fatal and
// the date is treated as hold for the symbol.
func (r *run) customSignal(ctx *SymbolContext, index int, dctx DecisionContext) Decision {
	if r.custom != nil {
		decision, err := safeDecide(r.custom, dctx)
		if err != nil {
			r.logf(models.DateKey(dctx.Bar.Timestamp), models.LogError, "自訂策略錯誤（%s）：%v", ctx.Symbol, err)
			return Decision{Action: models.ActionHold}
		}
		return decision
	}
	return evaluateRules(r.cfg.CustomRules, dctx)
}

// safeDecide invokes a custom decision hook with panic recovery.
func safeDecide(fn DecisionFunc, dctx DecisionContext) (decision Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			decision = Decision{Action: models.ActionHold}
			err = fmt.Errorf("decision hook panicked: %v", rec)
		}
	}()
	decision = fn(dctx)
	return decision, nil
}

// evaluateRules interprets the bounded rule set: the first rule whose
// conditions all hold decides the action. No rule matching means hold.
func evaluateRules(rules []config.Rule, dctx DecisionContext) Decision {
	for _, rule := range rules {
		if ruleMatches(rule, dctx) {
			switch rule.Action {
			case "buy":
				return Decision{Action: models.ActionBuy, Size: rule.Size}
			case "sell":
				return Decision{Action: models.ActionSell}
			default:
				return Decision{Action: models.ActionHold}
			}
		}
	}
	return Decision{Action: models.ActionHold}
}

func ruleMatches(rule config.Rule, dctx DecisionContext) bool {
	for _, cond := range rule.When {
		value, ok := fieldValue(cond.Field, dctx)
		if !ok || !compare(cond.Op, value, cond.Value) {
			return false
		}
	}
	return len(rule.When) > 0
}

// fieldValue resolves a rule field against the decision context. Indicator
// fields resolve only once their warmup window has filled.
func fieldValue(field string, dctx DecisionContext) (float64, bool) {
	switch field {
	case "close":
		return dctx.Bar.Close, true
	case "open":
		return dctx.Bar.Open, true
	case "high":
		return dctx.Bar.High, true
	case "low":
		return dctx.Bar.Low, true
	case "volume":
		return float64(dctx.Bar.Volume), true
	case "fast":
		v := dctx.Fast.At(dctx.Index)
		return v.Float64, v.Valid
	case "slow":
		v := dctx.Slow.At(dctx.Index)
		return v.Float64, v.Valid
	case "rsi":
		v := dctx.RSI.At(dctx.Index)
		return v.Float64, v.Valid
	case "volatility":
		v := dctx.Volatility.At(dctx.Index)
		return v.Float64, v.Valid
	case "cash":
		return dctx.Cash, true
	case "equity":
		return dctx.Equity, true
	case "position_qty":
		return float64(dctx.PositionQty), true
	case "holding_days":
		return float64(dctx.HoldingDays), true
	default:
		return 0, false
	}
}

func compare(op string, left, right float64) bool {
	switch op {
	case "lt":
		return left < right
	case "le":
		return left <= right
	case "gt":
		return left > right
	case "ge":
		return left >= right
	case "eq":
		return left == right
	case "ne":
		return left != right
	default:
		return false
	}
}
