// Package config provides strategy configuration management for the
// backtesting application.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	apperrors "twse-backtester/internal/errors"
)

// Strategy types.
const (
	StrategyDualMA      = "dualMa"
	StrategyRSIReversal = "rsiReversal"
	StrategyCustom      = "custom"
)

// Slippage modes.
const (
	SlippageTick  = "tick"
	SlippageRatio = "ratio"
)

// Position sizing modes.
const (
	SizingFixed      = "fixed"
	SizingPercent    = "percent"
	SizingVolatility = "volatility"
)

// Rebalance frequencies.
const (
	RebalanceDaily   = "daily"
	RebalanceWeekly  = "weekly"
	RebalanceMonthly = "monthly"
)

// Custom rule budget. Rule sets are interpreted, never executed, and the
// budget keeps evaluation bounded per (symbol, date).
const (
	MaxCustomRules      = 32
	MaxRuleConditions   = 8
	DefaultRebalanceDay = 5 // ISO weekday, Friday
)

// SlippageConfig controls fill-price adjustment.
type SlippageConfig struct {
	Mode      string  `mapstructure:"mode"`
	TickSize  float64 `mapstructure:"tick_size"`
	TickCount int     `mapstructure:"tick_count"`
	Ratio     float64 `mapstructure:"ratio"`
}

// SizingConfig controls position sizing and entry gating.
type SizingConfig struct {
	Mode               string  `mapstructure:"mode"`
	Value              float64 `mapstructure:"value"`
	MaxPositions       int     `mapstructure:"max_positions"`
	RebalanceFrequency string  `mapstructure:"rebalance_frequency"`
	RebalanceWeekday   int     `mapstructure:"rebalance_weekday"` // ISO weekday, 1=Mon..7=Sun
}

// RiskConfig holds the risk limits enforced during simulation.
type RiskConfig struct {
	MaxDrawdownPct  float64 `mapstructure:"max_drawdown_pct"`
	MaxExposurePct  float64 `mapstructure:"max_exposure_pct"`
	MaxDailyLossPct float64 `mapstructure:"max_daily_loss_pct"`
	StopLossPct     float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct   float64 `mapstructure:"take_profit_pct"`
	TrailingStopPct float64 `mapstructure:"trailing_stop_pct"`
}

// SessionConfig describes the trading session of the venue.
type SessionConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// Condition is one comparison inside a custom rule. Field names refer to
// the current bar, the indicator arrays, or the portfolio (close, open,
// high, low, volume, fast, slow, rsi, volatility, cash, equity,
// position_qty, holding_days).
type Condition struct {
	Field string  `mapstructure:"field"`
	Op    string  `mapstructure:"op"` // lt, le, gt, ge, eq, ne
	Value float64 `mapstructure:"value"`
}

// Rule is one declarative decision rule. The first rule whose conditions
// all hold decides the action for the date; Size optionally overrides the
// configured sizing policy with a target notional.
type Rule struct {
	When   []Condition `mapstructure:"when"`
	Action string      `mapstructure:"action"` // buy, sell, hold
	Size   float64     `mapstructure:"size"`
}

// StrategyConfig holds the full configuration of one backtest run.
type StrategyConfig struct {
	VersionCode  string `mapstructure:"version_code"`
	StrategyID   string `mapstructure:"strategy_id"`
	StrategyName string `mapstructure:"strategy_name"`
	StrategyType string `mapstructure:"strategy_type"`

	SelectedSymbols []string `mapstructure:"selected_symbols"`

	FastPeriod      int     `mapstructure:"fast_period"`
	SlowPeriod      int     `mapstructure:"slow_period"`
	RSIPeriod       int     `mapstructure:"rsi_period"`
	RSIOverbought   float64 `mapstructure:"rsi_overbought"`
	RSIOversold     float64 `mapstructure:"rsi_oversold"`
	EnableRSIFilter bool    `mapstructure:"enable_rsi_filter"`

	InitialCapital float64 `mapstructure:"initial_capital"`

	FeeRate        float64 `mapstructure:"fee_rate"`
	CommissionRate float64 `mapstructure:"commission_rate"`
	MinCommission  float64 `mapstructure:"min_commission"`
	StampTaxRate   float64 `mapstructure:"stamp_tax_rate"`
	FlowFee        float64 `mapstructure:"flow_fee"`

	Slippage       SlippageConfig `mapstructure:"slippage"`
	PositionSizing SizingConfig   `mapstructure:"position_sizing"`
	Risk           RiskConfig     `mapstructure:"risk"`

	TradingSession SessionConfig `mapstructure:"trading_session"`
	Timezone       string        `mapstructure:"timezone"`
	AllowOvernight bool          `mapstructure:"allow_overnight"`

	CustomRules []Rule `mapstructure:"custom_rules"`
	Notes       string `mapstructure:"notes"`
}

// Default returns a StrategyConfig with the standard TWSE defaults.
func Default() *StrategyConfig {
	return &StrategyConfig{
		VersionCode:    "v1",
		StrategyID:     "dual-ma",
		StrategyName:   "雙均線",
		StrategyType:   StrategyDualMA,
		FastPeriod:     5,
		SlowPeriod:     20,
		RSIPeriod:      14,
		RSIOverbought:  70,
		RSIOversold:    30,
		InitialCapital: 1_000_000,
		FeeRate:        0.001425,
		CommissionRate: 0.001425,
		MinCommission:  20,
		StampTaxRate:   0.003,
		FlowFee:        0,
		Slippage: SlippageConfig{
			Mode:      SlippageRatio,
			TickSize:  0.05,
			TickCount: 1,
			Ratio:     0.0005,
		},
		PositionSizing: SizingConfig{
			Mode:               SizingPercent,
			Value:              0.2,
			MaxPositions:       5,
			RebalanceFrequency: RebalanceDaily,
			RebalanceWeekday:   DefaultRebalanceDay,
		},
		Risk: RiskConfig{
			MaxDrawdownPct:  0.2,
			MaxExposurePct:  0.9,
			MaxDailyLossPct: 0.05,
			StopLossPct:     0.1,
			TakeProfitPct:   0.2,
			TrailingStopPct: 0.05,
		},
		TradingSession: SessionConfig{Start: "09:00", End: "13:30"},
		Timezone:       "Asia/Taipei",
		AllowOvernight: true,
	}
}

// Load reads a strategy configuration file (YAML or TOML, by extension)
// and merges it over the defaults.
func Load(path string) (*StrategyConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewDataError("config", "", fmt.Sprintf("config file %s not found", path), err)
		}
		return nil, apperrors.Wrapf(err, "reading config %s", path)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.Wrap(err, "parsing strategy config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/twse-backtester"
	}
	return filepath.Join(home, ".config", "twse-backtester")
}

// Validate checks the configuration before a simulation starts. Moving
// average periods are checked here so an inconsistent crossover setup
// fails before any simulation state is touched.
func (c *StrategyConfig) Validate() error {
	if c.SlowPeriod <= c.FastPeriod {
		return apperrors.ErrInvalidMAPeriods
	}
	if c.InitialCapital <= 0 {
		return apperrors.NewValidationError("initial_capital", c.InitialCapital, "must be positive")
	}
	if c.FastPeriod <= 0 {
		return apperrors.NewValidationError("fast_period", c.FastPeriod, "must be positive")
	}
	switch c.StrategyType {
	case StrategyDualMA, StrategyRSIReversal:
	case StrategyCustom:
		if len(c.CustomRules) > MaxCustomRules {
			return apperrors.NewValidationError("custom_rules", len(c.CustomRules),
				fmt.Sprintf("at most %d rules allowed", MaxCustomRules))
		}
		for i, rule := range c.CustomRules {
			if len(rule.When) > MaxRuleConditions {
				return apperrors.NewValidationError("custom_rules", i,
					fmt.Sprintf("at most %d conditions per rule", MaxRuleConditions))
			}
		}
	default:
		return apperrors.NewValidationError("strategy_type", c.StrategyType, "unknown strategy type")
	}
	switch c.PositionSizing.Mode {
	case SizingFixed, SizingPercent, SizingVolatility, "":
	default:
		return apperrors.NewValidationError("position_sizing.mode", c.PositionSizing.Mode, "unknown sizing mode")
	}
	switch c.Slippage.Mode {
	case SlippageTick, SlippageRatio, "":
	default:
		return apperrors.NewValidationError("slippage.mode", c.Slippage.Mode, "unknown slippage mode")
	}
	return nil
}
