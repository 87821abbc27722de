package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const strategyTemplate = `# TWSE Backtester strategy configuration
version_code: v1
strategy_id: dual-ma
strategy_name: 雙均線
# dualMa, rsiReversal or custom
strategy_type: dualMa

selected_symbols:
  - "2330"

fast_period: 5
slow_period: 20
rsi_period: 14
rsi_overbought: 70
rsi_oversold: 30
enable_rsi_filter: false

initial_capital: 1000000

# TWSE fee schedule
fee_rate: 0.001425
commission_rate: 0.001425
min_commission: 20
stamp_tax_rate: 0.003
flow_fee: 0

slippage:
  # tick or ratio
  mode: ratio
  tick_size: 0.05
  tick_count: 1
  ratio: 0.0005

position_sizing:
  # fixed, percent or volatility
  mode: percent
  value: 0.2
  max_positions: 5
  # daily, weekly or monthly
  rebalance_frequency: daily
  # ISO weekday, 1=Mon .. 7=Sun
  rebalance_weekday: 5

risk:
  max_drawdown_pct: 0.2
  max_exposure_pct: 0.9
  max_daily_loss_pct: 0.05
  stop_loss_pct: 0.1
  take_profit_pct: 0.2
  trailing_stop_pct: 0.05

trading_session:
  start: "09:00"
  end: "13:30"
timezone: Asia/Taipei
allow_overnight: true

# Only read when strategy_type is custom. First matching rule wins.
# Fields: close, open, high, low, volume, fast, slow, rsi, volatility,
# cash, equity, position_qty, holding_days. Ops: lt, le, gt, ge, eq, ne.
custom_rules: []
#  - action: buy
#    when:
#      - field: rsi
#        op: le
#        value: 25
#  - action: sell
#    when:
#      - field: rsi
#        op: ge
#        value: 75
`

// WriteTemplate writes a commented strategy configuration template to
// path, refusing to overwrite an existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing file %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, []byte(strategyTemplate), 0644)
}
