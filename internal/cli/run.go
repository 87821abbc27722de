package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"twse-backtester/internal/backtest"
	"twse-backtester/internal/config"
	"twse-backtester/internal/dataset"
	"twse-backtester/internal/models"
	"twse-backtester/pkg/utils"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest from a strategy configuration file",
		Long: `Load a strategy configuration, replay the stored price series for its
selected symbols and print the performance diagnostics. With --save the
full result is stored and can be rendered later with 'backtester report'.`,
		Example: `  backtester run --config strategy.yaml
  backtester run --config strategy.yaml --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			save, _ := cmd.Flags().GetBool("save")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			dataStore, err := app.openStore()
			if err != nil {
				return err
			}
			defer dataStore.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			series := make(map[string][]models.PriceRecord, len(cfg.SelectedSymbols))
			coverage := make([]models.DatasetSummary, 0, len(cfg.SelectedSymbols))
			for _, symbol := range cfg.SelectedSymbols {
				records, err := dataStore.GetCandles(ctx, symbol, time.Time{}, time.Time{})
				if err != nil {
					return err
				}
				if len(records) == 0 {
					app.Logger.Warn().Str("symbol", symbol).Msg("No stored data for symbol")
					continue
				}
				series[symbol] = records
				coverage = append(coverage, dataset.Summarize(symbol, records))
			}

			engine := backtest.NewEngine(app.Logger)
			result, err := engine.Run(series, cfg, coverage)
			if err != nil {
				return err
			}

			printDiagnostics(result)

			if save {
				id := fmt.Sprintf("%s-%d", cfg.VersionCode, time.Now().Unix())
				if err := dataStore.SaveResult(ctx, id, result); err != nil {
					return err
				}
				fmt.Printf("\nSaved result %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringP("config", "c", "strategy.yaml", "Strategy configuration file (YAML or TOML)")
	cmd.Flags().Bool("save", false, "Persist the full result to the database")

	return cmd
}

func printDiagnostics(result *models.BacktestResult) {
	bold := color.New(color.Bold)
	metrics := result.Metrics

	bold.Printf("Backtest %s\n\n", result.VersionCode)
	fmt.Printf("  Total return:      %s\n", colorPercent(metrics.TotalReturn))
	fmt.Printf("  Annual return:     %s\n", colorPercent(metrics.AnnualReturn))
	fmt.Printf("  Volatility:        %.2f%%\n", metrics.Volatility*100)
	fmt.Printf("  Sharpe:            %.2f\n", metrics.SharpeRatio)
	fmt.Printf("  Sortino:           %.2f\n", metrics.SortinoRatio)
	fmt.Printf("  Calmar:            %.2f\n", metrics.CalmarRatio)
	fmt.Printf("  Max drawdown:      %.2f%% (%d days)\n", metrics.MaxDrawdown*100, metrics.MaxDrawdownDuration)
	fmt.Printf("  Trades:            %d (win rate %.1f%%)\n", metrics.TotalTrades, metrics.WinRate*100)
	fmt.Printf("  Profit factor:     %.2f\n", metrics.ProfitFactor)
	fmt.Printf("  Avg win / loss:    %s / %s\n",
		utils.FormatCurrency(metrics.AverageWin), utils.FormatCurrency(metrics.AverageLoss))
	fmt.Printf("  Avg holding days:  %.1f\n", metrics.AvgHoldDays)
	fmt.Printf("  Avg exposure:      %.1f%%\n", metrics.AvgExposure*100)

	if len(result.EquityCurve) > 1 {
		fmt.Println()
		fmt.Print(equityCurveASCII(result.EquityCurve, 60, 10))
	}
}

func colorPercent(ratio float64) string {
	formatted := utils.FormatPercent(ratio)
	if ratio > 0 {
		return color.GreenString(formatted)
	}
	if ratio < 0 {
		return color.RedString(formatted)
	}
	return formatted
}
