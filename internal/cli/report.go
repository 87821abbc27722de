package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"twse-backtester/internal/models"
	"twse-backtester/pkg/utils"
)

func newReportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [result-id]",
		Short: "List stored backtest results or render one in full",
		Long: `Without arguments, list the stored results newest first. With a result
id, render the full report: diagnostics, equity curve, trade ledger and
risk alerts.`,
		Example: `  backtester report
  backtester report v1-1719302400
  backtester report v1-1719302400 --trades`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataStore, err := app.openStore()
			if err != nil {
				return err
			}
			defer dataStore.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if len(args) == 0 {
				metas, err := dataStore.ListResults(ctx)
				if err != nil {
					return err
				}
				if len(metas) == 0 {
					fmt.Println("No stored results. Run 'backtester run --save' first.")
					return nil
				}
				bold := color.New(color.Bold)
				bold.Printf("%-28s %-10s %12s %12s %8s  %s\n",
					"ID", "VERSION", "RETURN", "DRAWDOWN", "TRADES", "CREATED")
				for _, meta := range metas {
					fmt.Printf("%-28s %-10s %12s %11.2f%% %8d  %s\n",
						meta.ID, meta.VersionCode,
						utils.FormatPercent(meta.TotalReturn),
						meta.MaxDrawdown*100, meta.TotalTrades,
						meta.CreatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			}

			result, err := dataStore.GetResult(ctx, args[0])
			if err != nil {
				return err
			}

			printDiagnostics(result)

			if showTrades, _ := cmd.Flags().GetBool("trades"); showTrades {
				printTrades(result.Trades)
			}
			if showAlerts, _ := cmd.Flags().GetBool("alerts"); showAlerts {
				printAlerts(result.RiskAlerts)
			}
			return nil
		},
	}

	cmd.Flags().Bool("trades", false, "Include the trade ledger")
	cmd.Flags().Bool("alerts", false, "Include the risk alerts")

	return cmd
}

func printTrades(trades []models.TradeRecord) {
	if len(trades) == 0 {
		return
	}
	fmt.Println()
	color.New(color.Bold).Printf("%-8s %-12s %-12s %10s %10s %8s %12s %10s  %s\n",
		"SYMBOL", "ENTRY", "EXIT", "ENTRY PX", "EXIT PX", "QTY", "PROFIT", "RETURN", "REASON")
	for _, trade := range trades {
		fmt.Printf("%-8s %-12s %-12s %10.2f %10.2f %8s %12s %10s  %s\n",
			trade.Symbol, trade.EntryDate, trade.ExitDate,
			trade.EntryPrice, trade.ExitPrice,
			utils.FormatQuantity(trade.Quantity),
			utils.FormatPnL(trade.Profit),
			utils.FormatPercent(trade.ReturnPct),
			trade.ExitReason)
	}
}

func printAlerts(alerts []models.RiskAlert) {
	if len(alerts) == 0 {
		return
	}
	fmt.Println()
	color.New(color.Bold).Printf("%-12s %-14s %-10s %s\n", "DATE", "CATEGORY", "SEVERITY", "MESSAGE")
	for _, alert := range alerts {
		severity := string(alert.Severity)
		if alert.Severity == models.SeverityCritical {
			severity = color.RedString(severity)
		}
		fmt.Printf("%-12s %-14s %-10s %s\n", alert.Date, alert.Category, severity, alert.Message)
	}
}

// equityCurveASCII renders the equity curve as a fixed-size terminal chart.
func equityCurveASCII(curve []models.EquityPoint, width, height int) string {
	if len(curve) == 0 {
		return "No data to display\n"
	}

	minEquity := curve[0].Equity
	maxEquity := curve[0].Equity
	for _, point := range curve {
		if point.Equity < minEquity {
			minEquity = point.Equity
		}
		if point.Equity > maxEquity {
			maxEquity = point.Equity
		}
	}

	equityRange := maxEquity - minEquity
	if equityRange == 0 {
		equityRange = 1
	}
	minEquity -= equityRange * 0.05
	maxEquity += equityRange * 0.05
	equityRange = maxEquity - minEquity

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = make([]rune, width)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	step := len(curve) / width
	if step == 0 {
		step = 1
	}
	for x := 0; x < width && x*step < len(curve); x++ {
		point := curve[x*step]
		y := int((point.Equity - minEquity) / equityRange * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Equity Curve (%.0f - %.0f)\n", minEquity, maxEquity))
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteRune('│')
		sb.WriteRune('\n')
	}
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	sb.WriteString(fmt.Sprintf("%s ~ %s\n", curve[0].Date, curve[len(curve)-1].Date))
	return sb.String()
}
