package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"twse-backtester/internal/dataset"
	"twse-backtester/pkg/utils"
)

func newImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <csv-file>...",
		Short: "Import OHLCV price series from CSV files",
		Long: `Parse one or more CSV files into daily price series and store them in
the local database. Column headers are matched case-insensitively and
common aliases (including Chinese headers) are accepted.`,
		Example: `  backtester import data/2330.csv
  backtester import data/2330.csv data/2317.csv
  backtester import quotes.csv --symbol 2330`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbolFlag, _ := cmd.Flags().GetString("symbol")

			dataStore, err := app.openStore()
			if err != nil {
				return err
			}
			defer dataStore.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			for _, path := range args {
				fallback := symbolFlag
				if fallback == "" {
					fallback = strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
				}
				records, err := dataset.LoadFile(path, fallback)
				if err != nil {
					return fmt.Errorf("importing %s: %w", path, err)
				}

				bySymbol := make(map[string]int)
				for _, record := range records {
					bySymbol[record.Symbol]++
				}
				for symbol := range bySymbol {
					series := records[:0:0]
					for _, record := range records {
						if record.Symbol == symbol {
							series = append(series, record)
						}
					}
					if err := dataStore.SaveCandles(ctx, symbol, series); err != nil {
						return fmt.Errorf("saving %s: %w", symbol, err)
					}
					summary := dataset.Summarize(symbol, series)
					app.Logger.Info().
						Str("symbol", symbol).
						Int("rows", summary.RowCount).
						Str("start", summary.Start).
						Str("end", summary.End).
						Msg("Series imported")
					fmt.Printf("%s: %s rows (%s ~ %s, %s)\n", symbol,
						utils.FormatQuantity(int64(summary.RowCount)),
						summary.Start, summary.End, summary.Frequency)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringP("symbol", "s", "", "Symbol to assign when the CSV has no symbol column")

	return cmd
}
