package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"twse-backtester/internal/config"
)

func newInitCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented strategy configuration template",
		Long: `Write a commented strategy configuration template with the standard
TWSE defaults. Edit the file and pass it to 'backtester run --config'.`,
		Example: `  backtester init
  backtester init my-strategy.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "strategy.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteTemplate(path); err != nil {
				return err
			}
			app.Logger.Info().Str("path", path).Msg("Strategy template written")
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}
