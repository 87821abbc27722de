// Package cli provides the command-line interface for the backtesting
// application.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"twse-backtester/internal/config"
	"twse-backtester/internal/logging"
	"twse-backtester/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Logger zerolog.Logger
	DBPath string
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:     "backtester",
		Short:   "Deterministic portfolio backtester for TWSE price series",
		Version: Version,
		Long: `backtester replays imported daily price series through a strategy
configuration and reports the equity curve, trade ledger and performance
diagnostics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
			}
		},
	}

	defaultDB := filepath.Join(config.DefaultConfigDir(), "backtester.db")
	rootCmd.PersistentFlags().StringVar(&app.DBPath, "db", defaultDB, "Path to the SQLite database")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(newInitCmd(app))
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newReportCmd(app))

	return rootCmd
}

// openStore opens the SQLite store, creating the parent directory when
// missing.
func (app *App) openStore() (store.DataStore, error) {
	if err := os.MkdirAll(filepath.Dir(app.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.NewSQLiteStore(app.DBPath)
}

// Execute runs the root command.
func Execute() int {
	logger := logging.NewLogger()
	rootCmd := NewRootCmd(logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
