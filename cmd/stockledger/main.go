// Command stockledger serves the warehouse stock ledger and runs its
// maintenance jobs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/stockledger/internal/config"
)

const (
	Version = "0.1.0"
	appName = "stockledger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand and applied over the loaded
// configuration when set explicitly.
type globalFlags struct {
	configPath string
	dsn        string
	logPath    string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Warehouse stock ledger",
		Long: `stockledger tracks stock per SKU, warehouse and location, keeps a
compact audit trail of every change and coordinates picking lists between
pickers and checkers.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVarP(&g.dsn, "db", "d", "", "database DSN: SQLite path or postgres:// URL")
	cmd.PersistentFlags().StringVarP(&g.logPath, "log", "l", "", "log file path (default: stdout/stderr only)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(&g),
		initCmd(&g),
		snapshotCmd(&g),
		expireCmd(&g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

// load reads the configuration and applies explicitly set flags on top.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database.DSN = g.dsn
	}
	if flags.Changed("log") {
		cfg.Log.Path = g.logPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
