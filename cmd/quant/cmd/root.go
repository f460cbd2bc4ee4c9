// Package cmd - quant CLI commands
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/wonny/aegis-strategy/internal/app"
	"github.com/wonny/aegis-strategy/internal/pkg/config"
	"github.com/wonny/aegis-strategy/internal/pkg/logger"
	"github.com/wonny/aegis-strategy/internal/pkg/market"
)

var (
	// 공통 플래그
	cfgFile string
	verbose bool
	asJSON  bool

	cfg *config.Config
)

// rootCmd 루트 커맨드
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Aegis Strategy Trading System - CLI",
	Long: `Aegis Strategy Trading System - CLI

Usage:
    go run ./cmd/quant [command]

Commands:
    backend     start/stop/status                  - API Server (Port 8099)
    ledger      summary/holds/fix-sell-price/backfill - Trade ledger
    snapshot    take/strategies/history/change     - Daily return snapshots
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute 루트 커맨드 실행
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")

	// Add subcommands
	rootCmd.AddCommand(backendCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() error {
	time.Local = market.KST()

	if cfgFile != "" {
		if err := godotenv.Load(cfgFile); err != nil {
			return fmt.Errorf("load %s: %w", cfgFile, err)
		}
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	return logger.Init(logger.Config{
		Level:       level,
		Format:      "pretty",
		ServiceName: "quant",
	})
}

// openLedger opens the configured ledger for a single command
func openLedger(ctx context.Context) (*app.Ledger, error) {
	return app.OpenLedger(ctx, cfg, app.NewClock(cfg))
}
