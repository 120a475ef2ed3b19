// Command shopctl runs one-off maintenance tasks against the shop database.
package main

import (
	"fmt"
	"os"

	"github.com/shopfront/backend/internal/infrastructure/config"
	"github.com/shopfront/backend/internal/infrastructure/logger"
	"github.com/shopfront/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "Shopfront maintenance commands",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	open := func() (*env, error) { return openEnv(logLevel) }
	rootCmd.AddCommand(seedCmd(open))
	rootCmd.AddCommand(reconcileCmd(open))
	rootCmd.AddCommand(createAdminCmd(open))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "shopctl:", err)
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and the database
type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *persistence.Database
}

func openEnv(logLevel string) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(logLevel))))
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func (e *env) Close() {
	_ = e.db.Close()
	_ = e.log.Sync()
}
