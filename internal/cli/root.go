package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/byefat/backend/config"
	"github.com/byefat/backend/internal/database"
	"github.com/byefat/backend/internal/logger"
)

var (
	sqlitePath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "byefatctl",
	Short:         "byefatctl runs maintenance tasks against the byeFat store",
	Long:          "byefatctl applies schema migrations, reconciles daily counters and inspects the level curve.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "Use this SQLite file instead of the configured database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
}

// loadConfig reads the process configuration, or builds a minimal sqlite
// configuration when --sqlite is given.
func loadConfig() (*config.Config, error) {
	if sqlitePath != "" {
		return &config.Config{
			Environment: config.GetEnvironment(),
			DBDriver:    "sqlite",
			SQLitePath:  sqlitePath,
		}, nil
	}
	return config.LoadConfig()
}

func cliLogger(cfg *config.Config) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return logger.New(cfg.Environment, cfg.LogLevel)
}

// withDB opens the configured database for the duration of fn.
func withDB(fn func(db *gorm.DB, log *zap.Logger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := cliLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return fn(db, log)
}
