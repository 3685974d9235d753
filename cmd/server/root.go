package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omnibridge/backend/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "omnibridge",
	Short:         "Bridge chat platforms to the support desk",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncCmd)
}

// loadConfig reads .env (if present) and the environment, then validates.
func loadConfig() (config.Config, zerolog.Logger, error) {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "omnibridge").Str("env", cfg.Env).Logger()

	if err := cfg.Validate(); err != nil {
		return config.Config{}, logger, err
	}
	return cfg, logger, nil
}
