package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/omnibridge/backend/internal/config"
	"github.com/omnibridge/backend/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Run database migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(".env")
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required")
		}
		command := "up"
		if len(args) == 1 {
			command = args[0]
		}
		if err := db.Migrate(cmd.Context(), cfg.DatabaseURL, command); err != nil {
			return fmt.Errorf("migrate %s: %w", command, err)
		}
		cmd.Printf("migrate %s: ok\n", command)
		return nil
	},
}
