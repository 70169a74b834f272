package commands

import (
	"github.com/spf13/cobra"

	"github.com/deppfellow/graphile-starter/internal/config"
	"github.com/deppfellow/graphile-starter/internal/database"
	"github.com/deppfellow/graphile-starter/internal/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			log := logger.NewLoggerWithService(cfg.Observability, nil)
			return database.Migrate(cmd.Context(), &log, cfg)
		},
	}
}
