package main

import (
	"github.com/BradenHooton/cadence/internal/background"
	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/repositories"
	"github.com/spf13/cobra"
)

// cleanupCmd purges persisted security events past retention without starting the server.
// Meant for cron or a one-off after lowering SECURITY_EVENT_DB_RETENTION.
func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete persisted security events older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.NewConnection(&cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			eventRepo := repositories.NewSecurityEventRepository(db)
			manager := background.NewCleanupManager(logger,
				background.EventRetentionJob(eventRepo, cfg.Security.EventRetention, background.DefaultEventRetentionInterval, logger),
			)
			return manager.RunOnce(cmd.Context())
		},
	}
}
