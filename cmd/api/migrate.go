package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/cadence/internal/database"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	for _, command := range []string{database.MigrateUp, database.MigrateDown, database.MigrateStatus} {
		cmd.AddCommand(migrateSubcommand(command))
	}
	return cmd
}

func migrateSubcommand(command string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: fmt.Sprintf("Run goose %s against the configured database", command),
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

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			return database.Migrate(ctx, db.Pool, command, logger)
		},
	}
}
