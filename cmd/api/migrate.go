package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kmc/ehr-api/internal/config"
	"github.com/kmc/ehr-api/internal/repository/postgres"
)

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *postgres.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *postgres.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-30s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-30s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, configPath string, fn func(context.Context, *postgres.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, postgres.NewMigrator(db))
}
