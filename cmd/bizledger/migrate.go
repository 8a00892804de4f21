package main

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/bizledger/internal/migration"
	"github.com/smallbiznis/bizledger/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(cmd.Context(), migration.Migrate)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations (postgres only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(cmd.Context(), func(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
				if !cfg.IsPostgres() {
					return fmt.Errorf("rollback is not supported for %s", cfg.Type)
				}
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := migration.Rollback(sqlDB, steps); err != nil {
					return err
				}
				log.Info("migrations reverted", zap.Int("steps", steps))
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to revert")

	status := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version (postgres only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(cmd.Context(), func(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
				if !cfg.IsPostgres() {
					return fmt.Errorf("schema versions are not tracked for %s", cfg.Type)
				}
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				v, dirty, err := migration.Version(sqlDB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", v, dirty)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

// runWithDB starts the infrastructure graph, runs fn once and stops.
func runWithDB(ctx context.Context, fn func(conn *gorm.DB, cfg db.Config, log *zap.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var runErr error
	app := fx.New(
		infrastructure(),
		fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB, cfg db.Config, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					runErr = fn(conn, cfg, log)
					return nil
				},
			})
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
