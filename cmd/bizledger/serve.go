package main

import (
	"github.com/smallbiznis/bizledger/internal/migration"
	"github.com/smallbiznis/bizledger/internal/scheduler"
	"github.com/smallbiznis/bizledger/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		Example: `  # Serve on HTTP_ADDR, applying pending migrations first
  bizledger serve

  # Serve against a schema managed elsewhere
  bizledger serve --skip-migrate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{infrastructure()}
			if !skipMigrate {
				opts = append(opts, migration.Module)
			}
			opts = append(opts, server.Module, scheduler.Module)

			app := fx.New(opts...)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply schema migrations on startup")
	return cmd
}
