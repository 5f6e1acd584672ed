package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	orderpg "github.com/dmehra2102/storefront/internal/order/infrastructure/postgres"
)

func newMigrateCommand(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the storefront tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, d.cfg.PGURL)
			if err != nil {
				return fmt.Errorf("pg connect: %w", err)
			}
			defer pool.Close()

			if err := orderpg.Migrate(ctx, pool); err != nil {
				return err
			}
			d.log.Info("schema applied")
			return nil
		},
	}
}
