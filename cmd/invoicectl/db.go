package main

import (
	"github.com/spf13/cobra"

	"invoiceflow/internal/config"
	"invoiceflow/internal/infrastructure/storage/postgres"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create tables and indexes (idempotent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
			poolCfg.MaxConns = 1
			poolCfg.MinConns = 0
			poolCfg.ApplicationName = "invoicectl"
			pool, err := postgres.NewPool(cmd.Context(), poolCfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.ApplySchema(cmd.Context(), pool); err != nil {
				return err
			}
			cmd.Println("schema applied")
			return nil
		},
	})

	return cmd
}
