package main

import (
	"go_subdns/internal/db"
	"go_subdns/internal/logging"

	"github.com/spf13/cobra"
)

func newCmdMigrate() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			gdb, err := db.Open(cfg.DB.Driver, cfg.DB.DSN, db.Options{})
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			return db.Migrate(gdb, logging.Component(lg, "migrate"))
		},
	}
}
