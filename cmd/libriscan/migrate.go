package main

import (
	"github.com/spf13/cobra"

	"github.com/libriscan/libriscan/internal/server"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		loader, logger, _, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := server.ConnectDB(ctx, loader.Get().Database, logger)
		if err != nil {
			return err
		}
		defer server.CloseDB(db, logger)
		return db.Migrate(ctx, logger)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
