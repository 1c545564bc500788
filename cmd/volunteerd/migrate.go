package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/volunteerd/internal/database"
)

func migrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Open runs every pending migration.
			db, err := database.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := database.Version(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is at schema version %d\n", dbPath, v)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", envOr("VOLUNTEERD_DB_PATH", "volunteerd.db"), "SQLite database path")
	return cmd
}
