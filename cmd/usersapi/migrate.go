package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vanaheimr/usersapi/internal/config"
	"github.com/vanaheimr/usersapi/internal/notification"
	"github.com/vanaheimr/usersapi/pkg/database"
)

var migrateDownSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context(), cfgFile)
		if err != nil {
			return err
		}
		if cfg.Database.DSN == "" {
			return errors.New("database.dsn is not configured")
		}

		db, err := database.Connect(cmd.Context(), cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		var version uint
		if migrateDownSteps > 0 {
			version, err = database.MigrateDown(db, notification.Migrations, "migrations", migrateDownSteps)
		} else {
			version, err = database.Migrate(db, notification.Migrations, "migrations")
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
		return nil
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateDownSteps, "down", 0, "roll back this many migrations instead of applying")
	rootCmd.AddCommand(migrateCmd)
}
