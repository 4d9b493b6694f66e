package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placemark/internal/db"
	"github.com/sells-group/placemark/internal/location"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply registry schema migrations",
	Long:  "Applies all pending SQL migrations to the registry schema in lexicographic order. Postgres only; the SQLite driver manages its own schema.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		if cfg.Store.Driver != "postgres" {
			zap.L().Info("nothing to do for driver", zap.String("driver", cfg.Store.Driver))
			return nil
		}

		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := location.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "migrate")
		}

		zap.L().Info("all migrations applied successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
