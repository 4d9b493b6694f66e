package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placemark/internal/location"
)

// initStore opens the registry store selected by config.
func initStore(ctx context.Context) (location.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return location.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "placemark.db"
		}
		st, err := location.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	case "memory":
		return location.NewMemStore(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
