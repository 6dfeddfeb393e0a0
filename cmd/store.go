package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/import-engine/internal/store"
	"github.com/sells-group/import-engine/pkg/geocode"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "import.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore wraps initStore with migration, the shape every subcommand needs.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initGeocoder() geocode.Client {
	opts := []geocode.Option{
		geocode.WithRateLimit(cfg.Geocode.RateLimitRPS),
		geocode.WithCacheTTL(cfg.Geocode.CacheTTL()),
		geocode.WithRetry(cfg.Geocode.RetryConfig()),
		geocode.WithBreaker(cfg.Geocode.BreakerConfig()),
	}
	if cfg.Geocode.GoogleAPIKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleAPIKey))
	}
	return geocode.NewClient(opts...)
}
