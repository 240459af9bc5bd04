package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/westsidetechsolutions/meter/adapters/cache"
	apihttp "github.com/westsidetechsolutions/meter/adapters/http"
	"github.com/westsidetechsolutions/meter/adapters/idgen"
	"github.com/westsidetechsolutions/meter/adapters/memory"
	"github.com/westsidetechsolutions/meter/adapters/postgres"
	"github.com/westsidetechsolutions/meter/adapters/redis"
	"github.com/westsidetechsolutions/meter/adapters/sqlite"
	"github.com/westsidetechsolutions/meter/config"
	"github.com/westsidetechsolutions/meter/ports"
)

// Stores bundles the storage ports selected by configuration.
type Stores struct {
	Keys        ports.KeyStore
	Usage       ports.UsageStore
	Subscribers ports.SubscriberStore

	// Health holds readiness checks for the backing services.
	Health map[string]apihttp.HealthChecker

	closers []func() error
}

// OpenStores opens the configured storage backend.
// When a Redis URL is set, usage counters live in Redis and the rest of the
// data stays in the primary driver. Subscriber lookups are cached unless disabled.
func OpenStores(ctx context.Context, cfg *config.Config, clk ports.Clock, logger zerolog.Logger) (*Stores, error) {
	s := &Stores{Health: make(map[string]apihttp.HealthChecker)}
	usageIDs := idgen.UUID{Prefix: "usage_"}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		s.Keys = memory.NewKeyStore()
		s.Usage = memory.NewUsageStore(memory.UsageStoreConfig{Clock: clk, IDs: usageIDs})
		s.Subscribers = memory.NewSubscriberStore()

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := db.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		s.Keys = sqlite.NewKeyStore(db)
		s.Usage = sqlite.NewUsageStore(db, clk, usageIDs)
		s.Subscribers = sqlite.NewSubscriberStore(db)
		s.Health["database"] = apihttp.HealthCheckFunc(db.PingContext)

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		s.Keys = postgres.NewKeyStore(db)
		s.Usage = postgres.NewUsageStore(db, clk, usageIDs)
		s.Subscribers = postgres.NewSubscriberStore(db)
		s.Health["database"] = apihttp.HealthCheckFunc(db.PingContext)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if rc := cfg.Storage.Redis; rc.URL != "" {
		client, err := redis.New(ctx, redis.Config{
			URL:          rc.URL,
			PoolSize:     rc.PoolSize,
			MinIdleConns: rc.MinIdleConns,
			DialTimeout:  rc.DialTimeout,
			ReadTimeout:  rc.ReadTimeout,
			WriteTimeout: rc.WriteTimeout,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		s.Usage = redis.NewUsageStore(client.Client, clk, usageIDs)
		s.Health["redis"] = apihttp.HealthCheckFunc(client.Health)
		logger.Info().Msg("usage counters stored in redis")
	}

	if !cfg.Cache.Disabled {
		s.Subscribers = cache.NewSubscriberStore(s.Subscribers, cache.Config{
			Size: cfg.Cache.Size,
			TTL:  cfg.Cache.TTL,
		})
	}

	logger.Info().
		Str("driver", cfg.Storage.Driver).
		Bool("subscriber_cache", !cfg.Cache.Disabled).
		Msg("storage ready")

	return s, nil
}

// Close releases backend connections in reverse open order.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
