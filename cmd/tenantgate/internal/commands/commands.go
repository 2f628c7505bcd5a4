package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/auth"
	"github.com/wolfeidau/tenantgate/internal/server"
	"github.com/wolfeidau/tenantgate/internal/store"
	memorystore "github.com/wolfeidau/tenantgate/internal/store/memory"
	postgresstore "github.com/wolfeidau/tenantgate/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

type PostgresFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20" env:"TENANTGATE_POSTGRES_MAX_CONNS"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2" env:"TENANTGATE_POSTGRES_MIN_CONNS"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`
	StartupTimeout  int32 `help:"seconds to keep retrying the database at startup, negative to disable" default:"30" env:"TENANTGATE_POSTGRES_STARTUP_TIMEOUT"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"TENANTGATE_POSTGRES_AUTO_MIGRATE"`
}

func (p *PostgresFlags) Validate() error {
	if p.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (p *PostgresFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      p.ConnString,
		MaxConns:        p.MaxConns,
		MinConns:        p.MinConns,
		MaxConnLifetime: p.MaxConnLifetime,
		MaxConnIdleTime: p.MaxConnIdleTime,
		StartupTimeout:  p.StartupTimeout,
	}
}

// CacheFlags configures the tenant cache and revocation sweeper.
type CacheFlags struct {
	Type          string        `help:"tenant cache backend (none, memory or redis)" default:"none" enum:"none,memory,redis" env:"TENANTGATE_CACHE_TYPE"`
	TTL           time.Duration `help:"lifetime of a cached resolution, capped at 60s" default:"5s" env:"TENANTGATE_CACHE_TTL"`
	SweepInterval time.Duration `help:"how often deactivated keys are evicted from the cache" default:"5s" env:"TENANTGATE_CACHE_SWEEP_INTERVAL"`

	RedisAddr     string `help:"Redis address" default:"localhost:6379" env:"TENANTGATE_REDIS_ADDR"`
	RedisPassword string `help:"Redis password" env:"TENANTGATE_REDIS_PASSWORD"`
	RedisDB       int    `help:"Redis database number" default:"0" env:"TENANTGATE_REDIS_DB"`
	RedisPrefix   string `help:"prefix for Redis cache keys" default:"tenantgate:tenant:" env:"TENANTGATE_REDIS_PREFIX"`
}

func (c *CacheFlags) Validate() error {
	if c.TTL < 0 {
		return errors.New("cache TTL must not be negative")
	}
	if c.TTL > auth.MaxCacheTTL {
		return fmt.Errorf("cache TTL %s exceeds the maximum of %s", c.TTL, auth.MaxCacheTTL)
	}
	if c.Type != "none" && c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive when caching is enabled")
	}
	if c.Type == "redis" && c.RedisAddr == "" {
		return errors.New("Redis address is required for the redis cache (--cache-redis-addr or TENANTGATE_REDIS_ADDR)")
	}
	return nil
}

// RevocationBound is the longest a deactivated key can keep resolving.
func (c *CacheFlags) RevocationBound() time.Duration {
	if c.Type == "none" {
		return 0
	}
	return min(auth.ClampCacheTTL(c.TTL), c.SweepInterval)
}

// DeletionBound is the longest a deleted key or organization can keep
// resolving. The sweeper only sees rows that still exist, so deletions wait
// for the cache entry to expire.
func (c *CacheFlags) DeletionBound() time.Duration {
	if c.Type == "none" {
		return 0
	}
	return auth.ClampCacheTTL(c.TTL)
}

// newCache builds the configured tenant cache. It returns a nil cache when
// caching is disabled, and a cleanup function that is always safe to call.
func (c *CacheFlags) newCache(ctx context.Context) (auth.TenantCache, func(), error) {
	switch c.Type {
	case "memory":
		log.Info().Dur("ttl", auth.ClampCacheTTL(c.TTL)).Msg("Using in-memory tenant cache")
		return auth.NewMemoryCache(c.TTL), func() {}, nil

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{c.RedisAddr},
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			// Cache errors degrade to misses, so an unreachable Redis is not fatal.
			log.Warn().Err(err).Str("addr", c.RedisAddr).Msg("Redis is not reachable, resolutions will bypass the cache")
		}
		log.Info().Str("addr", c.RedisAddr).Dur("ttl", auth.ClampCacheTTL(c.TTL)).Msg("Using Redis tenant cache")
		return auth.NewRedisCache(client, c.RedisPrefix, c.TTL), func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Redis client")
			}
		}, nil

	default:
		return nil, func() {}, nil
	}
}

// stores holds the datastore handles shared by the resolver and server.
type stores struct {
	keys   store.PlatformKeyStore
	orgs   store.OrganizationStore
	pinger server.Pinger
	close  func()
}

func openStores(ctx context.Context, storeType, fixtures string, pg *PostgresFlags) (*stores, error) {
	switch storeType {
	case "postgres":
		if err := pg.Validate(); err != nil {
			return nil, err
		}

		pool, err := postgresstore.NewPool(ctx, pg.poolConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		if pg.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		orgs := postgresstore.NewOrganizationStore(pool)
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

		return &stores{
			keys:   postgresstore.NewPlatformKeyStore(pool),
			orgs:   orgs,
			pinger: orgs,
			close:  pool.Close,
		}, nil

	default:
		keys := memorystore.NewPlatformKeyStore()
		orgs := memorystore.NewOrganizationStore()

		if fixtures != "" {
			f, err := memorystore.LoadFixtures(fixtures)
			if err != nil {
				return nil, err
			}
			if err := f.Seed(ctx, orgs, keys); err != nil {
				return nil, fmt.Errorf("failed to seed fixtures: %w", err)
			}
		} else {
			log.Warn().Msg("Memory store has no fixtures, every token will be rejected")
		}

		log.Info().Msg("Using in-memory stores")

		return &stores{
			keys:   keys,
			orgs:   orgs,
			pinger: orgs,
			close:  func() {},
		}, nil
	}
}
