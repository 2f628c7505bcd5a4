package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultCacheTTL is the lifetime of a cached resolution when none is configured.
	DefaultCacheTTL = 5 * time.Second

	// MaxCacheTTL caps the cache lifetime so revocation always takes effect
	// within a bounded window even without the sweeper.
	MaxCacheTTL = 60 * time.Second
)

// TenantCache stores successful resolutions keyed by token fingerprint.
// Implementations must be safe for concurrent use and must treat backend
// failures as misses.
type TenantCache interface {
	Get(ctx context.Context, fingerprint string) (*Tenant, bool)
	Set(ctx context.Context, fingerprint string, tenant *Tenant)
	Delete(ctx context.Context, fingerprint string)
}

// ClampCacheTTL applies DefaultCacheTTL to zero values and caps at MaxCacheTTL.
func ClampCacheTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return DefaultCacheTTL
	case ttl > MaxCacheTTL:
		return MaxCacheTTL
	default:
		return ttl
	}
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*Tenant, bool) { return nil, false }
func (noopCache) Set(context.Context, string, *Tenant)        {}
func (noopCache) Delete(context.Context, string)              {}

// MemoryCache is an in-process TenantCache backed by go-cache.
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache creates an in-process cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	ttl = ClampCacheTTL(ttl)
	return &MemoryCache{c: gocache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Get(_ context.Context, fingerprint string) (*Tenant, bool) {
	v, ok := m.c.Get(fingerprint)
	if !ok {
		return nil, false
	}
	t, ok := v.(Tenant)
	if !ok {
		return nil, false
	}
	return &t, true
}

func (m *MemoryCache) Set(_ context.Context, fingerprint string, tenant *Tenant) {
	m.c.Set(fingerprint, *tenant, gocache.DefaultExpiration)
}

func (m *MemoryCache) Delete(_ context.Context, fingerprint string) {
	m.c.Delete(fingerprint)
}

// RedisCache is a TenantCache shared between instances via Redis.
// Only fingerprints are used as keys.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. Keys are stored as prefix+fingerprint.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ClampCacheTTL(ttl),
	}
}

func (r *RedisCache) Get(ctx context.Context, fingerprint string) (*Tenant, bool) {
	data, err := r.client.Get(ctx, r.prefix+fingerprint).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("Tenant cache get failed, treating as miss")
		}
		return nil, false
	}

	var t Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		log.Warn().Err(err).Msg("Tenant cache entry is corrupt, treating as miss")
		return nil, false
	}
	if t.IsolationKey == "" {
		return nil, false
	}

	return &t, true
}

func (r *RedisCache) Set(ctx context.Context, fingerprint string, tenant *Tenant) {
	data, err := json.Marshal(tenant)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode tenant cache entry")
		return
	}
	if err := r.client.Set(ctx, r.prefix+fingerprint, data, r.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Tenant cache set failed")
	}
}

func (r *RedisCache) Delete(ctx context.Context, fingerprint string) {
	if err := r.client.Del(ctx, r.prefix+fingerprint).Err(); err != nil {
		log.Warn().Err(err).Msg("Tenant cache delete failed")
	}
}
