// Package auth resolves bearer tokens to tenants.
//
// A token is a platform key persisted in the shared datastore. It resolves to
// the isolation key (schema name) of the organization that owns it. Every
// failure is one of the typed reasons in errors.go, so callers can tell a
// denied request from one that could not be evaluated.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/wolfeidau/tenantgate/internal/auth"

// Tenant is the identity a token resolves to.
type Tenant struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	IsolationKey   string    `json:"isolation_key"`
	KeyID          uuid.UUID `json:"key_id"`
}

// Resolver resolves a bearer token to a tenant.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Tenant, error)
}

// Option configures a TokenResolver.
type Option func(*TokenResolver)

// WithCache enables caching of successful resolutions.
func WithCache(cache TenantCache) Option {
	return func(r *TokenResolver) {
		if cache != nil {
			r.cache = cache
		}
	}
}

// WithLookupTimeout bounds the shared datastore lookup. A lookup that runs
// past it fails with ReasonDatastoreUnavailable.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *TokenResolver) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// DefaultLookupTimeout bounds a shared datastore lookup.
const DefaultLookupTimeout = 5 * time.Second

var errLookupTimeout = errors.New("token lookup timed out")

// IsCallerGone reports whether err means the caller's own context ended
// before resolution finished, as opposed to a failure to evaluate the token.
func IsCallerGone(err error) bool {
	var authErr *Error
	if errors.As(err, &authErr) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// callerGone returns ctx.Err() when ctx ended for a reason other than the
// shared lookup timeout.
func callerGone(ctx context.Context) error {
	if ctx.Err() == nil || errors.Is(context.Cause(ctx), errLookupTimeout) {
		return nil
	}
	return ctx.Err()
}

// TokenResolver validates bearer tokens against the platform key store and
// resolves them to the owning organization's isolation key.
// It is safe for concurrent use.
type TokenResolver struct {
	keys    store.PlatformKeyStore
	orgs    store.OrganizationStore
	cache   TenantCache
	group   singleflight.Group
	metrics *telemetry.Metrics

	lookupTimeout time.Duration
}

var _ Resolver = (*TokenResolver)(nil)

// NewTokenResolver creates a resolver over the given stores.
func NewTokenResolver(keys store.PlatformKeyStore, orgs store.OrganizationStore, opts ...Option) *TokenResolver {
	r := &TokenResolver{
		keys:    keys,
		orgs:    orgs,
		cache:   noopCache{},
		metrics: telemetry.GetMetrics(),

		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate reports whether the token is non-empty, matches exactly one
// platform key, that key is active, and the stored value equals the token.
// The reason for any failure is logged.
func (r *TokenResolver) Validate(ctx context.Context, token string) bool {
	if token == "" {
		log.Info().Msg("Authentication failed: empty bearer token")
		return false
	}
	_, err := r.lookupKey(ctx, token)
	return err == nil
}

// ResolveTenant returns the isolation key of the organization owning token.
func (r *TokenResolver) ResolveTenant(ctx context.Context, token string) (string, error) {
	tenant, err := r.Resolve(ctx, token)
	if err != nil {
		return "", err
	}
	return tenant.IsolationKey, nil
}

// Resolve validates the token and returns its tenant. Successful results may
// be served from the cache; concurrent misses for the same token share one
// datastore lookup. If ctx ends first, Resolve returns ctx.Err() unwrapped.
func (r *TokenResolver) Resolve(ctx context.Context, token string) (*Tenant, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "TokenResolver.Resolve")
	defer span.End()

	started := time.Now()
	tenant, err := r.resolve(ctx, token)

	outcome := "resolved"
	switch {
	case IsCallerGone(err):
		outcome = "caller_gone"
	case err != nil:
		outcome = ReasonOf(err).String()
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("auth.outcome", outcome))

	r.metrics.ResolutionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	r.metrics.LookupDuration.Record(ctx, float64(time.Since(started).Microseconds())/1000.0)

	return tenant, err
}

func (r *TokenResolver) resolve(ctx context.Context, token string) (*Tenant, error) {
	if token == "" {
		return nil, newError(ReasonMissingToken, nil)
	}

	fingerprint := Fingerprint(token)

	if cached, ok := r.cache.Get(ctx, fingerprint); ok {
		r.metrics.CacheHitsTotal.Add(ctx, 1)
		return cached, nil
	}
	r.metrics.CacheMissesTotal.Add(ctx, 1)

	// The shared lookup outlives any one caller so a caller that goes away
	// cannot fail the others waiting on the same token.
	ch := r.group.DoChan(fingerprint, func() (any, error) {
		lookupCtx, cancel := context.WithTimeoutCause(context.WithoutCancel(ctx), r.lookupTimeout, errLookupTimeout)
		defer cancel()
		return r.lookup(lookupCtx, token, fingerprint)
	})

	select {
	case <-ctx.Done():
		log.Debug().Str("token", Redact(token)).Msg("Caller went away during token lookup")
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug().Str("token", Redact(token)).Msg("Shared in-flight token lookup")
		}
		// Each caller gets its own copy.
		tenant := *res.Val.(*Tenant)
		return &tenant, nil
	}
}

// lookup performs the two datastore round-trips: key record, then organization.
func (r *TokenResolver) lookup(ctx context.Context, token, fingerprint string) (*Tenant, error) {
	key, err := r.lookupKey(ctx, token)
	if err != nil {
		return nil, err
	}

	isolationKey, err := r.orgs.FindIsolationKey(ctx, key.OrgID)
	switch {
	case errors.Is(err, store.ErrOrganizationNotFound):
		log.Error().
			Bool("alert", true).
			Str("token", Redact(token)).
			Str("key_id", key.KeyID.String()).
			Str("org_id", key.OrgID.String()).
			Msg("Active platform key references a missing organization")
		return nil, newError(ReasonOrganizationNotFound, err)
	case err != nil:
		log.Error().Err(err).Str("token", Redact(token)).Msg("Organization lookup failed")
		return nil, newError(ReasonDatastoreUnavailable, err)
	case isolationKey == "":
		// Stores already refuse this, but an empty key must never be returned as success.
		log.Error().
			Bool("alert", true).
			Str("org_id", key.OrgID.String()).
			Msg("Organization has an empty isolation key")
		return nil, newError(ReasonOrganizationNotFound, store.ErrOrganizationNotFound)
	}

	tenant := &Tenant{
		OrganizationID: key.OrgID,
		IsolationKey:   isolationKey,
		KeyID:          key.KeyID,
	}
	r.cache.Set(ctx, fingerprint, tenant)

	log.Debug().
		Str("token", Redact(token)).
		Str("org_id", key.OrgID.String()).
		Str("isolation_key", isolationKey).
		Msg("Resolved bearer token")

	return tenant, nil
}

// lookupKey runs the validation steps against the platform key store.
func (r *TokenResolver) lookupKey(ctx context.Context, token string) (*models.PlatformKey, error) {
	key, err := r.keys.FindByKey(ctx, token)
	switch {
	case errors.Is(err, store.ErrPlatformKeyNotFound):
		log.Warn().Str("token", Redact(token)).Msg("Authentication failed: bearer token not found")
		return nil, newError(ReasonTokenNotFound, err)
	case errors.Is(err, store.ErrPlatformKeyAmbiguous):
		log.Warn().Bool("suspicious", true).Str("token", Redact(token)).
			Msg("Authentication failed: bearer token matches more than one key")
		return nil, newError(ReasonTokenMismatch, err)
	case err != nil:
		if ctxErr := callerGone(ctx); ctxErr != nil {
			log.Debug().Str("token", Redact(token)).Msg("Caller went away during platform key lookup")
			return nil, ctxErr
		}
		log.Error().Err(err).Str("token", Redact(token)).Msg("Platform key lookup failed")
		return nil, newError(ReasonDatastoreUnavailable, err)
	}

	if !key.IsActive {
		log.Warn().
			Str("token", Redact(token)).
			Str("key_id", key.KeyID.String()).
			Msg("Authentication failed: platform key is not active")
		return nil, newError(ReasonTokenInactive, nil)
	}

	if subtle.ConstantTimeCompare([]byte(key.Key), []byte(token)) != 1 {
		log.Warn().
			Bool("suspicious", true).
			Str("token", Redact(token)).
			Str("key_id", key.KeyID.String()).
			Msg("Authentication failed: stored key does not match bearer token")
		return nil, newError(ReasonTokenMismatch, nil)
	}

	return key, nil
}
