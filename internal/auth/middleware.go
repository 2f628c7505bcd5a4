package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

type contextKey int

const (
	tenantContextKey contextKey = iota
)

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was written.
const statusClientClosedRequest = 499

// WithTenant returns a copy of ctx carrying tenant.
func WithTenant(ctx context.Context, tenant *Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenant)
}

// TenantFromContext returns the tenant added by Middleware or the Connect
// interceptor. The boolean is false for unauthenticated requests.
func TenantFromContext(ctx context.Context) (*Tenant, bool) {
	tenant, ok := ctx.Value(tenantContextKey).(*Tenant)
	return tenant, ok && tenant != nil
}

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	// PublicPaths are served without a tenant when no token is presented.
	// A token presented on a public path is still resolved.
	PublicPaths []string

	// Realm is reported in the WWW-Authenticate challenge.
	// Default: tenantgate
	Realm string
}

// HTTPStatus maps a failure reason to a response status.
func HTTPStatus(reason Reason) int {
	switch reason {
	case ReasonMissingToken, ReasonTokenNotFound, ReasonTokenMismatch:
		return http.StatusUnauthorized
	case ReasonTokenInactive, ReasonOrganizationNotFound:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

// Middleware returns an HTTP middleware that resolves the bearer token to a
// tenant and adds it to the request context.
func Middleware(resolver Resolver, opts MiddlewareOptions) func(http.Handler) http.Handler {
	realm := opts.Realm
	if realm == "" {
		realm = "tenantgate"
	}
	challenge := `Bearer realm="` + realm + `"`

	public := make(map[string]struct{}, len(opts.PublicPaths))
	for _, p := range opts.PublicPaths {
		public[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := ExtractToken(r.Header)
			if !ok {
				if _, isPublic := public[r.URL.Path]; isPublic {
					next.ServeHTTP(w, r)
					return
				}
				log.Debug().Str("path", r.URL.Path).Msg("Missing bearer token")
				w.Header().Set("WWW-Authenticate", challenge)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			tenant, err := resolver.Resolve(r.Context(), token)
			if IsCallerGone(err) {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Request ended before token resolution")
				status := statusClientClosedRequest
				if errors.Is(err, context.DeadlineExceeded) {
					status = http.StatusGatewayTimeout
				}
				http.Error(w, http.StatusText(status), status)
				return
			}
			if err != nil {
				reason := ReasonOf(err)
				status := HTTPStatus(reason)
				if status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", challenge+`, error="invalid_token"`)
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
		})
	}
}
