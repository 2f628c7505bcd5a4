package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	connectcors "connectrpc.com/cors"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/auth"
	httpmiddleware "github.com/wolfeidau/tenantgate/internal/http"
	"github.com/wolfeidau/tenantgate/internal/logger"
)

// Pinger reports whether the datastore is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config controls the HTTP surface.
type Config struct {
	// CORSOrigins are the origins allowed to call API routes.
	CORSOrigins []string

	// ReadyTimeout bounds the datastore ping in /readyz.
	// Default: 2s
	ReadyTimeout time.Duration
}

// Server wires the tenant resolver into HTTP and Connect handlers.
type Server struct {
	resolver      auth.Resolver
	pinger        Pinger
	cfg           Config
	tenantService *TenantServiceServer
}

// NewServer creates a server that authenticates API routes with resolver and
// reports readiness using pinger.
func NewServer(resolver auth.Resolver, pinger Pinger, cfg Config) *Server {
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}
	return &Server{
		resolver:      resolver,
		pinger:        pinger,
		cfg:           cfg,
		tenantService: NewTenantServiceServer(),
	}
}

// Handler returns the HTTP handler for the server. Extra interceptors run
// between request logging and tenant resolution.
func (s *Server) Handler(log zerolog.Logger, interceptors ...connect.Interceptor) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", s.readyHandler)

	tenantAuth := auth.Middleware(s.resolver, auth.MiddlewareOptions{})
	mux.Handle("GET /v1/tenant", tenantAuth(http.HandlerFunc(tenantHandler)))

	chain := []connect.Interceptor{logger.NewConnectRequests(log)}
	chain = append(chain, interceptors...)
	chain = append(chain, auth.NewTenantInterceptor(s.resolver))

	tenantPath, tenantHandler := NewTenantServiceHandler(
		s.tenantService,
		connect.WithInterceptors(chain...),
	)
	mux.Handle(tenantPath, tenantHandler)

	api := withCORS(s.cfg.CORSOrigins, mux)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			api.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	return httpmiddleware.AccessLog(log)(handler)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadyTimeout)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Datastore is not ready")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func tenantHandler(w http.ResponseWriter, r *http.Request) {
	tenant, ok := auth.TenantFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// isAPIRoute returns true if the path is an API route that needs CORS
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/v1/") ||
		strings.HasPrefix(path, "/"+TenantServiceName+"/")
}

// withCORS adds CORS support to a Connect HTTP handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: connectcors.AllowedMethods(),
		AllowedHeaders: append(connectcors.AllowedHeaders(), "Authorization"),
		ExposedHeaders: append(connectcors.ExposedHeaders(), "Tenant-Organization-Id"),
	})
	return middleware.Handler(h)
}
