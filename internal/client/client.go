package client

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/wolfeidau/tenantgate/internal/server"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Token     string
	Timeout   time.Duration
	Debug     bool
}

// Clients holds the RPC clients
type Clients struct {
	Tenant *server.TenantServiceClient
}

// NewClients creates RPC clients that present cfg.Token as a bearer token on
// every call.
func NewClients(config Config, opts ...connect.ClientOption) *Clients {
	httpClient := &http.Client{
		Timeout: config.Timeout,
	}

	if config.Token != "" {
		opts = append(opts, connect.WithInterceptors(bearerInterceptor(config.Token)))
	}

	return &Clients{
		Tenant: server.NewTenantServiceClient(httpClient, config.ServerURL, opts...),
	}
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
		Debug:     false,
	}
}

func bearerInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}
