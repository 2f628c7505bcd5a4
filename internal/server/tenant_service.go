package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/auth"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// TenantServiceName is the fully-qualified name of the tenant service.
	TenantServiceName = "tenant.v1.TenantService"

	// TenantServiceWhoamiProcedure returns the caller's isolation key.
	TenantServiceWhoamiProcedure = "/" + TenantServiceName + "/Whoami"
)

// TenantServiceServer reports the tenant bound to the caller's bearer token.
// It relies on auth.TenantInterceptor having resolved the token.
type TenantServiceServer struct{}

func NewTenantServiceServer() *TenantServiceServer {
	return &TenantServiceServer{}
}

// Whoami returns the isolation key of the authenticated tenant.
func (s *TenantServiceServer) Whoami(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[wrapperspb.StringValue], error) {
	tenant, ok := auth.TenantFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("not authenticated"))
	}

	zerolog.Ctx(ctx).Debug().
		Str("org_id", tenant.OrganizationID.String()).
		Msg("Whoami")

	resp := connect.NewResponse(wrapperspb.String(tenant.IsolationKey))
	resp.Header().Set("Tenant-Organization-Id", tenant.OrganizationID.String())
	return resp, nil
}

// NewTenantServiceHandler builds an HTTP handler serving the tenant service.
// It returns the path to mount the handler on.
func NewTenantServiceHandler(svc *TenantServiceServer, opts ...connect.HandlerOption) (string, http.Handler) {
	whoami := connect.NewUnaryHandler(
		TenantServiceWhoamiProcedure,
		svc.Whoami,
		opts...,
	)

	return "/" + TenantServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case TenantServiceWhoamiProcedure:
			whoami.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// TenantServiceClient calls the tenant service.
type TenantServiceClient struct {
	whoami *connect.Client[emptypb.Empty, wrapperspb.StringValue]
}

// NewTenantServiceClient creates a client for the service at baseURL.
func NewTenantServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *TenantServiceClient {
	return &TenantServiceClient{
		whoami: connect.NewClient[emptypb.Empty, wrapperspb.StringValue](
			httpClient,
			strings.TrimRight(baseURL, "/")+TenantServiceWhoamiProcedure,
			opts...,
		),
	}
}

// Whoami calls tenant.v1.TenantService.Whoami.
func (c *TenantServiceClient) Whoami(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[wrapperspb.StringValue], error) {
	return c.whoami.CallUnary(ctx, req)
}
