package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/store"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const testProcedure = "/test.v1.TestService/Whoami"

func newInterceptedServer(t *testing.T, resolver Resolver) *httptest.Server {
	t.Helper()

	handler := connect.NewUnaryHandler(
		testProcedure,
		func(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[wrapperspb.StringValue], error) {
			tenant, ok := TenantFromContext(ctx)
			if !ok {
				return nil, connect.NewError(connect.CodeInternal, errors.New("no tenant"))
			}
			return connect.NewResponse(wrapperspb.String(tenant.IsolationKey)), nil
		},
		connect.WithInterceptors(NewTenantInterceptor(resolver)),
	)

	mux := http.NewServeMux()
	mux.Handle(testProcedure, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestConnectCode(t *testing.T) {
	require.Equal(t, connect.CodeUnauthenticated, ConnectCode(ReasonMissingToken))
	require.Equal(t, connect.CodeUnauthenticated, ConnectCode(ReasonTokenNotFound))
	require.Equal(t, connect.CodeUnauthenticated, ConnectCode(ReasonTokenMismatch))
	require.Equal(t, connect.CodePermissionDenied, ConnectCode(ReasonTokenInactive))
	require.Equal(t, connect.CodePermissionDenied, ConnectCode(ReasonOrganizationNotFound))
	require.Equal(t, connect.CodeUnavailable, ConnectCode(ReasonDatastoreUnavailable))
}

func TestTenantInterceptor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	orgID := env.addOrg(t, "org7_schema")
	env.addKey(t, "abc123", orgID, true)
	env.addKey(t, "inactive", orgID, false)

	server := newInterceptedServer(t, NewTokenResolver(env.keys, env.orgs))
	client := connect.NewClient[emptypb.Empty, wrapperspb.StringValue](http.DefaultClient, server.URL+testProcedure)

	call := func(auth string) (*connect.Response[wrapperspb.StringValue], error) {
		req := connect.NewRequest(&emptypb.Empty{})
		if auth != "" {
			req.Header().Set("Authorization", auth)
		}
		return client.CallUnary(ctx, req)
	}

	t.Run("valid token", func(t *testing.T) {
		resp, err := call("Bearer abc123")
		require.NoError(t, err)
		require.Equal(t, "org7_schema", resp.Msg.GetValue())
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := call("")
		require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := call("Bearer nope")
		require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})

	t.Run("inactive token", func(t *testing.T) {
		_, err := call("Bearer inactive")
		require.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))
	})

	t.Run("store outage", func(t *testing.T) {
		outage := newInterceptedServer(t, NewTokenResolver(&stubKeyStore{err: store.ErrUnavailable}, &stubOrgStore{}))
		c := connect.NewClient[emptypb.Empty, wrapperspb.StringValue](http.DefaultClient, outage.URL+testProcedure)

		req := connect.NewRequest(&emptypb.Empty{})
		req.Header().Set("Authorization", "Bearer abc123")
		_, err := c.CallUnary(ctx, req)
		require.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))

		var connectErr *connect.Error
		require.ErrorAs(t, err, &connectErr)
		require.Equal(t, "datastore_unavailable", connectErr.Message())
	})
}

func TestTenantInterceptor_CallerGone(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode connect.Code
	}{
		{"cancelled", context.Canceled, connect.CodeCanceled},
		{"deadline", context.DeadlineExceeded, connect.CodeDeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interceptor := NewTenantInterceptor(resolverFunc(func(ctx context.Context, token string) (*Tenant, error) {
				return nil, tt.err
			}))

			_, err := interceptor.authenticate(context.Background(), bearerHeader("Bearer abc123"))
			require.Equal(t, tt.wantCode, connect.CodeOf(err))
		})
	}
}
