package auth

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
)

// ConnectCode maps a failure reason to a Connect error code.
func ConnectCode(reason Reason) connect.Code {
	switch reason {
	case ReasonMissingToken, ReasonTokenNotFound, ReasonTokenMismatch:
		return connect.CodeUnauthenticated
	case ReasonTokenInactive, ReasonOrganizationNotFound:
		return connect.CodePermissionDenied
	default:
		return connect.CodeUnavailable
	}
}

// TenantInterceptor resolves the bearer token on incoming Connect requests
// and adds the tenant to the handler context.
type TenantInterceptor struct {
	resolver Resolver
}

var _ connect.Interceptor = (*TenantInterceptor)(nil)

// NewTenantInterceptor creates a server-side interceptor backed by resolver.
func NewTenantInterceptor(resolver Resolver) *TenantInterceptor {
	return &TenantInterceptor{resolver: resolver}
}

// WrapUnary implements connect.Interceptor.
func (i *TenantInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		ctx, err := i.authenticate(ctx, req.Header())
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient is not used for server interceptors.
func (i *TenantInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *TenantInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.authenticate(ctx, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *TenantInterceptor) authenticate(ctx context.Context, header http.Header) (context.Context, error) {
	token, ok := ExtractToken(header)
	if !ok {
		return ctx, connect.NewError(connect.CodeUnauthenticated, errors.New("missing bearer token"))
	}

	tenant, err := i.resolver.Resolve(ctx, token)
	if IsCallerGone(err) {
		code := connect.CodeCanceled
		if errors.Is(err, context.DeadlineExceeded) {
			code = connect.CodeDeadlineExceeded
		}
		return ctx, connect.NewError(code, err)
	}
	if err != nil {
		reason := ReasonOf(err)
		// Only the reason leaves the process; wrapped store errors stay in the logs.
		return ctx, connect.NewError(ConnectCode(reason), errors.New(reason.String()))
	}

	return WithTenant(ctx, tenant), nil
}
