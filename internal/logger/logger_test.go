package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// syncBuffer is written by the server goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf.Bytes())
}

func TestSetup(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, Setup(false).GetLevel())
	require.Equal(t, zerolog.DebugLevel, Setup(true).GetLevel())
}

func TestConnectRequests_WrapUnary(t *testing.T) {
	const procedure = "/test.v1.TestService/Echo"

	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantCode  string
	}{
		{"success", nil, "info", ""},
		{"denied", connect.NewError(connect.CodeUnauthenticated, errors.New("token_not_found")), "warn", "unauthenticated"},
		{"unavailable", connect.NewError(connect.CodeUnavailable, errors.New("datastore_unavailable")), "error", "unavailable"},
		{"caller cancelled", connect.NewError(connect.CodeCanceled, context.Canceled), "warn", "canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf syncBuffer

			handler := connect.NewUnaryHandler(
				procedure,
				func(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[wrapperspb.StringValue], error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return connect.NewResponse(wrapperspb.String("ok")), nil
				},
				connect.WithInterceptors(NewConnectRequests(zerolog.New(&buf))),
			)

			server := httptest.NewServer(handler)
			defer server.Close()

			client := connect.NewClient[emptypb.Empty, wrapperspb.StringValue](http.DefaultClient, server.URL+procedure)
			_, _ = client.CallUnary(context.Background(), connect.NewRequest(&emptypb.Empty{}))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			require.Equal(t, tt.wantLevel, entry["level"])
			require.Equal(t, procedure, entry["procedure"])
			if tt.wantCode != "" {
				require.Equal(t, tt.wantCode, entry["code"])
			}
		})
	}
}
