package auth

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureDebugLogs routes the global logger into a buffer at debug level.
func captureDebugLogs(t *testing.T) *lockedBuffer {
	t.Helper()

	buf := &lockedBuffer{}
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(buf).Level(zerolog.DebugLevel)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
	return buf
}

func TestLogsNeverContainRawTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed headers", func(t *testing.T) {
		buf := captureDebugLogs(t)

		for _, header := range []string{
			"sk_live_SECRET123",
			"sk_live_SECRET123 trailing",
			"Token sk_live_SECRET123",
			"Bearer",
		} {
			_, ok := ExtractToken(bearerHeader(header))
			require.False(t, ok, header)
		}

		out := buf.String()
		require.NotEmpty(t, out)
		require.NotContains(t, out, "SECRET123")
		require.Contains(t, out, `"scheme":"Token"`)
	})

	t.Run("resolution outcomes", func(t *testing.T) {
		env := newTestEnv(t)
		orgID := env.addOrg(t, "acme")
		env.addKey(t, "sk_live_GOOD", orgID, true)
		env.addKey(t, "sk_live_INACTIVE", orgID, false)

		danglingOrg := env.addOrg(t, "gone")
		env.addKey(t, "sk_live_DANGLING", danglingOrg, true)
		require.NoError(t, env.orgs.Delete(ctx, danglingOrg))

		mismatched := &models.PlatformKey{
			KeyID:     uuid.Must(uuid.NewV7()),
			Key:       "sk_live_STORED",
			OrgID:     orgID,
			IsActive:  true,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}

		tests := []struct {
			name     string
			resolver *TokenResolver
			token    string
			wantErr  error
		}{
			{"resolved", NewTokenResolver(env.keys, env.orgs), "sk_live_GOOD", nil},
			{"not found", NewTokenResolver(env.keys, env.orgs), "sk_live_MISSING", ErrTokenNotFound},
			{"inactive", NewTokenResolver(env.keys, env.orgs), "sk_live_INACTIVE", ErrTokenInactive},
			{"dangling organization", NewTokenResolver(env.keys, env.orgs), "sk_live_DANGLING", ErrOrganizationNotFound},
			{"mismatch", NewTokenResolver(&stubKeyStore{key: mismatched}, env.orgs), "sk_live_PRESENTED", ErrTokenMismatch},
			{"ambiguous", NewTokenResolver(&stubKeyStore{err: store.ErrPlatformKeyAmbiguous}, env.orgs), "sk_live_AMBIGUOUS", ErrTokenMismatch},
			{"outage", NewTokenResolver(&stubKeyStore{err: store.ErrUnavailable}, env.orgs), "sk_live_OUTAGE", ErrDatastoreUnavailable},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				buf := captureDebugLogs(t)

				tt.resolver.Validate(ctx, tt.token)
				_, err := tt.resolver.Resolve(ctx, tt.token)
				if tt.wantErr == nil {
					require.NoError(t, err)
				} else {
					require.ErrorIs(t, err, tt.wantErr)
				}

				out := buf.String()
				require.NotEmpty(t, out)
				require.NotContains(t, out, tt.token)
				require.Contains(t, out, Redact(tt.token))
			})
		}
	})
}
