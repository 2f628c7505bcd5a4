//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func seedOrgAndKey(t *testing.T, ctx context.Context, orgs *OrganizationStore, keys *PlatformKeyStore, schema, key string, active bool) (*models.Organization, *models.PlatformKey) {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	org := &models.Organization{
		OrgID:      uuid.Must(uuid.NewV7()),
		Name:       schema,
		SchemaName: schema,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, orgs.Create(ctx, org))

	pk := &models.PlatformKey{
		KeyID:     uuid.Must(uuid.NewV7()),
		Key:       key,
		OrgID:     org.OrgID,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, keys.Create(ctx, pk))

	return org, pk
}

func TestIntegration_PlatformKeyResolution(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgs := NewOrganizationStore(pool)
	keys := NewPlatformKeyStore(pool)

	org, pk := seedOrgAndKey(t, ctx, orgs, keys, "org7_schema", "abc123", true)

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(ctx, pool))
	})

	t.Run("find by key", func(t *testing.T) {
		got, err := keys.FindByKey(ctx, "abc123")
		require.NoError(t, err)
		require.Equal(t, pk.KeyID, got.KeyID)
		require.Equal(t, org.OrgID, got.OrgID)
		require.True(t, got.IsActive)

		schema, err := orgs.FindIsolationKey(ctx, got.OrgID)
		require.NoError(t, err)
		require.Equal(t, "org7_schema", schema)
	})

	t.Run("injection attempt is a literal", func(t *testing.T) {
		for _, attempt := range []string{
			"' OR '1'='1",
			"abc123' --",
			"'; DROP TABLE platform_keys; --",
		} {
			_, err := keys.FindByKey(ctx, attempt)
			require.ErrorIs(t, err, store.ErrPlatformKeyNotFound, attempt)
		}

		// table still there
		_, err := keys.FindByKey(ctx, "abc123")
		require.NoError(t, err)
	})

	t.Run("duplicate key rejected", func(t *testing.T) {
		dup := *pk
		dup.KeyID = uuid.Must(uuid.NewV7())
		require.ErrorIs(t, keys.Create(ctx, &dup), store.ErrPlatformKeyAlreadyExists)
	})

	t.Run("key for unknown organization rejected", func(t *testing.T) {
		orphan := *pk
		orphan.KeyID = uuid.Must(uuid.NewV7())
		orphan.Key = "orphan"
		orphan.OrgID = uuid.Must(uuid.NewV7())
		require.ErrorIs(t, keys.Create(ctx, &orphan), store.ErrOrganizationNotFound)
	})

	t.Run("deactivate and list", func(t *testing.T) {
		_, revoked := seedOrgAndKey(t, ctx, orgs, keys, "revoked_schema", "revoke-me", true)
		since := time.Now().Add(-time.Second)

		require.NoError(t, keys.SetActive(ctx, revoked.KeyID, false))

		got, err := keys.FindByKey(ctx, "revoke-me")
		require.NoError(t, err)
		require.False(t, got.IsActive)

		list, err := keys.ListDeactivatedSince(ctx, since)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, revoked.KeyID, list[0].KeyID)
	})

	t.Run("external deactivation is listed", func(t *testing.T) {
		_, revoked := seedOrgAndKey(t, ctx, orgs, keys, "external_schema", "external-revoke", true)
		since := time.Now().Add(-time.Second)

		// A writer that only flips the flag still gets updated_at bumped.
		_, err := pool.Exec(ctx, "UPDATE platform_keys SET is_active = FALSE WHERE key_id = $1", revoked.KeyID)
		require.NoError(t, err)

		list, err := keys.ListDeactivatedSince(ctx, since)
		require.NoError(t, err)

		var found bool
		for _, k := range list {
			if k.KeyID == revoked.KeyID {
				found = true
			}
		}
		require.True(t, found)
	})

	t.Run("migration errors are unavailable when the context is done", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := RunMigrations(cancelled, pool)
		require.ErrorIs(t, err, store.ErrUnavailable)
	})

	t.Run("connection lost mid migration is unavailable", func(t *testing.T) {
		m := migration{
			version: 999,
			name:    "999_terminate.sql",
			content: "SELECT pg_terminate_backend(pg_backend_pid())",
		}

		err := executeMigration(ctx, pool, m)
		require.ErrorIs(t, err, store.ErrUnavailable)
	})

	t.Run("dangling organization reference", func(t *testing.T) {
		danglingOrg, _ := seedOrgAndKey(t, ctx, orgs, keys, "dangling_schema", "dangling-key", true)

		// Reproduce corruption by bypassing FK triggers on one session.
		conn, err := pool.Acquire(ctx)
		require.NoError(t, err)
		_, err = conn.Exec(ctx, "SET session_replication_role = replica")
		require.NoError(t, err)
		_, err = conn.Exec(ctx, "DELETE FROM organizations WHERE org_id = $1", danglingOrg.OrgID)
		require.NoError(t, err)
		_, err = conn.Exec(ctx, "SET session_replication_role = DEFAULT")
		require.NoError(t, err)
		conn.Release()

		got, err := keys.FindByKey(ctx, "dangling-key")
		require.NoError(t, err)

		schema, err := orgs.FindIsolationKey(ctx, got.OrgID)
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
		require.Empty(t, schema)
	})

	t.Run("concurrent lookups", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 32)
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := keys.FindByKey(ctx, "abc123")
				if err != nil {
					errs <- err
					return
				}
				schema, err := orgs.FindIsolationKey(ctx, got.OrgID)
				if err != nil {
					errs <- err
					return
				}
				if schema != "org7_schema" {
					errs <- fmt.Errorf("unexpected schema %q", schema)
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
	})

	t.Run("closed pool is unavailable", func(t *testing.T) {
		closed, err := NewPool(ctx, &PoolConfig{ConnString: pool.Config().ConnString()})
		require.NoError(t, err)
		closed.Close()

		_, err = NewPlatformKeyStore(closed).FindByKey(ctx, "abc123")
		require.ErrorIs(t, err, store.ErrUnavailable)
	})
}
