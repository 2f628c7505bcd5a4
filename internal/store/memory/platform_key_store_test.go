package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

func newTestKey(t *testing.T, key string, active bool) *models.PlatformKey {
	t.Helper()
	keyID, err := uuid.NewV7()
	require.NoError(t, err)
	now := time.Now()
	return &models.PlatformKey{
		KeyID:     keyID,
		Key:       key,
		OrgID:     uuid.New(),
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPlatformKeyStore_FindByKey(t *testing.T) {
	ctx := context.Background()

	t.Run("existing key", func(t *testing.T) {
		st := NewPlatformKeyStore()
		key := newTestKey(t, "abc123", true)
		require.NoError(t, st.Create(ctx, key))

		got, err := st.FindByKey(ctx, "abc123")
		require.NoError(t, err)
		require.Equal(t, key.KeyID, got.KeyID)
		require.Equal(t, key.OrgID, got.OrgID)
		require.True(t, got.IsActive)
	})

	t.Run("unknown key", func(t *testing.T) {
		st := NewPlatformKeyStore()
		_, err := st.FindByKey(ctx, "missing")
		require.ErrorIs(t, err, store.ErrPlatformKeyNotFound)
	})

	t.Run("lookup is exact", func(t *testing.T) {
		st := NewPlatformKeyStore()
		require.NoError(t, st.Create(ctx, newTestKey(t, "abc123", true)))

		for _, attempt := range []string{"abc123 ", " abc123", "ABC123", "abc12", "' OR '1'='1"} {
			_, err := st.FindByKey(ctx, attempt)
			require.ErrorIs(t, err, store.ErrPlatformKeyNotFound, attempt)
		}
	})

	t.Run("returned record is a copy", func(t *testing.T) {
		st := NewPlatformKeyStore()
		require.NoError(t, st.Create(ctx, newTestKey(t, "abc123", true)))

		got, err := st.FindByKey(ctx, "abc123")
		require.NoError(t, err)
		got.IsActive = false

		again, err := st.FindByKey(ctx, "abc123")
		require.NoError(t, err)
		require.True(t, again.IsActive)
	})
}

func TestPlatformKeyStore_Create(t *testing.T) {
	ctx := context.Background()
	st := NewPlatformKeyStore()

	require.NoError(t, st.Create(ctx, newTestKey(t, "abc123", true)))

	err := st.Create(ctx, newTestKey(t, "abc123", true))
	require.ErrorIs(t, err, store.ErrPlatformKeyAlreadyExists)
}

func TestPlatformKeyStore_SetActive(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivate", func(t *testing.T) {
		st := NewPlatformKeyStore()
		key := newTestKey(t, "abc123", true)
		key.UpdatedAt = time.Now().Add(-time.Hour)
		require.NoError(t, st.Create(ctx, key))

		require.NoError(t, st.SetActive(ctx, key.KeyID, false))

		got, err := st.FindByKey(ctx, "abc123")
		require.NoError(t, err)
		require.False(t, got.IsActive)
		require.WithinDuration(t, time.Now(), got.UpdatedAt, time.Second)
	})

	t.Run("unknown key", func(t *testing.T) {
		st := NewPlatformKeyStore()
		err := st.SetActive(ctx, uuid.New(), false)
		require.ErrorIs(t, err, store.ErrPlatformKeyNotFound)
	})
}

func TestPlatformKeyStore_ListDeactivatedSince(t *testing.T) {
	ctx := context.Background()
	st := NewPlatformKeyStore()

	active := newTestKey(t, "active", true)
	oldInactive := newTestKey(t, "old-inactive", false)
	oldInactive.UpdatedAt = time.Now().Add(-time.Hour)
	revoked := newTestKey(t, "revoked", true)

	require.NoError(t, st.Create(ctx, active))
	require.NoError(t, st.Create(ctx, oldInactive))
	require.NoError(t, st.Create(ctx, revoked))

	since := time.Now().Add(-time.Minute)
	require.NoError(t, st.SetActive(ctx, revoked.KeyID, false))

	keys, err := st.ListDeactivatedSince(ctx, since)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "revoked", keys[0].Key)
}
