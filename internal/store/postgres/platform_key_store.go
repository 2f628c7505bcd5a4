package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

const platformKeyColumns = `key_id, key, org_id, is_active, description, created_at, updated_at`

// PlatformKeyStore implements store.PlatformKeyStore using PostgreSQL.
// Every lookup binds the key as a query parameter.
type PlatformKeyStore struct {
	pool *pgxpool.Pool
}

// NewPlatformKeyStore creates a new PostgreSQL-backed platform key store.
func NewPlatformKeyStore(pool *pgxpool.Pool) *PlatformKeyStore {
	return &PlatformKeyStore{
		pool: pool,
	}
}

// FindByKey returns the record whose key equals the given value.
// LIMIT 2 is enough to tell "exactly one" from "more than one" via the unique index.
func (s *PlatformKeyStore) FindByKey(ctx context.Context, key string) (*models.PlatformKey, error) {
	query := `SELECT ` + platformKeyColumns + ` FROM platform_keys WHERE key = $1 LIMIT 2`

	rows, err := s.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find platform key: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var found []*models.PlatformKey
	for rows.Next() {
		pk, err := scanPlatformKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan platform key: %w", mapPostgresError(err))
		}
		found = append(found, pk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platform keys: %w", mapPostgresError(err))
	}

	switch len(found) {
	case 0:
		return nil, store.ErrPlatformKeyNotFound
	case 1:
		return found[0], nil
	default:
		return nil, store.ErrPlatformKeyAmbiguous
	}
}

// Create stores a new platform key.
func (s *PlatformKeyStore) Create(ctx context.Context, key *models.PlatformKey) error {
	query := `
		INSERT INTO platform_keys (
			` + platformKeyColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		key.KeyID,
		key.Key,
		key.OrgID,
		key.IsActive,
		key.Description,
		key.CreatedAt,
		key.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create platform key: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("key_id", key.KeyID.String()).
		Str("org_id", key.OrgID.String()).
		Msg("Created platform key")

	return nil
}

// SetActive flips the active flag of a key and bumps updated_at.
func (s *PlatformKeyStore) SetActive(ctx context.Context, keyID uuid.UUID, active bool) error {
	query := `
		UPDATE platform_keys SET
			is_active = $2,
			updated_at = $3
		WHERE key_id = $1
	`

	result, err := s.pool.Exec(ctx, query, keyID, active, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update platform key: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrPlatformKeyNotFound
	}

	log.Info().
		Str("key_id", keyID.String()).
		Bool("active", active).
		Msg("Updated platform key")

	return nil
}

// ListDeactivatedSince returns inactive keys updated at or after since.
func (s *PlatformKeyStore) ListDeactivatedSince(ctx context.Context, since time.Time) ([]*models.PlatformKey, error) {
	query := `
		SELECT ` + platformKeyColumns + `
		FROM platform_keys
		WHERE is_active = FALSE AND updated_at >= $1
		ORDER BY updated_at
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list deactivated keys: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var keys []*models.PlatformKey
	for rows.Next() {
		pk, err := scanPlatformKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan platform key: %w", mapPostgresError(err))
		}
		keys = append(keys, pk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platform keys: %w", mapPostgresError(err))
	}

	return keys, nil
}

func scanPlatformKey(row pgx.Row) (*models.PlatformKey, error) {
	var pk models.PlatformKey
	err := row.Scan(
		&pk.KeyID,
		&pk.Key,
		&pk.OrgID,
		&pk.IsActive,
		&pk.Description,
		&pk.CreatedAt,
		&pk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pk, nil
}
