package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// Sentinel errors for platform key store operations
var (
	ErrPlatformKeyNotFound      = errors.New("platform key not found")
	ErrPlatformKeyAmbiguous     = errors.New("platform key matches more than one record")
	ErrPlatformKeyAlreadyExists = errors.New("platform key already exists")
)

// PlatformKeyStore defines the interface for platform key storage operations.
type PlatformKeyStore interface {
	// FindByKey returns the single record whose key equals the given value.
	// Returns ErrPlatformKeyNotFound when no record matches and
	// ErrPlatformKeyAmbiguous when more than one does.
	FindByKey(ctx context.Context, key string) (*models.PlatformKey, error)

	// Create stores a new platform key.
	// Returns ErrPlatformKeyAlreadyExists if the key value is taken.
	Create(ctx context.Context, key *models.PlatformKey) error

	// SetActive flips the active flag of a key and bumps UpdatedAt.
	// Returns ErrPlatformKeyNotFound if the key doesn't exist.
	SetActive(ctx context.Context, keyID uuid.UUID, active bool) error

	// ListDeactivatedSince returns inactive keys updated at or after since.
	ListDeactivatedSince(ctx context.Context, since time.Time) ([]*models.PlatformKey, error)
}
