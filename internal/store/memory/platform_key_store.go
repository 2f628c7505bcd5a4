package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

// PlatformKeyStore implements store.PlatformKeyStore using in-memory storage.
type PlatformKeyStore struct {
	mu sync.RWMutex

	keys  map[uuid.UUID]*models.PlatformKey // key_id -> PlatformKey
	byKey map[string]uuid.UUID              // key -> key_id
}

// NewPlatformKeyStore creates a new in-memory platform key store.
func NewPlatformKeyStore() *PlatformKeyStore {
	return &PlatformKeyStore{
		keys:  make(map[uuid.UUID]*models.PlatformKey),
		byKey: make(map[string]uuid.UUID),
	}
}

// FindByKey returns the record whose key equals the given value.
func (s *PlatformKeyStore) FindByKey(ctx context.Context, key string) (*models.PlatformKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keyID, exists := s.byKey[key]
	if !exists {
		return nil, store.ErrPlatformKeyNotFound
	}

	clone := *s.keys[keyID]
	return &clone, nil
}

// Create stores a new platform key.
func (s *PlatformKeyStore) Create(ctx context.Context, key *models.PlatformKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[key.Key]; exists {
		return store.ErrPlatformKeyAlreadyExists
	}
	if _, exists := s.keys[key.KeyID]; exists {
		return store.ErrPlatformKeyAlreadyExists
	}

	clone := *key
	s.keys[key.KeyID] = &clone
	s.byKey[key.Key] = key.KeyID

	return nil
}

// SetActive flips the active flag of a key.
func (s *PlatformKeyStore) SetActive(ctx context.Context, keyID uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, exists := s.keys[keyID]
	if !exists {
		return store.ErrPlatformKeyNotFound
	}

	key.IsActive = active
	key.UpdatedAt = time.Now()

	return nil
}

// ListDeactivatedSince returns inactive keys updated at or after since.
func (s *PlatformKeyStore) ListDeactivatedSince(ctx context.Context, since time.Time) ([]*models.PlatformKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.PlatformKey
	for _, key := range s.keys {
		if key.IsActive || key.UpdatedAt.Before(since) {
			continue
		}
		clone := *key
		result = append(result, &clone)
	}

	return result, nil
}
