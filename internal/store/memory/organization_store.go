package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
// This implementation is for development and testing only - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization // org_id -> Organization
	schemas       map[string]uuid.UUID               // schema_name -> org_id
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[uuid.UUID]*models.Organization),
		schemas:       make(map[string]uuid.UUID),
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.schemas[org.SchemaName]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *org
	s.organizations[org.OrgID] = &clone
	s.schemas[org.SchemaName] = org.OrgID

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// FindIsolationKey returns the schema name of an organization.
func (s *OrganizationStore) FindIsolationKey(ctx context.Context, orgID uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists || org.SchemaName == "" {
		return "", store.ErrOrganizationNotFound
	}

	return org.SchemaName, nil
}

// Delete deletes an organization by ID.
// Keys referencing the organization are left in place, which is how a
// dangling reference is reproduced in tests.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	delete(s.schemas, org.SchemaName)
	delete(s.organizations, orgID)

	return nil
}

// Ping always succeeds for the in-memory store.
func (s *OrganizationStore) Ping(ctx context.Context) error {
	return nil
}
