package memory

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/models"
	"gopkg.in/yaml.v3"
)

// Fixtures describes organizations and their platform keys for seeding the
// in-memory stores in development.
type Fixtures struct {
	Organizations []OrganizationFixture `yaml:"organizations"`
}

// OrganizationFixture is one organization and the keys it owns.
type OrganizationFixture struct {
	ID         string               `yaml:"id"`
	Name       string               `yaml:"name"`
	SchemaName string               `yaml:"schema_name"`
	Keys       []PlatformKeyFixture `yaml:"keys"`
}

// PlatformKeyFixture is a single platform key. Active defaults to true.
type PlatformKeyFixture struct {
	Key         string `yaml:"key"`
	Active      *bool  `yaml:"active"`
	Description string `yaml:"description"`
}

// LoadFixtures reads a YAML fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}

	return ParseFixtures(data)
}

// ParseFixtures decodes fixtures from YAML and checks required fields.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	for i, org := range f.Organizations {
		if org.SchemaName == "" {
			return nil, fmt.Errorf("organization %d: schema_name is required", i)
		}
		for j, k := range org.Keys {
			if k.Key == "" {
				return nil, fmt.Errorf("organization %q key %d: key is required", org.SchemaName, j)
			}
		}
	}

	return &f, nil
}

// Seed writes the fixtures into the given stores.
func (f *Fixtures) Seed(ctx context.Context, orgs *OrganizationStore, keys *PlatformKeyStore) error {
	now := time.Now()

	for _, of := range f.Organizations {
		orgID, err := fixtureID(of.ID)
		if err != nil {
			return fmt.Errorf("organization %q: %w", of.SchemaName, err)
		}

		org := &models.Organization{
			OrgID:      orgID,
			Name:       of.Name,
			SchemaName: of.SchemaName,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := orgs.Create(ctx, org); err != nil {
			return fmt.Errorf("failed to seed organization %q: %w", of.SchemaName, err)
		}

		for _, kf := range of.Keys {
			keyID, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate key ID: %w", err)
			}

			active := true
			if kf.Active != nil {
				active = *kf.Active
			}

			key := &models.PlatformKey{
				KeyID:       keyID,
				Key:         kf.Key,
				OrgID:       orgID,
				IsActive:    active,
				Description: kf.Description,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := keys.Create(ctx, key); err != nil {
				return fmt.Errorf("failed to seed key for %q: %w", of.SchemaName, err)
			}
		}

		log.Debug().
			Str("org_id", orgID.String()).
			Str("schema_name", of.SchemaName).
			Int("keys", len(of.Keys)).
			Msg("Seeded organization")
	}

	return nil
}

func fixtureID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.NewV7()
	}
	return uuid.Parse(s)
}
