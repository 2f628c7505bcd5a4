package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformKey is the persisted credential backing a bearer token.
// Keys are created and revoked by an external key-management workflow; this
// module only reads them.
type PlatformKey struct {
	KeyID       uuid.UUID // UUIDv7
	Key         string    // opaque credential, unique
	OrgID       uuid.UUID // FK to organizations
	IsActive    bool
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time // bumped whenever IsActive flips
}
