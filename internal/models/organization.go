package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant in the system.
// SchemaName is the isolation key used to scope all tenant data access.
type Organization struct {
	OrgID      uuid.UUID // UUIDv7
	Name       string
	SchemaName string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
