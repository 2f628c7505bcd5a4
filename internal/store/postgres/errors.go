package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/tenantgate/internal/store"
)

// Constraint names from migrations/1_initial_schema.sql.
const (
	constraintOrganizationsPkey       = "organizations_pkey"
	constraintOrganizationsSchemaName = "organizations_schema_name_key"
	constraintPlatformKeysPkey        = "platform_keys_pkey"
	constraintPlatformKeysKey         = "platform_keys_key_key"
	constraintPlatformKeysOrg         = "platform_keys_org_id_fkey"
)

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Anything that indicates the database could not evaluate the query (connection
// loss, shutdown, resource exhaustion, cancellation, missing schema) is wrapped
// with store.ErrUnavailable.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		// Dial failures, closed pools and context errors never reach the server.
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintOrganizationsPkey, constraintOrganizationsSchemaName:
			return store.ErrOrganizationAlreadyExists
		case constraintPlatformKeysPkey, constraintPlatformKeysKey:
			return store.ErrPlatformKeyAlreadyExists
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		if pgErr.ConstraintName == constraintPlatformKeysOrg {
			return fmt.Errorf("%w: %s", store.ErrOrganizationNotFound, pgErr.Detail)
		}
		return fmt.Errorf("foreign key violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("%w: database connection error: %w", store.ErrUnavailable, err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("%w: database server unavailable: %w", store.ErrUnavailable, err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("%w: query canceled: %w", store.ErrUnavailable, err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("%w: database resource limit: %w", store.ErrUnavailable, err)

	case pgerrcode.UndefinedTable, pgerrcode.UndefinedColumn:
		return fmt.Errorf("%w: schema not migrated: %w", store.ErrUnavailable, err)

	default:
		return fmt.Errorf("%w: postgres error [%s]: %s (detail: %s, hint: %s): %w",
			store.ErrUnavailable, pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}
