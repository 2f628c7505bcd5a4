// Package store defines the persistence interfaces for platform keys and
// organizations, along with the sentinel errors every implementation returns.
package store

import "errors"

// ErrUnavailable is returned when the backing datastore could not be reached
// or failed while executing a query. Callers must not treat it as a denial.
var ErrUnavailable = errors.New("datastore unavailable")
