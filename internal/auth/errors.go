package auth

import "errors"

// Reason classifies why a token could not be resolved to a tenant.
type Reason int

const (
	// ReasonMissingToken means no bearer token was supplied. Callers may allow
	// the request if the path is public.
	ReasonMissingToken Reason = iota + 1
	// ReasonTokenNotFound means no platform key matches the token.
	ReasonTokenNotFound
	// ReasonTokenInactive means the key exists but has been deactivated.
	ReasonTokenInactive
	// ReasonTokenMismatch means the stored key did not equal the token, or the
	// lookup matched more than one record. Treat as suspicious.
	ReasonTokenMismatch
	// ReasonOrganizationNotFound means an active key references an organization
	// that does not exist. This is data corruption and should alert operators.
	ReasonOrganizationNotFound
	// ReasonDatastoreUnavailable means authentication could not be evaluated.
	ReasonDatastoreUnavailable
)

var reasonNames = map[Reason]string{
	ReasonMissingToken:         "missing_token",
	ReasonTokenNotFound:        "token_not_found",
	ReasonTokenInactive:        "token_inactive",
	ReasonTokenMismatch:        "token_mismatch",
	ReasonOrganizationNotFound: "organization_not_found",
	ReasonDatastoreUnavailable: "datastore_unavailable",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// Denied reports whether the reason is a definitive authentication denial,
// as opposed to a failure to evaluate the token at all.
func (r Reason) Denied() bool {
	return r != ReasonDatastoreUnavailable
}

// Error is the typed failure returned by TokenResolver.
// It matches the Err* sentinels below with errors.Is on Reason alone.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "auth: " + e.Reason.String() + ": " + e.Err.Error()
	}
	return "auth: " + e.Reason.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// Sentinel errors for use with errors.Is.
var (
	ErrMissingToken         = &Error{Reason: ReasonMissingToken}
	ErrTokenNotFound        = &Error{Reason: ReasonTokenNotFound}
	ErrTokenInactive        = &Error{Reason: ReasonTokenInactive}
	ErrTokenMismatch        = &Error{Reason: ReasonTokenMismatch}
	ErrOrganizationNotFound = &Error{Reason: ReasonOrganizationNotFound}
	ErrDatastoreUnavailable = &Error{Reason: ReasonDatastoreUnavailable}
)

func newError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

// ReasonOf returns the Reason carried by err. Errors that did not come from
// the resolver are reported as ReasonDatastoreUnavailable, since they mean the
// token was never evaluated.
func ReasonOf(err error) Reason {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return ReasonDatastoreUnavailable
}
