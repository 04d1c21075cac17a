package identity

import "errors"

// Authentication and configuration failures surfaced by the trust core.
// All request-path failures are terminal for the request they occur on;
// ErrMissingSecret is fatal at startup.
var (
	// ErrInvalidIdentity is returned by login when required identity
	// fields are missing.
	ErrInvalidIdentity = errors.New("identity: missing required identity fields")

	// ErrNotLoggedIn is returned by operations that require an active
	// session when none is bound to the request.
	ErrNotLoggedIn = errors.New("identity: no active session")

	// ErrNotInternal is returned when an inner-only operation is invoked
	// without the internal-source sentinel header.
	ErrNotInternal = errors.New("identity: request did not originate from an internal service")

	// ErrBadSignature is returned when an inner-request signature is
	// missing, malformed, mismatched, or expired.
	ErrBadSignature = errors.New("identity: inner request signature verification failed")

	// ErrMissingUser is returned when an inner-only operation requires a
	// resolved user header and none is present.
	ErrMissingUser = errors.New("identity: inner request carries no user identity")

	// ErrMissingSecret is returned at startup when no inner-auth signing
	// secret is configured. The process must not serve traffic in this
	// state.
	ErrMissingSecret = errors.New("identity: inner auth signing secret is not configured")
)
