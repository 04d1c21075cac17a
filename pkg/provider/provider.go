// Package provider defines the pluggable authentication backend.
//
// Business and infrastructure code depends only on the AuthProvider
// interface, never on a concrete scheme, so the authentication backend is
// a deployment-time configuration choice. The variant is selected once at
// process start and is immutable for the process lifetime.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelsec/kestrel/pkg/identity"
)

// AuthProvider is the contract every authentication scheme implements.
// The in-flight request's token travels on the context (see usercontext),
// which keeps implementations stateless per request.
//
// Session-store-backed implementations may perform network I/O from
// IsLogin and LoginUser; callers on a request path should rely on the
// enclosing request's context deadline.
type AuthProvider interface {
	// Name returns the scheme identifier, e.g. "local" or "oidc".
	Name() string

	// Login establishes a session for the identity and returns its token.
	// Returns identity.ErrInvalidIdentity when required fields are missing.
	Login(ctx context.Context, user *identity.Identity) (string, error)

	// Logout invalidates the current session. Idempotent: with no active
	// session it is a no-op, not an error.
	Logout(ctx context.Context) error

	// IsLogin reports whether the request carries a token resolving to a
	// non-expired identity.
	IsLogin(ctx context.Context) bool

	// LoginUser returns the resolved identity of the current request, or
	// nil with a nil error when unauthenticated.
	LoginUser(ctx context.Context) (*identity.Identity, error)

	// Token returns the current request's token, or "".
	Token(ctx context.Context) string

	// ValidateToken is a pure check with no side effects, safe for tokens
	// not bound to the current request.
	ValidateToken(ctx context.Context, token string) bool

	// RefreshToken extends the current session's expiry. Returns
	// identity.ErrNotLoggedIn when no session is active.
	RefreshToken(ctx context.Context, ttl time.Duration) error

	// HasPermission and HasRole evaluate against the currently resolved
	// identity. Both return false, never an error, when no identity is
	// resolved.
	HasPermission(ctx context.Context, permission string) bool
	HasRole(ctx context.Context, role string) bool
}

// Type enumerates the closed set of provider variants.
type Type string

const (
	// TypeLocal is the self-issued opaque-token scheme backed by a shared
	// session store.
	TypeLocal Type = "local"
	// TypeOIDC validates externally issued OIDC tokens; sessions are
	// caller-issued and never stored here.
	TypeOIDC Type = "oidc"
)

// ParseType resolves a configuration value to a provider type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeLocal, TypeOIDC:
		return Type(s), nil
	}
	return "", fmt.Errorf("provider: unknown auth provider type %q", s)
}
