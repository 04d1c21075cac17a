// Package usercontext provides centralized context key definitions for the
// request-scoped identity state.
//
// IMPORTANT: all context keys used across the application must be defined
// here. This prevents typos, documents dependencies, and makes key usage
// discoverable.
//
// The resolved identity is attached once at the entry point (by the
// authentication middleware) and read any number of times during the
// request. There is no teardown: the value dies with the request context,
// so nothing leaks across requests.
package usercontext

import (
	"context"

	"github.com/kestrelsec/kestrel/pkg/identity"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *identity.Identity
	// Set by: middleware.Authenticate
	// Required by: protected endpoints, permission checks, inner transport
	IdentityKey Key = "identity"

	// TokenKey contains the raw bearer token string of the request
	// Set by: middleware.Authenticate
	// Required by: AuthProvider implementations (session lookup)
	TokenKey Key = "token"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"
)

// WithIdentity attaches a resolved identity to the context.
func WithIdentity(ctx context.Context, id *identity.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// IdentityFrom retrieves the resolved identity, or nil when the request is
// unauthenticated.
func IdentityFrom(ctx context.Context) *identity.Identity {
	id, _ := ctx.Value(IdentityKey).(*identity.Identity)
	return id
}

// WithToken attaches the request's raw bearer token to the context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, TokenKey, token)
}

// TokenFrom retrieves the request's raw bearer token, or "" when absent.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(TokenKey).(string)
	return token
}

// WithRequestID attaches the request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFrom retrieves the request ID, or "" when absent.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// The accessors below answer "who is making this request" without coupling
// callers to a provider. Each returns a zero value rather than an error
// when no identity is resolved, so public endpoints can call them safely.

// UserID returns the resolved caller's user ID, or 0.
func UserID(ctx context.Context) int64 {
	if id := IdentityFrom(ctx); id != nil {
		return id.UserID
	}
	return 0
}

// Username returns the resolved caller's username, or "".
func Username(ctx context.Context) string {
	if id := IdentityFrom(ctx); id != nil {
		return id.Username
	}
	return ""
}

// Nickname returns the resolved caller's nickname, or "".
func Nickname(ctx context.Context) string {
	if id := IdentityFrom(ctx); id != nil {
		return id.Nickname
	}
	return ""
}

// TenantID returns the resolved caller's tenant scope, or "".
func TenantID(ctx context.Context) string {
	if id := IdentityFrom(ctx); id != nil {
		return id.TenantID
	}
	return ""
}

// IsLogin reports whether a non-expired identity is bound to the request.
func IsLogin(ctx context.Context) bool {
	id := IdentityFrom(ctx)
	return id != nil && !id.Expired()
}
