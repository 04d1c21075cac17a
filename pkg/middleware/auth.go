// Package middleware provides the HTTP request interceptors of the trust
// core: bearer-token authentication, the inner-request guard, and the
// gateway's trust-header boundary.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kestrelsec/kestrel/pkg/httputil"
	"github.com/kestrelsec/kestrel/pkg/identity"
	"github.com/kestrelsec/kestrel/pkg/innerauth"
	"github.com/kestrelsec/kestrel/pkg/observability"
	"github.com/kestrelsec/kestrel/pkg/provider"
	"github.com/kestrelsec/kestrel/pkg/usercontext"
)

// Authenticate resolves the caller's identity and attaches it to the
// request context, where usercontext accessors and the provider read it
// for the rest of the request.
//
// Resolution order: a bearer token resolved through the provider wins;
// failing that, on requests already verified as inner (the guard runs
// before this middleware on inner routes) the gateway-forwarded identity
// headers are trusted.
type Authenticate struct {
	provider provider.AuthProvider
	logger   *observability.Logger

	// optional lets unauthenticated requests through with no identity,
	// for public endpoints that still want usercontext to work.
	optional bool
}

// NewAuthenticate creates the middleware. logger must not be nil.
func NewAuthenticate(p provider.AuthProvider, logger *observability.Logger, optional bool) *Authenticate {
	return &Authenticate{provider: p, logger: logger, optional: optional}
}

// Handler wraps an HTTP handler with identity resolution.
func (a *Authenticate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if token := bearerToken(r); token != "" {
			ctx = usercontext.WithToken(ctx, token)
			user, err := a.provider.LoginUser(ctx)
			if err != nil {
				a.logger.WithError(err).Error("identity resolution failed")
				httputil.WriteInternalError(w, err)
				return
			}
			if user != nil && !user.Expired() {
				user.SourceIP = httputil.ClientIP(r)
				next.ServeHTTP(w, r.WithContext(usercontext.WithIdentity(ctx, user)))
				return
			}
		}

		if user := identityFromHeaders(r); user != nil {
			next.ServeHTTP(w, r.WithContext(usercontext.WithIdentity(ctx, user)))
			return
		}

		if a.optional {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		httputil.WriteUnauthorized(w, identity.ErrNotLoggedIn.Error())
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// identityFromHeaders builds a minimal identity from gateway-forwarded
// headers. Only honored on requests that passed the inner guard, since
// the gateway strips these headers from external traffic.
func identityFromHeaders(r *http.Request) *identity.Identity {
	if r.Header.Get(innerauth.HeaderSource) != innerauth.SourceInner {
		return nil
	}
	rawID := r.Header.Get(innerauth.HeaderUserID)
	if rawID == "" {
		return nil
	}
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		return nil
	}

	user := identity.New(userID, r.Header.Get(innerauth.HeaderUsername), nil, nil)
	user.TenantID = r.Header.Get(innerauth.HeaderTenantID)
	user.SourceIP = httputil.ClientIP(r)
	user.IssuedAt = time.Now()
	return user
}
