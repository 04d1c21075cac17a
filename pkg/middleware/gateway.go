package middleware

import (
	"net/http"
	"strconv"

	"github.com/kestrelsec/kestrel/pkg/innerauth"
	"github.com/kestrelsec/kestrel/pkg/usercontext"
)

// GatewayHeaders is the gateway's trust boundary. On every inbound
// request it strips all caller-supplied trust headers, so an external
// caller can never inject X-From-Source: inner (or a stale identity) past
// the perimeter. After the gateway's own authentication has run, the
// verified identity is re-derived onto the forwarding headers.
//
// Chain it before proxying: GatewayHeaders -> Authenticate(optional) ->
// reverse proxy with innerauth.Transport.
func GatewayHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range innerauth.TrustHeaders {
			r.Header.Del(h)
		}
		next.ServeHTTP(w, r)
	})
}

// ForwardIdentity re-injects the authenticated caller's identity headers
// for downstream services. It runs after Authenticate so the context
// carries the verified identity; unauthenticated requests are forwarded
// with no identity headers at all.
func ForwardIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := usercontext.IdentityFrom(r.Context()); id != nil {
			r.Header.Set(innerauth.HeaderUserID, strconv.FormatInt(id.UserID, 10))
			if id.Username != "" {
				r.Header.Set(innerauth.HeaderUsername, id.Username)
			}
			if id.TenantID != "" {
				r.Header.Set(innerauth.HeaderTenantID, id.TenantID)
			}
		}
		next.ServeHTTP(w, r)
	})
}
