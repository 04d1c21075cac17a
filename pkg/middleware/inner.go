package middleware

import (
	"net/http"

	"github.com/kestrelsec/kestrel/pkg/httputil"
	"github.com/kestrelsec/kestrel/pkg/identity"
	"github.com/kestrelsec/kestrel/pkg/innerauth"
	"github.com/kestrelsec/kestrel/pkg/observability"
)

// InnerAuthGuard enforces the inner-request protocol on endpoints that
// only other internal services may call. Checks run cheapest-first:
//
//  1. the trust-source header must carry the internal sentinel,
//  2. the HMAC signature must verify against a fresh timestamp,
//  3. when the endpoint requires a resolved user, the user-id header
//     must be present.
//
// Each failure is terminal for the request; the wrapped handler never
// runs. Rejection reasons are logged here with the timestamp skew, never
// with secret material.
type InnerAuthGuard struct {
	signer  *innerauth.Signer
	logger  *observability.Logger
	metrics *observability.Metrics

	// requireUser additionally demands a resolved user identity header.
	requireUser bool
}

// GuardOption configures an InnerAuthGuard.
type GuardOption func(*InnerAuthGuard)

// RequireUser makes the guard additionally reject inner requests that
// carry no resolved user header.
func RequireUser() GuardOption {
	return func(g *InnerAuthGuard) { g.requireUser = true }
}

// WithGuardMetrics wires rejection counters.
func WithGuardMetrics(m *observability.Metrics) GuardOption {
	return func(g *InnerAuthGuard) { g.metrics = m }
}

// NewInnerAuthGuard creates the guard. logger must not be nil.
func NewInnerAuthGuard(signer *innerauth.Signer, logger *observability.Logger, opts ...GuardOption) *InnerAuthGuard {
	g := &InnerAuthGuard{signer: signer, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler wraps an HTTP handler with the guard.
func (g *InnerAuthGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.metrics != nil {
			g.metrics.InnerRequestsTotal.Inc()
		}

		if r.Header.Get(innerauth.HeaderSource) != innerauth.SourceInner {
			g.reject(w, r, observability.ReasonNotInternal, identity.ErrNotInternal)
			return
		}

		sig := r.Header.Get(innerauth.HeaderSign)
		ts := r.Header.Get(innerauth.HeaderTimestamp)
		if !g.signer.Verify(sig, ts) {
			g.rejectSignature(w, r, ts)
			return
		}

		if g.requireUser && r.Header.Get(innerauth.HeaderUserID) == "" {
			g.reject(w, r, observability.ReasonMissingUser, identity.ErrMissingUser)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *InnerAuthGuard) reject(w http.ResponseWriter, r *http.Request, reason string, err error) {
	if g.metrics != nil {
		g.metrics.InnerRejectionsTotal.WithLabelValues(reason).Inc()
	}
	g.logger.WithFields(map[string]interface{}{
		"reason": reason,
		"path":   r.URL.Path,
	}).Warn("inner request rejected")
	httputil.WriteUnauthorized(w, err.Error())
}

func (g *InnerAuthGuard) rejectSignature(w http.ResponseWriter, r *http.Request, ts string) {
	if g.metrics != nil {
		g.metrics.InnerRejectionsTotal.WithLabelValues(observability.ReasonBadSignature).Inc()
	}
	fields := map[string]interface{}{
		"reason": observability.ReasonBadSignature,
		"path":   r.URL.Path,
	}
	if skew, ok := innerauth.Skew(ts); ok {
		fields["timestamp_skew"] = skew.String()
	}
	g.logger.WithFields(fields).Warn("inner request rejected")
	httputil.WriteUnauthorized(w, identity.ErrBadSignature.Error())
}
