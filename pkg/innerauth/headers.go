// Package innerauth implements the signing protocol that lets internal
// services verify a request really came from another internal service.
//
// The gateway strips any caller-supplied trust headers on ingress, so the
// only way a request reaches an internal endpoint with a valid
// X-From-Source header, signature, and fresh timestamp is if it was
// stamped by a holder of the shared secret. Even if a service port is
// accidentally exposed, an attacker cannot forge a valid signature.
package innerauth

import "time"

// Headers exchanged between the gateway and internal services.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUsername  = "X-Username"
	HeaderTenantID  = "X-Tenant-Id"
	HeaderSource    = "X-From-Source"
	HeaderSign      = "X-Inner-Auth-Sign"
	HeaderTimestamp = "X-Inner-Auth-Timestamp"
)

// SourceInner is the sentinel value of the X-From-Source header marking a
// request as gateway-forwarded/internal.
const SourceInner = "inner"

// DefaultTTL is the maximum age a signed timestamp may have and still be
// accepted.
const DefaultTTL = 5 * time.Minute

// TrustHeaders lists every header the gateway must strip from inbound
// external requests before re-deriving them.
var TrustHeaders = []string{
	HeaderSource,
	HeaderSign,
	HeaderTimestamp,
	HeaderUserID,
	HeaderUsername,
	HeaderTenantID,
}
