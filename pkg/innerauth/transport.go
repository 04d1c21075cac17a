package innerauth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kestrelsec/kestrel/pkg/usercontext"
)

// Transport is an http.RoundTripper that stamps outbound requests with the
// inner-source sentinel, a fresh timestamp, and its signature, so the
// receiving service's guard accepts them. If the sending request's context
// carries a resolved identity, the user headers are propagated as well.
//
// Wrap a service-to-service client with it:
//
//	client := &http.Client{Transport: innerauth.NewTransport(signer, nil)}
type Transport struct {
	signer *Signer
	base   http.RoundTripper

	// now is overridable for tests.
	now func() time.Time
}

// NewTransport wraps base (http.DefaultTransport when nil) with inner-auth
// stamping.
func NewTransport(signer *Signer, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{signer: signer, base: base, now: time.Now}
}

// RoundTrip implements http.RoundTripper. The request is cloned before
// mutation per the RoundTripper contract.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	ts := t.now().UnixMilli()
	out.Header.Set(HeaderSource, SourceInner)
	out.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	out.Header.Set(HeaderSign, t.signer.Sign(ts))

	if id := usercontext.IdentityFrom(req.Context()); id != nil {
		out.Header.Set(HeaderUserID, strconv.FormatInt(id.UserID, 10))
		if id.Username != "" {
			out.Header.Set(HeaderUsername, id.Username)
		}
		if id.TenantID != "" {
			out.Header.Set(HeaderTenantID, id.TenantID)
		}
	}

	return t.base.RoundTrip(out)
}
