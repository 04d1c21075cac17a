package innerauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/kestrelsec/kestrel/pkg/identity"
)

// Signer produces and verifies time-bound HMAC signatures for inner
// requests. The signed payload is "inner:<millisecond timestamp>" and the
// signature is hex-encoded HMAC-SHA256 under the shared secret.
//
// Verify never panics and never logs: it sits on the hot request path and
// only answers yes or no. Callers log rejections.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a Signer. An empty secret is a configuration error:
// the process must never run with inner-service trust silently disabled.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, identity.ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the freshness window applied during verification.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign computes the signature for a millisecond epoch timestamp.
func (s *Signer) Sign(timestampMillis int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(SourceInner + ":" + strconv.FormatInt(timestampMillis, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature against its claimed timestamp. It rejects
// malformed timestamps, timestamps outside the freshness window, and
// signature mismatches. The comparison is constant-time.
func (s *Signer) Verify(signature, timestamp string) bool {
	if signature == "" || timestamp == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	// Freshness dominates correctness: a mathematically valid signature
	// outside the window is still rejected.
	skew := time.Now().UnixMilli() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Millisecond > s.ttl {
		return false
	}

	expected := s.Sign(ts)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// Skew returns the absolute difference between now and the claimed
// timestamp, for rejection logging at call sites. Malformed timestamps
// report a zero skew and false.
func Skew(timestamp string) (time.Duration, bool) {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return 0, false
	}
	d := time.Now().UnixMilli() - ts
	if d < 0 {
		d = -d
	}
	return time.Duration(d) * time.Millisecond, true
}
