// Package local implements the self-issued opaque-token authentication
// scheme backed by a shared Redis session store.
package local

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kestrelsec/kestrel/pkg/identity"
	"github.com/kestrelsec/kestrel/pkg/observability"
	"github.com/kestrelsec/kestrel/pkg/usercontext"
)

const (
	// Name is the scheme identifier of this provider.
	Name = "local"

	// TokenPrefix identifies tokens issued by this provider.
	TokenPrefix = "kst_"
	// tokenBytes is the number of random bytes in a token (256 bits).
	tokenBytes = 32

	// keyPrefix namespaces session keys in the shared store.
	keyPrefix = "kestrel:session:"
)

// DefaultSessionTTL is the session lifetime applied when none is
// configured.
const DefaultSessionTTL = 30 * time.Minute

// Provider issues opaque tokens and stores the resolved identity in Redis
// under the token's SHA-256 hash. The plaintext token is returned to the
// caller exactly once and never persisted.
type Provider struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

// New constructs the provider. ttl <= 0 selects DefaultSessionTTL; a nil
// logger discards debug output.
func New(rdb *redis.Client, ttl time.Duration, logger *observability.Logger) *Provider {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return &Provider{rdb: rdb, ttl: ttl, logger: logger}
}

// Name implements AuthProvider.
func (p *Provider) Name() string { return Name }

// Login implements AuthProvider. It generates a fresh token, binds the
// identity to it in the session store, and returns the token.
func (p *Provider) Login(ctx context.Context, user *identity.Identity) (string, error) {
	if !user.Valid() {
		return "", identity.ErrInvalidIdentity
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("local: generating token: %w", err)
	}

	now := time.Now()
	user.Token = token
	user.IssuedAt = now
	user.ExpiresAt = now.Add(p.ttl)

	payload, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("local: encoding session: %w", err)
	}

	if err := p.rdb.Set(ctx, sessionKey(token), payload, p.ttl).Err(); err != nil {
		return "", fmt.Errorf("local: storing session: %w", err)
	}

	p.logger.WithField("user_id", user.UserID).Debug("session established")
	return token, nil
}

// Logout implements AuthProvider. With no token on the request, or no
// session behind the token, it is a no-op.
func (p *Provider) Logout(ctx context.Context) error {
	token := usercontext.TokenFrom(ctx)
	if token == "" {
		return nil
	}
	if err := p.rdb.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("local: deleting session: %w", err)
	}
	return nil
}

// IsLogin implements AuthProvider.
func (p *Provider) IsLogin(ctx context.Context) bool {
	user, err := p.LoginUser(ctx)
	return err == nil && user != nil && !user.Expired()
}

// LoginUser implements AuthProvider. A missing token or session resolves
// to (nil, nil); only store failures surface as errors.
func (p *Provider) LoginUser(ctx context.Context) (*identity.Identity, error) {
	token := usercontext.TokenFrom(ctx)
	if token == "" {
		return nil, nil
	}

	payload, err := p.rdb.Get(ctx, sessionKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("local: loading session: %w", err)
	}

	var user identity.Identity
	if err := json.Unmarshal(payload, &user); err != nil {
		return nil, fmt.Errorf("local: decoding session: %w", err)
	}
	return &user, nil
}

// Token implements AuthProvider.
func (p *Provider) Token(ctx context.Context) string {
	return usercontext.TokenFrom(ctx)
}

// ValidateToken implements AuthProvider. It is a read-only existence
// probe against the session store.
func (p *Provider) ValidateToken(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	n, err := p.rdb.Exists(ctx, sessionKey(token)).Result()
	return err == nil && n > 0
}

// RefreshToken implements AuthProvider. The stored expiry and the store
// key TTL move together.
func (p *Provider) RefreshToken(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = p.ttl
	}

	user, err := p.LoginUser(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return identity.ErrNotLoggedIn
	}

	user.ExpiresAt = time.Now().Add(ttl)
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("local: encoding session: %w", err)
	}
	if err := p.rdb.Set(ctx, sessionKey(user.Token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("local: refreshing session: %w", err)
	}
	return nil
}

// HasPermission implements AuthProvider.
func (p *Provider) HasPermission(ctx context.Context, permission string) bool {
	user, err := p.LoginUser(ctx)
	if err != nil || user == nil {
		return false
	}
	return user.HasPermission(permission)
}

// HasRole implements AuthProvider.
func (p *Provider) HasRole(ctx context.Context, role string) bool {
	user, err := p.LoginUser(ctx)
	if err != nil || user == nil {
		return false
	}
	return user.HasRole(role)
}

// generateToken creates kst_<base64url(32 random bytes)>.
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// sessionKey derives the store key from a token. Only the hash touches the
// store, so a leaked key listing reveals no usable credentials.
func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}
