// Package oidc implements the externally-issued token authentication
// scheme. Tokens are minted by an OIDC provider (Logto, Keycloak, Auth0,
// ...); this package only verifies them and maps claims onto the resolved
// identity. There is no session store: the token itself is the session.
package oidc

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"

	"github.com/kestrelsec/kestrel/pkg/identity"
	"github.com/kestrelsec/kestrel/pkg/observability"
	"github.com/kestrelsec/kestrel/pkg/usercontext"
)

// Name is the scheme identifier of this provider.
const Name = "oidc"

// Config selects the issuer to trust.
type Config struct {
	// IssuerURL is the OIDC issuer, discovered via its well-known
	// endpoint.
	IssuerURL string
	// ClientID is the audience expected in verified tokens.
	ClientID string
}

// Validate checks the configuration before discovery is attempted.
func (c *Config) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("oidc: issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("oidc: client_id is required")
	}
	return nil
}

// verifyFunc validates a raw token and returns its claims. Pulled out as a
// function so claim mapping is testable without a live issuer.
type verifyFunc func(ctx context.Context, rawToken string) (map[string]interface{}, error)

// Provider verifies external OIDC tokens against a configured issuer.
type Provider struct {
	verify verifyFunc
	logger *observability.Logger
}

// New discovers the issuer and constructs the provider. Discovery is a
// network call; it runs once at process start.
func New(ctx context.Context, cfg Config, logger *observability.Logger) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	issuer, err := gooidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc: discovering issuer: %w", err)
	}

	verifier := issuer.Verifier(&gooidc.Config{ClientID: cfg.ClientID})
	return newWithVerify(func(ctx context.Context, rawToken string) (map[string]interface{}, error) {
		idToken, err := verifier.Verify(ctx, rawToken)
		if err != nil {
			return nil, err
		}
		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			return nil, err
		}
		return claims, nil
	}, logger), nil
}

func newWithVerify(verify verifyFunc, logger *observability.Logger) *Provider {
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return &Provider{verify: verify, logger: logger}
}

// Name implements AuthProvider.
func (p *Provider) Name() string { return Name }

// Login implements AuthProvider. Tokens are issued by the external
// provider, so a direct login cannot mint one; the current token, if any,
// is returned so callers behave uniformly across schemes.
func (p *Provider) Login(ctx context.Context, user *identity.Identity) (string, error) {
	p.logger.Warn("direct login is not supported by the oidc scheme; tokens are issued by the external provider")
	return usercontext.TokenFrom(ctx), nil
}

// Logout implements AuthProvider. The identity dies with the request
// context; real logout is a redirect to the issuer's end-session
// endpoint, handled by the client.
func (p *Provider) Logout(ctx context.Context) error { return nil }

// IsLogin implements AuthProvider.
func (p *Provider) IsLogin(ctx context.Context) bool {
	user, err := p.LoginUser(ctx)
	return err == nil && user != nil
}

// LoginUser implements AuthProvider. An absent or unverifiable token
// resolves to (nil, nil): bad external tokens are unauthenticated
// requests, not errors.
func (p *Provider) LoginUser(ctx context.Context) (*identity.Identity, error) {
	raw := usercontext.TokenFrom(ctx)
	if raw == "" {
		return nil, nil
	}

	claims, err := p.verify(ctx, raw)
	if err != nil {
		p.logger.WithError(err).Debug("token verification failed")
		return nil, nil
	}

	user := identityFromClaims(claims)
	user.Token = raw
	return user, nil
}

// Token implements AuthProvider.
func (p *Provider) Token(ctx context.Context) string {
	return usercontext.TokenFrom(ctx)
}

// ValidateToken implements AuthProvider.
func (p *Provider) ValidateToken(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	_, err := p.verify(ctx, token)
	return err == nil
}

// RefreshToken implements AuthProvider. Refresh is the OAuth2 client's
// job; here it only asserts an active session exists.
func (p *Provider) RefreshToken(ctx context.Context, ttl time.Duration) error {
	if usercontext.TokenFrom(ctx) == "" {
		return identity.ErrNotLoggedIn
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

// identityFromClaims maps standard and custom claims onto an Identity.
// Claim layout follows common OIDC providers: sub, preferred_username
// (falling back to username), name, tenant_id, plus optional roles and
// permissions arrays.
func identityFromClaims(claims map[string]interface{}) *identity.Identity {
	user := identity.New(
		parseSubject(claims),
		firstString(claims, "preferred_username", "username"),
		stringSlice(claims, "roles"),
		stringSlice(claims, "permissions"),
	)
	user.Nickname = firstString(claims, "name")
	user.TenantID = firstString(claims, "tenant_id")
	if exp, ok := claims["exp"].(float64); ok {
		user.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if iat, ok := claims["iat"].(float64); ok {
		user.IssuedAt = time.Unix(int64(iat), 0)
	}
	return user
}

func parseSubject(claims map[string]interface{}) int64 {
	sub, _ := claims["sub"].(string)
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func firstString(claims map[string]interface{}, names ...string) string {
	for _, name := range names {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func stringSlice(claims map[string]interface{}, name string) []string {
	raw, ok := claims[name].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
