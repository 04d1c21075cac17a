package local

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/kestrelsec/kestrel/pkg/identity"
	"github.com/kestrelsec/kestrel/pkg/usercontext"
)

func newTestProvider(t *testing.T) (*Provider, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, time.Hour, nil), mr
}

func login(t *testing.T, p *Provider, user *identity.Identity) (context.Context, string) {
	t.Helper()
	token, err := p.Login(context.Background(), user)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return usercontext.WithToken(context.Background(), token), token
}

func TestProvider_LoginIssuesToken(t *testing.T) {
	p, _ := newTestProvider(t)

	user := identity.New(42, "alice", []string{"developer"}, []string{"system:user:list"})
	ctx, token := login(t, p, user)

	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("token %q should carry prefix %q", token, TokenPrefix)
	}

	if !p.IsLogin(ctx) {
		t.Error("IsLogin should be true after login")
	}

	got, err := p.LoginUser(ctx)
	if err != nil {
		t.Fatalf("LoginUser failed: %v", err)
	}
	if got.UserID != 42 || got.Username != "alice" {
		t.Errorf("resolved identity = %+v", got)
	}
	if !got.HasRole("developer") || !got.HasPermission("system:user:list") {
		t.Error("authorization sets lost through the session store")
	}
}

func TestProvider_LoginInvalidIdentity(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.Login(context.Background(), &identity.Identity{Username: "no-id"})
	if !errors.Is(err, identity.ErrInvalidIdentity) {
		t.Errorf("error = %v, want ErrInvalidIdentity", err)
	}
}

func TestProvider_PlaintextTokenNeverStored(t *testing.T) {
	p, mr := newTestProvider(t)

	user := identity.New(1, "alice", nil, nil)
	_, token := login(t, p, user)

	for _, key := range mr.Keys() {
		if strings.Contains(key, token) {
			t.Errorf("store key %q embeds the plaintext token", key)
		}
	}
}

func TestProvider_LogoutIdempotent(t *testing.T) {
	p, _ := newTestProvider(t)

	// No token at all: no-op, not an error.
	if err := p.Logout(context.Background()); err != nil {
		t.Errorf("logout without a session should be a no-op, got %v", err)
	}

	user := identity.New(1, "alice", nil, nil)
	ctx, _ := login(t, p, user)

	if err := p.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if p.IsLogin(ctx) {
		t.Error("IsLogin should be false after logout")
	}

	// Second logout with the same dead token is still fine.
	if err := p.Logout(ctx); err != nil {
		t.Errorf("repeated logout should be a no-op, got %v", err)
	}
}

func TestProvider_ValidateToken(t *testing.T) {
	p, _ := newTestProvider(t)

	user := identity.New(1, "alice", nil, nil)
	_, token := login(t, p, user)

	if !p.ValidateToken(context.Background(), token) {
		t.Error("freshly issued token should validate")
	}
	if p.ValidateToken(context.Background(), "kst_bogus") {
		t.Error("unknown token should not validate")
	}
	if p.ValidateToken(context.Background(), "") {
		t.Error("empty token should not validate")
	}
}

func TestProvider_SessionExpiry(t *testing.T) {
	p, mr := newTestProvider(t)

	user := identity.New(1, "alice", nil, nil)
	ctx, token := login(t, p, user)

	mr.FastForward(2 * time.Hour)

	if p.ValidateToken(context.Background(), token) {
		t.Error("token should not validate after the store TTL elapses")
	}
	if p.IsLogin(ctx) {
		t.Error("IsLogin should be false after expiry")
	}
}

func TestProvider_RefreshToken(t *testing.T) {
	p, mr := newTestProvider(t)

	user := identity.New(1, "alice", nil, nil)
	ctx, token := login(t, p, user)

	if err := p.RefreshToken(ctx, 3*time.Hour); err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}

	// Past the original TTL but inside the refreshed one.
	mr.FastForward(2 * time.Hour)
	if !p.ValidateToken(context.Background(), token) {
		t.Error("refreshed session should outlive the original TTL")
	}

	got, err := p.LoginUser(ctx)
	if err != nil || got == nil {
		t.Fatalf("LoginUser after refresh: %v, %v", got, err)
	}
	if got.Expired() {
		t.Error("stored expiry should have moved with the refresh")
	}
}

func TestProvider_RefreshTokenNotLoggedIn(t *testing.T) {
	p, _ := newTestProvider(t)

	err := p.RefreshToken(context.Background(), time.Hour)
	if !errors.Is(err, identity.ErrNotLoggedIn) {
		t.Errorf("error = %v, want ErrNotLoggedIn", err)
	}

	ctx := usercontext.WithToken(context.Background(), "kst_gone")
	if err := p.RefreshToken(ctx, time.Hour); !errors.Is(err, identity.ErrNotLoggedIn) {
		t.Errorf("error = %v, want ErrNotLoggedIn for a dead token", err)
	}
}

func TestProvider_PermissionChecksWithoutIdentity(t *testing.T) {
	p, _ := newTestProvider(t)

	ctx := context.Background()
	if p.HasPermission(ctx, "system:user:list") {
		t.Error("HasPermission should be false with no identity")
	}
	if p.HasRole(ctx, "developer") {
		t.Error("HasRole should be false with no identity")
	}
}

func TestProvider_PermissionChecks(t *testing.T) {
	p, _ := newTestProvider(t)

	user := identity.New(1, "alice", []string{"developer"}, []string{"system:user:list"})
	ctx, _ := login(t, p, user)

	if !p.HasPermission(ctx, "system:user:list") {
		t.Error("expected permission grant")
	}
	if p.HasPermission(ctx, "system:user:remove") {
		t.Error("unexpected permission grant")
	}
	if !p.HasRole(ctx, "developer") {
		t.Error("expected role grant")
	}
	if p.HasRole(ctx, "auditor") {
		t.Error("unexpected role grant")
	}
}

func TestProvider_TokensAreUnique(t *testing.T) {
	p, _ := newTestProvider(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		user := identity.New(int64(i+1), "u", nil, nil)
		_, token := login(t, p, user)
		if seen[token] {
			t.Fatalf("duplicate token issued: %s", token)
		}
		seen[token] = true
	}
}
