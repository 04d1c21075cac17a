package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/kestrelsec/kestrel/pkg/identity"
	"github.com/kestrelsec/kestrel/pkg/innerauth"
	"github.com/kestrelsec/kestrel/pkg/observability"
	"github.com/kestrelsec/kestrel/pkg/permissions"
	"github.com/kestrelsec/kestrel/pkg/provider/local"
)

// memUserStore is an in-memory UserStore for handler tests.
type memUserStore struct {
	users map[string]*User
}

func (s *memUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	if u, ok := s.users[username]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (s *memUserStore) FindByID(ctx context.Context, id int64) (*User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

// staticResolver returns fixed grants for any user.
type staticResolver struct {
	grants *permissions.Grants
}

func (r *staticResolver) Resolve(ctx context.Context, userID int64) (*permissions.Grants, error) {
	return r.grants, nil
}

type testEnv struct {
	server *httptest.Server
	signer *innerauth.Signer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	p := local.New(rdb, time.Hour, logger)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	users := &memUserStore{users: map[string]*User{
		"alice": {ID: 42, Username: "alice", Nickname: "Alice", PasswordHash: string(hash),
			Status: identity.StatusEnabled, TenantID: "t-1"},
		"mallory": {ID: 66, Username: "mallory", PasswordHash: string(hash),
			Status: identity.StatusDisabled},
	}}

	resolver := &staticResolver{grants: permissions.NewGrants(
		[]string{"developer"}, []string{"system:user:list"})}

	signer, err := innerauth.NewSigner("api-test-secret", 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	handlers := NewHandlers(p, resolver, users, logger, nil, time.Hour)
	router := NewRouter(RouterDeps{
		Handlers: handlers,
		Provider: p,
		Signer:   signer,
		Logger:   logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, signer: signer}
}

func (e *testEnv) login(t *testing.T, username, password string) (*http.Response, loginResponse) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(e.server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	var out loginResponse
	json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	return resp, out
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)

	resp, out := env.login(t, "alice", "s3cret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.Token == "" {
		t.Fatal("expected a token")
	}
	if out.UserID != 42 || out.Username != "alice" {
		t.Errorf("response = %+v", out)
	}
	if out.ExpiresAt.Before(time.Now()) {
		t.Error("expiry should be in the future")
	}
}

func TestLogin_BadCredentialsIndistinguishable(t *testing.T) {
	env := newTestEnv(t)

	wrongPass, wrongBody := env.login(t, "alice", "wrong")
	unknown, unknownBody := env.login(t, "nobody", "whatever")

	if wrongPass.StatusCode != http.StatusUnauthorized || unknown.StatusCode != http.StatusUnauthorized {
		t.Fatalf("statuses = %d / %d, want 401 / 401", wrongPass.StatusCode, unknown.StatusCode)
	}
	// Identical envelopes: no account enumeration.
	if wrongBody != unknownBody {
		t.Errorf("rejection bodies differ: %+v vs %+v", wrongBody, unknownBody)
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.login(t, "mallory", "s3cret")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.login(t, "alice", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUserInfo_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	_, out := env.login(t, "alice", "s3cret")

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/auth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+out.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var id identity.Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		t.Fatal(err)
	}
	if id.UserID != 42 || !id.HasRole("developer") || !id.HasPermission("system:user:list") {
		t.Errorf("identity = %+v roles=%v perms=%v", id, id.Roles(), id.Permissions())
	}
}

func TestUserInfo_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/auth/userinfo")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLogout_InvalidatesSessionAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	_, out := env.login(t, "alice", "s3cret")

	logout := func() int {
		req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+out.Token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := logout(); code != http.StatusNoContent {
		t.Fatalf("first logout status = %d", code)
	}
	if code := logout(); code != http.StatusNoContent {
		t.Errorf("repeated logout status = %d, want idempotent 204", code)
	}

	// The token is dead now.
	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/auth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+out.Token)
	resp, _ := http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("userinfo after logout = %d, want 401", resp.StatusCode)
	}

	// Logout with no token at all is also fine.
	resp2, _ := http.Post(env.server.URL+"/auth/logout", "application/json", nil)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNoContent {
		t.Errorf("anonymous logout = %d, want 204", resp2.StatusCode)
	}
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	_, out := env.login(t, "alice", "s3cret")

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+out.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("refresh = %d, want 204", resp.StatusCode)
	}

	// Without a session, refresh is denied.
	resp2, _ := http.Post(env.server.URL+"/auth/refresh", "application/json", nil)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous refresh = %d, want 401", resp2.StatusCode)
	}
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t)
	_, out := env.login(t, "alice", "s3cret")

	check := func(token string) bool {
		resp, err := http.Get(env.server.URL + "/auth/validate?token=" + token)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var v validateResponse
		json.NewDecoder(resp.Body).Decode(&v)
		return v.Valid
	}

	if !check(out.Token) {
		t.Error("live token should validate")
	}
	if check("kst_forged") {
		t.Error("forged token should not validate")
	}
}

func TestInnerUser_RequiresSignedRequest(t *testing.T) {
	env := newTestEnv(t)

	// Bare request: rejected before anything else.
	resp, _ := http.Get(env.server.URL + "/inner/users/42")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unsigned inner request = %d, want 401", resp.StatusCode)
	}

	// Signed but without the user header: still rejected.
	ts := time.Now().UnixMilli()
	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/inner/users/42", nil)
	req.Header.Set(innerauth.HeaderSource, innerauth.SourceInner)
	req.Header.Set(innerauth.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(innerauth.HeaderSign, env.signer.Sign(ts))
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("signed request without user header = %d, want 401", resp.StatusCode)
	}

	// Fully stamped: succeeds.
	req.Header.Set(innerauth.HeaderUserID, "42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("stamped inner request = %d (%s)", resp.StatusCode, body)
	}
	var u innerUserResponse
	json.NewDecoder(resp.Body).Decode(&u)
	if u.ID != 42 || u.Username != "alice" {
		t.Errorf("inner user = %+v", u)
	}
}

func TestInnerUser_ViaTransport(t *testing.T) {
	env := newTestEnv(t)

	// The calling-service side: a client wrapped with the inner
	// transport reaches the guarded endpoint without manual stamping.
	client := &http.Client{Transport: innerauth.NewTransport(env.signer, nil)}

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/inner/users/%d", env.server.URL, 42), nil)
	req.Header.Set(innerauth.HeaderUserID, "42")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("transport-stamped request = %d, want 200", resp.StatusCode)
	}
}

func TestInnerUser_NotFound(t *testing.T) {
	env := newTestEnv(t)

	ts := time.Now().UnixMilli()
	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/inner/users/9999", nil)
	req.Header.Set(innerauth.HeaderSource, innerauth.SourceInner)
	req.Header.Set(innerauth.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(innerauth.HeaderSign, env.signer.Sign(ts))
	req.Header.Set(innerauth.HeaderUserID, "9999")

	resp, _ := http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
