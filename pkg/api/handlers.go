// Package api exposes the authentication endpoints: login, logout, token
// refresh, user info, token validation, and the inner-only user lookup
// that other services call through the signed-request protocol.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/kestrelsec/kestrel/pkg/httputil"
	"github.com/kestrelsec/kestrel/pkg/identity"
	"github.com/kestrelsec/kestrel/pkg/observability"
	"github.com/kestrelsec/kestrel/pkg/permissions"
	"github.com/kestrelsec/kestrel/pkg/provider"
	"github.com/kestrelsec/kestrel/pkg/usercontext"
)

// Handlers carries the collaborators of the auth endpoints.
type Handlers struct {
	provider   provider.AuthProvider
	resolver   permissions.Resolver
	users      UserStore
	logger     *observability.Logger
	metrics    *observability.Metrics
	sessionTTL time.Duration
}

// NewHandlers creates the handler set. metrics may be nil.
func NewHandlers(p provider.AuthProvider, r permissions.Resolver, users UserStore,
	logger *observability.Logger, metrics *observability.Metrics, sessionTTL time.Duration) *Handlers {
	return &Handlers{
		provider:   p,
		resolver:   r,
		users:      users,
		logger:     logger,
		metrics:    metrics,
		sessionTTL: sessionTTL,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname,omitempty"`
}

// Login authenticates credentials, resolves the user's effective grants,
// and establishes a session through the configured provider.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "username and password are required")
		return
	}

	user, err := h.users.FindByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		h.logger.WithError(err).Error("user lookup failed")
		httputil.WriteInternalError(w, err)
		return
	}
	// Same rejection for unknown user and wrong password: no account
	// enumeration through error detail or status code.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.countLogin("denied")
		httputil.WriteUnauthorized(w, "invalid username or password")
		return
	}
	if user.Status != identity.StatusEnabled {
		h.countLogin("disabled")
		httputil.WriteForbidden(w, "account is disabled")
		return
	}

	grants, err := h.resolver.Resolve(r.Context(), user.ID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Error("permission resolution failed")
		httputil.WriteInternalError(w, err)
		return
	}

	id := identity.New(user.ID, user.Username, grants.Roles(), grants.Permissions())
	id.Nickname = user.Nickname
	id.TenantID = user.TenantID
	id.SourceIP = httputil.ClientIP(r)

	token, err := h.provider.Login(r.Context(), id)
	if err != nil {
		h.countLogin("error")
		h.logger.WithError(err).WithField("user_id", user.ID).Error("session establishment failed")
		httputil.WriteInternalError(w, err)
		return
	}

	h.countLogin("ok")
	h.logger.WithFields(map[string]interface{}{
		"user_id":   user.ID,
		"source_ip": id.SourceIP,
	}).Info("login succeeded")

	httputil.WriteSuccess(w, loginResponse{
		Token:     token,
		ExpiresAt: id.ExpiresAt,
		UserID:    user.ID,
		Username:  user.Username,
		Nickname:  user.Nickname,
	})
}

// Logout invalidates the current session. Idempotent: logging out with no
// session succeeds with no content.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.Logout(r.Context()); err != nil {
		h.logger.WithError(err).Error("logout failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.LogoutsTotal.Inc()
	}
	httputil.WriteNoContent(w)
}

// Refresh extends the current session's expiry.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	err := h.provider.RefreshToken(r.Context(), h.sessionTTL)
	if errors.Is(err, identity.ErrNotLoggedIn) {
		h.countRefresh("denied")
		httputil.WriteUnauthorized(w, err.Error())
		return
	}
	if err != nil {
		h.countRefresh("error")
		httputil.WriteInternalError(w, err)
		return
	}
	h.countRefresh("ok")
	httputil.WriteNoContent(w)
}

// UserInfo returns the resolved identity of the current request.
func (h *Handlers) UserInfo(w http.ResponseWriter, r *http.Request) {
	id := usercontext.IdentityFrom(r.Context())
	if id == nil {
		httputil.WriteUnauthorized(w, identity.ErrNotLoggedIn.Error())
		return
	}
	httputil.WriteSuccess(w, id)
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

// Validate checks an arbitrary token with no side effects.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteBadRequest(w, "token query parameter is required")
		return
	}
	httputil.WriteSuccess(w, validateResponse{Valid: h.provider.ValidateToken(r.Context(), token)})
}

type innerUserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname,omitempty"`
	Status   string `json:"status"`
	TenantID string `json:"tenant_id,omitempty"`
}

// InnerUser serves identity lookups for other internal services. Routed
// behind the inner-auth guard; by the time this runs the request carries
// a verified signature and a resolved user header.
func (h *Handlers) InnerUser(w http.ResponseWriter, r *http.Request) {
	rawID := mux.Vars(r)["id"]
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if errors.Is(err, ErrUserNotFound) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, innerUserResponse{
		ID:       user.ID,
		Username: user.Username,
		Nickname: user.Nickname,
		Status:   user.Status.String(),
		TenantID: user.TenantID,
	})
}

func (h *Handlers) countLogin(status string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(h.provider.Name(), status).Inc()
	}
}

func (h *Handlers) countRefresh(status string) {
	if h.metrics != nil {
		h.metrics.TokenRefreshTotal.WithLabelValues(status).Inc()
	}
}
