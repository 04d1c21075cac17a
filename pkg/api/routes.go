package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kestrelsec/kestrel/pkg/innerauth"
	"github.com/kestrelsec/kestrel/pkg/middleware"
	"github.com/kestrelsec/kestrel/pkg/observability"
	"github.com/kestrelsec/kestrel/pkg/provider"
)

// RouterDeps collects everything the router wires together.
type RouterDeps struct {
	Handlers *Handlers
	Provider provider.AuthProvider
	Signer   *innerauth.Signer
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// NewRouter builds the HTTP surface:
//
//	POST /auth/login       public
//	GET  /auth/validate    public
//	POST /auth/logout      token optional (idempotent)
//	POST /auth/refresh     token required
//	GET  /auth/userinfo    token required
//	GET  /inner/users/{id} inner-signed, user header required
func NewRouter(deps RouterDeps) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)

	public := r.PathPrefix("/auth").Subrouter()
	public.HandleFunc("/login", deps.Handlers.Login).Methods(http.MethodPost)
	public.HandleFunc("/validate", deps.Handlers.Validate).Methods(http.MethodGet)

	// Logout is idempotent, so it must be reachable without a live
	// session; the optional authenticator still binds the token when one
	// is present.
	optional := middleware.NewAuthenticate(deps.Provider, deps.Logger, true)
	r.Handle("/auth/logout",
		optional.Handler(http.HandlerFunc(deps.Handlers.Logout))).Methods(http.MethodPost)

	required := middleware.NewAuthenticate(deps.Provider, deps.Logger, false)
	r.Handle("/auth/refresh",
		required.Handler(http.HandlerFunc(deps.Handlers.Refresh))).Methods(http.MethodPost)
	r.Handle("/auth/userinfo",
		required.Handler(http.HandlerFunc(deps.Handlers.UserInfo))).Methods(http.MethodGet)

	guard := middleware.NewInnerAuthGuard(deps.Signer, deps.Logger,
		middleware.RequireUser(), middleware.WithGuardMetrics(deps.Metrics))
	inner := r.PathPrefix("/inner").Subrouter()
	inner.Use(guard.Handler)
	inner.HandleFunc("/users/{id}", deps.Handlers.InnerUser).Methods(http.MethodGet)

	return r
}
