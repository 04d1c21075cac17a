package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kestrelsec/kestrel/pkg/usercontext"
)

// RequestIDHeader carries the request ID to and from clients.
const RequestIDHeader = "X-Request-Id"

// RequestID attaches a request ID to the context and response. An
// inbound ID from a trusted hop is kept so traces line up across
// services; otherwise a fresh UUID is minted.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(usercontext.WithRequestID(r.Context(), id)))
	})
}
