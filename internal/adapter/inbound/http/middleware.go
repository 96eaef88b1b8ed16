package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/contextify/contextify/internal/domain/auth"
)

// APIKeyMiddleware rejects requests whose bearer token matches no configured
// API key. A verifier with no keys lets everything through, so deployments
// without auth configured keep working.
func APIKeyMiddleware(verifier *auth.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			keyName, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("rejected request with invalid api key", "path", r.URL.Path)
				w.Header().Set("WWW-Authenticate", `Bearer realm="contextify"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			logger.Debug("authenticated request", "key", keyName)
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token, _ := strings.CutPrefix(h, "Bearer ")
	return token
}

// RequestIDMiddleware assigns each request an id and logs the request line.
// An inbound X-Request-ID is honored so ids correlate across proxies.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			logger.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
