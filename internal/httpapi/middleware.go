package httpapi

import (
	"net/http"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/auth"

	"go.uber.org/zap"
)

// apiKeyFromRequest reads the key from the X-API-Key header, falling back to
// the api_key query parameter for clients that cannot set headers, such as
// browser WebSocket connections.
func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// requireKey rejects requests without a valid API key.
func requireKey(authService *auth.Service, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := authService.Validate(r.Context(), apiKeyFromRequest(r)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}

// logRequests emits one access log line per request.
func logRequests(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
