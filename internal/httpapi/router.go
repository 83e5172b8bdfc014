package httpapi

import (
	"net/http"

	"github.com/davifernan/bayrol-pool-api/internal/auth"

	"go.uber.org/zap"
)

// Router multiplexes the API on the standard library ServeMux.
type Router struct {
	mux    *http.ServeMux
	auth   *auth.Service
	logger *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(authService *auth.Service, logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		auth:   authService,
		logger: logger,
	}
}

// ServeHTTP implements http.Handler with access logging around the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	logRequests(r.logger, r.mux).ServeHTTP(w, req)
}

// Register wires every API route. All routes except the health check
// require an API key.
func (r *Router) Register(devices *DeviceHandler, alarms *AlarmHandler, keys *APIKeyHandler, ws *WSHandler) {
	r.mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeOk(w, map[string]string{"status": "ok"})
	})

	r.protect(devicesPrefix, devices)
	r.protect(devicesPrefix+"/", devices)
	r.protect(alarmsPrefix, alarms)
	r.protect(alarmsPrefix+"/", alarms)
	r.protect(keysPrefix, keys)
	r.protect(keysPrefix+"/", keys)
	r.protect(wsPrefix, ws)
}

func (r *Router) protect(pattern string, h http.Handler) {
	r.mux.HandleFunc(pattern, requireKey(r.auth, h.ServeHTTP))
}
