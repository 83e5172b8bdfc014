package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/auth"
	"github.com/davifernan/bayrol-pool-api/internal/repository"

	"go.uber.org/zap"
)

// APIKeyHandler serves API key management.
type APIKeyHandler struct {
	auth   *auth.Service
	logger *zap.Logger
}

// NewAPIKeyHandler creates an API key handler.
func NewAPIKeyHandler(authService *auth.Service, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{auth: authService, logger: logger}
}

const keysPrefix = "/api/v1/auth/keys"

// ServeHTTP dispatches /api/v1/auth/keys.
func (h *APIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, keysPrefix), "/")

	switch {
	case rest == "":
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Create(w, r)
		default:
			methodNotAllowed(w)
		}
	case !strings.Contains(rest, "/"):
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		h.Revoke(w, r, rest)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type createKeyRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// Create mints a new API key. The full key value appears only in this
// response; listings redact it.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	key, err := h.auth.CreateKey(r.Context(), req.Name, req.Description, req.ExpiresAt)
	if err != nil {
		h.logger.Error("API key creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create api key")
		return
	}
	writeJSON(w, http.StatusCreated, Ok(key))
}

// List returns every key with its value redacted.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.auth.ListKeys(r.Context())
	if err != nil {
		h.logger.Error("API key query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load api keys")
		return
	}
	writeOk(w, keys)
}

// Revoke deactivates a key by id.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.auth.RevokeKey(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "api key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to revoke api key")
		return
	}
	writeOk(w, map[string]string{"revoked": id})
}
