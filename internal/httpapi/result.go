package httpapi

import (
	"encoding/json"
	"net/http"
)

// Result is the envelope every JSON endpoint answers with.
type Result[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data,omitempty"`
}

// Ok wraps a payload in a success envelope.
func Ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail builds an error envelope.
func Fail(message string) Result[any] {
	return Result[any]{Success: false, Message: message}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOk[T any](w http.ResponseWriter, data T) {
	writeJSON(w, http.StatusOK, Ok(data))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Fail(message))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
