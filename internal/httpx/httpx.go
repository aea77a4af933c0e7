// Package httpx holds the HTTP response helpers shared by the message and
// stream handlers: permissive CORS, preflight short-circuiting and the plain
// (non JSON-RPC) error body used for method rejections.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

const contentTypeJSON = "application/json"

// SetCORSHeaders applies the permissive cross-origin policy advertising the
// given methods.
func SetCORSHeaders(h http.Header, methods ...string) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

// HandlePreflight sets CORS headers and, for OPTIONS requests, answers with an
// empty 200. It reports whether the request has been fully handled.
func HandlePreflight(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	SetCORSHeaders(w.Header(), methods...)
	if r.Method != http.MethodOptions {
		return false
	}
	w.WriteHeader(http.StatusOK)
	return true
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteMethodNotAllowed emits a 405 with a plain {"error": msg} body, outside
// of JSON-RPC framing.
func WriteMethodNotAllowed(w http.ResponseWriter, msg string) {
	_ = WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": msg})
}
