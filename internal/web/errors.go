// internal/web/errors.go
//
// JSON envelope and error mapping for the HTTP edge.
//
// Context
// -------
// Clients only ever see reason codes, never raw storage errors.  Two
// mappings are deliberate security decisions:
//
//   - An isolation violation is rendered exactly like a plain not-found,
//     so a response never confirms that another tenant's data exists.
//   - An unknown host and a malformed host produce the same generic 404.
package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/plumeworks/plume/internal/content"
	"github.com/plumeworks/plume/internal/isolation"
)

// envelope is the uniform error body: {"error":{"code":"..."}}.
type envelope struct {
	Error errBody `json:"error"`
}

type errBody struct {
	Code        string   `json:"code"`
	Suggestions []string `json:"suggestions,omitempty"`
	Retryable   bool     `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, envelope{Error: errBody{Code: code}})
}

// WriteNotFound is the single generic not-found response.  Used for
// unknown hosts, unknown entities, and isolation violations alike.
func WriteNotFound(w http.ResponseWriter) {
	writeErr(w, http.StatusNotFound, "not_found")
}

// writeDataErr maps a content-layer error onto the wire.  Violations are
// already logged at the enforcer; here they just become a 404.
func writeDataErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, isolation.ErrViolation),
		errors.Is(err, content.ErrNotFound):
		WriteNotFound(w)
	case errors.Is(err, isolation.ErrTenantInactive):
		writeErr(w, http.StatusServiceUnavailable, "unavailable")
	case errors.Is(err, content.ErrQuotaExceeded):
		writeErr(w, http.StatusRequestEntityTooLarge, "quota_exceeded")
	default:
		zap.S().Errorw("storage error", "err", err)
		writeErr(w, http.StatusInternalServerError, "internal")
	}
}
