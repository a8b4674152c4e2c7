// Package handlers provides the REST API of the notecore server.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/logging"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.WarnErr("Failed to encode response", err)
	}
}

// writeError maps err's code to an HTTP status and writes a JSON error body.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithCode("Request failed", string(code), err)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}

// StatusFor returns the HTTP status for an error code.
func StatusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrConfigInvalid:
		return http.StatusBadRequest
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrNotImplemented:
		return http.StatusNotImplemented
	case apperrors.ErrQueueFull:
		return http.StatusServiceUnavailable
	case apperrors.ErrAdapterFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
		return false
	}
	return true
}

// Health handles GET /api/health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "notecore",
	})
}
