// Package httputil provides the JSON response helpers shared by all handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "riskgraph/pkg/domain-errors"
)

// ErrorResponse is the uniform error payload for every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a domain error onto its HTTP status and writes the uniform
// error payload. Uncoded errors collapse to 500 with a generic message so
// internals never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(err)

	msg := "internal error"
	var de *dErrors.Error
	if errors.As(err, &de) && code != dErrors.CodeInternal {
		msg = de.Message
	}
	WriteJSON(w, status, ErrorResponse{Error: string(code), Message: msg})
}

// Decode parses the request body into T, returning a coded error the caller
// can pass straight to WriteError. Unknown fields are rejected so typos in
// payloads fail loudly instead of silently dropping data.
func Decode[T any](r *http.Request, logger *slog.Logger) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if logger != nil {
			logger.DebugContext(r.Context(), "request decode failed", "error", err)
		}
		return v, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body")
	}
	return v, nil
}
