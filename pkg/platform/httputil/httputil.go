// Package httputil writes JSON responses and maps coded domain errors to
// HTTP statuses.
package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	dErrors "regwatch/pkg/domain-errors"
)

// ErrorResponse is the wire shape of every error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:            http.StatusBadRequest,
	dErrors.CodeInvalidInput:          http.StatusBadRequest,
	dErrors.CodeValidation:            http.StatusBadRequest,
	dErrors.CodeInvalidValidityWindow: http.StatusUnprocessableEntity,
	dErrors.CodeInvariantViolation:    http.StatusUnprocessableEntity,
	dErrors.CodeNotFound:              http.StatusNotFound,
	dErrors.CodeConflict:              http.StatusConflict,
	dErrors.CodeDuplicateState:        http.StatusConflict,
	dErrors.CodeUnauthorized:          http.StatusUnauthorized,
	dErrors.CodeForbidden:             http.StatusForbidden,
	dErrors.CodeTimeout:               http.StatusGatewayTimeout,
	dErrors.CodeUnavailable:           http.StatusServiceUnavailable,
	dErrors.CodeInternal:              http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for a domain error.
func StatusFor(err error) int {
	if status, ok := statusByCode[dErrors.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError writes err as a JSON error body. Internal errors never expose
// their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(err)
	resp := ErrorResponse{Error: string(code)}
	if status != http.StatusInternalServerError {
		resp.ErrorDescription = dErrors.MessageOf(err)
	} else {
		resp.Error = string(dErrors.CodeInternal)
	}
	WriteJSON(w, status, resp)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// QueryTime parses an optional RFC 3339 query parameter. An absent
// parameter yields the zero time.
func QueryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, key+" must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}
