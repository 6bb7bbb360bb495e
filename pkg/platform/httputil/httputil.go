package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"comply/pkg/platform/sentinel"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into a JSON error envelope. Internal
// errors omit the detail so storage and broker failures never leak to
// clients.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	detail := ""

	switch {
	case errors.Is(err, sentinel.ErrValidation):
		status, code, detail = http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, sentinel.ErrNotFound):
		status, code, detail = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, sentinel.ErrInvalidState):
		status, code, detail = http.StatusConflict, "invalid_state", err.Error()
	case errors.Is(err, sentinel.ErrConflict):
		status, code, detail = http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, sentinel.ErrTransient):
		status, code = http.StatusServiceUnavailable, "unavailable"
	}

	body := map[string]string{"error": code}
	if detail != "" {
		body["error_description"] = detail
	}
	WriteJSON(w, status, body)
}

// Decode unmarshals the request body into T, answering 400 itself on
// malformed input. The second return reports whether the caller should
// continue.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "bad_request",
			"error_description": "malformed request body",
		})
		return v, false
	}
	return v, true
}
