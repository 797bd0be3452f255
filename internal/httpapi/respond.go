package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"visiond/internal/security"
)

// Sentinel failures shared across handlers. Each maps to one status code in
// respondFailure; handlers wrap them with %w to attach detail that is logged
// but never sent to clients.
var (
	errBadRequest       = errors.New("bad request")
	errUnprocessable    = errors.New("unprocessable input")
	errUnauthorized     = errors.New("unauthorized")
	errForbidden        = errors.New("forbidden")
	errNotFound         = errors.New("not found")
	errConflict         = errors.New("conflict")
	errRateLimited      = errors.New("too many requests")
	errAccountLocked    = errors.New("account temporarily locked")
	errUpstream         = errors.New("upstream service unavailable")
	errDatabaseNotReady = errors.New("database not ready")
)

var statusByFailure = []struct {
	sentinel error
	status   int
}{
	{errBadRequest, http.StatusBadRequest},
	{errUnprocessable, http.StatusUnprocessableEntity},
	{errUnauthorized, http.StatusUnauthorized},
	{errForbidden, http.StatusForbidden},
	{errNotFound, http.StatusNotFound},
	{errConflict, http.StatusConflict},
	{errRateLimited, http.StatusTooManyRequests},
	{errAccountLocked, http.StatusLocked},
	{errUpstream, http.StatusServiceUnavailable},
}

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	// Unknown fields are tolerated: mutating bodies may carry a
	// csrf_token field consumed by the middleware.
	return json.NewDecoder(r.Body).Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

// respondFailure translates a sentinel-wrapped failure into its status code.
// Only the sentinel's generic message reaches the client; the full chain is
// logged server-side after scrubbing secret-like and path-like substrings.
func respondFailure(w http.ResponseWriter, log zerolog.Logger, err error) {
	for _, m := range statusByFailure {
		if errors.Is(err, m.sentinel) {
			if err.Error() != m.sentinel.Error() {
				log.Warn().Str("detail", security.SanitizeMessage(err.Error())).Msg("request failed")
			}
			respondError(w, m.status, m.sentinel)
			return
		}
	}

	log.Error().Str("detail", security.SanitizeMessage(err.Error())).Msg("unexpected error")
	respondError(w, http.StatusInternalServerError, errors.New("internal server error"))
}
