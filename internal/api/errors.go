package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors
var (
	// ErrNoRefreshToken is returned when a token refresh is needed but no
	// refresh token is stored. The refresh endpoint is never called.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrSessionExpired is returned when the refresh token itself is
	// rejected by the server. The session is no longer usable.
	ErrSessionExpired = errors.New("session expired")
)

// detailNotAuthenticated is the detail string the backend sends on a 403
// that actually means "not authenticated". The server uses 403 ambiguously
// for both missing credentials and real permission denials, so auth failure
// must be detected by message, not status code alone.
const detailNotAuthenticated = "Authentication credentials were not provided."

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Detail     string
	// Fields holds per-field validation errors, e.g. from registration.
	Fields map[string][]string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api: %s (status %d)", e.Detail, e.StatusCode)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for field, msgs := range e.Fields {
			parts = append(parts, field+": "+strings.Join(msgs, "; "))
		}
		return fmt.Sprintf("api: validation failed (status %d): %s", e.StatusCode, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("api: request failed (status %d)", e.StatusCode)
}

// IsAuthFailure reports whether the error signals missing or invalid
// credentials: 401, or the backend's unauthenticated 403 variant.
func (e *Error) IsAuthFailure() bool {
	if e.StatusCode == http.StatusUnauthorized {
		return true
	}
	return e.StatusCode == http.StatusForbidden && e.Detail == detailNotAuthenticated
}

// IsAuthFailure reports whether err is an API auth-failure error.
func IsAuthFailure(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.IsAuthFailure()
	}
	return false
}

// parseError builds an *Error from a non-2xx response body. The backend
// sends either {"detail": "..."} or per-field error arrays.
func parseError(status int, body []byte) *Error {
	apiErr := &Error{StatusCode: status}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}

	for key, raw := range payload {
		if key == "detail" {
			var detail string
			if json.Unmarshal(raw, &detail) == nil {
				apiErr.Detail = detail
			}
			continue
		}

		var msgs []string
		if json.Unmarshal(raw, &msgs) == nil {
			if apiErr.Fields == nil {
				apiErr.Fields = make(map[string][]string)
			}
			apiErr.Fields[key] = msgs
		}
	}

	return apiErr
}
