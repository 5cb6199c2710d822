package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// retriedKey marks a request that has already been replayed once after a
// token refresh. The cap is exactly one retry per logical request, so an
// invalid refresh token can never cause a refresh loop.
type retriedKey struct{}

// maxSniffBytes bounds how much of a 403 body is read to disambiguate
// "forbidden" from "not authenticated".
const maxSniffBytes = 4096

// AuthTransport is the interceptor pair: it attaches the current bearer
// token to every outbound request and, on an auth-failure response, obtains
// a fresh token through the RefreshCoordinator and replays the request once.
type AuthTransport struct {
	// Base is the underlying round tripper. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Refresh owns the current access token and serializes refreshes.
	Refresh *RefreshCoordinator

	// ClientID, when set, is sent as X-Client-Id.
	ClientID string
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	used := t.Refresh.AccessToken()
	if used != "" {
		r.Header.Set("Authorization", "Bearer "+used)
	}
	r.Header.Set("X-Request-Id", uuid.NewString())
	if t.ClientID != "" {
		r.Header.Set("X-Client-Id", t.ClientID)
	}

	resp, err := t.base().RoundTrip(r)
	if err != nil {
		// Transport errors (unreachable, timeout) never trigger a refresh.
		return nil, err
	}

	if !isAuthFailureResponse(resp) {
		return resp, nil
	}

	if req.Context().Value(retriedKey{}) != nil {
		// Already replayed once. Surface the auth failure to the caller.
		log.Debug().Str("url", req.URL.Path).Msg("auth failure on retried request, giving up")
		return resp, nil
	}

	log.Debug().Str("url", req.URL.Path).Int("status", resp.StatusCode).Msg("auth failure, refreshing token")

	// Drain the failed response before replaying so the connection can be
	// reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxSniffBytes)) //nolint:errcheck
	resp.Body.Close()

	if _, err := t.Refresh.ValidToken(req.Context(), used); err != nil {
		// The original request is never replayed when refresh fails.
		return nil, fmt.Errorf("token refresh: %w", err)
	}

	retry := req.Clone(context.WithValue(req.Context(), retriedKey{}, true))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}

	return t.RoundTrip(retry)
}

// isAuthFailureResponse reports whether resp signals missing or invalid
// credentials. A 401 always does; a 403 only when its body carries the
// backend's "credentials not provided" detail, which requires sniffing the
// body. The consumed bytes are stitched back so downstream readers see the
// full body.
func isAuthFailureResponse(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		peek, err := io.ReadAll(io.LimitReader(resp.Body, maxSniffBytes))
		resp.Body = &replayBody{
			Reader: io.MultiReader(bytes.NewReader(peek), resp.Body),
			closer: resp.Body,
		}
		if err != nil {
			return false
		}
		var payload struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(peek, &payload) != nil {
			return false
		}
		return payload.Detail == detailNotAuthenticated
	default:
		return false
	}
}

type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error {
	return b.closer.Close()
}
