package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/campusnotes/campusnotes-cli/internal/credentials"
	"github.com/gregjones/httpcache"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes bounds how much of a JSON response body is read.
const maxBodyBytes = 1 << 20

// Config holds common client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Debug   bool
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8000",
		Timeout: time.Minute,
	}
}

// Client talks to the CampusNotes backend. Authenticated endpoints go
// through the AuthTransport chain; the auth endpoints themselves (login,
// refresh, register) use a plain client so a refresh can never recurse.
type Client struct {
	baseURL string

	plain   *http.Client
	authed  *http.Client
	public  *http.Client
	refresh *RefreshCoordinator
}

// New creates a new API client backed by the given session store.
func New(cfg Config, store *credentials.Store) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
	c.refresh = NewRefreshCoordinator(store, c.refreshAccessToken)

	// Hydrate the in-memory token from storage so a restored session works
	// without a prior login in this process.
	if sess := store.Load(); sess.AccessToken != "" {
		c.refresh.SetAccessToken(sess.AccessToken)
	}

	retry := retryablehttp.NewClient()
	retry.RetryMax = 2
	retry.RetryWaitMin = 500 * time.Millisecond
	retry.RetryWaitMax = 5 * time.Second
	retry.Logger = retryLogger{}

	c.plain = &http.Client{Timeout: cfg.Timeout}
	c.authed = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &AuthTransport{
			Base:     &retryablehttp.RoundTripper{Client: retry},
			Refresh:  c.refresh,
			ClientID: store.ClientID(),
		},
	}
	// Public cacheable GETs (faculty directory) honour server Cache-Control
	// headers through an in-memory cache.
	c.public = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: httpcache.NewMemoryCacheTransport(),
	}

	return c
}

// Refresh exposes the refresh coordinator so the session store can manage
// the in-memory token and register its forced-logout hook.
func (c *Client) Refresh() *RefreshCoordinator {
	return c.refresh
}

// url joins the base URL with an endpoint path.
func (c *Client) url(path string) string {
	return c.baseURL + path
}

// doJSON sends a JSON request with the given client and decodes a JSON
// response into out (which may be nil). Non-2xx responses become *Error.
func (c *Client) doJSON(ctx context.Context, client *http.Client, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(client, req, out)
}

// do executes a prepared request and decodes the JSON response.
func (c *Client) do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// retryLogger adapts the retrying base client's logging to zerolog.
type retryLogger struct{}

func (retryLogger) Error(msg string, kv ...any) { log.Error().Fields(kv).Msg(msg) }
func (retryLogger) Warn(msg string, kv ...any)  { log.Warn().Fields(kv).Msg(msg) }
func (retryLogger) Info(msg string, kv ...any)  { log.Debug().Fields(kv).Msg(msg) }
func (retryLogger) Debug(msg string, kv ...any) { log.Debug().Fields(kv).Msg(msg) }
