package api

import (
	"context"
	"sync"

	"github.com/campusnotes/campusnotes-cli/internal/credentials"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// refreshFunc exchanges a refresh token for a new access token.
type refreshFunc func(ctx context.Context, refreshToken string) (string, error)

// RefreshCoordinator owns the current in-memory access token and serializes
// token refreshes: no matter how many requests hit an auth failure
// concurrently, at most one refresh call is in flight, and every waiter
// receives that call's outcome.
type RefreshCoordinator struct {
	store   *credentials.Store
	refresh refreshFunc

	mu     sync.RWMutex
	access string

	group singleflight.Group

	failureMu sync.Mutex
	onFailure func(error)
}

// NewRefreshCoordinator creates a coordinator backed by the given session
// store and refresh endpoint call.
func NewRefreshCoordinator(store *credentials.Store, refresh refreshFunc) *RefreshCoordinator {
	return &RefreshCoordinator{
		store:   store,
		refresh: refresh,
	}
}

// AccessToken returns the current access token, or "" when logged out.
func (c *RefreshCoordinator) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access
}

// SetAccessToken replaces the in-memory access token. Called by the session
// store on login, bootstrap, and logout.
func (c *RefreshCoordinator) SetAccessToken(token string) {
	c.mu.Lock()
	c.access = token
	c.mu.Unlock()
}

// OnFailure registers the forced-logout hook invoked when a refresh fails.
func (c *RefreshCoordinator) OnFailure(fn func(error)) {
	c.failureMu.Lock()
	c.onFailure = fn
	c.failureMu.Unlock()
}

// ValidToken obtains a fresh access token after staleToken was rejected,
// joining any refresh already in flight. When another caller has already
// replaced staleToken, the replacement is returned without a new refresh.
// A missing refresh token fails immediately without touching the network.
// Any refresh failure triggers the registered forced-logout hook.
func (c *RefreshCoordinator) ValidToken(ctx context.Context, staleToken string) (string, error) {
	if current := c.AccessToken(); current != "" && current != staleToken {
		return current, nil
	}

	v, err, shared := c.group.Do("refresh", func() (any, error) {
		sess := c.store.Load()
		if sess.RefreshToken == "" {
			c.fail(ErrNoRefreshToken)
			return nil, ErrNoRefreshToken
		}

		access, err := c.refresh(ctx, sess.RefreshToken)
		if err != nil {
			log.Warn().Err(err).Msg("token refresh failed")
			c.fail(err)
			return nil, err
		}

		c.SetAccessToken(access)

		// A persist failure is not fatal: the refreshed session keeps
		// working in memory for this process lifetime.
		if err := c.store.SaveAccessToken(access); err != nil {
			log.Warn().Err(err).Msg("failed to persist refreshed access token")
		}

		log.Debug().Msg("access token refreshed")

		return access, nil
	})
	if err != nil {
		return "", err
	}

	if shared {
		log.Debug().Msg("joined in-flight token refresh")
	}

	return v.(string), nil
}

func (c *RefreshCoordinator) fail(err error) {
	c.failureMu.Lock()
	fn := c.onFailure
	c.failureMu.Unlock()
	if fn != nil {
		fn(err)
	}
}
