package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/campusnotes/campusnotes-cli/internal/api"
	"github.com/campusnotes/campusnotes-cli/internal/credentials"
	"github.com/campusnotes/campusnotes-cli/internal/models"
	"github.com/campusnotes/campusnotes-cli/internal/notifications"
	"github.com/rs/zerolog/log"
)

// notificationsEndpoint is appended to the websocket base URL.
const notificationsEndpoint = "/ws/notifications/"

// State is an immutable snapshot of the session, delivered to subscribers
// on every change.
type State struct {
	User          *models.User
	Authenticated bool
	Loading       bool
	Notifications []models.Notification
	Unread        int
}

// Store is the process-wide session state: who is logged in, the
// notification feed, and the lifecycle of the notification channel.
// UI consumers observe it through Subscribe; they never mutate the feed
// directly.
type Store struct {
	client *api.Client
	creds  *credentials.Store
	wsURL  string

	mu            sync.Mutex
	user          *models.User
	authenticated bool
	loading       bool
	feed          []models.Notification
	unread        int
	channel       *notifications.Channel

	subs    map[int]func(State)
	nextSub int
}

// New creates a session store. The store starts in the loading state until
// Bootstrap has run.
func New(client *api.Client, creds *credentials.Store, wsBaseURL string) *Store {
	s := &Store{
		client:  client,
		creds:   creds,
		wsURL:   wsBaseURL + notificationsEndpoint,
		loading: true,
		subs:    make(map[int]func(State)),
	}

	// A failed refresh is fatal for the session: every waiter gets the
	// error and the session is torn down.
	client.Refresh().OnFailure(func(err error) {
		log.Warn().Err(err).Msg("session invalidated, logging out")
		s.Logout()
	})

	return s
}

// Subscribe registers an observer called with a state snapshot on every
// change. The returned function removes the observer.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Bootstrap restores a persisted session, if one exists. It runs once at
// process start and is the only place the store is in the loading state.
// No network call is made: the cached snapshot is trusted until an
// authenticated request says otherwise.
func (s *Store) Bootstrap(ctx context.Context) {
	sess := s.creds.Load()

	if sess.AccessToken != "" && sess.User != nil {
		// The cached user must belong to the identity the token encodes.
		// A mismatched pair is treated as no session at all.
		if uid, err := api.TokenUserID(sess.AccessToken); err == nil && uid != sess.User.ID {
			log.Warn().
				Int64("tokenUserID", uid).
				Int64("cachedUserID", sess.User.ID).
				Msg("stored session identity mismatch, discarding")
			if err := s.creds.Clear(); err != nil {
				log.Warn().Err(err).Msg("failed to clear mismatched session")
			}
			s.finishBootstrap(ctx, nil)
			return
		}

		s.client.Refresh().SetAccessToken(sess.AccessToken)
		log.Debug().Int64("userID", sess.User.ID).Msg("session restored from storage")
		s.finishBootstrap(ctx, sess.User)
		return
	}

	s.finishBootstrap(ctx, nil)
}

func (s *Store) finishBootstrap(ctx context.Context, user *models.User) {
	s.mu.Lock()
	s.loading = false
	if user != nil {
		s.user = user
		s.authenticated = true
		s.openChannelLocked(ctx)
	}
	s.mu.Unlock()
	s.notify()
}

// Login authenticates with the backend, persists the session, and opens the
// notification channel. On failure the previous session state is untouched.
func (s *Store) Login(ctx context.Context, username, password string) error {
	result, err := s.client.Login(ctx, username, password)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			return fmt.Errorf("login failed: %s", apiErr.Detail)
		}
		return fmt.Errorf("login failed: %w", err)
	}

	// A persist failure is not fatal: the session works in memory for this
	// process lifetime.
	if err := s.creds.Save(credentials.Session{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         &result.User,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to persist session")
	}

	s.client.Refresh().SetAccessToken(result.AccessToken)

	s.mu.Lock()
	user := result.User
	s.user = &user
	s.authenticated = true
	s.openChannelLocked(ctx)
	s.mu.Unlock()
	s.notify()

	log.Info().Str("username", username).Msg("logged in")

	return nil
}

// Logout tears down the session: channel first, then stored tokens, then
// all in-memory state. Idempotent.
func (s *Store) Logout() {
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	// The channel must be closed before storage is cleared so no push is
	// processed against a cleared session.
	if ch != nil {
		ch.Close()
	}

	if err := s.creds.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear stored session")
	}
	s.client.Refresh().SetAccessToken("")

	s.mu.Lock()
	s.user = nil
	s.authenticated = false
	s.feed = nil
	s.unread = 0
	s.mu.Unlock()
	s.notify()
}

// Register creates a new account. It does not establish a session.
func (s *Store) Register(ctx context.Context, req api.RegisterRequest) (*models.User, error) {
	user, err := s.client.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	log.Info().Str("username", user.Username).Msg("account registered")

	return user, nil
}

// FetchUserProfile re-fetches the profile for the current token and updates
// the cached snapshot. An auth failure that survives the transparent
// refresh means the session is no longer valid, so it is torn down.
func (s *Store) FetchUserProfile(ctx context.Context) error {
	user, err := s.client.Profile(ctx)
	if err != nil {
		if api.IsAuthFailure(err) ||
			errors.Is(err, api.ErrSessionExpired) ||
			errors.Is(err, api.ErrNoRefreshToken) {
			s.Logout()
			return fmt.Errorf("session invalid: %w", err)
		}
		return err
	}

	sess := s.creds.Load()
	sess.User = user
	if err := s.creds.Save(sess); err != nil {
		log.Warn().Err(err).Msg("failed to persist refreshed profile")
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.notify()

	return nil
}

// IsAuthenticated reports whether a session is active.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Loading reports whether the initial bootstrap is still running.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// User returns the cached profile, or nil when logged out.
func (s *Store) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Notifications returns the feed, newest first.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, len(s.feed))
	copy(out, s.feed)
	return out
}

// Unread returns the unread counter.
func (s *Store) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// MarkNotificationsRead resets the unread counter. The feed is unchanged:
// read state is an aggregate flag, not per item.
func (s *Store) MarkNotificationsRead() {
	s.mu.Lock()
	s.unread = 0
	s.mu.Unlock()
	s.notify()
}

// ClearNotifications empties the feed and resets the unread counter.
func (s *Store) ClearNotifications() {
	s.mu.Lock()
	s.feed = nil
	s.unread = 0
	s.mu.Unlock()
	s.notify()
}

// ChannelState reports the notification channel's connection state.
func (s *Store) ChannelState() notifications.State {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch == nil {
		return notifications.StateClosed
	}
	return ch.State()
}

// OpenChannel re-opens the notification channel after it has dropped.
// No-op when logged out or when a channel is already connecting or open.
func (s *Store) OpenChannel(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return
	}
	s.openChannelLocked(ctx)
}

// openChannelLocked lazily creates the channel for the current identity and
// dials it. Callers hold s.mu; the user must be set.
func (s *Store) openChannelLocked(ctx context.Context) {
	if s.user == nil {
		return
	}
	if s.channel == nil {
		s.channel = notifications.NewChannel(s.wsURL, s.user.ID, s.handleNotification)
	}
	s.channel.Open(ctx)
}

// handleNotification is the channel's delivery callback: prepend to the
// feed and bump the unread counter.
func (s *Store) handleNotification(n models.Notification) {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return
	}
	s.feed = append([]models.Notification{n}, s.feed...)
	s.unread++
	s.mu.Unlock()

	// The ambient toast: observable to the user even with no subscriber.
	log.Info().
		Str("actor", n.Actor).
		Str("verb", n.Verb).
		Str("target", n.Target).
		Msg("notification received")

	s.notify()
}

// notify delivers a snapshot to every subscriber, outside the lock.
func (s *Store) notify() {
	s.mu.Lock()
	state := State{
		User:          s.user,
		Authenticated: s.authenticated,
		Loading:       s.loading,
		Notifications: make([]models.Notification, len(s.feed)),
		Unread:        s.unread,
	}
	copy(state.Notifications, s.feed)
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}
