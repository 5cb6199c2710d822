package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/campusnotes/campusnotes-cli/internal/api"
	"github.com/campusnotes/campusnotes-cli/internal/credentials"
	"github.com/campusnotes/campusnotes-cli/internal/models"
	"github.com/campusnotes/campusnotes-cli/internal/notifications"
	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadWSBase is a websocket base URL that refuses connections quickly.
// Channel dial failures are harmless to the session's HTTP side.
const deadWSBase = "ws://127.0.0.1:1"

func mintToken(t *testing.T, userID int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// wsBase starts a websocket server that accepts and holds connections open
// until the test ends.
func wsBase(t *testing.T) string {
	t.Helper()

	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newStore(t *testing.T, handler http.Handler, wsBaseURL string, seed *credentials.Session) (*Store, *credentials.Store) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds, err := credentials.NewStore(t.TempDir())
	require.NoError(t, err)
	if seed != nil {
		require.NoError(t, creds.Save(*seed))
	}

	client := api.New(api.Config{BaseURL: srv.URL, Timeout: 10 * time.Second}, creds)
	return New(client, creds, wsBaseURL), creds
}

func TestLogin_HappyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access":"A1","refresh":"R1","user":{"id":7,"username":"alice"}}`))
	})

	s, creds := newStore(t, mux, wsBase(t), nil)
	ctx := context.Background()

	assert.True(t, s.Loading())
	s.Bootstrap(ctx)
	assert.False(t, s.Loading())
	assert.False(t, s.IsAuthenticated())

	require.NoError(t, s.Login(ctx, "alice", "pw"))

	assert.True(t, s.IsAuthenticated())
	require.NotNil(t, s.User())
	assert.Equal(t, int64(7), s.User().ID)

	sess := creds.Load()
	assert.Equal(t, "A1", sess.AccessToken)
	assert.Equal(t, "R1", sess.RefreshToken)

	require.Eventually(t, func() bool {
		return s.ChannelState() == notifications.StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	s.Logout()
}

func TestLogin_FailureLeavesStateUntouched(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
	})

	s, creds := newStore(t, mux, deadWSBase, nil)
	ctx := context.Background()
	s.Bootstrap(ctx)

	err := s.Login(ctx, "alice", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No active account")

	assert.False(t, s.IsAuthenticated())
	assert.True(t, creds.Load().IsZero())
}

func TestBootstrap_RestoresWithoutNetwork(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	})

	user := &models.User{ID: 7, Username: "alice", Department: "CSE"}
	s, _ := newStore(t, handler, wsBase(t), &credentials.Session{
		AccessToken:  mintToken(t, 7),
		RefreshToken: "R1",
		User:         user,
	})

	s.Bootstrap(context.Background())

	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, user, s.User())
	assert.False(t, s.Loading())
	assert.Equal(t, int32(0), requests.Load(), "restore must not call the API")

	require.Eventually(t, func() bool {
		return s.ChannelState() == notifications.StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	s.Logout()
}

func TestBootstrap_IdentityMismatchDiscardsSession(t *testing.T) {
	s, creds := newStore(t, http.NewServeMux(), deadWSBase, &credentials.Session{
		AccessToken:  mintToken(t, 7),
		RefreshToken: "R1",
		User:         &models.User{ID: 8, Username: "mallory"},
	})

	s.Bootstrap(context.Background())

	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
	assert.True(t, creds.Load().IsZero(), "mismatched session is cleared from storage")
}

func TestBootstrap_EmptyStorage(t *testing.T) {
	s, _ := newStore(t, http.NewServeMux(), deadWSBase, nil)

	s.Bootstrap(context.Background())

	assert.False(t, s.IsAuthenticated())
	assert.False(t, s.Loading())
}

func TestLogout_Idempotent(t *testing.T) {
	s, creds := newStore(t, http.NewServeMux(), wsBase(t), &credentials.Session{
		AccessToken:  mintToken(t, 7),
		RefreshToken: "R1",
		User:         &models.User{ID: 7, Username: "alice"},
	})
	s.Bootstrap(context.Background())
	require.True(t, s.IsAuthenticated())

	s.handleNotification(models.Notification{ID: 1, RecipientUserID: 7})

	s.Logout()
	s.Logout()

	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
	assert.Empty(t, s.Notifications())
	assert.Zero(t, s.Unread())
	assert.True(t, creds.Load().IsZero())
	assert.Equal(t, notifications.StateClosed, s.ChannelState())
}

func TestNotificationFeed(t *testing.T) {
	s, _ := newStore(t, http.NewServeMux(), deadWSBase, &credentials.Session{
		AccessToken:  mintToken(t, 7),
		RefreshToken: "R1",
		User:         &models.User{ID: 7, Username: "alice"},
	})
	s.Bootstrap(context.Background())

	s.handleNotification(models.Notification{ID: 1, Actor: "bob", RecipientUserID: 7})
	s.handleNotification(models.Notification{ID: 2, Actor: "carol", RecipientUserID: 7})

	feed := s.Notifications()
	require.Len(t, feed, 2)
	assert.Equal(t, int64(2), feed[0].ID, "newest first")
	assert.Equal(t, 2, s.Unread())

	s.MarkNotificationsRead()
	assert.Zero(t, s.Unread())
	assert.Len(t, s.Notifications(), 2, "mark-as-read keeps the feed")

	s.ClearNotifications()
	assert.Empty(t, s.Notifications())
	assert.Zero(t, s.Unread())
}

func TestSubscribe(t *testing.T) {
	s, _ := newStore(t, http.NewServeMux(), deadWSBase, &credentials.Session{
		AccessToken:  mintToken(t, 7),
		RefreshToken: "R1",
		User:         &models.User{ID: 7, Username: "alice"},
	})
	s.Bootstrap(context.Background())

	var states []State
	unsubscribe := s.Subscribe(func(st State) { states = append(states, st) })

	s.handleNotification(models.Notification{ID: 1, RecipientUserID: 7})
	require.Len(t, states, 1)
	assert.Equal(t, 1, states[0].Unread)
	assert.True(t, states[0].Authenticated)

	unsubscribe()
	s.MarkNotificationsRead()
	assert.Len(t, states, 1, "unsubscribed observers see no further states")
}

func TestFetchUserProfile_UpdatesSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":7,"username":"alice","email":"alice@example.edu"}`))
	})

	s, creds := newStore(t, mux, deadWSBase, &credentials.Session{
		AccessToken:  mintToken(t, 7),
		RefreshToken: "R1",
		User:         &models.User{ID: 7, Username: "alice"},
	})
	ctx := context.Background()
	s.Bootstrap(ctx)

	require.NoError(t, s.FetchUserProfile(ctx))

	assert.Equal(t, "alice@example.edu", s.User().Email)
	require.NotNil(t, creds.Load().User)
	assert.Equal(t, "alice@example.edu", creds.Load().User.Email)
}

func TestFetchUserProfile_InvalidSessionLogsOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/profile/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Given token not valid for any token type"}`))
	})
	mux.HandleFunc("POST /api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Token is invalid or expired"}`))
	})

	s, creds := newStore(t, mux, deadWSBase, &credentials.Session{
		AccessToken:  mintToken(t, 7),
		RefreshToken: "R1",
		User:         &models.User{ID: 7, Username: "alice"},
	})
	ctx := context.Background()
	s.Bootstrap(ctx)
	require.True(t, s.IsAuthenticated())

	err := s.FetchUserProfile(ctx)
	require.Error(t, err)

	assert.False(t, s.IsAuthenticated())
	assert.True(t, creds.Load().IsZero())
}
