package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/campusnotes/campusnotes-cli/internal/models"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPushServer starts a websocket server that runs handler for every
// accepted connection and reports how many connections were accepted.
func newPushServer(t *testing.T, handler func(context.Context, *websocket.Conn)) (string, *atomic.Int32) {
	t.Helper()

	var accepts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepts.Add(1)
		defer conn.CloseNow()
		handler(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), &accepts
}

func push(ctx context.Context, conn *websocket.Conn, typ string, n models.Notification) error {
	return wsjson.Write(ctx, conn, map[string]any{"type": typ, "payload": n})
}

func TestChannel_DeliversInOrderAndFiltersRecipient(t *testing.T) {
	done := make(chan struct{})
	url, _ := newPushServer(t, func(ctx context.Context, conn *websocket.Conn) {
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		frames := []struct {
			typ string
			n   models.Notification
		}{
			{eventNewNotification, models.Notification{ID: 1, Actor: "bob", Verb: "uploaded", RecipientUserID: 7}},
			// Addressed to someone else: must be dropped.
			{eventNewNotification, models.Notification{ID: 2, RecipientUserID: 9}},
			// Unrecognized frame type: ignored.
			{"ping", models.Notification{ID: 3, RecipientUserID: 7}},
			{eventNewNotification, models.Notification{ID: 4, Actor: "carol", Verb: "rated", RecipientUserID: 7}},
		}
		for _, f := range frames {
			if err := push(wctx, conn, f.typ, f.n); err != nil {
				t.Errorf("push failed: %v", err)
				return
			}
		}

		<-done
	})

	received := make(chan models.Notification, 8)
	ch := NewChannel(url, 7, func(n models.Notification) { received <- n })
	defer close(done)
	defer ch.Close()

	ch.Open(context.Background())

	var got []models.Notification
	for len(got) < 2 {
		select {
		case n := <-received:
			got = append(got, n)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, received %d notifications", len(got))
		}
	}

	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(4), got[1].ID, "events arrive in server-send order")

	select {
	case n := <-received:
		t.Fatalf("unexpected delivery: %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannel_OpenIsIdempotent(t *testing.T) {
	done := make(chan struct{})
	url, accepts := newPushServer(t, func(ctx context.Context, conn *websocket.Conn) {
		<-done
	})
	defer close(done)

	ch := NewChannel(url, 7, func(models.Notification) {})
	defer ch.Close()

	ch.Open(context.Background())
	ch.Open(context.Background())
	ch.Open(context.Background())

	require.Eventually(t, func() bool {
		return ch.State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	// Give any duplicate dial a chance to land before counting.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), accepts.Load())
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	done := make(chan struct{})
	url, _ := newPushServer(t, func(ctx context.Context, conn *websocket.Conn) {
		<-done
	})
	defer close(done)

	ch := NewChannel(url, 7, func(models.Notification) {})
	ch.Open(context.Background())

	require.Eventually(t, func() bool {
		return ch.State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	ch.Close()
	assert.Equal(t, StateClosed, ch.State())
	ch.Close()
	assert.Equal(t, StateClosed, ch.State())
}

func TestChannel_DialFailureReturnsToClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ch := NewChannel(url, 7, func(models.Notification) {})
	ch.Open(context.Background())

	require.Eventually(t, func() bool {
		return ch.State() == StateClosed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChannel_ReopenAfterClose(t *testing.T) {
	done := make(chan struct{})
	url, accepts := newPushServer(t, func(ctx context.Context, conn *websocket.Conn) {
		<-done
	})
	defer close(done)

	ch := NewChannel(url, 7, func(models.Notification) {})
	defer ch.Close()

	ch.Open(context.Background())
	require.Eventually(t, func() bool {
		return ch.State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	ch.Close()
	require.Equal(t, StateClosed, ch.State())

	ch.Open(context.Background())
	require.Eventually(t, func() bool {
		return ch.State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(2), accepts.Load())
}
