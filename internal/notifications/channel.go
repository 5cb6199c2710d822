package notifications

import (
	"context"
	"sync"

	"github.com/campusnotes/campusnotes-cli/internal/models"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"
)

// State of the notification channel.
type State int

const (
	// StateClosed means no connection exists and none is being attempted.
	StateClosed State = iota
	// StateConnecting means the websocket handshake is in progress.
	StateConnecting
	// StateOpen means the channel is live and delivering events.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// eventNewNotification is the frame type carrying a notification push.
const eventNewNotification = "new_notification"

// event is one JSON frame from the server.
type event struct {
	Type    string              `json:"type"`
	Payload models.Notification `json:"payload"`
}

// Handler receives notifications addressed to the channel's user, in
// server-send order.
type Handler func(models.Notification)

// Channel is a live push-delivery connection for one authenticated session.
// It never reconnects on its own: an error or server close simply
// transitions it back to Closed.
type Channel struct {
	url     string
	userID  int64
	handler Handler

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// NewChannel creates a channel for the given user identity. Events whose
// recipient does not match userID are dropped.
func NewChannel(url string, userID int64, handler Handler) *Channel {
	return &Channel{
		url:     url,
		userID:  userID,
		handler: handler,
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open dials the server in the background. Calling Open while the channel
// is Connecting or Open is a no-op.
func (c *Channel) Open(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	log.Debug().Str("url", c.url).Int64("userID", c.userID).Msg("opening notification channel")

	go c.run(ctx)
}

// Close tears the connection down and transitions to Closed. Idempotent.
// Events arriving after Close are not delivered.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "session closed")
	}

	log.Debug().Msg("notification channel closed")
}

func (c *Channel) run(ctx context.Context) {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("url", c.url).Msg("notification channel dial failed")
		}
		c.transitionClosed()
		return
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Closed while the handshake was in flight.
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "session closed")
		return
	}
	c.state = StateOpen
	c.conn = conn
	c.mu.Unlock()

	log.Debug().Int64("userID", c.userID).Msg("notification channel open")

	c.readLoop(ctx, conn)
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.transitionClosed()

	for {
		var ev event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Msg("notification channel read ended")
			}
			return
		}

		if ev.Type != eventNewNotification {
			continue
		}

		// Guard against stale or cross-session delivery: a push addressed
		// to someone else is dropped outright.
		if ev.Payload.RecipientUserID != c.userID {
			log.Debug().
				Int64("recipient", ev.Payload.RecipientUserID).
				Int64("userID", c.userID).
				Msg("dropping notification for different recipient")
			continue
		}

		if ctx.Err() != nil {
			return
		}
		c.handler(ev.Payload)
	}
}

// transitionClosed clears the connection reference after an error or server
// close, without attempting a reconnect.
func (c *Channel) transitionClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
