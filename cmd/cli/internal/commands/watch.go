package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campusnotes/campusnotes-cli/internal/notifications"
	"github.com/campusnotes/campusnotes-cli/internal/session"
	"github.com/cenkalti/backoff/v5"
)

type WatchCmd struct {
	Reconnect bool          `help:"Redial the channel when it drops" default:"true"`
	Poll      time.Duration `help:"Channel state poll interval" default:"2s"`
}

func (w *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	e, err := setup(ctx, globals)
	if err != nil {
		return err
	}
	if err := e.requireAuth(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("Received interrupt signal, shutting down...")
		cancel()
	}()

	unsubscribe := e.session.Subscribe(func(state session.State) {
		if len(state.Notifications) == 0 {
			return
		}
		n := state.Notifications[0]
		fmt.Printf("[%s] %s %s %s (%d unread)\n",
			n.Timestamp.Format("15:04:05"), n.Actor, n.Verb, n.Target, state.Unread)
	})
	defer unsubscribe()

	fmt.Printf("Watching notifications for %s\n", e.session.User().Username)

	// The channel itself never reconnects; redialing after a drop is this
	// command's choice, paced with exponential backoff.
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute

	ticker := time.NewTicker(w.Poll)
	defer ticker.Stop()

	var nextDial time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if !e.session.IsAuthenticated() {
			return fmt.Errorf("session ended")
		}

		switch e.session.ChannelState() {
		case notifications.StateOpen:
			b.Reset()
			nextDial = time.Time{}
		case notifications.StateClosed:
			if !w.Reconnect {
				return fmt.Errorf("notification channel closed")
			}
			if nextDial.IsZero() {
				nextDial = time.Now().Add(b.NextBackOff())
			}
			if time.Now().After(nextDial) {
				e.session.OpenChannel(ctx)
				nextDial = time.Time{}
			}
		}
	}
}
