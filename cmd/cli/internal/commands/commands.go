package commands

import (
	"context"
	"fmt"

	"github.com/campusnotes/campusnotes-cli/internal/api"
	"github.com/campusnotes/campusnotes-cli/internal/config"
	"github.com/campusnotes/campusnotes-cli/internal/credentials"
	"github.com/campusnotes/campusnotes-cli/internal/logger"
	"github.com/campusnotes/campusnotes-cli/internal/session"
	"github.com/rs/zerolog/log"
)

type Globals struct {
	Debug   bool
	Config  string
	Version string
}

// env bundles everything a command needs to talk to the backend.
type env struct {
	cfg     *config.Config
	client  *api.Client
	session *session.Store
}

// setup wires logging, configuration, the stores, and the API client, then
// bootstraps the session from storage.
func setup(ctx context.Context, globals *Globals) (*env, error) {
	log.Logger = logger.Setup(globals.Debug)

	cfg, err := config.Load(globals.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	creds, err := credentials.NewStore("")
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	client := api.New(api.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.Timeout,
		Debug:   globals.Debug,
	}, creds)

	sess := session.New(client, creds, cfg.WSBaseURL)
	sess.Bootstrap(ctx)

	return &env{cfg: cfg, client: client, session: sess}, nil
}

// requireAuth fails a command early when no session is active.
func (e *env) requireAuth() error {
	if !e.session.IsAuthenticated() {
		return fmt.Errorf("not logged in, run: campusnotes login")
	}
	return nil
}
