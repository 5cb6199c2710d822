package credentials

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/campusnotes/campusnotes-cli/internal/models"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// Sentinel errors
var (
	// ErrNotLoggedIn is returned when an operation requires a stored session.
	ErrNotLoggedIn = errors.New("not logged in")
)

const (
	sessionFile = "session.json"
	clientFile  = "client.json"
)

// Session is the persisted session snapshot: both tokens plus the cached
// user record, surviving across CLI invocations.
type Session struct {
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	User         *models.User `json:"user,omitempty"`
}

// IsZero reports whether no session is stored.
func (s Session) IsZero() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.User == nil
}

type clientConfig struct {
	Version  int    `json:"version"`
	ClientID string `json:"client_id"`
}

// Store manages session persistence on the local filesystem.
type Store struct {
	baseDir  string
	clientID string

	mu sync.Mutex
}

// NewStore creates a new session store.
// If baseDir is empty, uses ~/.campusnotes/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".campusnotes")
	}

	// Create directory with 0700 permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	store := &Store{baseDir: baseDir}

	if err := store.ensureClientID(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("session store initialized")

	return store, nil
}

// ClientID returns the stable install identifier sent as X-Client-Id.
func (s *Store) ClientID() string {
	return s.clientID
}

// Save persists the full session snapshot. The write is atomic: a partially
// written session is never observable across restarts.
func (s *Store) Save(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSession(sess)
}

// SaveAccessToken replaces only the access token, keeping the stored refresh
// token and user snapshot unchanged. Used after a token refresh.
func (s *Store) SaveAccessToken(access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.readSession()
	sess.AccessToken = access
	return s.writeSession(sess)
}

// Load returns the stored session, or a zero session if none is stored.
// A corrupt session file is treated as absent, not a fatal error.
func (s *Store) Load() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSession()
}

// Clear removes the stored session. Idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, sessionFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	log.Debug().Msg("stored session cleared")

	return nil
}

func (s *Store) readSession() Session {
	path := filepath.Join(s.baseDir, sessionFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("failed to read session file")
		}
		return Session{}
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("corrupt session file, treating as absent")
		return Session{}
	}

	return sess
}

// writeSession writes the session file atomically via temp file + rename.
func (s *Store) writeSession(sess Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := filepath.Join(s.baseDir, sessionFile)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// ensureClientID loads or creates the stable install identifier
// (Base58-encoded random bytes).
func (s *Store) ensureClientID() error {
	path := filepath.Join(s.baseDir, clientFile)

	data, err := os.ReadFile(path)
	if err == nil {
		var cfg clientConfig
		if err := json.Unmarshal(data, &cfg); err == nil && cfg.ClientID != "" {
			s.clientID = cfg.ClientID
			return nil
		}
		log.Warn().Str("path", path).Msg("corrupt client file, regenerating client id")
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read client file: %w", err)
	}

	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("failed to generate client id: %w", err)
	}
	s.clientID = base58.Encode(buf)

	out, err := json.MarshalIndent(clientConfig{Version: 1, ClientID: s.clientID}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal client file: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write client file: %w", err)
	}

	log.Debug().Str("clientID", s.clientID).Msg("generated client id")

	return nil
}
