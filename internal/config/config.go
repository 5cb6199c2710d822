package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAPIBaseURL is used when no API_BASE_URL is configured.
	DefaultAPIBaseURL = "http://127.0.0.1:8000"

	// DefaultWSBaseURL is used when no WS_BASE_URL is configured.
	DefaultWSBaseURL = "ws://127.0.0.1:8000"

	// DefaultTimeout bounds every HTTP request made by the client.
	DefaultTimeout = time.Minute
)

// Config holds client connection settings.
// Values are resolved in order: defaults, config file, environment.
type Config struct {
	APIBaseURL string        `yaml:"api_base_url"`
	WSBaseURL  string        `yaml:"ws_base_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultPath returns the default config file location (~/.campusnotes/config.yaml).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".campusnotes", "config.yaml"), nil
}

// Load resolves the client configuration. A missing config file is not an
// error; environment variables API_BASE_URL and WS_BASE_URL take precedence
// over file values.
func Load(path string) (*Config, error) {
	cfg := &Config{
		APIBaseURL: DefaultAPIBaseURL,
		WSBaseURL:  DefaultWSBaseURL,
		Timeout:    DefaultTimeout,
	}

	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Debug().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		log.Debug().Str("path", path).Msg("loaded config file")
	}

	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("WS_BASE_URL"); v != "" {
		cfg.WSBaseURL = v
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := url.Parse(c.APIBaseURL); err != nil {
		return fmt.Errorf("invalid API base URL %q: %w", c.APIBaseURL, err)
	}
	u, err := url.Parse(c.WSBaseURL)
	if err != nil {
		return fmt.Errorf("invalid websocket base URL %q: %w", c.WSBaseURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("websocket base URL %q must use ws:// or wss://", c.WSBaseURL)
	}
	return nil
}
