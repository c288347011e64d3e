// Package config loads the client configuration from an optional YAML file
// with ${VAR} environment expansion and a few environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied after the file is parsed.
const (
	EnvEndpoint = "OTTOCHAT_ENDPOINT"
	EnvToken    = "OTTOCHAT_TOKEN"
)

// Config is the complete client configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Auth    AuthConfig    `yaml:"auth"`
	Speech  SpeechConfig  `yaml:"speech"`
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig describes the inference backend.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds session, speech and transcription calls.
	RequestTimeout time.Duration `yaml:"-"`
	// ChatTimeout bounds a single bot query. Zero means no deadline.
	ChatTimeout time.Duration `yaml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout"`
	ChatTimeoutRaw    string `yaml:"chat_timeout"`
}

// AuthConfig tells the client where the bearer token lives.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// SpeechConfig controls the speech side channel.
type SpeechConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CacheDir   string `yaml:"cache_dir"`
	DiskCache  bool   `yaml:"disk_cache"`
	ChunkSize  int    `yaml:"chunk_size"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns a configuration that works against a local backend.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:           "http://localhost:8000",
			RequestTimeout:    30 * time.Second,
			RequestTimeoutRaw: "30s",
		},
		Speech: SpeechConfig{
			Enabled:    false,
			CacheDir:   ".ottochat/cache",
			DiskCache:  true,
			ChunkSize:  200,
			SampleRate: 24000,
			Channels:   1,
		},
		Logging: LoggingConfig{
			Level: "normal",
			File:  ".ottochat/ottochat.log",
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/ottochat/config.yaml or the
// ~/.config equivalent.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ottochat", "config.yaml")
}

// Load reads the file at path on top of Default(). A missing file is not an
// error; the defaults plus environment overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, expanding ${VAR} references first.
func Parse(data []byte, cfg *Config) error {
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if err := parseDurations(cfg); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the environment value, or "".
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Auth.Token = v
	}
}

// Validate checks that required fields are present and sane.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	if c.Backend.RequestTimeout < 0 || c.Backend.ChatTimeout < 0 {
		return fmt.Errorf("backend timeouts must not be negative")
	}
	if c.Speech.ChunkSize < 0 {
		return fmt.Errorf("speech.chunk_size must not be negative")
	}
	if c.Speech.SampleRate <= 0 {
		return fmt.Errorf("speech.sample_rate must be positive")
	}
	if c.Speech.Channels != 1 && c.Speech.Channels != 2 {
		return fmt.Errorf("speech.channels must be 1 or 2")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.RequestTimeoutRaw != "" {
		cfg.Backend.RequestTimeout, err = time.ParseDuration(cfg.Backend.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Backend.RequestTimeoutRaw, err)
		}
	}

	if cfg.Backend.ChatTimeoutRaw != "" {
		cfg.Backend.ChatTimeout, err = time.ParseDuration(cfg.Backend.ChatTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing chat_timeout %q: %w", cfg.Backend.ChatTimeoutRaw, err)
		}
	}

	return nil
}
