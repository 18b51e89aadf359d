// Package config loads server configuration from defaults, an optional YAML
// file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// MinSecretLength is the shortest accepted session secret, in bytes.
const MinSecretLength = 32

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	API       APIConfig       `koanf:"api"`
	Session   SessionConfig   `koanf:"session"`
	Storage   StorageConfig   `koanf:"storage"`
	Web       WebConfig       `koanf:"web"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	Environment string `koanf:"environment"`
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool `koanf:"trust_proxy"`
}

// APIConfig describes the remote account API.
type APIConfig struct {
	BaseURL string `koanf:"base_url"`
	// Timeout of zero leaves the transport default in place.
	Timeout        time.Duration `koanf:"timeout"`
	BreakerEnabled bool          `koanf:"breaker_enabled"`
}

type SessionConfig struct {
	Secret string        `koanf:"secret"`
	MaxAge time.Duration `koanf:"max_age"`
}

type StorageConfig struct {
	Path string `koanf:"path"`
}

type WebConfig struct {
	TemplateDir     string `koanf:"template_dir"`
	StaticDir       string `koanf:"static_dir"`
	DisplayTimezone string `koanf:"display_timezone"`
}

type RateLimitConfig struct {
	LoginRequests int           `koanf:"login_requests"`
	LoginWindow   time.Duration `koanf:"login_window"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return c.Server.Environment == "production"
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "",
			Port:        8080,
			Environment: "development",
		},
		API: APIConfig{
			BaseURL:        "http://localhost:3001/api",
			Timeout:        0,
			BreakerEnabled: true,
		},
		Session: SessionConfig{
			MaxAge: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Path: "uangku.db",
		},
		Web: WebConfig{
			TemplateDir:     "web/templates",
			StaticDir:       "web/static",
			DisplayTimezone: "Asia/Jakarta",
		},
		RateLimit: RateLimitConfig{
			LoginRequests: 10,
			LoginWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the config file if one is
// found, then environment variables. The result is validated.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"host":              "server.host",
	"port":              "server.port",
	"environment":       "server.environment",
	"api_base_url":      "api.base_url",
	"api_timeout":       "api.timeout",
	"breaker_enabled":   "api.breaker_enabled",
	"session_secret":    "session.secret",
	"session_max_age":   "session.max_age",
	"db_path":           "storage.path",
	"template_dir":      "web.template_dir",
	"static_dir":        "web.static_dir",
	"display_timezone":  "web.display_timezone",
	"login_rate_limit":  "rate_limit.login_requests",
	"login_rate_window": "rate_limit.login_window",
	"log_level":         "logging.level",
	"log_format":        "logging.format",
}

// envTransformFunc maps known environment variables to config paths.
// Everything else is dropped so unrelated variables never leak in.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// ErrInvalidSessionSecret means the session secret is missing or too short.
var ErrInvalidSessionSecret = errors.New("SESSION_SECRET must be set and at least 32 bytes long")

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	if len(c.Session.Secret) < MinSecretLength {
		return ErrInvalidSessionSecret
	}
	if c.Session.MaxAge < 0 {
		return fmt.Errorf("session max age must not be negative, got %s", c.Session.MaxAge)
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API base URL must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("API timeout must not be negative, got %s", c.API.Timeout)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Environment {
	case "development", "production", "test":
	default:
		return fmt.Errorf("unknown environment %q", c.Server.Environment)
	}

	if c.RateLimit.LoginRequests < 0 {
		return fmt.Errorf("login rate limit must not be negative, got %d", c.RateLimit.LoginRequests)
	}
	if c.RateLimit.LoginRequests > 0 && c.RateLimit.LoginWindow <= 0 {
		return errors.New("login rate window must be positive when the limit is enabled")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
