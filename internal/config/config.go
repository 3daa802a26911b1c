// ABOUTME: Configuration loading for the gateway daemon and CLI
// ABOUTME: YAML file with ${ENV} expansion; missing file falls back to defaults

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the SQLite database path
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GatewayConfig holds gateway behavior settings
type GatewayConfig struct {
	// Defaults applied to newly created keys
	DefaultRateLimitPerHour int `yaml:"default_rate_limit_per_hour"`
	DefaultRateLimitPerDay  int `yaml:"default_rate_limit_per_day"`

	// Maximum request body size in bytes
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	WebhookTimeout       string `yaml:"webhook_timeout"`
	WebhookTimeoutParsed time.Duration `yaml:"-"`

	PidFile string `yaml:"pid_file"`
	LogFile string `yaml:"log_file"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".contactcmd")
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "contactcmd.db"),
		},
		Gateway: GatewayConfig{
			DefaultRateLimitPerHour: 10,
			DefaultRateLimitPerDay:  50,
			MaxBodyBytes:            1 << 20,
			WebhookTimeout:          "10s",
			WebhookTimeoutParsed:    10 * time.Second,
			PidFile:                 filepath.Join(dataDir, "gateway.pid"),
			LogFile:                 filepath.Join(dataDir, "gateway.log"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file, expanding ${VAR} references
// from the environment. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Gateway.WebhookTimeout != "" {
		d, err := time.ParseDuration(c.Gateway.WebhookTimeout)
		if err != nil {
			return fmt.Errorf("parsing webhook_timeout: %w", err)
		}
		c.Gateway.WebhookTimeoutParsed = d
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	return nil
}

// LogLevel converts the configured level string to a slog.Level.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger installs the default slog logger per the logging config,
// writing to w.
func (c *Config) SetupLogger(w *os.File) {
	opts := &slog.HandlerOptions{Level: c.LogLevel()}
	var handler slog.Handler
	if strings.ToLower(c.Logging.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}
