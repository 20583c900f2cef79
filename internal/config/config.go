// ABOUTME: Configuration loading and parsing for chat-sync
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied to unset fields.
const (
	DefaultInitialPageSize   = 30
	DefaultOlderPageSize     = 50
	DefaultTypingTTL         = 3 * time.Second
	DefaultTypingStopDelay   = 2500 * time.Millisecond
	DefaultSweepInterval     = 500 * time.Millisecond
	DefaultSendAckTimeout    = 10 * time.Second
	DefaultDedupeWindow      = 30 * time.Second
	DefaultMaxUploads        = 3
	DefaultReconnectInterval = 2 * time.Second
	DefaultPingInterval      = 25 * time.Second
	DefaultSendBuffer        = 64
	DefaultMetricsPath       = "/metrics"
)

// Ordering modes for conversation updates.
const (
	// OrderingLastWrite applies every update in arrival order.
	OrderingLastWrite = "last-write"
	// OrderingSequence drops updates whose seq is lower than the stored one.
	OrderingSequence = "sequence"
)

// Config represents the complete chat-sync configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Sync     SyncConfig     `yaml:"sync" toml:"sync"`
	Push     PushConfig     `yaml:"push" toml:"push"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig locates the chat server
type ServerConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	// PushURL defaults to BaseURL with a ws scheme and /ws path.
	PushURL string `yaml:"push_url" toml:"push_url"`
}

// AuthConfig holds credentials
type AuthConfig struct {
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// DatabaseConfig holds the session cache location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// SyncConfig tunes the reconciliation engine
type SyncConfig struct {
	InitialPageSize int    `yaml:"initial_page_size" toml:"initial_page_size"`
	OlderPageSize   int    `yaml:"older_page_size" toml:"older_page_size"`
	Ordering        string `yaml:"ordering" toml:"ordering"`
	MaxUploads      int    `yaml:"max_uploads" toml:"max_uploads"`

	TypingTTL       time.Duration `yaml:"-" toml:"-"`
	TypingStopDelay time.Duration `yaml:"-" toml:"-"`
	SweepInterval   time.Duration `yaml:"-" toml:"-"`
	SendAckTimeout  time.Duration `yaml:"-" toml:"-"`
	DedupeWindow    time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TypingTTLRaw       string `yaml:"typing_ttl" toml:"typing_ttl"`
	TypingStopDelayRaw string `yaml:"typing_stop_delay" toml:"typing_stop_delay"`
	SweepIntervalRaw   string `yaml:"sweep_interval" toml:"sweep_interval"`
	SendAckTimeoutRaw  string `yaml:"send_ack_timeout" toml:"send_ack_timeout"`
	DedupeWindowRaw    string `yaml:"dedupe_window" toml:"dedupe_window"`
}

// PushConfig tunes the WebSocket push channel
type PushConfig struct {
	SendBuffer int `yaml:"send_buffer" toml:"send_buffer"`

	ReconnectInterval time.Duration `yaml:"-" toml:"-"`
	PingInterval      time.Duration `yaml:"-" toml:"-"`

	ReconnectIntervalRaw string `yaml:"reconnect_interval" toml:"reconnect_interval"`
	PingIntervalRaw      string `yaml:"ping_interval" toml:"ping_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes raw configuration content. It applies defaults, parses
// durations and validates the result.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration pointing at baseURL with every default set.
func Default(baseURL string) *Config {
	cfg := &Config{Server: ServerConfig{BaseURL: baseURL}}
	cfg.applyDefaults()
	return cfg
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Server.PushURL == "" && c.Server.BaseURL != "" {
		c.Server.PushURL = PushURLFor(c.Server.BaseURL)
	}
	if c.Sync.InitialPageSize == 0 {
		c.Sync.InitialPageSize = DefaultInitialPageSize
	}
	if c.Sync.OlderPageSize == 0 {
		c.Sync.OlderPageSize = DefaultOlderPageSize
	}
	if c.Sync.Ordering == "" {
		c.Sync.Ordering = OrderingLastWrite
	}
	if c.Sync.MaxUploads == 0 {
		c.Sync.MaxUploads = DefaultMaxUploads
	}
	if c.Sync.TypingTTL == 0 {
		c.Sync.TypingTTL = DefaultTypingTTL
	}
	if c.Sync.TypingStopDelay == 0 {
		c.Sync.TypingStopDelay = DefaultTypingStopDelay
	}
	if c.Sync.SweepInterval == 0 {
		c.Sync.SweepInterval = DefaultSweepInterval
	}
	if c.Sync.SendAckTimeout == 0 {
		c.Sync.SendAckTimeout = DefaultSendAckTimeout
	}
	if c.Sync.DedupeWindow == 0 {
		c.Sync.DedupeWindow = DefaultDedupeWindow
	}
	if c.Push.ReconnectInterval == 0 {
		c.Push.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Push.PingInterval == 0 {
		c.Push.PingInterval = DefaultPingInterval
	}
	if c.Push.SendBuffer == 0 {
		c.Push.SendBuffer = DefaultSendBuffer
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// PushURLFor derives the WebSocket endpoint from an http(s) base URL.
func PushURLFor(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("server.base_url must be an http or https URL, got %q", c.Server.BaseURL)
	}
	if c.Sync.InitialPageSize < 0 || c.Sync.OlderPageSize < 0 {
		return fmt.Errorf("sync page sizes must be positive")
	}
	if c.Sync.MaxUploads < 0 {
		return fmt.Errorf("sync.max_uploads must be positive")
	}
	switch c.Sync.Ordering {
	case OrderingLastWrite, OrderingSequence:
	default:
		return fmt.Errorf("sync.ordering must be %q or %q, got %q", OrderingLastWrite, OrderingSequence, c.Sync.Ordering)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"typing_ttl", cfg.Sync.TypingTTLRaw, &cfg.Sync.TypingTTL},
		{"typing_stop_delay", cfg.Sync.TypingStopDelayRaw, &cfg.Sync.TypingStopDelay},
		{"sweep_interval", cfg.Sync.SweepIntervalRaw, &cfg.Sync.SweepInterval},
		{"send_ack_timeout", cfg.Sync.SendAckTimeoutRaw, &cfg.Sync.SendAckTimeout},
		{"dedupe_window", cfg.Sync.DedupeWindowRaw, &cfg.Sync.DedupeWindow},
		{"reconnect_interval", cfg.Push.ReconnectIntervalRaw, &cfg.Push.ReconnectInterval},
		{"ping_interval", cfg.Push.PingIntervalRaw, &cfg.Push.PingInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 && f.name != "ping_interval" {
			return fmt.Errorf("%s must not be negative, got %q", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}
