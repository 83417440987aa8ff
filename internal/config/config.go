// Package config provides configuration management for the streambridge server.
// It handles loading and parsing the YAML configuration file, applies environment
// overrides and defaults, and exposes nil-safe getters for optional settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is used when the config file does not set a port.
	DefaultPort = 8787
	// DefaultUpstreamBaseURL points at a backend chat service on the local host.
	DefaultUpstreamBaseURL = "http://127.0.0.1:8000"
	// DefaultChatPath is the backend route that answers with the Data Stream Protocol.
	DefaultChatPath = "/api/chat"
	// DefaultReadBufferBytes is the size of one upstream read.
	DefaultReadBufferBytes = 32 * 1024
	// DefaultMaxLineBytes bounds a single upstream line.
	DefaultMaxLineBytes = 10 * 1024 * 1024
	// DefaultLogsMaxSizeMB is the rotation threshold for the log file.
	DefaultLogsMaxSizeMB = 50

	// EnvUpstreamURL overrides upstream.base-url.
	EnvUpstreamURL = "STREAMBRIDGE_UPSTREAM_URL"
	// EnvPort overrides port.
	EnvPort = "STREAMBRIDGE_PORT"
)

// DefaultPassthroughHeaders are copied from the upstream response when no list is configured.
var DefaultPassthroughHeaders = []string{"X-Conversation-Id"}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the interface to bind. Empty binds every interface.
	Host string `yaml:"host" json:"host"`

	// Port is the listening port.
	Port int `yaml:"port" json:"port"`

	// Debug enables debug level logging and gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile writes logs to a rotating file instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is the directory holding the log file. Defaults to ./logs.
	LogDir string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	// LogsMaxSizeMB is the size at which the log file rotates.
	LogsMaxSizeMB int `yaml:"logs-max-size-mb" json:"logs-max-size-mb"`

	// LogsMaxBackups is the number of rotated files kept. 0 keeps all.
	LogsMaxBackups int `yaml:"logs-max-backups" json:"logs-max-backups"`

	// ProxyURL is the URL of an optional proxy server used for upstream requests.
	// Supported schemes are http, https and socks5.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// MetricsEnabled exposes /metrics. nil means default (true).
	MetricsEnabled *bool `yaml:"metrics-enabled,omitempty" json:"metrics-enabled,omitempty"`

	// CORS configures cross-origin access to the translation route.
	CORS CORSConfig `yaml:"cors" json:"cors"`

	// Upstream describes the backend chat service.
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`

	// Streaming configures server-side streaming behavior.
	Streaming StreamingConfig `yaml:"streaming" json:"streaming"`
}

// CORSConfig lists the origins allowed to call the service from a browser.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allow-origins" json:"allow-origins"`
}

// UpstreamConfig holds settings for the backend that produces the Data Stream Protocol.
type UpstreamConfig struct {
	BaseURL  string `yaml:"base-url" json:"base-url"`
	ChatPath string `yaml:"chat-path" json:"chat-path"`

	// TimeoutSeconds bounds connecting and waiting for response headers. 0 disables it.
	TimeoutSeconds int `yaml:"timeout-seconds" json:"timeout-seconds"`

	// Headers are static headers added to every upstream request.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// ForwardHeaders are inbound request headers forwarded in addition to the defaults.
	ForwardHeaders []string `yaml:"forward-headers,omitempty" json:"forward-headers,omitempty"`

	// PassthroughHeaders are upstream response headers copied onto the client response.
	// nil means DefaultPassthroughHeaders.
	PassthroughHeaders []string `yaml:"passthrough-headers,omitempty" json:"passthrough-headers,omitempty"`

	// FlattenParts rewrites UI message parts into plain content strings before forwarding.
	// nil means default (true).
	FlattenParts *bool `yaml:"flatten-parts,omitempty" json:"flatten-parts,omitempty"`
}

// StreamingConfig holds server streaming behavior configuration.
type StreamingConfig struct {
	// KeepAliveSeconds controls how often the server emits SSE heartbeats (": keep-alive\n\n").
	// <= 0 disables keep-alives. Default is 0.
	KeepAliveSeconds int `yaml:"keepalive-seconds,omitempty" json:"keepalive-seconds,omitempty"`

	// MaxDurationSeconds cancels the upstream request after this long as a fallback.
	// <= 0 disables the timer. Default is 0.
	MaxDurationSeconds int `yaml:"max-duration-seconds,omitempty" json:"max-duration-seconds,omitempty"`

	// ReadBufferBytes is the size of a single upstream read.
	// nil means default (32768).
	ReadBufferBytes *int `yaml:"read-buffer-bytes,omitempty" json:"read-buffer-bytes,omitempty"`

	// MaxLineBytes drops upstream lines longer than this.
	// nil means default (10485760 = 10MiB).
	MaxLineBytes *int `yaml:"max-line-bytes,omitempty" json:"max-line-bytes,omitempty"`
}

// LoadConfig reads and parses the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigOptional(path, false)
}

// LoadConfigOptional reads the configuration file at path. When optional is true a missing,
// empty or unparsable file yields a default configuration instead of an error.
func LoadConfigOptional(path string, optional bool) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warnf("config: failed to read %s, using defaults: %v", path, err)
			}
			return finalize(cfg), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.TrimSpace(string(data)) != "" {
		if err = yaml.Unmarshal(data, cfg); err != nil {
			if optional {
				log.Warnf("config: failed to parse %s, using defaults: %v", path, err)
				return finalize(&Config{}), nil
			}
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	return finalize(cfg), nil
}

func finalize(cfg *Config) *Config {
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvUpstreamURL)); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			log.Warnf("config: ignoring %s=%q: %v", EnvPort, v, err)
			return
		}
		cfg.Port = port
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogsMaxSizeMB <= 0 {
		cfg.LogsMaxSizeMB = DefaultLogsMaxSizeMB
	}
	cfg.Upstream.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Upstream.BaseURL), "/")
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	cfg.Upstream.ChatPath = strings.TrimSpace(cfg.Upstream.ChatPath)
	if cfg.Upstream.ChatPath == "" {
		cfg.Upstream.ChatPath = DefaultChatPath
	}
	if !strings.HasPrefix(cfg.Upstream.ChatPath, "/") {
		cfg.Upstream.ChatPath = "/" + cfg.Upstream.ChatPath
	}
}

// ValidateConfig checks cfg for errors that prevent the server from starting. Problems that
// only degrade behavior are returned as warnings.
func ValidateConfig(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	var warnings []string

	if cfg.Port < 1 || cfg.Port > 65535 {
		return warnings, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.Port)
	}

	if cfg.Upstream.BaseURL == "" {
		warnings = append(warnings, "upstream.base-url is empty; "+DefaultUpstreamBaseURL+" will be used")
	} else if err := validateHTTPURL(cfg.Upstream.BaseURL); err != nil {
		return warnings, fmt.Errorf("invalid upstream.base-url: %w", err)
	}

	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return warnings, fmt.Errorf("invalid proxy-url: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return warnings, fmt.Errorf("invalid proxy-url: unsupported scheme %q", u.Scheme)
		}
	}

	if cfg.Upstream.TimeoutSeconds < 0 {
		warnings = append(warnings, "upstream.timeout-seconds is negative; the timeout is disabled")
	}
	if cfg.Streaming.KeepAliveSeconds < 0 {
		warnings = append(warnings, "streaming.keepalive-seconds is negative; keep-alives are disabled")
	}
	if v := cfg.Streaming.ReadBufferBytes; v != nil && *v <= 0 {
		warnings = append(warnings, "streaming.read-buffer-bytes must be positive; the default will be used")
	}
	if v := cfg.Streaming.MaxLineBytes; v != nil && *v <= 0 {
		warnings = append(warnings, "streaming.max-line-bytes must be positive; the default will be used")
	}
	return warnings, nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsMetricsEnabled reports whether /metrics is served, defaulting to true.
func (c *Config) IsMetricsEnabled() bool {
	if c == nil || c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

// ChatURL returns the full URL of the upstream chat route.
func (u *UpstreamConfig) ChatURL() string {
	base, path := DefaultUpstreamBaseURL, DefaultChatPath
	if u != nil && u.BaseURL != "" {
		base = strings.TrimRight(u.BaseURL, "/")
	}
	if u != nil && u.ChatPath != "" {
		path = u.ChatPath
	}
	return base + path
}

// Timeout returns the connect and response-header timeout. Zero means none.
func (u *UpstreamConfig) Timeout() time.Duration {
	if u == nil || u.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// GetPassthroughHeaders returns the response headers copied to the client.
func (u *UpstreamConfig) GetPassthroughHeaders() []string {
	if u == nil || u.PassthroughHeaders == nil {
		return DefaultPassthroughHeaders
	}
	return u.PassthroughHeaders
}

// ShouldFlattenParts reports whether UI message parts are flattened, defaulting to true.
func (u *UpstreamConfig) ShouldFlattenParts() bool {
	if u == nil || u.FlattenParts == nil {
		return true
	}
	return *u.FlattenParts
}

// KeepAliveInterval returns the heartbeat interval, or zero when disabled.
func (s *StreamingConfig) KeepAliveInterval() time.Duration {
	if s == nil || s.KeepAliveSeconds <= 0 {
		return 0
	}
	return time.Duration(s.KeepAliveSeconds) * time.Second
}

// MaxDuration returns the upstream fallback timeout, or zero when disabled.
func (s *StreamingConfig) MaxDuration() time.Duration {
	if s == nil || s.MaxDurationSeconds <= 0 {
		return 0
	}
	return time.Duration(s.MaxDurationSeconds) * time.Second
}

// GetReadBufferBytes returns the upstream read size, defaulting to 32768.
func (s *StreamingConfig) GetReadBufferBytes() int {
	if s == nil || s.ReadBufferBytes == nil || *s.ReadBufferBytes <= 0 {
		return DefaultReadBufferBytes
	}
	return *s.ReadBufferBytes
}

// GetMaxLineBytes returns the upstream line limit, defaulting to 10MiB.
func (s *StreamingConfig) GetMaxLineBytes() int {
	if s == nil || s.MaxLineBytes == nil || *s.MaxLineBytes <= 0 {
		return DefaultMaxLineBytes
	}
	return *s.MaxLineBytes
}
