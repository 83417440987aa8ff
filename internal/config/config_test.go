package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_ValidYAML(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantPort int
		wantHost string
		wantErr  bool
	}{
		{
			name: "minimal valid config",
			yaml: `
port: 8080
`,
			wantPort: 8080,
			wantHost: "",
			wantErr:  false,
		},
		{
			name: "config with host and port",
			yaml: `
host: 127.0.0.1
port: 9000
`,
			wantPort: 9000,
			wantHost: "127.0.0.1",
			wantErr:  false,
		},
		{
			name: "config with debug enabled",
			yaml: `
port: 8080
debug: true
`,
			wantPort: 8080,
			wantHost: "",
			wantErr:  false,
		},
		{
			name: "config with upstream section",
			yaml: `
port: 8080
upstream:
  base-url: http://backend:8000
  chat-path: /chat
  headers:
    X-Api-Key: secret
`,
			wantPort: 8080,
			wantHost: "",
			wantErr:  false,
		},
		{
			name: "config with streaming settings",
			yaml: `
port: 443
streaming:
  keepalive-seconds: 15
  max-line-bytes: 1024
`,
			wantPort: 443,
			wantHost: "",
			wantErr:  false,
		},
		{
			name: "port omitted falls back to default",
			yaml: `
debug: true
`,
			wantPort: DefaultPort,
			wantHost: "",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			cfg, err := LoadConfig(configPath)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}

			if cfg.Port != tt.wantPort {
				t.Errorf("LoadConfig() Port = %v, want %v", cfg.Port, tt.wantPort)
			}
			if cfg.Host != tt.wantHost {
				t.Errorf("LoadConfig() Host = %v, want %v", cfg.Host, tt.wantHost)
			}
		})
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		optional bool
		wantErr  bool
	}{
		{
			name:     "empty file with optional false",
			content:  "",
			optional: false,
			wantErr:  false, // Empty file parses to zero-value Config
		},
		{
			name:     "empty file with optional true",
			content:  "",
			optional: true,
			wantErr:  false,
		},
		{
			name:     "whitespace only with optional false",
			content:  "   \n \n   ",
			optional: false,
			wantErr:  false,
		},
		{
			name:     "whitespace only with optional true",
			content:  "   \n \n   ",
			optional: true,
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			cfg, err := LoadConfigOptional(configPath, tt.optional)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfigOptional() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && cfg == nil {
				t.Error("LoadConfigOptional() returned nil config without error")
			}
		})
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		optional bool
		wantErr  bool
	}{
		{
			name: "invalid yaml syntax",
			content: `
port: 8080
  invalid indentation
`,
			optional: false,
			wantErr:  true,
		},
		{
			name: "invalid yaml with optional true",
			content: `
port: 8080
  invalid indentation
`,
			optional: true,
			wantErr:  false, // Optional mode returns empty config on parse error
		},
		{
			name: "malformed yaml structure",
			content: `
port: [8080
`,
			optional: false,
			wantErr:  true,
		},
		{
			name:     "duplicate keys at same level",
			content:  "port: 8080\nport: 9090\n  - invalid",
			optional: false,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			cfg, err := LoadConfigOptional(configPath, tt.optional)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfigOptional() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.optional && err == nil && cfg == nil {
				t.Error("LoadConfigOptional() with optional=true returned nil config")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	tests := []struct {
		name     string
		optional bool
		wantErr  bool
	}{
		{
			name:     "missing file with optional false",
			optional: false,
			wantErr:  true,
		},
		{
			name:     "missing file with optional true",
			optional: true,
			wantErr:  false, // Optional mode returns empty config for missing file
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "nonexistent.yaml")

			cfg, err := LoadConfigOptional(configPath, tt.optional)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfigOptional() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.optional && cfg == nil {
				t.Error("LoadConfigOptional() with optional=true returned nil config for missing file")
			}
		})
	}
}

func TestValidateConfig_ValidPort(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{
			name:    "minimum valid port",
			port:    1,
			wantErr: false,
		},
		{
			name:    "maximum valid port",
			port:    65535,
			wantErr: false,
		},
		{
			name:    "common port 80",
			port:    80,
			wantErr: false,
		},
		{
			name:    "common port 443",
			port:    443,
			wantErr: false,
		},
		{
			name:    "common port 8080",
			port:    8080,
			wantErr: false,
		},
		{
			name:    "high ephemeral port",
			port:    49152,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Port: tt.port}
			_, err := ValidateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_InvalidPort(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{
			name:    "zero port",
			port:    0,
			wantErr: true,
		},
		{
			name:    "negative port",
			port:    -1,
			wantErr: true,
		},
		{
			name:    "port exceeds maximum",
			port:    65536,
			wantErr: true,
		},
		{
			name:    "large negative port",
			port:    -65536,
			wantErr: true,
		},
		{
			name:    "very large port",
			port:    100000,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Port: tt.port}
			_, err := ValidateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_NilConfig(t *testing.T) {
	if _, err := ValidateConfig(nil); err == nil {
		t.Error("ValidateConfig(nil) expected error")
	}
}

func TestValidateConfig_URLs(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		proxyURL    string
		wantErr     bool
		wantWarning bool
	}{
		{name: "http base url", baseURL: "http://backend:8000"},
		{name: "https base url", baseURL: "https://backend.example.com"},
		{name: "empty base url warns", baseURL: "", wantWarning: true},
		{name: "unsupported scheme", baseURL: "ftp://backend", wantErr: true},
		{name: "missing host", baseURL: "http://", wantErr: true},
		{name: "socks5 proxy", baseURL: "http://b", proxyURL: "socks5://127.0.0.1:1080"},
		{name: "http proxy", baseURL: "http://b", proxyURL: "http://proxy:3128"},
		{name: "bad proxy scheme", baseURL: "http://b", proxyURL: "gopher://proxy", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Port: 8080, ProxyURL: tt.proxyURL}
			cfg.Upstream.BaseURL = tt.baseURL
			warnings, err := ValidateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantWarning && len(warnings) == 0 {
				t.Error("ValidateConfig() expected a warning")
			}
		})
	}
}

func TestValidateConfig_StreamingWarnings(t *testing.T) {
	zero := 0
	cfg := &Config{Port: 8080}
	cfg.Upstream.BaseURL = "http://b"
	cfg.Streaming.KeepAliveSeconds = -1
	cfg.Streaming.MaxLineBytes = &zero

	warnings, err := ValidateConfig(cfg)
	if err != nil {
		t.Fatalf("ValidateConfig() unexpected error: %v", err)
	}
	if len(warnings) != 2 {
		t.Errorf("ValidateConfig() warnings = %v, want 2", warnings)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("LoadConfigOptional() error = %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if got := cfg.Upstream.ChatURL(); got != DefaultUpstreamBaseURL+DefaultChatPath {
		t.Errorf("ChatURL() = %q", got)
	}
	if !cfg.IsMetricsEnabled() {
		t.Error("metrics should default to enabled")
	}
	if !cfg.Upstream.ShouldFlattenParts() {
		t.Error("flatten-parts should default to true")
	}
	if got := cfg.Upstream.GetPassthroughHeaders(); len(got) != 1 || got[0] != "X-Conversation-Id" {
		t.Errorf("GetPassthroughHeaders() = %v", got)
	}
	if got := cfg.Streaming.GetReadBufferBytes(); got != DefaultReadBufferBytes {
		t.Errorf("GetReadBufferBytes() = %d", got)
	}
	if got := cfg.Streaming.GetMaxLineBytes(); got != DefaultMaxLineBytes {
		t.Errorf("GetMaxLineBytes() = %d", got)
	}
	if cfg.Streaming.KeepAliveInterval() != 0 || cfg.Streaming.MaxDuration() != 0 {
		t.Error("keep-alive and max duration should default to disabled")
	}
	if _, err := ValidateConfig(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadConfig_UpstreamAndStreaming(t *testing.T) {
	yaml := `
port: 9000
metrics-enabled: false
upstream:
  base-url: http://backend:8000/
  chat-path: chat/stream
  timeout-seconds: 5
  passthrough-headers: []
  flatten-parts: false
  forward-headers: [X-Tenant]
streaming:
  keepalive-seconds: 10
  max-duration-seconds: 300
  read-buffer-bytes: 4096
  max-line-bytes: 65536
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got := cfg.Upstream.ChatURL(); got != "http://backend:8000/chat/stream" {
		t.Errorf("ChatURL() = %q", got)
	}
	if cfg.IsMetricsEnabled() {
		t.Error("metrics should be disabled")
	}
	if cfg.Upstream.ShouldFlattenParts() {
		t.Error("flatten-parts should be disabled")
	}
	if got := cfg.Upstream.GetPassthroughHeaders(); len(got) != 0 {
		t.Errorf("explicit empty passthrough list should be kept, got %v", got)
	}
	if cfg.Upstream.Timeout().Seconds() != 5 {
		t.Errorf("Timeout() = %v", cfg.Upstream.Timeout())
	}
	if len(cfg.Upstream.ForwardHeaders) != 1 || cfg.Upstream.ForwardHeaders[0] != "X-Tenant" {
		t.Errorf("ForwardHeaders = %v", cfg.Upstream.ForwardHeaders)
	}
	if cfg.Streaming.KeepAliveInterval().Seconds() != 10 {
		t.Errorf("KeepAliveInterval() = %v", cfg.Streaming.KeepAliveInterval())
	}
	if cfg.Streaming.MaxDuration().Minutes() != 5 {
		t.Errorf("MaxDuration() = %v", cfg.Streaming.MaxDuration())
	}
	if cfg.Streaming.GetReadBufferBytes() != 4096 || cfg.Streaming.GetMaxLineBytes() != 65536 {
		t.Errorf("buffer sizes = %d/%d", cfg.Streaming.GetReadBufferBytes(), cfg.Streaming.GetMaxLineBytes())
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("port: 8080\nupstream:\n  base-url: http://file:1\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv(EnvUpstreamURL, "http://env:2")
	t.Setenv(EnvPort, "9999")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.Upstream.BaseURL != "http://env:2" {
		t.Errorf("BaseURL = %q, want env override", cfg.Upstream.BaseURL)
	}
}

func TestGetters_NilSafe(t *testing.T) {
	var c *Config
	var u *UpstreamConfig
	var s *StreamingConfig

	if !c.IsMetricsEnabled() {
		t.Error("nil config should report metrics enabled")
	}
	if u.ChatURL() != DefaultUpstreamBaseURL+DefaultChatPath {
		t.Errorf("nil upstream ChatURL() = %q", u.ChatURL())
	}
	if !u.ShouldFlattenParts() || u.Timeout() != 0 || len(u.GetPassthroughHeaders()) != 1 {
		t.Error("nil upstream getters should return defaults")
	}
	if s.GetReadBufferBytes() != DefaultReadBufferBytes || s.GetMaxLineBytes() != DefaultMaxLineBytes {
		t.Error("nil streaming getters should return defaults")
	}
}
