package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty gateway base URL", func(c *Config) { c.Gateway.BaseURL = "" }},
		{"empty gateway events URL", func(c *Config) { c.Gateway.EventsURL = "" }},
		{"zero gateway timeout", func(c *Config) { c.Gateway.Timeout = 0 }},
		{"nil gateway", func(c *Config) { c.Gateway = nil }},
		{"port too low", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"zero read timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }},
		{"empty journal path", func(c *Config) { c.Journal.Path = "" }},
		{"zero refresh interval", func(c *Config) { c.Refresh.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WALINK_GATEWAY_BASE_URL", "https://gateway.example.com")
	t.Setenv("WALINK_GATEWAY_TOKEN", "secret-token")
	t.Setenv("WALINK_HTTP_PORT", "9090")
	t.Setenv("WALINK_REFRESH_INTERVAL", "5m")
	t.Setenv("WALINK_JWT_SECRET", "hs256-secret")

	config := LoadFromEnv()

	if config.Gateway.BaseURL != "https://gateway.example.com" {
		t.Errorf("expected gateway base URL override, got %q", config.Gateway.BaseURL)
	}
	if config.Gateway.Token != "secret-token" {
		t.Errorf("expected gateway token override, got %q", config.Gateway.Token)
	}
	if config.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", config.HTTP.Port)
	}
	if config.Refresh.Interval != 5*time.Minute {
		t.Errorf("expected 5m refresh interval, got %v", config.Refresh.Interval)
	}
	if config.Auth.JWTSecret != "hs256-secret" {
		t.Errorf("expected JWT secret override, got %q", config.Auth.JWTSecret)
	}
}

func TestLoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WALINK_HTTP_PORT", "not-a-port")
	t.Setenv("WALINK_REFRESH_INTERVAL", "soon")

	config := LoadFromEnv()

	if config.HTTP.Port != 8080 {
		t.Errorf("expected default port to survive malformed env, got %d", config.HTTP.Port)
	}
	if config.Refresh.Interval != time.Minute {
		t.Errorf("expected default refresh interval, got %v", config.Refresh.Interval)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"gateway": {"base_url": "https://gw.internal", "events_url": "wss://gw.internal/events", "timeout": "45s"},
		"http": {"port": 8181},
		"journal": {"path": "/var/lib/walink/journal.db"},
		"refresh": {"interval": "2m"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if config.Gateway.BaseURL != "https://gw.internal" {
		t.Errorf("unexpected gateway base URL: %q", config.Gateway.BaseURL)
	}
	if config.Gateway.Timeout != 45*time.Second {
		t.Errorf("unexpected gateway timeout: %v", config.Gateway.Timeout)
	}
	if config.HTTP.Port != 8181 {
		t.Errorf("unexpected port: %d", config.HTTP.Port)
	}
	if config.HTTP.Host != "0.0.0.0" {
		t.Errorf("expected default host to survive, got %q", config.HTTP.Host)
	}
	if config.Journal.Path != "/var/lib/walink/journal.db" {
		t.Errorf("unexpected journal path: %q", config.Journal.Path)
	}
	if config.Refresh.Interval != 2*time.Minute {
		t.Errorf("unexpected refresh interval: %v", config.Refresh.Interval)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("WALINK_HTTP_PORT", "9090")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": 8181}}`), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if got := Load(path).HTTP.Port; got != 8181 {
		t.Errorf("expected file to win over environment, got port %d", got)
	}

	if got := Load("").HTTP.Port; got != 9090 {
		t.Errorf("expected environment to win over defaults, got port %d", got)
	}
}
