package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the coordinator service.
type Config struct {
	Gateway *GatewayConfig `json:"gateway"`
	HTTP    *HTTPConfig    `json:"http"`
	Journal *JournalConfig `json:"journal"`
	Refresh *RefreshConfig `json:"refresh"`
	Auth    *AuthConfig    `json:"auth"`
}

// GatewayConfig points at the external WhatsApp gateway: its REST base
// URL and the websocket endpoint that pushes session lifecycle events.
type GatewayConfig struct {
	BaseURL   string        `json:"base_url"`
	EventsURL string        `json:"events_url"`
	Token     string        `json:"token"`
	Timeout   time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type JournalConfig struct {
	Path string `json:"path"`
}

// RefreshConfig controls the periodic full re-fetch of the session
// list, which repairs any drift from missed push events.
type RefreshConfig struct {
	Interval time.Duration `json:"interval"`
}

// AuthConfig carries the HS256 secret for verifying admin UI tokens.
// An empty secret disables verification.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: &GatewayConfig{
			BaseURL:   "http://localhost:3000",
			EventsURL: "ws://localhost:3000/events",
			Timeout:   15 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Journal: &JournalConfig{
			Path: "./walink.db",
		},
		Refresh: &RefreshConfig{
			Interval: time.Minute,
		},
		Auth: &AuthConfig{},
	}
}

func (c *Config) Validate() error {
	if c.Gateway == nil {
		return fmt.Errorf("gateway configuration is required")
	}

	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base URL cannot be empty")
	}

	if c.Gateway.EventsURL == "" {
		return fmt.Errorf("gateway events URL cannot be empty")
	}

	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}

	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}

	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.Journal == nil {
		return fmt.Errorf("journal configuration is required")
	}

	if c.Journal.Path == "" {
		return fmt.Errorf("journal path cannot be empty")
	}

	if c.Refresh == nil {
		return fmt.Errorf("refresh configuration is required")
	}

	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	return nil
}

// LoadFromEnv builds a config from defaults overridden by WALINK_*
// environment variables. Malformed values fall back to the default.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if url := os.Getenv("WALINK_GATEWAY_BASE_URL"); url != "" {
		config.Gateway.BaseURL = url
	}

	if url := os.Getenv("WALINK_GATEWAY_EVENTS_URL"); url != "" {
		config.Gateway.EventsURL = url
	}

	if token := os.Getenv("WALINK_GATEWAY_TOKEN"); token != "" {
		config.Gateway.Token = token
	}

	if timeout := os.Getenv("WALINK_GATEWAY_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Gateway.Timeout = d
		}
	}

	if port := os.Getenv("WALINK_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}

	if host := os.Getenv("WALINK_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}

	if readTimeout := os.Getenv("WALINK_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if d, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}

	if writeTimeout := os.Getenv("WALINK_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if d, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}

	if path := os.Getenv("WALINK_JOURNAL_PATH"); path != "" {
		config.Journal.Path = path
	}

	if interval := os.Getenv("WALINK_REFRESH_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Refresh.Interval = d
		}
	}

	if secret := os.Getenv("WALINK_JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}

	return config
}

// configFile mirrors Config for JSON parsing, with durations as
// strings so files can say "30s" instead of nanosecond counts.
type configFile struct {
	Gateway *gatewayConfigFile `json:"gateway"`
	HTTP    *httpConfigFile    `json:"http"`
	Journal *JournalConfig     `json:"journal"`
	Refresh *refreshConfigFile `json:"refresh"`
	Auth    *AuthConfig        `json:"auth"`
}

type gatewayConfigFile struct {
	BaseURL   string `json:"base_url"`
	EventsURL string `json:"events_url"`
	Token     string `json:"token"`
	Timeout   string `json:"timeout"`
}

type httpConfigFile struct {
	Port         int    `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type refreshConfigFile struct {
	Interval string `json:"interval"`
}

// LoadFromFile reads a JSON config file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if file.Gateway != nil {
		if file.Gateway.BaseURL != "" {
			config.Gateway.BaseURL = file.Gateway.BaseURL
		}
		if file.Gateway.EventsURL != "" {
			config.Gateway.EventsURL = file.Gateway.EventsURL
		}
		if file.Gateway.Token != "" {
			config.Gateway.Token = file.Gateway.Token
		}
		if file.Gateway.Timeout != "" {
			if d, err := time.ParseDuration(file.Gateway.Timeout); err == nil {
				config.Gateway.Timeout = d
			}
		}
	}

	if file.HTTP != nil {
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.ReadTimeout != "" {
			if d, err := time.ParseDuration(file.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = d
			}
		}
		if file.HTTP.WriteTimeout != "" {
			if d, err := time.ParseDuration(file.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = d
			}
		}
	}

	if file.Journal != nil && file.Journal.Path != "" {
		config.Journal.Path = file.Journal.Path
	}

	if file.Refresh != nil && file.Refresh.Interval != "" {
		if d, err := time.ParseDuration(file.Refresh.Interval); err == nil {
			config.Refresh.Interval = d
		}
	}

	if file.Auth != nil && file.Auth.JWTSecret != "" {
		config.Auth.JWTSecret = file.Auth.JWTSecret
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// Load resolves configuration with precedence: file > environment >
// defaults. A missing or unreadable file is not fatal.
func Load(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
