package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the service configuration.
const (
	DefaultHTTPPort        = 8080
	DefaultCacheKey        = "public_giveaway_data"
	DefaultCacheDuration   = time.Hour
	DefaultFetchTimeout    = 5 * time.Second
	DefaultRefreshSchedule = "@every 15m"
	DefaultQueueCapacity   = 16
	DefaultOverflowPolicy  = "disconnect"
	DefaultUpdateRate      = 6 // forced refreshes per minute
)

// Config holds the full service configuration parsed from config.yaml.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Cache    CacheConfig     `yaml:"cache"`
	Source   SourceConfig    `yaml:"source"`
	Stream   StreamConfig    `yaml:"stream"`
	Updates  UpdatesConfig   `yaml:"updates"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Log      LogConfig       `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, WebSocket stream and metrics
	// endpoint listen on (default 8080).
	HTTPPort int `yaml:"http_port"`
}

// CacheConfig controls the snapshot cache and its refresh behaviour.
type CacheConfig struct {
	// Key identifies the cached giveaway record.
	Key string `yaml:"key"`

	// Duration is how long a fetched snapshot stays fresh (default 1h).
	Duration time.Duration `yaml:"duration"`

	// FetchTimeout bounds a single upstream fetch (default 5s).
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// RefreshSchedule is a cron spec for the background warm-keeper that
	// refills the cache after expiry even with no traffic (default @every 15m).
	// Empty disables the scheduler.
	RefreshSchedule string `yaml:"refresh_schedule"`

	// PersistPath is the sqlite file used to survive restarts.
	// Empty disables persistence.
	PersistPath string `yaml:"persist_path"`
}

// SourceConfig describes the authoritative giveaway configuration file.
type SourceConfig struct {
	// ConfigPath is the JavaScript giveaway config file to parse.
	ConfigPath string `yaml:"config_path"`

	// BaseURL prefixes relative image and logo paths in the parsed payload.
	BaseURL string `yaml:"base_url"`

	// Watch enables an fsnotify watch on ConfigPath; a write forces a
	// refresh and broadcast without waiting for cache expiry.
	Watch bool `yaml:"watch"`
}

// StreamConfig controls per-subscriber delivery on the WebSocket stream.
type StreamConfig struct {
	// QueueCapacity is the per-subscriber outbound queue depth (default 16).
	QueueCapacity int `yaml:"queue_capacity"`

	// OverflowPolicy is what happens when a subscriber's queue is full:
	// drop_oldest | drop_new | disconnect (default disconnect).
	OverflowPolicy string `yaml:"overflow_policy"`
}

// UpdatesConfig guards the manual refresh trigger.
type UpdatesConfig struct {
	// AuthMode is one of: apikey | none.
	AuthMode string `yaml:"auth_mode"`

	// KeyEnv is the name of the environment variable holding the expected
	// API key. Used when AuthMode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header the key is read from. Defaults to "x-api-key".
	Header string `yaml:"header"`

	// RatePerMinute caps forced refreshes regardless of trigger source
	// (default 6). Zero disables the limit.
	RatePerMinute int `yaml:"rate_per_minute"`
}

// Key returns the expected API key resolved from the environment.
func (u UpdatesConfig) Key() string {
	if u.KeyEnv == "" {
		return ""
	}
	return os.Getenv(u.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (u UpdatesConfig) EffectiveHeader() string {
	if u.Header != "" {
		return u.Header
	}
	return "x-api-key"
}

// WebhookConfig defines one outbound change-notification target.
type WebhookConfig struct {
	// Type is one of: slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// LogConfig controls log output.
type LogConfig struct {
	// Level is one of: trace | debug | info | warn | error (default info).
	Level string `yaml:"level"`

	// Console switches from JSON to human-readable console output.
	Console bool `yaml:"console"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{HTTPPort: DefaultHTTPPort},
		Cache: CacheConfig{
			Key:             DefaultCacheKey,
			Duration:        DefaultCacheDuration,
			FetchTimeout:    DefaultFetchTimeout,
			RefreshSchedule: DefaultRefreshSchedule,
		},
		Stream: StreamConfig{
			QueueCapacity:  DefaultQueueCapacity,
			OverflowPolicy: DefaultOverflowPolicy,
		},
		Updates: UpdatesConfig{RatePerMinute: DefaultUpdateRate},
		Log:     LogConfig{Level: "info"},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Cache.Key == "" {
		return fmt.Errorf("cache.key must not be empty")
	}
	if cfg.Cache.Duration <= 0 {
		return fmt.Errorf("cache.duration must be positive")
	}
	if cfg.Cache.FetchTimeout <= 0 {
		return fmt.Errorf("cache.fetch_timeout must be positive")
	}
	if cfg.Source.ConfigPath == "" {
		return fmt.Errorf("source.config_path is required")
	}
	if cfg.Stream.QueueCapacity <= 0 {
		return fmt.Errorf("stream.queue_capacity must be positive")
	}
	switch cfg.Stream.OverflowPolicy {
	case "drop_oldest", "drop_new", "disconnect":
	default:
		return fmt.Errorf("stream.overflow_policy %q unknown: want drop_oldest|drop_new|disconnect", cfg.Stream.OverflowPolicy)
	}
	switch cfg.Updates.AuthMode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("updates.auth_mode %q unknown: want apikey|none", cfg.Updates.AuthMode)
	}
	if cfg.Updates.RatePerMinute < 0 {
		return fmt.Errorf("updates.rate_per_minute must not be negative")
	}
	for i, wh := range cfg.Webhooks {
		switch wh.Type {
		case "slack", "http":
		default:
			return fmt.Errorf("webhooks[%d].type %q unknown: want slack|http", i, wh.Type)
		}
	}
	return nil
}
