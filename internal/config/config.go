// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/socialpulse/crawl-ingest/internal/platform"
	"github.com/socialpulse/crawl-ingest/internal/poller"
	"github.com/socialpulse/crawl-ingest/internal/warehouse"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Auth      AuthConfig        `mapstructure:"auth"`
	Providers ProvidersConfig   `mapstructure:"providers"`
	Engine    EngineConfig      `mapstructure:"engine"`
	Poller    poller.Config     `mapstructure:"poller"`
	Storage   StorageConfig     `mapstructure:"storage"`
	Database  DatabaseConfig    `mapstructure:"database"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Platforms []platform.Config `mapstructure:"platforms"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ProvidersConfig holds per-provider API credentials and endpoints. A
// provider with an empty token is simply not wired up; platforms bound
// to it stay registered but are refused at trigger time.
type ProvidersConfig struct {
	BrightData ProviderConfig `mapstructure:"brightdata"`
	Apify      ProviderConfig `mapstructure:"apify"`
}

// ProviderConfig configures one provider HTTP client. A zero
// requests_per_second leaves the client unthrottled.
type ProviderConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Token             string        `mapstructure:"token"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// Enabled reports whether the provider has credentials.
func (c ProviderConfig) Enabled() bool { return c.Token != "" }

// EngineConfig governs download pipeline behavior.
type EngineConfig struct {
	DownloadLimit int `mapstructure:"download_limit"`
}

// StorageConfig selects and configures the blob storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // gcs | local | memory
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls the warehouse connection. With fallback
// enabled, warehouse writes survive a database outage in memory.
type DatabaseConfig struct {
	warehouse.PostgresConfig `mapstructure:",squash"`
	FallbackEnabled          bool `mapstructure:"fallback_enabled"`
}

// PubSubConfig holds metadata for lifecycle event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("providers.brightdata.request_timeout", "30s")
	v.SetDefault("providers.brightdata.download_timeout", "5m")
	v.SetDefault("providers.apify.request_timeout", "30s")
	v.SetDefault("providers.apify.download_timeout", "5m")
	v.SetDefault("engine.download_limit", 1000)
	v.SetDefault("poller.workers", 4)
	v.SetDefault("poller.queue_size", 64)
	v.SetDefault("poller.interval", "30s")
	v.SetDefault("poller.max_polls", 120)
	v.SetDefault("poller.failure_window", 5)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "memory", "":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Engine.DownloadLimit < 0 {
		return fmt.Errorf("engine.download_limit must be >= 0")
	}
	for _, p := range c.Platforms {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PlatformConfigs returns the configured platform set, falling back to
// the builtin defaults when none are configured.
func (c Config) PlatformConfigs() []platform.Config {
	if len(c.Platforms) > 0 {
		return c.Platforms
	}
	return platform.DefaultConfigs()
}
