// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode selects production or development behavior. Development mode may
// substitute mock audit payloads and honor the auth bypass header; both are
// refused in production.
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Mode     string         `mapstructure:"mode"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	// BypassHeader names the header carrying a user ID for test traffic.
	// Honored only when Mode != production.
	BypassHeader string `mapstructure:"bypass_header"`
}

// AuditConfig governs the audit runners.
type AuditConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	MaxParallel       int    `mapstructure:"max_parallel"`
	// AllowMock substitutes fixed mock payloads when a runner fails.
	// Ignored in production mode.
	AllowMock bool   `mapstructure:"allow_mock"`
	AxeScript string `mapstructure:"axe_script"`
}

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// QueueConfig selects and configures the queue backend.
type QueueConfig struct {
	Provider string `mapstructure:"provider"` // memory | pubsub | rabbit
	Depth    int    `mapstructure:"depth"`

	PubSub PubSubConfig `mapstructure:"pubsub"`
	Rabbit RabbitConfig `mapstructure:"rabbit"`
}

// PubSubConfig holds GCP Pub/Sub connection metadata.
type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// RabbitConfig holds RabbitMQ connection metadata.
type RabbitConfig struct {
	URL       string `mapstructure:"url"`
	QueueName string `mapstructure:"queue_name"`
}

// DatabaseConfig controls access to Postgres.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// StorageConfig selects the artifact blob store backend.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"` // memory | local | gcs
	Bucket      string `mapstructure:"bucket"`
	BaseDir     string `mapstructure:"base_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VITALSCAN")
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
	v.SetDefault("mode", ModeDevelopment)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("auth.bypass_header", "X-Test-User")
	v.SetDefault("audit.user_agent", "vitalscan-bot/1.0")
	v.SetDefault("audit.nav_timeout_seconds", 45)
	v.SetDefault("audit.max_parallel", 2)
	v.SetDefault("audit.allow_mock", true)
	v.SetDefault("audit.axe_script", "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.10.2/axe.min.js")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.depth", 64)
	v.SetDefault("queue.rabbit.queue_name", "vitalscan.scans")
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "artifacts")
	v.SetDefault("storage.content_type", "application/json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Mode != ModeProduction && c.Mode != ModeDevelopment {
		return fmt.Errorf("mode must be %q or %q", ModeProduction, ModeDevelopment)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Audit.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("audit.nav_timeout_seconds must be > 0")
	}
	switch c.Queue.Provider {
	case "memory":
	case "pubsub":
		if c.Queue.PubSub.ProjectID == "" || c.Queue.PubSub.TopicID == "" {
			return fmt.Errorf("queue.pubsub.project_id and topic_id are required")
		}
	case "rabbit":
		if c.Queue.Rabbit.URL == "" {
			return fmt.Errorf("queue.rabbit.url is required")
		}
	default:
		return fmt.Errorf("unknown queue provider %q", c.Queue.Provider)
	}
	switch c.Storage.Provider {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for local storage")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for gcs storage")
		}
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	if c.Production() && c.Audit.AllowMock {
		return fmt.Errorf("audit.allow_mock must be false in production mode")
	}
	return nil
}

// Production reports whether the service runs in production mode.
func (c Config) Production() bool {
	return c.Mode == ModeProduction
}

// NavTimeout converts the audit navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Audit.NavTimeoutSeconds) * time.Second
}

// ServerTimeout converts the HTTP handler timeout into a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
