// Package config loads and validates the BuildScale configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for BuildScale.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Blob          BlobConfig          `yaml:"blob"`
	Auth          AuthConfig          `yaml:"auth"`
	LLM           LLMConfig           `yaml:"llm"`
	Agent         AgentConfig         `yaml:"agent"`
	Cache         CacheConfig         `yaml:"cache"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Env is "development" or "production". Production marks auth cookies
	// Secure.
	Env string `yaml:"env"`
}

// IsProduction reports whether the server runs in production mode.
func (s ServerConfig) IsProduction() bool { return s.Env == "production" }

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type BlobConfig struct {
	// Backend selects the blob store: "filesystem" or "s3".
	Backend string `yaml:"backend"`

	// BaseDir is the filesystem root for workspace blob trees.
	BaseDir string `yaml:"base_dir"`

	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Prefix   string `yaml:"prefix"`

	// Static credentials override the default AWS chain; required for
	// MinIO-style endpoints.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// UsePathStyle forces path-style addressing for non-AWS endpoints.
	UsePathStyle bool `yaml:"use_path_style"`
}

type AuthConfig struct {
	// JWTSecret signs access tokens (HS256).
	JWTSecret string `yaml:"jwt_secret"`

	// RefreshSecret keys the HMAC over refresh token bodies.
	RefreshSecret string `yaml:"refresh_secret"`

	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`

	// RequestTimeout bounds each provider stream; timeouts surface as
	// provider errors and drive the session to Error.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	Region       string `yaml:"region"`
}

type AgentConfig struct {
	// Persona is the default system persona fragment.
	Persona string `yaml:"persona"`

	// TokenBudget bounds the assembled prompt.
	TokenBudget int `yaml:"token_budget"`

	// MailboxSize bounds the actor command channel; full mailboxes fail
	// sends with Busy.
	MailboxSize int `yaml:"mailbox_size"`

	// EventBufferSize bounds each subscriber's event channel; slow
	// subscribers lag rather than block the actor.
	EventBufferSize int `yaml:"event_buffer_size"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`

	// StaleAfter is the heartbeat age past which non-terminal sessions
	// are reaped.
	StaleAfter time.Duration `yaml:"stale_after"`
}

type CacheConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type MaintenanceConfig struct {
	// SweepInterval schedules the housekeeping sweeper.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// SweepSchedule is an optional cron expression (seconds field
	// allowed) that overrides SweepInterval when set.
	SweepSchedule string `yaml:"sweep_schedule"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ObservabilityConfig struct {
	// TraceEndpoint is the OTLP gRPC collector address; empty disables
	// tracing.
	TraceEndpoint string  `yaml:"trace_endpoint"`
	TraceInsecure bool    `yaml:"trace_insecure"`
	SampleRate    float64 `yaml:"sample_rate"`
	Environment   string  `yaml:"environment"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Blob.Backend == "" {
		cfg.Blob.Backend = "filesystem"
	}
	if cfg.Blob.BaseDir == "" {
		cfg.Blob.BaseDir = "./data/blobs"
	}
	if cfg.Auth.AccessTokenTTL == 0 {
		cfg.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.Auth.RefreshTokenTTL == 0 {
		cfg.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "openai"
	}
	if cfg.LLM.RequestTimeout == 0 {
		cfg.LLM.RequestTimeout = 120 * time.Second
	}
	if cfg.Agent.Persona == "" {
		cfg.Agent.Persona = "You are a careful assistant working inside a shared workspace."
	}
	if cfg.Agent.TokenBudget == 0 {
		cfg.Agent.TokenBudget = 4000
	}
	if cfg.Agent.MailboxSize == 0 {
		cfg.Agent.MailboxSize = 16
	}
	if cfg.Agent.EventBufferSize == 0 {
		cfg.Agent.EventBufferSize = 64
	}
	if cfg.Agent.HeartbeatInterval == 0 {
		cfg.Agent.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Agent.InactivityTimeout == 0 {
		cfg.Agent.InactivityTimeout = 5 * time.Minute
	}
	if cfg.Agent.StaleAfter == 0 {
		cfg.Agent.StaleAfter = 120 * time.Second
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = time.Minute
	}
	if cfg.Maintenance.SweepInterval == 0 {
		cfg.Maintenance.SweepInterval = time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}
}

// Validate checks fields the server cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.RefreshSecret == "" {
		return fmt.Errorf("auth.refresh_secret is required")
	}
	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers must configure at least one provider")
	}
	if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
		return fmt.Errorf("llm.default_provider %q is not among configured providers", c.LLM.DefaultProvider)
	}
	if c.Blob.Backend != "filesystem" && c.Blob.Backend != "s3" {
		return fmt.Errorf("blob.backend must be filesystem or s3, got %q", c.Blob.Backend)
	}
	if c.Blob.Backend == "s3" && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob.s3.bucket is required for the s3 backend")
	}
	return nil
}
