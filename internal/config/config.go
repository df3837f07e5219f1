// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultReadTimeoutSeconds is the default server read timeout in seconds
	DefaultReadTimeoutSeconds = 10
	// DefaultWriteTimeoutSeconds is the default server write timeout in seconds
	DefaultWriteTimeoutSeconds = 30
	// DefaultShutdownTimeoutSeconds is the default graceful shutdown timeout in seconds
	DefaultShutdownTimeoutSeconds = 30
)

type Config struct {
	Debug     bool            `yaml:"debug"` // Controls log level and format
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Instagram InstagramConfig `yaml:"instagram"`
	Twitter   TwitterConfig   `yaml:"twitter"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sweep     SweepConfig     `yaml:"sweep"`
	LinkCheck LinkCheckConfig `yaml:"link_check"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g. ":8080"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 30s
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"` // Hard cap on the model call
}

// WhatsAppConfig configures the socket-paired channel gateway.
type WhatsAppConfig struct {
	GatewayURL       string        `yaml:"gateway_url"`       // ws:// or wss:// endpoint
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`   // Fixed backoff between reconnects
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`     // Max wait for connected state before a send fails
	DestinationDelay time.Duration `yaml:"destination_delay"` // Pause between destination sends
}

// InstagramConfig configures the OAuth-token channel.
type InstagramConfig struct {
	AppID       string `yaml:"app_id"`
	AppSecret   string `yaml:"app_secret"`
	RedirectURL string `yaml:"redirect_url"`
	VerifyToken string `yaml:"verify_token"` // Webhook subscription verify token
	GraphURL    string `yaml:"graph_url"`    // Override for tests
	HourlyCap   int    `yaml:"hourly_cap"`   // Soft client-side guard
}

// TwitterConfig configures the OAuth1/OAuth2 channel.
type TwitterConfig struct {
	APIURL    string `yaml:"api_url"`    // Override for tests
	UploadURL string `yaml:"upload_url"` // Media upload endpoint override
}

// ChannelPolicy is the per-channel rate-limit policy evaluated against the
// ledger.
type ChannelPolicy struct {
	MaxPerDay   int           `yaml:"max_per_day"`  // Successes allowed in a rolling 24h window
	MinInterval time.Duration `yaml:"min_interval"` // Elapsed time required since last success
}

type RateLimitConfig struct {
	WhatsApp  ChannelPolicy `yaml:"whatsapp"`
	Instagram ChannelPolicy `yaml:"instagram"`
	Twitter   ChannelPolicy `yaml:"twitter"`
}

// SweepConfig configures the token lifecycle job.
type SweepConfig struct {
	LongLivedInterval  time.Duration `yaml:"long_lived_interval"`  // Daily by default
	ShortLivedInterval time.Duration `yaml:"short_lived_interval"` // Hours by default
	WarningDays        int           `yaml:"warning_days"`         // Flag expiring within this horizon
	RefreshMargin      time.Duration `yaml:"refresh_margin"`       // Refresh short-lived tokens inside this margin
	TenantDelay        time.Duration `yaml:"tenant_delay"`         // Pause between tenants during refresh
}

type LinkCheckConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Policy returns the rate-limit policy for a channel name.
func (r *RateLimitConfig) Policy(channel string) ChannelPolicy {
	switch channel {
	case "whatsapp":
		return r.WhatsApp
	case "instagram":
		return r.Instagram
	case "twitter":
		return r.Twitter
	default:
		return ChannelPolicy{}
	}
}

// Validate checks the server configuration and sets defaults.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeoutSeconds * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeoutSeconds * time.Second
	}
	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Postgres.Host == "" {
		return errors.New("postgres.host is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.RateLimit.Twitter.MaxPerDay < 0 {
		return fmt.Errorf("rate_limit.twitter.max_per_day must not be negative, got %d", c.RateLimit.Twitter.MaxPerDay)
	}
	if c.Sweep.WarningDays <= 0 {
		return fmt.Errorf("sweep.warning_days must be positive, got %d", c.Sweep.WarningDays)
	}
	return nil
}

// setDefaults sets default values for configuration fields
func setDefaults(cfg *Config) {
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 20 * time.Second
	}
	if cfg.WhatsApp.ReconnectDelay == 0 {
		cfg.WhatsApp.ReconnectDelay = 5 * time.Second
	}
	if cfg.WhatsApp.ReadyTimeout == 0 {
		cfg.WhatsApp.ReadyTimeout = 30 * time.Second
	}
	if cfg.WhatsApp.DestinationDelay == 0 {
		cfg.WhatsApp.DestinationDelay = 2 * time.Second
	}
	if cfg.Instagram.GraphURL == "" {
		cfg.Instagram.GraphURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.Instagram.HourlyCap == 0 {
		cfg.Instagram.HourlyCap = 25
	}
	if cfg.Twitter.APIURL == "" {
		cfg.Twitter.APIURL = "https://api.twitter.com"
	}
	if cfg.Twitter.UploadURL == "" {
		cfg.Twitter.UploadURL = "https://upload.twitter.com"
	}
	if cfg.RateLimit.WhatsApp.MaxPerDay == 0 {
		cfg.RateLimit.WhatsApp.MaxPerDay = 30
	}
	if cfg.RateLimit.WhatsApp.MinInterval == 0 {
		cfg.RateLimit.WhatsApp.MinInterval = 10 * time.Minute
	}
	if cfg.RateLimit.Instagram.MaxPerDay == 0 {
		cfg.RateLimit.Instagram.MaxPerDay = 25
	}
	if cfg.RateLimit.Instagram.MinInterval == 0 {
		cfg.RateLimit.Instagram.MinInterval = 15 * time.Minute
	}
	if cfg.RateLimit.Twitter.MaxPerDay == 0 {
		// Stay under the platform's 50/day cap with a buffer
		cfg.RateLimit.Twitter.MaxPerDay = 48
	}
	if cfg.RateLimit.Twitter.MinInterval == 0 {
		// Spread the daily cap evenly across 24 hours
		cfg.RateLimit.Twitter.MinInterval = 24 * time.Hour / time.Duration(cfg.RateLimit.Twitter.MaxPerDay)
	}
	if cfg.Sweep.LongLivedInterval == 0 {
		cfg.Sweep.LongLivedInterval = 24 * time.Hour
	}
	if cfg.Sweep.ShortLivedInterval == 0 {
		cfg.Sweep.ShortLivedInterval = 6 * time.Hour
	}
	if cfg.Sweep.WarningDays == 0 {
		cfg.Sweep.WarningDays = 7
	}
	if cfg.Sweep.RefreshMargin == 0 {
		cfg.Sweep.RefreshMargin = 24 * time.Hour
	}
	if cfg.Sweep.TenantDelay == 0 {
		cfg.Sweep.TenantDelay = time.Second
	}
	if cfg.LinkCheck.Timeout == 0 {
		cfg.LinkCheck.Timeout = 10 * time.Second
	}
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := os.Getenv("IG_APP_SECRET"); v != "" {
		cfg.Instagram.AppSecret = v
	}
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("server config validation: %w", err)
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses a string value as a boolean.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
