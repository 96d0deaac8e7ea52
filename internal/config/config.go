package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the publishing pipeline.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Mailchimp MailchimpConfig `yaml:"mailchimp"`
	Graph     GraphConfig     `yaml:"graph"`
	LinkedIn  LinkedInConfig  `yaml:"linkedin"`
	Twitter   TwitterConfig   `yaml:"twitter"`
	Publish   PublishConfig   `yaml:"publish"`
	Sync      SyncConfig      `yaml:"sync"`
}

// ServerConfig holds the ops HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis settings used for the token cache and the
// pass lock. Redis is optional; when Addr is empty both degrade gracefully.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MailchimpConfig holds Mailchimp Marketing API configuration.
type MailchimpConfig struct {
	BaseURL        string `yaml:"base_url"`
	ListID         string `yaml:"list_id"`
	FromName       string `yaml:"from_name"`
	ReplyTo        string `yaml:"reply_to"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration.
func (c MailchimpConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GraphConfig holds Meta Graph API configuration shared by the Facebook
// and Instagram dispatchers.
type GraphConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIVersion     string `yaml:"api_version"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration.
func (c GraphConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LinkedInConfig holds LinkedIn API configuration.
type LinkedInConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration.
func (c LinkedInConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TwitterConfig holds X/Twitter v2 API configuration.
type TwitterConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration.
func (c TwitterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PublishConfig controls the publish pass.
type PublishConfig struct {
	BatchSize          int    `yaml:"batch_size"`
	ItemDelayMillis    int    `yaml:"item_delay_millis"`
	CronSchedule       string `yaml:"cron_schedule"`
	CallTimeoutSeconds int    `yaml:"call_timeout_seconds"`
}

// ItemDelay is the fixed delay between items on the same platform,
// the simplest way to stay under typical per-minute API call limits.
func (c PublishConfig) ItemDelay() time.Duration {
	return time.Duration(c.ItemDelayMillis) * time.Millisecond
}

// CallTimeout bounds one publish round-trip so an unresponsive platform
// cannot stall the whole batch.
func (c PublishConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// SyncConfig controls the metrics sync pass.
type SyncConfig struct {
	BatchSize          int    `yaml:"batch_size"`
	MatchWindow        int    `yaml:"match_window"`
	CronSchedule       string `yaml:"cron_schedule"`
	CallTimeoutSeconds int    `yaml:"call_timeout_seconds"`
}

// CallTimeout bounds one metrics fetch round-trip.
func (c SyncConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Mailchimp.BaseURL == "" {
		cfg.Mailchimp.BaseURL = "https://us1.api.mailchimp.com/3.0"
	}
	if cfg.Mailchimp.TimeoutSeconds == 0 {
		cfg.Mailchimp.TimeoutSeconds = 30
	}
	if cfg.Graph.BaseURL == "" {
		cfg.Graph.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Graph.APIVersion == "" {
		cfg.Graph.APIVersion = "v21.0"
	}
	if cfg.Graph.TimeoutSeconds == 0 {
		cfg.Graph.TimeoutSeconds = 30
	}
	if cfg.LinkedIn.BaseURL == "" {
		cfg.LinkedIn.BaseURL = "https://api.linkedin.com"
	}
	if cfg.LinkedIn.TimeoutSeconds == 0 {
		cfg.LinkedIn.TimeoutSeconds = 30
	}
	if cfg.Twitter.BaseURL == "" {
		cfg.Twitter.BaseURL = "https://api.twitter.com"
	}
	if cfg.Twitter.TimeoutSeconds == 0 {
		cfg.Twitter.TimeoutSeconds = 30
	}
	if cfg.Publish.BatchSize == 0 {
		cfg.Publish.BatchSize = 25
	}
	if cfg.Publish.ItemDelayMillis == 0 {
		cfg.Publish.ItemDelayMillis = 1500
	}
	if cfg.Publish.CronSchedule == "" {
		cfg.Publish.CronSchedule = "@every 5m"
	}
	if cfg.Publish.CallTimeoutSeconds == 0 {
		cfg.Publish.CallTimeoutSeconds = 10
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 50
	}
	if cfg.Sync.MatchWindow == 0 {
		cfg.Sync.MatchWindow = 20
	}
	if cfg.Sync.CronSchedule == "" {
		cfg.Sync.CronSchedule = "@every 6h"
	}
	if cfg.Sync.CallTimeoutSeconds == 0 {
		cfg.Sync.CallTimeoutSeconds = 20
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		// Env-only deployments carry no config file.
		cfg = &Config{}
		applyDefaults(cfg)
	} else if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if baseURL := os.Getenv("MAILCHIMP_BASE_URL"); baseURL != "" {
		cfg.Mailchimp.BaseURL = baseURL
	}
	if listID := os.Getenv("MAILCHIMP_LIST_ID"); listID != "" {
		cfg.Mailchimp.ListID = listID
	}
	if baseURL := os.Getenv("GRAPH_BASE_URL"); baseURL != "" {
		cfg.Graph.BaseURL = baseURL
	}
	if baseURL := os.Getenv("LINKEDIN_BASE_URL"); baseURL != "" {
		cfg.LinkedIn.BaseURL = baseURL
	}
	if baseURL := os.Getenv("TWITTER_BASE_URL"); baseURL != "" {
		cfg.Twitter.BaseURL = baseURL
	}

	return cfg, nil
}
