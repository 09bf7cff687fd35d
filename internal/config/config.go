package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	CookieName   string        `yaml:"cookie_name"`
	CookieDomain string        `yaml:"cookie_domain"`
	SecureCookie bool          `yaml:"secure_cookie"`
	TTL          time.Duration `yaml:"ttl"`
}

// PayPalConfig holds explicit values for the gateway. Any field left empty is
// resolved from the environment with the cascading fallback in paypal.go.
type PayPalConfig struct {
	Mode                string        `yaml:"mode"` // sandbox|live; NOT derived from deployment env
	LiveClientID        string        `yaml:"live_client_id"`
	LiveClientSecret    string        `yaml:"live_client_secret"`
	SandboxClientID     string        `yaml:"sandbox_client_id"`
	SandboxClientSecret string        `yaml:"sandbox_client_secret"`
	LiveWebhookID       string        `yaml:"live_webhook_id"`
	SandboxWebhookID    string        `yaml:"sandbox_webhook_id"`
	Timeout             time.Duration `yaml:"timeout"`
}

// TelegramConfig drives the ops notifier. OpsChatID is the channel that
// receives subscription-change announcements.
type TelegramConfig struct {
	Token     string `yaml:"token"`
	Enabled   bool   `yaml:"enabled"`
	OpsChatID int64  `yaml:"ops_chat_id"`
}

type WorkersConfig struct {
	SyncInterval   time.Duration `yaml:"sync_interval"`
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
	PruneInterval  time.Duration `yaml:"prune_interval"`
	EventRetention time.Duration `yaml:"event_retention"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	PayPal   PayPalConfig   `yaml:"paypal"`
	Telegram TelegramConfig `yaml:"telegram"`
	Workers  WorkersConfig  `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(configPath string, dev bool) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "session"
	}
	if cfg.Auth.TTL <= 0 {
		cfg.Auth.TTL = 24 * time.Hour
	}
	if cfg.PayPal.Timeout <= 0 {
		cfg.PayPal.Timeout = 15 * time.Second
	}
	if cfg.Workers.SyncInterval <= 0 {
		cfg.Workers.SyncInterval = time.Hour
	}
	if cfg.Workers.ExpiryInterval <= 0 {
		cfg.Workers.ExpiryInterval = time.Hour
	}
	if cfg.Workers.PruneInterval <= 0 {
		cfg.Workers.PruneInterval = 6 * time.Hour
	}
	if cfg.Workers.EventRetention <= 0 {
		cfg.Workers.EventRetention = 30 * 24 * time.Hour
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
