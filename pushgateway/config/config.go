// Package config holds the gateway's configuration pipeline: an embedded
// yaml file is parsed into YamlConfig, mapped to a validated Config, and
// finally overridden from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type PostgresConfig struct {
	DSN string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type IdentityConfig struct {
	BaseURL string
}

type DispatchConfig struct {
	// Timeout bounds the barrier wait of one send call; a lost provider
	// completion must not block the caller forever.
	Timeout       time.Duration
	StoreMessages bool
}

type ClientsConfig struct {
	RefreshInterval time.Duration
}

type PubSubConfig struct {
	Enabled        bool
	ProjectID      string
	SubscriptionID string
}

// Config defines the single, authoritative configuration.
type Config struct {
	ListenAddr string
	Postgres   PostgresConfig
	Redis      RedisConfig
	Identity   IdentityConfig
	Dispatch   DispatchConfig
	Clients    ClientsConfig
	PubSub     PubSubConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("POSTGRES_DSN"); val != "" {
		logger.Debug("Overriding config value", "key", "POSTGRES_DSN", "source", "env")
		cfg.Postgres.DSN = val
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_SERVICE_URL", "source", "env")
		cfg.Identity.BaseURL = val
	}

	// Redis overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Dispatch overrides
	if val := os.Getenv("DISPATCH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			logger.Debug("Overriding config value", "key", "DISPATCH_TIMEOUT", "source", "env")
			cfg.Dispatch.Timeout = d
		}
	}
	if val := os.Getenv("STORE_MESSAGES"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Dispatch.StoreMessages = enabled
	}

	// Pub/Sub overrides
	if val := os.Getenv("PUBSUB_PROJECT_ID"); val != "" {
		cfg.PubSub.ProjectID = val
	}
	if val := os.Getenv("PUBSUB_SUBSCRIPTION_ID"); val != "" {
		cfg.PubSub.SubscriptionID = val
		cfg.PubSub.Enabled = true
	}
	if val := os.Getenv("PUBSUB_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.PubSub.Enabled = enabled
	}

	// Final validation
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required (set via YAML or POSTGRES_DSN env var)")
	}
	if cfg.Identity.BaseURL == "" {
		return nil, fmt.Errorf("identity base url is required (set via YAML or IDENTITY_SERVICE_URL env var)")
	}
	if cfg.PubSub.Enabled && (cfg.PubSub.ProjectID == "" || cfg.PubSub.SubscriptionID == "") {
		return nil, fmt.Errorf("pubsub ingestion enabled but project_id or subscription_id missing")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Dispatch.Timeout <= 0 {
		cfg.Dispatch.Timeout = 30 * time.Second
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 30 * time.Minute
	}
	if cfg.Clients.RefreshInterval <= 0 {
		cfg.Clients.RefreshInterval = 5 * time.Minute
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
