package config

import (
	"log/slog"
	"time"
)

type YamlPostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type YamlRedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Enabled  bool          `yaml:"enabled"`
	TTL      time.Duration `yaml:"ttl"`
}

type YamlIdentityConfig struct {
	BaseURL string `yaml:"base_url"`
}

type YamlDispatchConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	StoreMessages bool          `yaml:"store_messages"`
}

type YamlClientsConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type YamlPubSubConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ProjectID      string `yaml:"project_id"`
	SubscriptionID string `yaml:"subscription_id"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ListenAddr     string             `yaml:"listen_addr"`
	PostgresConfig YamlPostgresConfig `yaml:"postgres"`
	RedisConfig    YamlRedisConfig    `yaml:"redis"`
	IdentityConfig YamlIdentityConfig `yaml:"identity"`
	DispatchConfig YamlDispatchConfig `yaml:"dispatch"`
	ClientsConfig  YamlClientsConfig  `yaml:"clients"`
	PubSubConfig   YamlPubSubConfig   `yaml:"pubsub"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ListenAddr: baseCfg.ListenAddr,
		Postgres: PostgresConfig{
			DSN: baseCfg.PostgresConfig.DSN,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      baseCfg.RedisConfig.TTL,
		},
		Identity: IdentityConfig{
			BaseURL: baseCfg.IdentityConfig.BaseURL,
		},
		Dispatch: DispatchConfig{
			Timeout:       baseCfg.DispatchConfig.Timeout,
			StoreMessages: baseCfg.DispatchConfig.StoreMessages,
		},
		Clients: ClientsConfig{
			RefreshInterval: baseCfg.ClientsConfig.RefreshInterval,
		},
		PubSub: PubSubConfig{
			Enabled:        baseCfg.PubSubConfig.Enabled,
			ProjectID:      baseCfg.PubSubConfig.ProjectID,
			SubscriptionID: baseCfg.PubSubConfig.SubscriptionID,
		},
	}

	logger.Debug("YAML config mapping complete",
		"listen_addr", cfg.ListenAddr,
		"redis_enabled", cfg.Redis.Enabled,
		"pubsub_enabled", cfg.PubSub.Enabled,
	)

	return cfg, nil
}
