package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	yamlContent := `
listen_addr: ":8081"
postgres:
  dsn: "host=db user=gw dbname=gw"
redis:
  enabled: true
  addr: "redis:6379"
  db: 2
  ttl: 15m
identity:
  base_url: "http://identity:3000"
dispatch:
  timeout: 20s
  store_messages: true
clients:
  refresh_interval: 2m
pubsub:
  enabled: true
  project_id: "my-project"
  subscription_id: "push-requests"
`

	var yamlCfg config.YamlConfig
	require.NoError(t, yaml.Unmarshal([]byte(yamlContent), &yamlCfg))

	cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.ListenAddr)
	assert.Equal(t, "host=db user=gw dbname=gw", cfg.Postgres.DSN)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 15*time.Minute, cfg.Redis.TTL)

	assert.Equal(t, "http://identity:3000", cfg.Identity.BaseURL)
	assert.Equal(t, 20*time.Second, cfg.Dispatch.Timeout)
	assert.True(t, cfg.Dispatch.StoreMessages)
	assert.Equal(t, 2*time.Minute, cfg.Clients.RefreshInterval)

	assert.True(t, cfg.PubSub.Enabled)
	assert.Equal(t, "my-project", cfg.PubSub.ProjectID)
	assert.Equal(t, "push-requests", cfg.PubSub.SubscriptionID)
}
