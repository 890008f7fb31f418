package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "search-metrics", cfg.Queue.Name)
	assert.Equal(t, "search-metric", cfg.Queue.JobName)
	assert.Equal(t, "search-metrics", cfg.Elasticsearch.IndexPrefix)
	assert.Equal(t, "mymaster", cfg.Redis.MasterName)
	assert.Equal(t, 10, cfg.Analytics.DefaultLimit)
	assert.False(t, cfg.Server.TrustProxy)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
server:
  port: 4000
queue:
  concurrency: 8
  maxAttempts: 3
  initialDelay: 250ms
elasticsearch:
  indexPrefix: metrics
redis:
  sentinels: ["s1:26379", "s2:26379"]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("SG_SERVER_PORT", "5000")
	t.Setenv("SG_KAFKA_DEAD_LETTER_TOPIC", "search-metrics-dlq")
	t.Setenv("SG_SERVER_TRUST_PROXY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port, "env overrides yaml")
	assert.True(t, cfg.Server.TrustProxy)
	assert.Equal(t, 8, cfg.Queue.Concurrency)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.InitialDelay)
	assert.Equal(t, "metrics", cfg.Elasticsearch.IndexPrefix)
	assert.Equal(t, []string{"s1:26379", "s2:26379"}, cfg.Redis.Sentinels)
	assert.Equal(t, "search-metrics-dlq", cfg.Kafka.DeadLetterTopic)
	assert.Equal(t, 30*time.Second, cfg.Queue.LeaseDuration, "unset fields keep defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Queue.Concurrency = 0 }},
		{"zero attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }},
		{"lease shorter than write", func(c *Config) { c.Queue.LeaseDuration = c.Queue.WriteTimeout }},
		{"no addresses", func(c *Config) { c.Elasticsearch.Addresses = nil }},
		{"no prefix", func(c *Config) { c.Elasticsearch.IndexPrefix = "" }},
		{"limit above max", func(c *Config) { c.Analytics.DefaultLimit = c.Analytics.MaxLimit + 1 }},
		{"snapshot without postgres", func(c *Config) { c.Snapshot.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
