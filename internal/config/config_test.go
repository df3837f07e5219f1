package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offercast/offercast/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
postgres:
  host: localhost
  port: "5432"
  user: offercast
  dbname: offercast
redis:
  url: localhost:6379
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 5*time.Second, cfg.WhatsApp.ReconnectDelay)
	assert.Equal(t, "https://api.twitter.com", cfg.Twitter.APIURL)
	assert.Equal(t, 7, cfg.Sweep.WarningDays)
	assert.Equal(t, 24*time.Hour, cfg.Sweep.LongLivedInterval)
}

func TestLoad_RateLimitDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.RateLimit.WhatsApp.MaxPerDay)
	assert.Equal(t, 25, cfg.RateLimit.Instagram.MaxPerDay)
	assert.Equal(t, 48, cfg.RateLimit.Twitter.MaxPerDay,
		"the default stays under the platform's 50 per day")
	assert.Equal(t, 24*time.Hour/48, cfg.RateLimit.Twitter.MinInterval,
		"the default spreads the daily cap evenly")
}

func TestLoad_ExplicitValuesKept(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig+`
rate_limit:
  twitter:
    max_per_day: 10
    min_interval: 1h
server:
  address: ":9000"
`))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.RateLimit.Twitter.MaxPerDay)
	assert.Equal(t, time.Hour, cfg.RateLimit.Twitter.MinInterval)
	assert.Equal(t, ":9000", cfg.Server.Address)
}

func TestLoad_MissingPostgresHost(t *testing.T) {
	_, err := config.Load(writeConfig(t, `
redis:
  url: localhost:6379
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.host")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "env-secret")
	t.Setenv("APP_DEBUG", "true")
	t.Setenv("SERVER_PORT", "9999")

	cfg, err := config.Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Postgres.Password)
	assert.True(t, cfg.Debug)
	assert.Equal(t, ":9999", cfg.Server.Address)
}

func TestPolicy_Lookup(t *testing.T) {
	rl := config.RateLimitConfig{
		Twitter: config.ChannelPolicy{MaxPerDay: 48},
	}
	assert.Equal(t, 48, rl.Policy("twitter").MaxPerDay)
	assert.Zero(t, rl.Policy("unknown").MaxPerDay)
}
