package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://app.leadflow.io"]

database:
  url: "postgres://localhost/leadflow"

automation:
  enabled: true
  interval_seconds: 30
  batch_size: 250
  fired_once: true
  fired_ttl_hours: 48

ingest:
  rate_per_minute: 60
  match_function_url: "https://fn.leadflow.io/auto-match"

bedrock:
  enabled: true
  model_id: "anthropic.claude-3-sonnet-20240229-v1:0"

log:
  level: debug
  redact_pii: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.leadflow.io"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres://localhost/leadflow", cfg.Database.URL)

	assert.True(t, cfg.Automation.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Automation.Interval())
	assert.Equal(t, 250, cfg.Automation.BatchSize)
	assert.True(t, cfg.Automation.FiredOnce)
	assert.Equal(t, 48*time.Hour, cfg.Automation.FiredTTL())

	assert.Equal(t, 60, cfg.Ingest.RatePerMinute)
	assert.Equal(t, "https://fn.leadflow.io/auto-match", cfg.Ingest.MatchFunctionURL)
	assert.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", cfg.Bedrock.ModelID)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Redact())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, time.Minute, cfg.Automation.Interval())
	assert.Equal(t, 100, cfg.Automation.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Automation.LockTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.Automation.FiredTTL())
	assert.Equal(t, 100, cfg.Ingest.RatePerMinute)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, 15*time.Second, cfg.SMS.Timeout())
	assert.Equal(t, 20, cfg.Inbound.WaitSeconds)
	assert.Equal(t, 10, cfg.Inbound.MaxMessages)
	assert.Empty(t, cfg.Inbound.QueueURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Redact())
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://file"
ingest:
  hmac_secret: "file-secret"
`)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("ZAPIER_HMAC_SECRET", "env-secret")
	t.Setenv("INGEST_RATE_PER_MINUTE", "42")
	t.Setenv("AUTOMATION_ENABLED", "true")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("INBOUND_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/replies")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, "env-secret", cfg.Ingest.HMACSecret)
	assert.Equal(t, 42, cfg.Ingest.RatePerMinute)
	assert.True(t, cfg.Automation.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/replies", cfg.Inbound.QueueURL)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
