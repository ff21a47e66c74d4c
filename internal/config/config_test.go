package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	require.Equal(t, 4, cfg.Poller.Workers)
	require.Equal(t, 30*time.Second, cfg.Poller.Interval)
	require.Equal(t, 120, cfg.Poller.MaxPolls)
	require.Equal(t, 5, cfg.Poller.FailureWindow)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, 1000, cfg.Engine.DownloadLimit)
	require.Equal(t, 5*time.Minute, cfg.Providers.BrightData.DownloadTimeout)
	require.False(t, cfg.Providers.BrightData.Enabled())
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
providers:
  brightdata:
    token: bd-secret
  apify:
    token: apify-secret
    request_timeout: 10s
poller:
  workers: 8
  max_polls: 40
  failure_window: 3
storage:
  backend: gcs
  bucket: raw-snapshots
database:
  dsn: postgres://ingest@localhost:5432/ingest
  fallback_enabled: true
pubsub:
  project_id: my-project
  topic_name: crawl-lifecycle
platforms:
  - name: facebook
    provider: brightdata
    dataset_id: gd_custom123
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Providers.BrightData.Enabled())
	require.Equal(t, 10*time.Second, cfg.Providers.Apify.RequestTimeout)
	require.Equal(t, 8, cfg.Poller.Workers)
	require.Equal(t, 40, cfg.Poller.MaxPolls)
	require.Equal(t, 3, cfg.Poller.FailureWindow)
	require.Equal(t, "raw-snapshots", cfg.Storage.Bucket)
	require.Equal(t, "postgres://ingest@localhost:5432/ingest", cfg.Database.DSN)
	require.True(t, cfg.Database.FallbackEnabled)
	require.Equal(t, "crawl-lifecycle", cfg.PubSub.TopicName)

	platforms := cfg.PlatformConfigs()
	require.Len(t, platforms, 1)
	require.Equal(t, "gd_custom123", platforms[0].DatasetID)
}

func TestPlatformConfigsDefaultSet(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	platforms := cfg.PlatformConfigs()
	require.Len(t, platforms, 3)
}

func TestValidateRejectsGCSWithoutBucket(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: gcs
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "storage.bucket")
}

func TestValidateRejectsAuthWithoutKey(t *testing.T) {
	path := writeConfig(t, `
auth:
  enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth.api_key")
}

func TestValidateRejectsBadPlatform(t *testing.T) {
	path := writeConfig(t, `
platforms:
  - name: facebook
    provider: smoke-signals
    dataset_id: x
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown provider")
}
