package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
service:
  name: courier-test
  log_level: debug
pool:
  workers: 2
  shutdown_timeout: 5s
state:
  path: ${COURIER_TEST_DIR}/courier.db
api:
  enabled: true
  listen: 127.0.0.1:0
  auth:
    api_key: ${COURIER_TEST_KEY}
sessions:
  - name: orders
    async_dispatch: true
    consumers:
      - id: c1
        sink: events
      - id: c2
  - name: audit
    dispatched_by_pool: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadInterpolatesAndDefaults(t *testing.T) {
	t.Setenv("COURIER_TEST_DIR", "/var/lib/courier")
	t.Setenv("COURIER_TEST_KEY", "s3cret")
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "courier-test", cfg.Service.Name)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "json", cfg.Service.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.Service.StatsFlushInterval)
	assert.Equal(t, 2, cfg.Pool.Workers)
	assert.Equal(t, 1000, cfg.Pool.MaxIterationsPerRun)
	assert.Equal(t, 5*time.Second, cfg.Pool.ShutdownTimeout)
	assert.Equal(t, "/var/lib/courier/courier.db", cfg.State.Path)
	assert.Equal(t, "s3cret", cfg.API.Auth.APIKey)
	assert.Equal(t, path, cfg.Path)
	assert.False(t, cfg.Verified)

	require.Len(t, cfg.Sessions, 2)
	assert.True(t, cfg.Sessions[0].AsyncDispatch)
	assert.Equal(t, "events", cfg.Sessions[0].Consumers[0].Sink)
	assert.Equal(t, "log", cfg.Sessions[0].Consumers[1].Sink)
	assert.True(t, cfg.Sessions[1].DispatchedByPool)
}

func TestLoadAcceptsDirectory(t *testing.T) {
	path := writeConfig(t, "sessions: []\n")

	cfg, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COURIER_POOL_WORKERS", "9")
	t.Setenv("COURIER_LOG_FORMAT", "text")
	t.Setenv("COURIER_POOL_SHUTDOWN_TIMEOUT", "90s")
	path := writeConfig(t, "pool:\n  workers: 2\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Pool.Workers)
	assert.Equal(t, "text", cfg.Service.LogFormat)
	assert.Equal(t, 90*time.Second, cfg.Pool.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Service.LogLevel, "unset variables keep the file value")
}

func TestLoadRejectsUnresolvedAPIKey(t *testing.T) {
	path := writeConfig(t, "api:\n  enabled: true\n  auth:\n    api_key: ${COURIER_TEST_UNSET_KEY}\n")

	_, err := Load(path)
	require.ErrorContains(t, err, "COURIER_TEST_UNSET_KEY")
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"bad log level", "service:\n  log_level: loud\n", "service.log_level"},
		{"bad log format", "service:\n  log_format: xml\n", "service.log_format"},
		{"negative workers", "pool:\n  workers: -1\n", "pool.workers"},
		{"api without key", "api:\n  enabled: true\n", "api.auth.api_key is required"},
		{"token without scopes", "api:\n  enabled: true\n  auth:\n    api_key: k\n    tokens:\n      - token: t\n", "api.auth.tokens[0].scopes"},
		{"unknown scope", "api:\n  enabled: true\n  auth:\n    api_key: k\n    tokens:\n      - token: t\n        scopes: [queues:rw]\n", "unknown scope \"queues:rw\""},
		{"unnamed session", "sessions:\n  - async_dispatch: true\n", "sessions[0].name"},
		{"duplicate session", "sessions:\n  - name: a\n  - name: a\n", "duplicate session name"},
		{"duplicate consumer", "sessions:\n  - name: a\n    consumers:\n      - id: c\n      - id: c\n", "duplicate consumer id"},
		{"bad sink", "sessions:\n  - name: a\n    consumers:\n      - id: c\n        sink: kafka\n", "sink must be one of"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "config file not found")
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "service: [\n"))
	require.ErrorContains(t, err, "parse")
}
