package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.MinDelay)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, uint(500), cfg.MessageStore.Capacity)
	assert.Equal(t, 10*time.Second, cfg.Connection.AckTimeout)
	assert.False(t, cfg.Reducer.RejectStale)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
connection:
  url: wss://rt.example.com/socket
reconnect:
  min_delay: 1s
  max_delay: 1m
  jitter: 0.2
reducer:
  reject_stale: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://rt.example.com/socket", cfg.Connection.URL)
	assert.Equal(t, time.Second, cfg.Reconnect.MinDelay)
	assert.Equal(t, time.Minute, cfg.Reconnect.MaxDelay)
	assert.InDelta(t, 0.2, cfg.Reconnect.Jitter, 0.0001)
	assert.True(t, cfg.Reducer.RejectStale)
	// untouched keys keep their defaults
	assert.Equal(t, 2*time.Second, cfg.Outbound.TypingInterval)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
rest:
  base_url: http://file.example.com
`)
	t.Setenv("BOOKINGSYNC_REST_URL", "http://env.example.com")
	t.Setenv("RECONNECT_MAX_DELAY", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env.example.com", cfg.Rest.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Reconnect.MaxDelay)
}

func TestLoadEnvJitterZeroOverridesFile(t *testing.T) {
	path := writeConfig(t, `
reconnect:
  jitter: 0.2
`)
	t.Setenv("RECONNECT_JITTER", "0")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Zero(t, cfg.Reconnect.Jitter)
}

func TestLoadUnsetJitterKeepsFile(t *testing.T) {
	path := writeConfig(t, `
reconnect:
  jitter: 0.2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.2, cfg.Reconnect.Jitter, 0.0001)
}

func TestLoadRejectsInvertedDelays(t *testing.T) {
	path := writeConfig(t, `
reconnect:
  min_delay: 10s
  max_delay: 1s
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDetermineConfigPathPrefersFlag(t *testing.T) {
	t.Setenv("BOOKINGSYNC_CONFIG", "/from/env.yaml")

	assert.Equal(t, "/from/flag.yaml", DetermineConfigPath("/from/flag.yaml"))
	assert.Equal(t, "/from/env.yaml", DetermineConfigPath(""))
}

func TestLoadSelfIDFromEnv(t *testing.T) {
	t.Setenv("BOOKINGSYNC_SELF_ID", "driver-9")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "driver-9", cfg.Connection.SelfID)
	assert.InDelta(t, 1.0, cfg.Tracing.SampleRatio, 0.0001)
}

func TestLoadRejectsSampleRatioOutOfRange(t *testing.T) {
	path := writeConfig(t, `
tracing:
  sample_ratio: 1.5
`)

	_, err := Load(path)
	assert.Error(t, err)
}
