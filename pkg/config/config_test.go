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
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[discovery]
  port = 12000
  group_v6 = "ff15::1234"
  window = "5s"
  emit_on_new = true

[stream]
  transport = "multicast"
  data_port = 12001

[filter]
  enabled = false
  target_buffer = "20ms"

[node]
  host = "field-a"
  db_path = "/tmp/test.db"
  rpc_socket = "/tmp/test.sock"
  log_level = "debug"
`))
	require.NoError(t, err)

	assert.Equal(t, 12000, cfg.Discovery.Port)
	assert.Equal(t, "ff15::1234", cfg.Discovery.GroupV6)
	assert.True(t, cfg.Discovery.EmitOnNew)
	assert.Equal(t, "multicast", cfg.Stream.Transport)
	assert.False(t, cfg.Filter.Enabled)
	assert.Equal(t, "field-a", cfg.Node.Host)
	assert.Equal(t, "debug", cfg.Node.LogLevel)

	d, err := cfg.Filter.ParseTargetBuffer()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, d)
}

func TestLoad_Defaults(t *testing.T) {
	// Minimal config, all defaults should apply
	cfg, err := Load(writeConfig(t, `
[node]
  log_level = "warn"
`))
	require.NoError(t, err)

	assert.Equal(t, 11000, cfg.Discovery.Port)
	assert.Equal(t, "3s", cfg.Discovery.Window)
	assert.Equal(t, "websocket", cfg.Stream.Transport)
	assert.Equal(t, 11001, cfg.Stream.DataPort)
	assert.True(t, cfg.Filter.Enabled)
	assert.Equal(t, "1s", cfg.Filter.Retention)
	assert.Equal(t, "10s", cfg.Filter.HealthPeriod)
	assert.Equal(t, 60, cfg.Node.TickRate)
	assert.Equal(t, "warn", cfg.Node.LogLevel)
	assert.Equal(t, 60, cfg.Announce.Rate)
	assert.Equal(t, "1s", cfg.Announce.Interval)
}

func TestLoad_NonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	assert.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid [[[ toml"))
	assert.Error(t, err)
}

func TestParseWindow(t *testing.T) {
	cfg := &DiscoveryConfig{Window: "10s"}
	d, err := cfg.ParseWindow()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
}

func TestParseDurations_Default(t *testing.T) {
	f := &FilterConfig{}

	retention, err := f.ParseRetention()
	require.NoError(t, err)
	assert.Equal(t, time.Second, retention)

	period, err := f.ParseHealthPeriod()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, period)

	s := &StreamConfig{}
	timeout, err := s.ParseTimeout()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, timeout)
}

func TestParseStaleThreshold_Invalid(t *testing.T) {
	cfg := &NodeConfig{StaleThreshold: "soon"}
	_, err := cfg.ParseStaleThreshold()
	assert.Error(t, err)
}
