package node

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/stream"
	"fieldsync/pkg/config"
)

func writeTemplate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(defaultConfigTemplate), 0644))
	return path
}

func loadTemplate(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeTemplate(t))
	require.NoError(t, err, "template does not load")
	return cfg
}

func TestTemplateSettings(t *testing.T) {
	cfg := loadTemplate(t)

	d, err := DiscoverySettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, 11000, d.Port)
	assert.Equal(t, 3*time.Second, d.Window)

	opts, err := FieldOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, stream.WebSocket, opts.Stream.Transport)
	assert.False(t, opts.Unfiltered)
	assert.Equal(t, 10*time.Millisecond, opts.Filter.TargetBuffer)

	p, err := PublisherSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, 60, p.Rate)
	assert.Equal(t, time.Second, p.Interval)
	assert.Equal(t, 11002, p.VisPort)
}

func TestSettings_Invalid(t *testing.T) {
	cfg := loadTemplate(t)
	cfg.Stream.Transport = "carrier-pigeon"
	_, err := StreamSettings(cfg)
	assert.Error(t, err, "unknown transport")

	cfg = loadTemplate(t)
	cfg.Discovery.GroupV4 = "10.0.0.1"
	_, err = DiscoverySettings(cfg)
	assert.Error(t, err, "unicast group")

	cfg = loadTemplate(t)
	cfg.Stream.GroupV6 = "232.1.1.1"
	_, err = StreamSettings(cfg)
	assert.Error(t, err, "IPv4 group in the IPv6 slot")

	cfg = loadTemplate(t)
	cfg.Announce.Rate = -1
	_, err = PublisherSettings(cfg)
	assert.Error(t, err, "negative rate")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validate(writeTemplate(t)))

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[stream]\n  transport = \"smoke\"\n"), 0644))
	assert.Error(t, validate(bad))
}
