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
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "en-us", cfg.Lang)
	assert.Equal(t, 10, cfg.Converse.TimeoutMinutes)
	assert.InDelta(t, 0.95, cfg.Padatious.HighConfidence, 1e-9)
	assert.InDelta(t, 0.8, cfg.Padatious.MediumConfidence, 1e-9)
	assert.InDelta(t, 0.5, cfg.Padatious.LowConfidence, 1e-9)
	assert.Equal(t, "ws://localhost:8181/core", cfg.BusURL())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aura.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lang: PT-BR
websocket:
  host: bus.internal
  port: 9000
  route: /core
  ssl: true
converse:
  timeout_minutes: 3
  request_timeout: 2s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pt-br", cfg.Lang, "lang codes are lower-cased")
	assert.Equal(t, "wss://bus.internal:9000/core", cfg.BusURL())
	assert.Equal(t, 3*time.Minute, cfg.ConverseTimeout())
	assert.Equal(t, 2*time.Second, cfg.Converse.RequestTimeout)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aura.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lang: en-us\n"), 0o644))

	t.Setenv("AURA_LANG", "de-de")
	t.Setenv("AURA_WS_HOST", "otherhost")
	t.Setenv("AURA_CONVERSE_TIMEOUT_MINUTES", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "de-de", cfg.Lang)
	assert.Equal(t, "otherhost", cfg.Websocket.Host)
	assert.Equal(t, 5, cfg.Converse.TimeoutMinutes)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aura.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lang: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeRepairsNonsense(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aura.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lang: "  "
converse:
  timeout_minutes: -2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "en-us", cfg.Lang)
	assert.Equal(t, 10, cfg.Converse.TimeoutMinutes)
}
