package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mixerd", cfg.App.Name)
	assert.Equal(t, ":8065", cfg.HTTP.Addr)
	assert.Equal(t, 3, cfg.USB.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":9001\"\n"), 0o644))
	t.Setenv("MIXERD_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9001", cfg.HTTP.Addr)
	// 文件未覆盖的键保持默认值
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("MIXERD_HTTP_ADDR", ":9100")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTP.Addr)
}
