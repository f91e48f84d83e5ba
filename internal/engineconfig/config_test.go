package engineconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vvm.toml")

	cfg := DefaultConfig()
	cfg.Engine.BytePoolSize = 1024
	cfg.Native.Enabled = false
	cfg.Logging.Level = "debug"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, loaded.Engine.BytePoolSize)
	assert.False(t, loaded.Native.Enabled)
	assert.Equal(t, "debug", loaded.Logging.Level)
}

func TestLoadRejectsMalformedToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not valid toml [[["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
