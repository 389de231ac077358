package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFillsEveryProvider(t *testing.T) {
	cfg := Default("/tmp/ws")

	assert.Equal(t, "/tmp/ws", cfg.Workspace)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.NotZero(t, cfg.Store.BusyTimeoutMillis)
	assert.InDelta(t, 4.0, cfg.Packs.CharsPerToken, 0.0001)
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Workspace)
	assert.Equal(t, Default(dir).Embedding, cfg.Embedding)
}

func TestSaveThenLoadRoundTripsOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := Default(dir)
	cfg.Embedding.Provider = "local"
	cfg.Coordinator.ConfidenceFloorL0 = 0.9

	require.NoError(t, Save(cfg))
	require.FileExists(t, filepath.Join(dir, ".librarian", "config.yaml"))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "local", got.Embedding.Provider)
	assert.InDelta(t, 0.9, got.Coordinator.ConfidenceFloorL0, 0.0001)
}

func TestSyncLoggingCacheWritesJSONMirror(t *testing.T) {
	dir := t.TempDir()
	cfg := Default(dir)
	cfg.Logging.Level = "debug"

	require.NoError(t, SyncLoggingCache(cfg))
	assert.FileExists(t, filepath.Join(dir, ".librarian", "config.json"))
}
