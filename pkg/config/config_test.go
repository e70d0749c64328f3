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
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Engine.FuzzyCacheSize)
	assert.Equal(t, 50, cfg.Engine.FuzzyMaxResults)
	assert.Equal(t, 3.0, cfg.Engine.FuzzyMinScore)
	assert.Equal(t, 32, cfg.Engine.ResultCacheSize)
	assert.Equal(t, 600, cfg.Engine.MaxHighlightBlocks)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
engine:
  batchSize: 17
  tickInterval: 5ms
  fuzzyCacheSize: 8
  fuzzyMaxResults: 10
  resultCacheSize: 4
corpora:
  - name: libc
    file: testdata/libc.yaml
  - name: posix
    postgres: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("BS_SERVER_PORT", "7000")
	t.Setenv("BS_REDIS_ADDR", "cache:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 17, cfg.Engine.BatchSize)
	assert.Equal(t, 5*time.Millisecond, cfg.Engine.TickInterval)
	assert.Equal(t, 600, cfg.Engine.MaxHighlightBlocks)
	require.Len(t, cfg.Corpora, 2)
	assert.True(t, cfg.Corpora[1].Postgres)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Engine.BatchSize = 0
	cfg.Corpora = []CorpusConfig{
		{Name: "a", File: "a.yaml", Postgres: true},
		{Name: "b"},
		{Name: "b", File: "b.yaml"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batchSize")
	assert.Contains(t, err.Error(), `corpus "a" needs exactly one`)
	assert.Contains(t, err.Error(), `corpus "b" declared twice`)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
