package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv replaces the environment seen by Load for one test
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	orig := lookupEnv
	lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = orig })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docsearch.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, filepath.Join("~", ".docsearch", "docsearch.db"), cfg.Store.Path)
	assert.Equal(t, "openai:text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 100, cfg.Embedding.BatchMaxItems)
	assert.Equal(t, 50000, cfg.Embedding.BatchMaxChars)
	assert.Equal(t, 2, cfg.Search.OverfetchFactor)
	assert.Equal(t, 10, cfg.Search.VectorMultiplier)
	assert.Equal(t, 1.0, cfg.Search.WeightVector)
	assert.Equal(t, 1.0, cfg.Search.WeightFTS)
	assert.Equal(t, 60.0, cfg.Search.RRFConstant)
	assert.Equal(t, 2, cfg.Assembly.OverfetchFactor)
	assert.Equal(t, 1, cfg.Assembly.PrecedingSiblings)
	assert.Equal(t, 2, cfg.Assembly.SubsequentSiblings)
	assert.Equal(t, 3, cfg.Assembly.ChildLimit)
	assert.True(t, cfg.Assembly.ExpandParent)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, FormatConsole, cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	withEnv(t, nil)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	withEnv(t, nil)
	path := writeConfig(t, `
[store]
path = "/var/lib/docsearch/docs.db"

[embedding]
model = "ollama:nomic-embed-text"
batch_max_items = 20

[search]
weight_vector = 0.5

[log]
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/docsearch/docs.db", cfg.Store.Path)
	assert.Equal(t, "ollama:nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 20, cfg.Embedding.BatchMaxItems)
	assert.Equal(t, 50000, cfg.Embedding.BatchMaxChars, "unset keys keep defaults")
	assert.Equal(t, 0.5, cfg.Search.WeightVector)
	assert.Equal(t, 1.0, cfg.Search.WeightFTS)
	assert.Equal(t, FormatJSON, cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MalformedFile(t *testing.T) {
	withEnv(t, nil)
	path := writeConfig(t, "[store\npath = ")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	withEnv(t, map[string]string{
		EnvDBPath:             ":memory:",
		EnvEmbeddingModel:     "local:local-hash",
		EnvEmbeddingsDisabled: "true",
		EnvLogLevel:           "debug",
		EnvLogFormat:          "json",
		EnvSearchWeightVec:    "0.25",
		EnvSearchWeightFTS:    "2",
	})
	path := writeConfig(t, "[store]\npath = \"/tmp/file.db\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, MemoryPath, cfg.Store.Path, "env wins over file")
	assert.Equal(t, "local:local-hash", cfg.Embedding.Model)
	assert.True(t, cfg.Embedding.Disabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, FormatJSON, cfg.Log.Format)
	assert.Equal(t, 0.25, cfg.Search.WeightVector)
	assert.Equal(t, 2.0, cfg.Search.WeightFTS)
}

func TestLoad_BadEnvValues(t *testing.T) {
	tests := map[string]map[string]string{
		"disabled": {EnvEmbeddingsDisabled: "sometimes"},
		"weight":   {EnvSearchWeightVec: "heavy"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			withEnv(t, env)
			_, err := Load("")
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty path", func(c *Config) { c.Store.Path = "  " }},
		{"negative busy timeout", func(c *Config) { c.Store.BusyTimeoutMS = -1 }},
		{"zero batch items", func(c *Config) { c.Embedding.BatchMaxItems = 0 }},
		{"zero batch chars", func(c *Config) { c.Embedding.BatchMaxChars = 0 }},
		{"zero overfetch", func(c *Config) { c.Search.OverfetchFactor = 0 }},
		{"zero vector multiplier", func(c *Config) { c.Search.VectorMultiplier = 0 }},
		{"negative weight", func(c *Config) { c.Search.WeightFTS = -0.1 }},
		{"both weights zero", func(c *Config) {
			c.Search.WeightVector = 0
			c.Search.WeightFTS = 0
		}},
		{"zero rrf k", func(c *Config) { c.Search.RRFConstant = 0 }},
		{"zero assembly overfetch", func(c *Config) { c.Assembly.OverfetchFactor = 0 }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	t.Run("one weight zero is fine", func(t *testing.T) {
		cfg := Default()
		cfg.Search.WeightVector = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestDatabasePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := Default()
	assert.Equal(t, filepath.Join(home, ".docsearch", "docsearch.db"), cfg.DatabasePath())

	cfg.Store.Path = MemoryPath
	assert.Equal(t, MemoryPath, cfg.DatabasePath())

	cfg.Store.Path = "/abs/docs.db"
	assert.Equal(t, "/abs/docs.db", cfg.DatabasePath())
}

func TestDurations(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "5s", cfg.Store.BusyTimeout().String())
	assert.Equal(t, "30s", cfg.Embedding.Timeout().String())
	assert.Equal(t, "5m0s", cfg.Search.CacheTTL().String())
}
