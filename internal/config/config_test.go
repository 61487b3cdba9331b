package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recalld.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "~/.local/share/recalld/vectorstore", cfg.VectorStore.Path)
	assert.Equal(t, "fastembed", cfg.Embedding.Provider)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.Embedding.Model)
	assert.Equal(t, 0.90, cfg.Match.Threshold)
	assert.Equal(t, 5, cfg.Match.Neighbors)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
datasets:
  incidents: /data/incidents.csv
  problems: /data/problems.csv
embedding:
  provider: tei
  base_url: http://tei:8080
match:
  threshold: 0.8
  neighbors: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/data/incidents.csv", cfg.Datasets.Incidents)
	assert.Equal(t, "/data/problems.csv", cfg.Datasets.Problems)
	assert.Equal(t, "tei", cfg.Embedding.Provider)
	assert.Equal(t, "http://tei:8080", cfg.Embedding.BaseURL)
	assert.Equal(t, 0.8, cfg.Match.Threshold)
	assert.Equal(t, 10, cfg.Match.Neighbors)

	// Defaults still fill unset fields.
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.Embedding.Model)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
match:
  threshold: 0.8
`)

	t.Setenv("RECALLD_LOGGING_LEVEL", "warn")
	t.Setenv("RECALLD_MATCH_THRESHOLD", "0.75")
	t.Setenv("RECALLD_DATASETS_INCIDENTS", "/env/incidents.csv")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 0.75, cfg.Match.Threshold)
	assert.Equal(t, "/env/incidents.csv", cfg.Datasets.Incidents)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "logging: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad format", content: "logging:\n  format: xml\n"},
		{name: "bad provider", content: "embedding:\n  provider: openai\n"},
		{name: "threshold above one", content: "match:\n  threshold: 1.5\n"},
		{name: "negative neighbors", content: "match:\n  neighbors: -3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}
