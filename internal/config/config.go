// Package config provides configuration loading for recalld.
package config

import (
	"fmt"

	"github.com/fyrsmithlabs/recalld/internal/dedup"
)

// Config is the root configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Datasets    DatasetsConfig    `koanf:"datasets"`
	VectorStore VectorStoreConfig `koanf:"vector_store"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Match       MatchConfig       `koanf:"match"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is the encoder: json or console.
	Format string `koanf:"format"`
}

// DatasetsConfig points at the consolidated CSV datasets.
type DatasetsConfig struct {
	// Incidents is the consolidated incidents CSV
	// (Incident_Report, Root_Cause columns).
	Incidents string `koanf:"incidents"`
	// Problems is the problems CSV
	// (Problems_Identified, Solution_Steps columns). Optional.
	Problems string `koanf:"problems"`
}

// VectorStoreConfig controls the embedded vector database.
type VectorStoreConfig struct {
	// Path is the persistent storage directory.
	Path string `koanf:"path"`
	// Compress enables gzip compression of stored data.
	Compress bool `koanf:"compress"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "fastembed" or "tei".
	Provider string `koanf:"provider"`
	// Model is the embedding model identifier. It must be the same model
	// when building a collection and when querying it.
	Model string `koanf:"model"`
	// BaseURL is the TEI server URL (TEI provider only).
	BaseURL string `koanf:"base_url"`
	// CacheDir caches downloaded model files (FastEmbed provider only).
	CacheDir string `koanf:"cache_dir"`
}

// MatchConfig is the duplicate-match policy.
type MatchConfig struct {
	// Threshold is the minimum similarity for a match, in [0,1].
	Threshold float64 `koanf:"threshold"`
	// Neighbors is the k for vector queries.
	Neighbors int `koanf:"neighbors"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.VectorStore.Path == "" {
		c.VectorStore.Path = "~/.local/share/recalld/vectorstore"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "fastembed"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:8080"
	}
	if c.Match.Threshold == 0 {
		c.Match.Threshold = dedup.DefaultThreshold
	}
	if c.Match.Neighbors == 0 {
		c.Match.Neighbors = dedup.DefaultNeighbors
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	switch c.Embedding.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("embedding.provider must be fastembed or tei, got %q", c.Embedding.Provider)
	}
	if c.Match.Threshold < 0 || c.Match.Threshold > 1 {
		return fmt.Errorf("match.threshold must be in [0,1], got %v", c.Match.Threshold)
	}
	if c.Match.Neighbors < 1 {
		return fmt.Errorf("match.neighbors must be positive, got %d", c.Match.Neighbors)
	}
	return nil
}
