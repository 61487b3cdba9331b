// Package embeddings provides embedding generation via multiple providers.
//
// Two providers are supported: FastEmbed runs local ONNX models (CGO
// builds only), TEI talks to a text-embeddings-inference HTTP server. Both
// return unit-normalized vectors, which the vector store relies on for the
// cosine distance = 1 - similarity conversion.
//
// The model identifier must be held constant between building a collection
// and querying it; mismatched models silently produce meaningless
// similarity scores, and nothing here validates that for the caller.
package embeddings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "fastembed" or "tei".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the TEI URL (only used for TEI provider).
	BaseURL string
	// CacheDir is the model cache directory (only used for FastEmbed).
	CacheDir string
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		svc, err := NewTEIService(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return &teiProvider{TEIService: svc, dimension: detectDimensionFromModel(cfg.Model)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// detectDimensionFromModel returns the embedding dimension for a model
// name, falling back to 384 for unknown models.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "small"), strings.Contains(model, "mini"), strings.Contains(model, "Mini"):
		return 384
	default:
		return 384
	}
}

// teiProvider wraps TEIService to implement the Provider interface.
type teiProvider struct {
	*TEIService
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}
