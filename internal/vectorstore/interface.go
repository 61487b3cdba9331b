// Package vectorstore wraps persistent named vector collections for
// near-duplicate lookup.
package vectorstore

import (
	"context"
	"errors"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrEmptyQuery indicates an empty query text.
	ErrEmptyQuery = errors.New("query text cannot be empty")
)

// Embedder generates vector embeddings from text.
//
// Embeddings must be unit-normalized so that cosine distance and
// Euclidean-on-unit-sphere coincide; both providers in this repository
// return normalized vectors.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Row is one entry to index: the document text plus metadata carried
// verbatim into the collection. An empty ID means the row's ordinal
// position is used.
type Row struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// QueryResult holds k-nearest-neighbor results as parallel slices, ordered
// by distance ascending. Distance is 1 - cosine similarity on unit
// vectors.
type QueryResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]string
	Distances []float32
}

// Len returns the number of neighbors in the result.
func (r *QueryResult) Len() int {
	return len(r.IDs)
}

// collectionNamePattern matches valid chromem collection names.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName checks that name is usable as a chromem
// collection name (lowercase alphanumerics and underscores, 1-64 chars).
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return ErrInvalidCollectionName
	}
	return nil
}
