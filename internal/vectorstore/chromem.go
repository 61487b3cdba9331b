package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// storeTracer for OpenTelemetry instrumentation.
var storeTracer = otel.Tracer("recalld.vectorstore")

// rebuildBatchSize is the number of texts embedded and inserted per batch
// during a collection rebuild.
const rebuildBatchSize = 512

// Config holds configuration for the chromem-go embedded vector database.
type Config struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/recalld/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/recalld/vectorstore"
	}
}

// Store wraps a chromem-go persistent database of named collections.
//
// chromem-go is an embeddable vector database with no external service
// dependency; collections persist to gob files under Config.Path, so they
// outlive the process and are shared by every command that points at the
// same directory.
type Store struct {
	db       *chromem.DB
	embedder Embedder
	config   Config
	logger   *zap.Logger
}

// New creates a Store with the given configuration.
func New(config Config, embedder Embedder, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("vector store initialized",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
	)

	return &Store{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc adapts the Embedder to chromem's query-side interface.
func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Rebuild deletes any existing collection of that name, creates it fresh,
// and indexes rows in batches. Rows whose text is empty after trimming are
// skipped before encoding; rows without an ID get their ordinal position.
// An empty input leaves a fresh empty collection.
//
// Rebuilds are destructive: previously cached decisions referencing the old
// collection are stale afterwards, and it is the orchestrator's job to
// clear its caches.
func (s *Store) Rebuild(ctx context.Context, collection string, rows []Row) error {
	ctx, span := storeTracer.Start(ctx, "Store.Rebuild")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("row_count", len(rows)),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(collection); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dropping collection %s: %w", collection, err)
	}

	col, err := s.db.CreateCollection(collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", collection, err)
	}

	// Drop empty rows, keeping original ordinals as fallback IDs.
	kept := make([]Row, 0, len(rows))
	for i, row := range rows {
		text := strings.TrimSpace(row.Text)
		if text == "" {
			continue
		}
		id := row.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		kept = append(kept, Row{ID: id, Text: text, Metadata: row.Metadata})
	}

	for start := 0; start < len(kept); start += rebuildBatchSize {
		end := start + rebuildBatchSize
		if end > len(kept) {
			end = len(kept)
		}
		batch := kept[start:end]

		texts := make([]string, len(batch))
		for i, row := range batch {
			texts[i] = row.Text
		}

		embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}

		docs := make([]chromem.Document, len(batch))
		for i, row := range batch {
			docs[i] = chromem.Document{
				ID:        row.ID,
				Content:   row.Text,
				Metadata:  row.Metadata,
				Embedding: embeddings[i],
			}
		}

		// Concurrency of 1 since embeddings are already computed.
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("adding documents to %s: %w", collection, err)
		}
	}

	span.SetAttributes(attribute.Int("documents_indexed", len(kept)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("rebuilt collection",
		zap.String("collection", collection),
		zap.Int("rows", len(rows)),
		zap.Int("indexed", len(kept)),
	)
	return nil
}

// Query embeds text and returns up to k nearest neighbors from the
// collection, ordered by distance ascending. Querying a collection that
// does not exist creates an empty one transparently and returns an empty
// result.
func (s *Store) Query(ctx context.Context, collection, text string, k int) (*QueryResult, error) {
	ctx, span := storeTracer.Start(ctx, "Store.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	col, err := s.db.GetOrCreateCollection(collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}

	// chromem requires nResults <= document count.
	count := col.Count()
	if count == 0 {
		return &QueryResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, text, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	out := &QueryResult{
		IDs:       make([]string, len(results)),
		Documents: make([]string, len(results)),
		Metadatas: make([]map[string]string, len(results)),
		Distances: make([]float32, len(results)),
	}
	for i, r := range results {
		out.IDs[i] = r.ID
		out.Documents[i] = r.Content
		out.Metadatas[i] = r.Metadata
		// Embeddings are unit-normalized, so cosine distance is
		// 1 - similarity.
		out.Distances[i] = 1 - r.Similarity
	}

	span.SetAttributes(attribute.Int("results_count", out.Len()))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("queried collection",
		zap.String("collection", collection),
		zap.Int("k", k),
		zap.Int("results", out.Len()),
	)
	return out, nil
}

// Count returns the number of documents in a collection, zero when the
// collection does not exist.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}

	col := s.db.GetCollection(collection, s.embeddingFunc())
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// ListCollections returns the names of all collections, sorted.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	collections := s.db.ListCollections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteCollection deletes a collection and all its documents.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if err := s.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("deleting collection %s: %w", collection, err)
	}
	s.logger.Info("deleted collection", zap.String("collection", collection))
	return nil
}

// Close releases the store. chromem-go persists write-through, so there is
// nothing to flush.
func (s *Store) Close() error {
	s.logger.Debug("vector store closed")
	return nil
}
