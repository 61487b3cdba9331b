package vectorstore

import (
	"context"
	"hash/fnv"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeEmbedder produces deterministic unit vectors from a hash of the text,
// so identical texts embed identically and distinct texts almost never
// collide.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) embed(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, 8)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>16)) / float64(1<<48)
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.embed(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.embed(text), nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{Path: t.TempDir()}, &fakeEmbedder{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return store
}

func TestNew_RequiresEmbedder(t *testing.T) {
	_, err := New(Config{Path: t.TempDir()}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "incidents_cache", wantErr: false},
		{name: "valid with digits", input: "cache_v2", wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "uppercase", input: "Incidents", wantErr: true},
		{name: "hyphen", input: "incidents-cache", wantErr: true},
		{name: "space", input: "incidents cache", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCollectionName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_RebuildAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []Row{
		{Text: "database connection failed", Metadata: map[string]string{"Root_Cause": "pool exhausted"}},
		{Text: "disk full on node", Metadata: map[string]string{"Root_Cause": "log rotation disabled"}},
		{Text: "pod evicted repeatedly", Metadata: map[string]string{"Root_Cause": "memory limits too low"}},
	}
	require.NoError(t, store.Rebuild(ctx, "incidents_cache", rows))

	count, err := store.Count(ctx, "incidents_cache")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	result, err := store.Query(ctx, "incidents_cache", "disk full on node", 3)
	require.NoError(t, err)
	require.Equal(t, 3, result.Len())

	// Exact text embeds identically, so the nearest neighbor is itself at
	// distance ~0.
	assert.Equal(t, "disk full on node", result.Documents[0])
	assert.Equal(t, "1", result.IDs[0])
	assert.Equal(t, "log rotation disabled", result.Metadatas[0]["Root_Cause"])
	assert.InDelta(t, 0.0, float64(result.Distances[0]), 1e-4)

	// Distances are ordered ascending.
	for i := 1; i < result.Len(); i++ {
		assert.LessOrEqual(t, result.Distances[i-1], result.Distances[i])
	}
}

func TestStore_Query_ClampsK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows := []Row{
		{Text: "database connection failed"},
		{Text: "disk full on node"},
	}
	require.NoError(t, store.Rebuild(ctx, "incidents_cache", rows))

	result, err := store.Query(ctx, "incidents_cache", "disk full", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Len())
}

func TestStore_Query_MissingCollection(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Query(context.Background(), "incidents_cache", "anything", 5)
	require.NoError(t, err)
	assert.Zero(t, result.Len())
}

func TestStore_Query_InvalidInputs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Query(ctx, "Bad-Name", "text", 5)
	assert.ErrorIs(t, err, ErrInvalidCollectionName)

	_, err = store.Query(ctx, "incidents_cache", "   ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = store.Query(ctx, "incidents_cache", "text", 0)
	assert.Error(t, err)
}

func TestStore_Rebuild_IsDestructive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Rebuild(ctx, "incidents_cache", []Row{
		{Text: "database connection failed"},
		{Text: "disk full on node"},
	}))

	require.NoError(t, store.Rebuild(ctx, "incidents_cache", []Row{
		{Text: "pod evicted repeatedly"},
	}))

	count, err := store.Count(ctx, "incidents_cache")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err := store.Query(ctx, "incidents_cache", "pod evicted repeatedly", 5)
	require.NoError(t, err)
	require.Equal(t, 1, result.Len())
	assert.Equal(t, "pod evicted repeatedly", result.Documents[0])
}

func TestStore_Rebuild_SkipsEmptyRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Rebuild(ctx, "incidents_cache", []Row{
		{Text: "database connection failed"},
		{Text: "   "},
		{Text: "disk full on node"},
	}))

	count, err := store.Count(ctx, "incidents_cache")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Ordinal IDs reflect the original row positions, not the kept ones.
	result, err := store.Query(ctx, "incidents_cache", "disk full on node", 2)
	require.NoError(t, err)
	assert.Equal(t, "2", result.IDs[0])
}

func TestStore_Rebuild_Empty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Rebuild(ctx, "incidents_cache", nil))

	count, err := store.Count(ctx, "incidents_cache")
	require.NoError(t, err)
	assert.Zero(t, count)

	result, err := store.Query(ctx, "incidents_cache", "anything", 5)
	require.NoError(t, err)
	assert.Zero(t, result.Len())
}

func TestStore_Count_MissingCollection(t *testing.T) {
	store := newTestStore(t)

	count, err := store.Count(context.Background(), "nope")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_ListCollections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.Rebuild(ctx, "problems_cache", []Row{{Text: "a b"}}))
	require.NoError(t, store.Rebuild(ctx, "incidents_cache", []Row{{Text: "c d"}}))

	names, err = store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"incidents_cache", "problems_cache"}, names)
}

func TestStore_DeleteCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Rebuild(ctx, "incidents_cache", []Row{{Text: "a b"}}))
	require.NoError(t, store.DeleteCollection(ctx, "incidents_cache"))

	count, err := store.Count(ctx, "incidents_cache")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := New(Config{Path: dir}, &fakeEmbedder{}, nil)
	require.NoError(t, err)
	require.NoError(t, first.Rebuild(ctx, "incidents_cache", []Row{
		{Text: "database connection failed", Metadata: map[string]string{"Root_Cause": "pool exhausted"}},
	}))
	require.NoError(t, first.Close())

	// A second store over the same directory sees the collection.
	second, err := New(Config{Path: dir}, &fakeEmbedder{}, nil)
	require.NoError(t, err)

	count, err := second.Count(ctx, "incidents_cache")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err := second.Query(ctx, "incidents_cache", "database connection failed", 1)
	require.NoError(t, err)
	require.Equal(t, 1, result.Len())
	assert.Equal(t, "pool exhausted", result.Metadatas[0]["Root_Cause"])
}
