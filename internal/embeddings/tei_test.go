package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTEIServer returns a fake TEI endpoint answering /embed with one
// fixed-size vector per input.
func newTEIServer(t *testing.T, dim int) (*httptest.Server, *[]teiRequest) {
	t.Helper()
	var seen []teiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/embed", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)

		var n int
		switch inputs := req.Inputs.(type) {
		case string:
			n = 1
		case []interface{}:
			n = len(inputs)
		default:
			t.Fatalf("unexpected inputs type %T", req.Inputs)
		}

		vectors := make([][]float32, n)
		for i := range vectors {
			vectors[i] = make([]float32, dim)
			vectors[i][0] = 1
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestTEIConfig_Validate(t *testing.T) {
	assert.NoError(t, TEIConfig{BaseURL: "http://localhost:8080"}.Validate())
	assert.ErrorIs(t, TEIConfig{}.Validate(), ErrInvalidConfig)
}

func TestNewTEIService_RequiresBaseURL(t *testing.T) {
	_, err := NewTEIService(TEIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTEIService_EmbedDocuments(t *testing.T) {
	srv, seen := newTEIServer(t, 384)

	svc, err := NewTEIService(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"first text", "second text"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 384)

	require.Len(t, *seen, 1)
	assert.True(t, (*seen)[0].Truncate)
	assert.Equal(t, []interface{}{"first text", "second text"}, (*seen)[0].Inputs)
}

func TestTEIService_EmbedDocuments_Empty(t *testing.T) {
	srv, _ := newTEIServer(t, 384)

	svc, err := NewTEIService(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTEIService_EmbedQuery(t *testing.T) {
	srv, seen := newTEIServer(t, 384)

	svc, err := NewTEIService(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	vec, err := svc.EmbedQuery(context.Background(), "disk full on node")
	require.NoError(t, err)
	assert.Len(t, vec, 384)

	require.Len(t, *seen, 1)
	assert.Equal(t, "disk full on node", (*seen)[0].Inputs)
}

func TestTEIService_EmbedQuery_Empty(t *testing.T) {
	srv, _ := newTEIServer(t, 384)

	svc, err := NewTEIService(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTEIService_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	svc, err := NewTEIService(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "disk full on node")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")
}

func TestTEIService_Unreachable(t *testing.T) {
	svc, err := NewTEIService(TEIConfig{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "disk full on node")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
