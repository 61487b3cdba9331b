package similarity

import (
	"testing"

	"github.com/fyrsmithlabs/recalld/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(normalize.NewNormalizer(), normalize.NewSegmenter())
}

func TestEngine_Score_Identical(t *testing.T) {
	e := newTestEngine(t)

	score := e.Score(
		"Connection pool exhausted. Retries failed after timeout.",
		"Connection pool exhausted. Retries failed after timeout.",
	)
	assert.InDelta(t, 1.0, score, 1e-9)
}

// Reports that differ only in volatile values normalize to the same string
// and must score 1.0.
func TestEngine_Score_VolatileValues(t *testing.T) {
	e := newTestEngine(t)

	score := e.Score(
		"Database connection failed for order #12345 at 10:30 AM",
		"Database connection failed for order #67890 at 11:45 AM",
	)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestEngine_Score_EmptyInputs(t *testing.T) {
	e := newTestEngine(t)

	assert.Zero(t, e.Score("", "connection failed"))
	assert.Zero(t, e.Score("connection failed", ""))
	assert.Zero(t, e.Score("", ""))
	// Text that normalizes to empty behaves like empty.
	assert.Zero(t, e.Score(" 7 ", "connection failed"))
}

func TestEngine_Score_Unrelated(t *testing.T) {
	e := newTestEngine(t)

	score := e.Score(
		"Database connection failed for order processing",
		"Unrelated weather report about rainfall totals",
	)
	assert.Less(t, score, 0.5)
}

// Score(a,b) and Score(b,a) must return the identical cached value even
// though the phrase aggregation is directional.
func TestEngine_Score_Symmetric(t *testing.T) {
	e := newTestEngine(t)

	a := "Database connection failed. Pool exhausted after restart."
	b := "Connection pool exhausted. Database failed to restart cleanly."

	forward := e.Score(a, b)
	backward := e.Score(b, a)
	assert.Equal(t, forward, backward)

	// One cache entry, not two.
	assert.Equal(t, 1, e.Len())
}

// A fresh engine scoring the swapped order must agree with the original
// order: the computation direction is pinned to the lexicographically
// smaller side, not to argument order.
func TestEngine_Score_DirectionPinned(t *testing.T) {
	a := "network partition detected. failover started. traffic rerouted."
	b := "network partition detected. primary unreachable."

	e1 := newTestEngine(t)
	e2 := newTestEngine(t)

	assert.Equal(t, e1.Score(a, b), e2.Score(b, a))
}

// Single-token texts produce no phrases, falling back to whole-document
// comparison.
func TestEngine_Score_DocumentFallback(t *testing.T) {
	e := newTestEngine(t)

	score := e.Score("serverdown", "serverdown")
	assert.InDelta(t, 1.0, score, 1e-9)

	assert.Zero(t, e.Score("serverdown", "unrelated"))
}

func TestEngine_Clear(t *testing.T) {
	e := newTestEngine(t)

	e.Score("connection failed on node", "connection failed on node")
	require.Equal(t, 1, e.Len())

	e.Clear()
	assert.Equal(t, 0, e.Len())
}

func TestCosineTokens(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "pool exhausted", b: "pool exhausted", want: 1.0},
		{name: "disjoint", a: "pool exhausted", b: "disk full", want: 0.0},
		{name: "empty side", a: "", b: "disk full", want: 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineTokens(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineTokens_PartialOverlap(t *testing.T) {
	// One shared token out of two on each side: cos = 1/2.
	got := cosineTokens("pool exhausted", "pool full")
	assert.InDelta(t, 0.5, got, 1e-9)
}
