// Package similarity scores how close two free-text incident descriptions
// are, on a 0..1 scale.
//
// The scorer is deliberately model-free: it is the fallback that must keep
// working when every embedding backend is down. Texts are normalized,
// split into phrases, and compared with bag-of-words cosine; the score for
// a pair is the average of each phrase's best match on the other side.
package similarity

import (
	"math"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/recalld/internal/normalize"
)

// pairKey is an order-independent cache key for a pair of normalized
// strings: A is always the lexicographically smaller of the two.
type pairKey struct {
	a, b string
}

func makePairKey(x, y string) pairKey {
	if x <= y {
		return pairKey{a: x, b: y}
	}
	return pairKey{a: y, b: x}
}

// Engine computes and memoizes pairwise similarity scores.
type Engine struct {
	norm *normalize.Normalizer
	seg  *normalize.Segmenter

	mu    sync.Mutex
	pairs map[pairKey]float64
}

// NewEngine creates an Engine sharing the given normalizer and segmenter
// caches.
func NewEngine(norm *normalize.Normalizer, seg *normalize.Segmenter) *Engine {
	return &Engine{
		norm:  norm,
		seg:   seg,
		pairs: make(map[pairKey]float64),
	}
}

// Score returns the similarity of a and b in [0,1].
//
// Both inputs are normalized first; if either normalizes to empty the score
// is 0. The phrase-level aggregation (max over one side, averaged over the
// other) is not symmetric in general, so the computation direction is
// pinned: the lexicographically smaller normalized string is always the
// side being averaged. Together with the order-independent cache key this
// makes Score(a,b) == Score(b,a) for every input pair.
func (e *Engine) Score(a, b string) float64 {
	na := e.norm.Normalize(a)
	nb := e.norm.Normalize(b)
	if na == "" || nb == "" {
		return 0
	}

	key := makePairKey(na, nb)

	e.mu.Lock()
	if cached, ok := e.pairs[key]; ok {
		e.mu.Unlock()
		return cached
	}
	e.mu.Unlock()

	score := e.compute(key.a, key.b)

	e.mu.Lock()
	e.pairs[key] = score
	e.mu.Unlock()
	return score
}

// compute scores the pair with phrasesA as the averaged side.
func (e *Engine) compute(sideA, sideB string) float64 {
	phrasesA := e.seg.Phrases(sideA)
	phrasesB := e.seg.Phrases(sideB)

	// No usable phrases on either side: compare whole documents.
	if len(phrasesA) == 0 || len(phrasesB) == 0 {
		return cosineTokens(sideA, sideB)
	}

	var sum float64
	var n int
	for _, pa := range phrasesA {
		best := 0.0
		for _, pb := range phrasesB {
			if s := cosineTokens(pa, pb); s > best {
				best = s
			}
		}
		// Phrases with no match at all are excluded from the average
		// rather than dragging it toward zero.
		if best > 0 {
			sum += best
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Len returns the number of cached pair scores.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pairs)
}

// Clear drops all cached pair scores.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pairs = make(map[pairKey]float64)
}

// cosineTokens computes cosine similarity between the token-frequency
// vectors of two strings. Identical strings score 1, disjoint token sets
// score 0.
func cosineTokens(a, b string) float64 {
	ta := tokenCounts(a)
	tb := tokenCounts(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for tok, ca := range ta {
		normA += float64(ca * ca)
		if cb, ok := tb[tok]; ok {
			dot += float64(ca * cb)
		}
	}
	for _, cb := range tb {
		normB += float64(cb * cb)
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func tokenCounts(s string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range strings.Fields(s) {
		counts[tok]++
	}
	return counts
}
