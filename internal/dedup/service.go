// Package dedup decides whether a new incident or problem report
// near-duplicates a previously resolved case, and returns the prior
// resolution when it does.
//
// Two matching strategies sit behind one threshold policy: a vector
// nearest-neighbor lookup against a persistent collection (preferred) and
// a normalization + phrase-similarity scan over the tabular dataset
// (fallback). Vector-path failures degrade silently to the fallback; the
// fallback is the always-correct path and the vector index is only an
// optimization over it.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/recalld/internal/dataset"
	"github.com/fyrsmithlabs/recalld/internal/normalize"
	"github.com/fyrsmithlabs/recalld/internal/similarity"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
	"go.uber.org/zap"
)

// Collection names by purpose. kb_docs also lives in the same store but is
// owned by the knowledge-base pipeline, not by this package.
const (
	CollectionIncidents = "incidents_cache"
	CollectionProblems  = "problems_cache"
)

// Defaults for the match policy.
const (
	DefaultThreshold = 0.90
	DefaultNeighbors = 5
)

// vectorVersion is the decision-cache version for vector-path results. The
// vector store persists independently of any dataset file, so there is no
// mtime to key on.
const vectorVersion int64 = 0

// Source identifies which path produced a match.
type Source string

const (
	// SourceVector means the match came from the embedding index.
	SourceVector Source = "vector"
	// SourcePhrase means the match came from the phrase-similarity scan.
	SourcePhrase Source = "phrase"
)

// Metadata is the typed view of a matched row's metadata: the named fields
// this package understands plus an extras bag for forward compatibility.
type Metadata struct {
	RootCause     string
	SolutionSteps string
	Extra         map[string]string
}

// parseMetadata splits a raw metadata map into named fields and extras.
func parseMetadata(raw map[string]string) Metadata {
	meta := Metadata{}
	for k, v := range raw {
		switch k {
		case dataset.ColumnRootCause:
			meta.RootCause = v
		case dataset.ColumnSolutionSteps:
			meta.SolutionSteps = v
		default:
			if meta.Extra == nil {
				meta.Extra = make(map[string]string)
			}
			meta.Extra[k] = v
		}
	}
	return meta
}

// Match is a successful near-duplicate lookup.
type Match struct {
	// Resolution is the prior root cause (incidents) or solution steps
	// (problems) of the matched case.
	Resolution string
	// Similarity is the score that accepted the match, in [0,1].
	Similarity float64
	// Source is the path that produced the match.
	Source Source
	// Metadata is the matched row's metadata (vector path only; the
	// phrase path carries just the resolution column).
	Metadata Metadata
}

// VectorIndex is the subset of the vector store the orchestrator needs.
type VectorIndex interface {
	Query(ctx context.Context, collection, text string, k int) (*vectorstore.QueryResult, error)
}

// Config holds the orchestrator's datasets and match policy.
type Config struct {
	// IncidentsPath is the consolidated incidents CSV used by the
	// fallback path.
	IncidentsPath string

	// ProblemsPath is the problems CSV for the remediation variant.
	// Optional; when empty the problems lookup has no fallback.
	ProblemsPath string

	// Threshold is the minimum similarity for a match, in [0,1].
	// A candidate scoring exactly the threshold is accepted.
	Threshold float64

	// Neighbors is the k for vector queries.
	Neighbors int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Neighbors == 0 {
		c.Neighbors = DefaultNeighbors
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v", c.Threshold)
	}
	if c.Neighbors < 1 {
		return fmt.Errorf("neighbors must be positive, got %d", c.Neighbors)
	}
	return nil
}

// decisionKey keys a cached match decision.
type decisionKey struct {
	query     string // normalized query text
	threshold float64
	version   int64 // dataset mtime, or vectorVersion for vector hits
}

// decision is a cached outcome; matched false means a cached "no match".
type decision struct {
	match   *Match
	matched bool
}

// Service is the deduplication orchestrator. It owns every cache layer
// (normalized text, phrases, pairwise similarity, dataset snapshots,
// decisions) and is safe for concurrent use; all layers clear together in
// ClearCaches.
type Service struct {
	cfg    Config
	index  VectorIndex // nil disables the vector path
	logger *zap.Logger

	norm      *normalize.Normalizer
	seg       *normalize.Segmenter
	engine    *similarity.Engine
	incidents *dataset.Cache
	problems  *dataset.Cache

	mu        sync.Mutex
	decisions map[decisionKey]decision
}

// New creates a Service. index may be nil, in which case every lookup goes
// straight to the fallback path.
func New(cfg Config, index VectorIndex, logger *zap.Logger) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	norm := normalize.NewNormalizer()
	seg := normalize.NewSegmenter()

	return &Service{
		cfg:       cfg,
		index:     index,
		logger:    logger,
		norm:      norm,
		seg:       seg,
		engine:    similarity.NewEngine(norm, seg),
		incidents: dataset.NewCache(norm, dataset.ColumnIncidentReport, dataset.ColumnRootCause),
		problems:  dataset.NewCache(norm, dataset.ColumnProblems, dataset.ColumnSolutionSteps),
		decisions: make(map[decisionKey]decision),
	}, nil
}

// FindRootCause returns the root cause of a previously resolved incident
// that near-duplicates query, or nil when no prior case is close enough.
// A nil match is a normal outcome, not an error.
func (s *Service) FindRootCause(ctx context.Context, query string) (*Match, error) {
	return s.find(ctx, query, CollectionIncidents, s.incidents, s.cfg.IncidentsPath)
}

// FindSimilarProblem returns the solution steps of a previously handled
// problem that near-duplicates query, or nil. When no problems dataset is
// configured there is no fallback and a vector-path failure is returned as
// an error.
func (s *Service) FindSimilarProblem(ctx context.Context, query string) (*Match, error) {
	return s.find(ctx, query, CollectionProblems, s.problems, s.cfg.ProblemsPath)
}

func (s *Service) find(ctx context.Context, query, collection string, ds *dataset.Cache, path string) (*Match, error) {
	// Empty queries are rejected before any cache is touched.
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	if s.index != nil {
		vectorKey := decisionKey{
			query:     s.norm.Normalize(query),
			threshold: s.cfg.Threshold,
			version:   vectorVersion,
		}
		if cached, ok := s.loadDecision(vectorKey); ok {
			// A cached vector hit short-circuits; a cached miss skips the
			// index and goes straight to the phrase scan.
			if cached != nil {
				return cached, nil
			}
		} else {
			match, err := s.queryVector(ctx, collection, query)
			if err == nil {
				// Vector decisions, including misses, are cached under
				// the sentinel version; a miss still falls through to
				// the phrase scan.
				s.storeDecision(vectorKey, match)
				if match != nil {
					return match, nil
				}
			} else {
				if path == "" {
					return nil, fmt.Errorf("vector lookup failed and no dataset fallback configured: %w", err)
				}
				s.logger.Debug("vector path failed, falling back to phrase scan",
					zap.String("collection", collection),
					zap.Error(err),
				)
			}
		}
	}

	if path == "" {
		return nil, nil
	}
	return s.scanDataset(query, ds, path)
}

// queryVector runs the vector path: k nearest neighbors, sim = 1 -
// distance, threshold acceptance with strict improvement. Returns nil
// match on a clean miss.
func (s *Service) queryVector(ctx context.Context, collection, query string) (*Match, error) {
	result, err := s.index.Query(ctx, collection, query, s.cfg.Neighbors)
	if err != nil {
		return nil, err
	}

	var best *Match
	bestSim := -1.0
	for i := range result.Distances {
		sim := 1.0 - float64(result.Distances[i])
		if sim >= s.cfg.Threshold && sim > bestSim {
			bestSim = sim
			meta := parseMetadata(result.Metadatas[i])
			resolution := meta.RootCause
			if collection == CollectionProblems {
				resolution = meta.SolutionSteps
			}
			best = &Match{
				Resolution: resolution,
				Similarity: sim,
				Source:     SourceVector,
				Metadata:   meta,
			}
		}
	}
	return best, nil
}

// scanDataset runs the fallback path: load the mtime-validated snapshot,
// score every row's precomputed normalized text against the query, accept
// at or above the threshold with first-row-wins ties, and cache the
// decision (match or explicit no-match) under the snapshot version.
func (s *Service) scanDataset(query string, ds *dataset.Cache, path string) (*Match, error) {
	snap, err := ds.Load(path)
	if err != nil {
		return nil, err
	}

	key := decisionKey{
		query:     s.norm.Normalize(query),
		threshold: s.cfg.Threshold,
		version:   snap.Version(),
	}
	if cached, ok := s.loadDecision(key); ok {
		return cached, nil
	}

	var best *Match
	bestScore := -1.0
	for _, row := range snap.Rows {
		score := s.engine.Score(key.query, row.Normalized)
		// Strict improvement: later rows with an equal score do not
		// replace the first one found.
		if score >= s.cfg.Threshold && score > bestScore {
			bestScore = score
			best = &Match{
				Resolution: row.Resolution,
				Similarity: score,
				Source:     SourcePhrase,
			}
		}
	}

	s.storeDecision(key, best)
	return best, nil
}

func (s *Service) loadDecision(key decisionKey) (*Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[key]
	if !ok {
		return nil, false
	}
	return d.match, true
}

func (s *Service) storeDecision(key decisionKey, match *Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[key] = decision{match: match, matched: match != nil}
}

// CachedDecisions returns the number of cached decisions.
func (s *Service) CachedDecisions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decisions)
}

// ClearCaches clears every in-memory cache layer: normalized text,
// phrases, pairwise similarity, dataset snapshots, and decisions. The
// clear is atomic from the caller's perspective. Call it after rebuilding
// a vector collection, since rebuilds invalidate cached decisions.
func (s *Service) ClearCaches() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.norm.Clear()
	s.seg.Clear()
	s.engine.Clear()
	s.incidents.Clear()
	s.problems.Clear()
	s.decisions = make(map[decisionKey]decision)
}
