// Package search implements the engine's hybrid ranked retrieval: a linear
// scan over current records scored on semantic (dense vector) similarity,
// trigram fuzzy matching, strength, and recency, merged into one composite
// ranking.
package search

import (
	"context"
	"sort"
	"time"

	"github.com/coeus-memory/coeus/internal/embedding"
	"github.com/coeus-memory/coeus/internal/engineerr"
	"github.com/coeus-memory/coeus/internal/logging"
	"github.com/coeus-memory/coeus/internal/store"
	"github.com/coeus-memory/coeus/internal/trigram"
	"github.com/coeus-memory/coeus/internal/vecmath"
)

var log = logging.GetLogger("search")

// Composite score weights, fixed engine constants per spec.md §4.4.
const (
	weightSemanticWithEmbedding = 0.6
	weightFuzzyWithEmbedding    = 0.2
	weightStrengthWithEmbedding = 0.1
	weightRecencyWithEmbedding  = 0.1

	weightFuzzyNoEmbedding    = 0.7
	weightStrengthNoEmbedding = 0.15
	weightRecencyNoEmbedding  = 0.15

	defaultTopN = 5
	maxTopN     = 100
)

// Result is one ranked candidate, carrying its per-signal sub-scores so
// callers (notably the conflict resolver) can threshold on SemanticScore
// specifically rather than the composite.
type Result struct {
	Memory         *store.Memory
	SemanticScore  float64
	FuzzyScore     float64
	StrengthScore  float64
	RecencyScore   float64
	CompositeScore float64
}

// Options are the search engine's query inputs, per spec.md §4.4.
type Options struct {
	Query     string
	TopN      int
	TagFilter []string
}

// Engine is the hybrid search engine over a single store.
type Engine struct {
	store    *store.Store
	embedder embedding.Embedder
}

// New constructs a search Engine. embedder may be nil, treated the same as
// an always-unavailable embedder.
func New(s *store.Store, embedder embedding.Embedder) *Engine {
	return &Engine{store: s, embedder: embedder}
}

// Search runs the hybrid ranked retrieval described in spec.md §4.4. It
// never fails on embedding unavailability or failure: it logs a warning and
// falls back to lexical-only scoring.
func (e *Engine) Search(ctx context.Context, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerr.Cancelled("search")
	}

	topN := opts.TopN
	if topN == 0 {
		topN = defaultTopN
	}
	if topN < 1 || topN > maxTopN {
		return nil, engineerr.InvalidArgument("top_n must be in [1, %d], got %d", maxTopN, topN)
	}

	queryEmbedding := e.resolveQueryEmbedding(ctx, opts.Query)
	queryTrigrams := trigram.Of(opts.Query)

	candidates, err := e.store.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(candidates))
	results := make([]Result, 0, len(candidates))

	for _, m := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, engineerr.Cancelled("search")
		}
		if !m.IsCurrent() || m.IsExpired(now) {
			continue
		}
		if len(opts.TagFilter) > 0 && !m.HasAnyTag(opts.TagFilter) {
			continue
		}

		r := score(m, queryEmbedding, queryTrigrams, now)
		if r.CompositeScore == 0 {
			continue
		}
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CompositeScore != results[j].CompositeScore {
			return results[i].CompositeScore > results[j].CompositeScore
		}
		if !results[i].Memory.LastAccessedAt.Equal(results[j].Memory.LastAccessedAt) {
			return results[i].Memory.LastAccessedAt.After(results[j].Memory.LastAccessedAt)
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})

	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

func score(m *store.Memory, queryEmbedding []float32, queryTrigrams trigram.Set, now time.Time) Result {
	var semantic float64
	if queryEmbedding != nil && len(m.Embedding) > 0 {
		semantic = vecmath.Cosine(queryEmbedding, vecmath.Normalize(m.Embedding))
	}

	fuzzy := trigram.Jaccard(queryTrigrams, m.Trigrams())

	strength := m.CurrentStrength(now)
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}

	recency := m.RecencyScore(now)

	var composite float64
	if queryEmbedding != nil {
		composite = weightSemanticWithEmbedding*semantic + weightFuzzyWithEmbedding*fuzzy +
			weightStrengthWithEmbedding*strength + weightRecencyWithEmbedding*recency
	} else {
		composite = weightFuzzyNoEmbedding*fuzzy + weightStrengthNoEmbedding*strength +
			weightRecencyNoEmbedding*recency
	}

	return Result{
		Memory:         m,
		SemanticScore:  semantic,
		FuzzyScore:     fuzzy,
		StrengthScore:  strength,
		RecencyScore:   recency,
		CompositeScore: composite,
	}
}

// resolveQueryEmbedding embeds query if the embedder is available, returning
// nil (not an error) on unavailability or failure so callers fall back to
// lexical scoring.
func (e *Engine) resolveQueryEmbedding(ctx context.Context, query string) []float32 {
	if e.embedder == nil || !e.embedder.IsAvailable(ctx) {
		return nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		log.Warn("query embedding failed, falling back to lexical scoring", "error", err)
		return nil
	}
	return vecmath.Normalize(vec)
}
