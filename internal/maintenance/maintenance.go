// Package maintenance implements the engine's two background operations:
// decay-driven pruning and similarity-based consolidation. Both operations
// serialize through a single mutex so only one maintenance operation runs at
// a time; the write path never takes this lock.
package maintenance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/coeus-memory/coeus/internal/engineerr"
	"github.com/coeus-memory/coeus/internal/logging"
	"github.com/coeus-memory/coeus/internal/store"
	"github.com/coeus-memory/coeus/internal/trigram"
	"github.com/coeus-memory/coeus/internal/vecmath"
)

var log = logging.GetLogger("maintenance")

// DefaultConsolidationThreshold mirrors maintenance.similarity_threshold's
// default.
const DefaultConsolidationThreshold = 0.8

// DecayPruneResult is the structured, never-panicking result of a decay and
// prune pass, per spec.md §7.
type DecayPruneResult struct {
	Processed int
	Pruned    int
	AvgBefore float64
	AvgAfter  float64
	Success   bool
	Error     string
}

// ConsolidationResult is the structured, never-panicking result of a
// consolidation pass, per spec.md §7.
type ConsolidationResult struct {
	Analyzed       int
	ClustersFound  int
	Merged         int
	Archived       int
	Success        bool
	Error          string
}

// Engine runs decay/prune and consolidation against a single store,
// guaranteeing the two never run concurrently with each other.
type Engine struct {
	store *store.Store
	mu    sync.Mutex
}

// New constructs a maintenance Engine over s.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// DecayAndPrune snapshots aggregate strength, deletes every non-pinned
// record below threshold, and snapshots again. It returns MaintenanceBusy
// immediately if consolidation is already running.
func (e *Engine) DecayAndPrune(ctx context.Context, threshold float64) (*DecayPruneResult, error) {
	if !e.mu.TryLock() {
		return nil, engineerr.MaintenanceBusy("decay_and_prune")
	}
	defer e.mu.Unlock()

	result := &DecayPruneResult{}

	before, err := e.store.Stats(ctx)
	if err != nil {
		result.Error = err.Error()
		log.Warn("decay_and_prune failed computing stats before", "error", err)
		return result, nil
	}
	result.Processed = before.Total
	result.AvgBefore = before.AvgStrength

	pruned, err := e.store.PruneWeak(ctx, threshold)
	result.Pruned = pruned
	if err != nil {
		result.Error = err.Error()
		log.Warn("decay_and_prune interrupted", "error", err, "pruned_so_far", pruned)
		return result, nil
	}

	after, err := e.store.Stats(ctx)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.AvgAfter = after.AvgStrength
	result.Success = true

	log.Info("decay_and_prune complete", "processed", result.Processed, "pruned", result.Pruned)
	return result, nil
}

// Consolidate greedily clusters non-archived records by similarity, reinforces
// the strongest of each cluster of size >= 2, and archives the rest in
// favor of it. It returns MaintenanceBusy immediately if decay/prune is
// already running.
func (e *Engine) Consolidate(ctx context.Context, threshold float64) (*ConsolidationResult, error) {
	if !e.mu.TryLock() {
		return nil, engineerr.MaintenanceBusy("consolidate")
	}
	defer e.mu.Unlock()

	result := &ConsolidationResult{}

	all, err := e.store.Enumerate(ctx)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	var current []*store.Memory
	for _, m := range all {
		if !m.IsArchived {
			current = append(current, m)
		}
	}
	result.Analyzed = len(current)

	clusters, err := clusterBySimilarity(ctx, current, threshold)
	if err != nil {
		result.Error = err.Error()
		log.Warn("consolidation interrupted during clustering", "error", err)
		return result, nil
	}

	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}
		result.ClustersFound++

		if err := ctx.Err(); err != nil {
			result.Error = "cancelled"
			return result, nil
		}

		sort.Slice(cluster, func(i, j int) bool {
			return cluster[i].CurrentStrength(time.Now().UTC()) > cluster[j].CurrentStrength(time.Now().UTC())
		})

		strongest, err := e.store.Reinforce(ctx, cluster[0].ID)
		if err != nil {
			result.Error = err.Error()
			return result, nil
		}

		for _, weaker := range cluster[1:] {
			fresh, err := e.store.Get(ctx, weaker.ID)
			if err != nil {
				var notFound *engineerr.NotFoundError
				if errors.As(err, &notFound) {
					continue
				}
				result.Error = err.Error()
				return result, nil
			}
			if !fresh.IsCurrent() {
				continue
			}

			now := time.Now().UTC()
			survivorID := strongest.ID
			fresh.IsArchived = true
			fresh.SupersededBy = &survivorID
			fresh.ValidUntil = &now
			if err := e.store.Save(ctx, fresh); err != nil {
				result.Error = err.Error()
				return result, nil
			}
			result.Merged++
			result.Archived++
		}
	}

	result.Success = true
	log.Info("consolidation complete", "analyzed", result.Analyzed, "clusters", result.ClustersFound, "archived", result.Archived)
	return result, nil
}

// clusterBySimilarity implements the greedy clustering from spec.md §4.6:
// iterate in order, forming a cluster from each unprocessed record and
// absorbing every remaining unprocessed record above threshold.
func clusterBySimilarity(ctx context.Context, records []*store.Memory, threshold float64) ([][]*store.Memory, error) {
	processed := make(map[string]bool, len(records))
	var clusters [][]*store.Memory

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return clusters, engineerr.Cancelled("consolidate")
		}
		if processed[r.ID] {
			continue
		}
		processed[r.ID] = true
		cluster := []*store.Memory{r}

		for j := i + 1; j < len(records); j++ {
			o := records[j]
			if processed[o.ID] {
				continue
			}
			if similarity(r, o) >= threshold {
				processed[o.ID] = true
				cluster = append(cluster, o)
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// similarity implements the §4.6 consolidation similarity formula: a
// 0.6/0.4 blend of cosine and trigram Jaccard when both records have
// embeddings, else trigram Jaccard alone.
func similarity(a, b *store.Memory) float64 {
	fuzzy := trigram.Jaccard(a.Trigrams(), b.Trigrams())
	if len(a.Embedding) == 0 || len(b.Embedding) == 0 {
		return fuzzy
	}
	cosine := vecmath.Cosine(vecmath.Normalize(a.Embedding), vecmath.Normalize(b.Embedding))
	return 0.6*cosine + 0.4*fuzzy
}
