// Package conflict implements the engine's write path: classifying an
// inbound memory against the current set as a duplicate, a superseding
// record, a coexisting record, or genuinely new, per spec.md §4.5.
package conflict

import (
	"context"
	"errors"
	"time"

	"github.com/coeus-memory/coeus/internal/embedding"
	"github.com/coeus-memory/coeus/internal/engineerr"
	"github.com/coeus-memory/coeus/internal/logging"
	"github.com/coeus-memory/coeus/internal/search"
	"github.com/coeus-memory/coeus/internal/store"
)

var log = logging.GetLogger("conflict")

// Kind discriminates the outcome of a write-path classification.
type Kind int

const (
	ReinforcedExisting Kind = iota
	StoredWithSupersede
	StoredCoexist
	StoredNew
)

func (k Kind) String() string {
	switch k {
	case ReinforcedExisting:
		return "reinforced_existing"
	case StoredWithSupersede:
		return "stored_with_supersede"
	case StoredCoexist:
		return "stored_coexist"
	case StoredNew:
		return "stored_new"
	default:
		return "unknown"
	}
}

// Outcome is the discriminated result of Resolve, mirroring the teacher's
// StoreResult-style return value.
type Outcome struct {
	Kind       Kind
	Memory     *store.Memory   // the resulting/surviving record
	Superseded []*store.Memory // populated only for StoredWithSupersede
	Nearest    *store.Memory   // populated only for StoredCoexist
}

// Thresholds are the classification cutoffs for the semantic sub-score, per
// spec.md §4.5 and §9 ("semantic sub-score, not composite").
type Thresholds struct {
	Duplicate float64
	Supersede float64
	Coexist   float64
}

// Resolver implements the conflict-resolution write path.
type Resolver struct {
	store      *store.Store
	search     *search.Engine
	embedder   embedding.Embedder
	thresholds Thresholds
}

// New constructs a Resolver.
func New(s *store.Store, searchEngine *search.Engine, embedder embedding.Embedder, thresholds Thresholds) *Resolver {
	return &Resolver{store: s, search: searchEngine, embedder: embedder, thresholds: thresholds}
}

// Resolve classifies and commits new against the current record set,
// per spec.md §4.5. new must already have id, tags, importance, content,
// content_normalized, and trigrams populated (store.Memory.Normalize having
// been called).
func (r *Resolver) Resolve(ctx context.Context, m *store.Memory) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineerr.Cancelled("resolve")
	}

	if len(m.Embedding) == 0 && r.embedder != nil && r.embedder.IsAvailable(ctx) {
		text := m.Title + " " + m.Summary + " " + m.Content
		vec, err := r.embedder.Embed(ctx, text)
		if err != nil {
			log.Warn("embedding generation failed during conflict resolution, continuing lexically", "error", err)
		} else {
			m.Embedding = vec
		}
	}

	query := m.Title + " " + m.Summary
	results, err := r.search.Search(ctx, search.Options{Query: query, TopN: 10})
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return r.storeNew(ctx, m, nil)
	}

	top := results[0]
	s := top.SemanticScore

	switch {
	case s >= r.thresholds.Duplicate:
		return r.reinforceExisting(ctx, top.Memory.ID, m)
	case s >= r.thresholds.Supersede:
		outcome, err := r.supersede(ctx, m, results)
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			return outcome, nil
		}
		// No candidate survived the fresh-reload check; fall through to coexist.
		return r.storeCoexist(ctx, m, top.Memory)
	case s >= r.thresholds.Coexist:
		return r.storeCoexist(ctx, m, top.Memory)
	default:
		return r.storeNew(ctx, m, top.Memory)
	}
}

func (r *Resolver) reinforceExisting(ctx context.Context, existingID string, incoming *store.Memory) (*Outcome, error) {
	existing, err := r.store.Reinforce(ctx, existingID)
	if err != nil {
		return nil, err
	}

	if incoming.Content != "" && len(incoming.Content) > len(existing.Content) {
		existing.Content = incoming.Content
		existing.Normalize()
		if err := r.store.Save(ctx, existing); err != nil {
			return nil, err
		}
	}

	return &Outcome{Kind: ReinforcedExisting, Memory: existing}, nil
}

// supersede archives every still-current candidate in [supersede, duplicate)
// and points it at m. Returns (nil, nil) if no candidate survived the
// fresh-reload check, signaling the caller to fall back to coexist.
func (r *Resolver) supersede(ctx context.Context, m *store.Memory, results []search.Result) (*Outcome, error) {
	var superseded []*store.Memory

	for _, candidate := range results {
		if err := ctx.Err(); err != nil {
			return nil, engineerr.Cancelled("resolve")
		}
		if candidate.Memory.ID == m.ID {
			continue
		}
		if candidate.SemanticScore < r.thresholds.Supersede || candidate.SemanticScore >= r.thresholds.Duplicate {
			continue
		}

		fresh, err := r.store.Get(ctx, candidate.Memory.ID)
		if err != nil {
			var notFound *engineerr.NotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
		if !fresh.IsCurrent() {
			continue
		}

		now := time.Now().UTC()
		newID := m.ID
		fresh.ValidUntil = &now
		fresh.SupersededBy = &newID
		fresh.IsArchived = true
		if err := r.store.Save(ctx, fresh); err != nil {
			return nil, err
		}

		m.AddSupersededID(fresh.ID)
		superseded = append(superseded, fresh)
	}

	if len(superseded) == 0 {
		return nil, nil
	}

	m.ValidFrom = time.Now().UTC()
	if err := r.store.Save(ctx, m); err != nil {
		return nil, err
	}
	return &Outcome{Kind: StoredWithSupersede, Memory: m, Superseded: superseded}, nil
}

func (r *Resolver) storeCoexist(ctx context.Context, m *store.Memory, nearest *store.Memory) (*Outcome, error) {
	m.ValidFrom = time.Now().UTC()
	if err := r.store.Save(ctx, m); err != nil {
		return nil, err
	}
	return &Outcome{Kind: StoredCoexist, Memory: m, Nearest: nearest}, nil
}

func (r *Resolver) storeNew(ctx context.Context, m *store.Memory, nearest *store.Memory) (*Outcome, error) {
	m.ValidFrom = time.Now().UTC()
	if err := r.store.Save(ctx, m); err != nil {
		return nil, err
	}
	return &Outcome{Kind: StoredNew, Memory: m}, nil
}
