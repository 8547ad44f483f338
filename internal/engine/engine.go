// Package engine wires the document store, hybrid search, conflict
// resolver, maintenance engine, and periodic scheduler into the single
// public surface an embedding application drives: create, get, update,
// delete, search, reinforce, stats, link/unlink, neighbors/subgraph, and
// tag_history, per spec.md §4.8.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coeus-memory/coeus/internal/conflict"
	"github.com/coeus-memory/coeus/internal/embedding"
	"github.com/coeus-memory/coeus/internal/engineerr"
	"github.com/coeus-memory/coeus/internal/logging"
	"github.com/coeus-memory/coeus/internal/maintenance"
	"github.com/coeus-memory/coeus/internal/scheduler"
	"github.com/coeus-memory/coeus/internal/search"
	"github.com/coeus-memory/coeus/internal/store"
	"github.com/coeus-memory/coeus/pkg/config"
)

var log = logging.GetLogger("engine")

// maxSubgraphNodes bounds a traversal's total visited-node count regardless
// of depth, per spec.md §4.8's realization note.
const maxSubgraphNodes = 500

// Engine is the process-wide façade over one store.
type Engine struct {
	store       *store.Store
	search      *search.Engine
	conflict    *conflict.Resolver
	maintenance *maintenance.Engine
	scheduler   *scheduler.Scheduler
	embedder    embedding.Embedder
	config      *config.Config
}

// New wires the component graph over s, using embedder for semantic search
// and conflict resolution, configured by cfg.
func New(s *store.Store, embedder embedding.Embedder, cfg *config.Config) *Engine {
	searchEngine := search.New(s, embedder)
	thresholds := conflict.Thresholds{
		Duplicate: cfg.Conflict.DuplicateThreshold,
		Supersede: cfg.Conflict.SupersedeThreshold,
		Coexist:   cfg.Conflict.CoexistThreshold,
	}

	shutdownTimeout := time.Duration(cfg.Maintenance.ShutdownTimeoutSeconds) * time.Second
	return &Engine{
		store:       s,
		search:      searchEngine,
		conflict:    conflict.New(s, searchEngine, embedder, thresholds),
		maintenance: maintenance.New(s),
		scheduler:   scheduler.New(shutdownTimeout),
		embedder:    embedder,
		config:      cfg,
	}
}

// Start registers the decay/prune and consolidation tasks with the
// scheduler, per their individual enabled flags and intervals. It does not
// block; tasks run on their own goroutines until Shutdown.
func (e *Engine) Start(ctx context.Context) error {
	mc := e.config.Maintenance
	initialDelay := time.Duration(mc.InitialDelayMinutes) * time.Minute

	e.scheduler.Register("decay_and_prune", scheduler.Config{
		Enabled:      mc.Enabled && mc.DecayEnabled,
		Interval:     time.Duration(mc.DecayIntervalHours) * time.Hour,
		InitialDelay: initialDelay,
	}, func(taskCtx context.Context) {
		if _, err := e.maintenance.DecayAndPrune(taskCtx, mc.PruneThreshold); err != nil {
			log.Warn("decay_and_prune did not run", "error", err)
		}
	})

	e.scheduler.Register("consolidate", scheduler.Config{
		Enabled:      mc.Enabled && mc.ConsolidationEnabled,
		Interval:     time.Duration(mc.ConsolidationIntervalHours) * time.Hour,
		InitialDelay: initialDelay + 5*time.Minute,
	}, func(taskCtx context.Context) {
		if _, err := e.maintenance.Consolidate(taskCtx, mc.SimilarityThreshold); err != nil {
			log.Warn("consolidate did not run", "error", err)
		}
	})

	log.Info("engine started")
	return nil
}

// Shutdown drains the scheduler, cancelling any in-flight maintenance task,
// then flushes the store.
func (e *Engine) Shutdown(ctx context.Context) error {
	if err := e.scheduler.Stop(ctx); err != nil {
		log.Warn("scheduler did not drain cleanly", "error", err)
		return err
	}
	return e.store.Compact(ctx)
}

// CreateRequest is the input to Create. Title and Summary are required;
// Importance, DecayRate, and ExpiresAt are optional overrides of
// store.NewMemory's defaults.
type CreateRequest struct {
	Title      string
	Summary    string
	Content    string
	Tags       []string
	Importance *float64
	DecayRate  *float64
	IsPinned   bool
	ExpiresAt  *time.Time
}

// Create builds a new record from req and resolves it against the current
// set via the conflict resolver, per spec.md §4.5 and §4.8.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*conflict.Outcome, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, engineerr.InvalidArgument("title must not be empty")
	}
	if strings.TrimSpace(req.Summary) == "" {
		return nil, engineerr.InvalidArgument("summary must not be empty")
	}

	sc := e.config.Storage
	title := truncateRunes(req.Title, sc.MaxTitleLength)
	summary := truncateRunes(req.Summary, sc.MaxSummaryLength)
	content := truncateBytes(req.Content, sc.MaxContentBytes)
	tags := capTags(req.Tags, sc.MaxTagsPerMemory)

	m := store.NewMemory(uuid.New().String(), title, summary, content, tags)
	if req.Importance != nil {
		m.Importance = *req.Importance
	}
	if req.DecayRate != nil {
		m.DecayRate = *req.DecayRate
	}
	m.IsPinned = req.IsPinned
	m.ExpiresAt = req.ExpiresAt
	m.Normalize()

	return e.conflict.Resolve(ctx, m)
}

// Get loads a record and reinforces it, per spec.md §4.8: reads count as
// access.
func (e *Engine) Get(ctx context.Context, id string) (*store.Memory, error) {
	return e.store.Reinforce(ctx, id)
}

// UpdateRequest carries only the fields to change; nil/false fields leave
// the stored value untouched. Tags, when non-nil, replaces the whole tag
// set (an empty non-nil slice clears it). ClearExpiresAt removes an
// existing expiry independently of ExpiresAt.
type UpdateRequest struct {
	Title          *string
	Summary        *string
	Content        *string
	Tags           []string
	Importance     *float64
	IsPinned       *bool
	ExpiresAt      *time.Time
	ClearExpiresAt bool
}

// Update loads id, applies the present fields of req, recomputes derived
// state, and re-embeds if the embedder is available and any text field
// changed.
func (e *Engine) Update(ctx context.Context, id string, req UpdateRequest) (*store.Memory, error) {
	m, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sc := e.config.Storage
	textChanged := false
	if req.Title != nil {
		m.Title = truncateRunes(*req.Title, sc.MaxTitleLength)
		textChanged = true
	}
	if req.Summary != nil {
		m.Summary = truncateRunes(*req.Summary, sc.MaxSummaryLength)
		textChanged = true
	}
	if req.Content != nil {
		m.Content = truncateBytes(*req.Content, sc.MaxContentBytes)
		textChanged = true
	}
	if req.Tags != nil {
		m.Tags = capTags(req.Tags, sc.MaxTagsPerMemory)
	}
	if req.Importance != nil {
		m.Importance = *req.Importance
	}
	if req.IsPinned != nil {
		m.IsPinned = *req.IsPinned
	}
	if req.ClearExpiresAt {
		m.ExpiresAt = nil
	} else if req.ExpiresAt != nil {
		m.ExpiresAt = req.ExpiresAt
	}

	m.Normalize()

	if textChanged && e.embedder != nil && e.embedder.IsAvailable(ctx) {
		vec, err := e.embedder.Embed(ctx, m.Title+" "+m.Summary+" "+m.Content)
		if err != nil {
			log.Warn("re-embedding on update failed, keeping stale embedding", "id", id, "error", err)
		} else {
			m.Embedding = vec
		}
	}

	if err := e.store.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete physically removes a record, reporting whether it existed.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	return e.store.Delete(ctx, id)
}

// Search runs the hybrid ranked retrieval over current records.
func (e *Engine) Search(ctx context.Context, query string, topN int, tags []string) ([]search.Result, error) {
	return e.search.Search(ctx, search.Options{Query: query, TopN: topN, TagFilter: tags})
}

// Reinforce applies the reinforcement step to id without returning it
// through the access path semantics of Get (same underlying operation,
// exposed separately so callers don't conflate "read" with "reinforce").
func (e *Engine) Reinforce(ctx context.Context, id string) (*store.Memory, error) {
	return e.store.Reinforce(ctx, id)
}

// Stats reports store-wide aggregates.
func (e *Engine) Stats(ctx context.Context) (*store.Stats, error) {
	return e.store.Stats(ctx)
}

// Link makes a and b mutual neighbors, failing if either id does not exist.
// A no-op if already linked.
func (e *Engine) Link(ctx context.Context, a, b string) error {
	ma, err := e.store.Get(ctx, a)
	if err != nil {
		return err
	}
	mb, err := e.store.Get(ctx, b)
	if err != nil {
		return err
	}
	if ma.HasLinkID(b) {
		return nil
	}

	ma.AddLinkID(b)
	mb.AddLinkID(a)
	if err := e.store.Save(ctx, ma); err != nil {
		return err
	}
	return e.store.Save(ctx, mb)
}

// Unlink removes the mutual link between a and b, failing if either id does
// not exist. A no-op if not linked.
func (e *Engine) Unlink(ctx context.Context, a, b string) error {
	ma, err := e.store.Get(ctx, a)
	if err != nil {
		return err
	}
	mb, err := e.store.Get(ctx, b)
	if err != nil {
		return err
	}
	if !ma.HasLinkID(b) {
		return nil
	}

	ma.RemoveLinkID(b)
	mb.RemoveLinkID(a)
	if err := e.store.Save(ctx, ma); err != nil {
		return err
	}
	return e.store.Save(ctx, mb)
}

// Neighbors returns id's direct link targets.
func (e *Engine) Neighbors(ctx context.Context, id string) ([]string, error) {
	m, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.LinkedNodeIDs, nil
}

// Subgraph breadth-first traverses the link graph from id out to depth,
// capped at maxSubgraphNodes total visited nodes regardless of depth. The
// root is included in the result.
func (e *Engine) Subgraph(ctx context.Context, id string, depth int) ([]*store.Memory, error) {
	root, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	type frontierNode struct {
		id    string
		depth int
	}

	visited := map[string]bool{id: true}
	order := []string{id}
	queue := []frontierNode{{id: id, depth: 0}}
	cache := map[string]*store.Memory{id: root}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, engineerr.Cancelled("subgraph")
		}

		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}

		m, ok := cache[cur.id]
		if !ok {
			m, err = e.store.Get(ctx, cur.id)
			if err != nil {
				continue
			}
			cache[cur.id] = m
		}

		for _, n := range m.LinkedNodeIDs {
			if visited[n] {
				continue
			}
			if len(visited) >= maxSubgraphNodes {
				break
			}
			visited[n] = true
			order = append(order, n)
			queue = append(queue, frontierNode{id: n, depth: cur.depth + 1})
		}
	}

	results := make([]*store.Memory, 0, len(order))
	for _, oid := range order {
		m, ok := cache[oid]
		if !ok {
			m, err = e.store.Get(ctx, oid)
			if err != nil {
				continue
			}
		}
		results = append(results, m)
	}
	return results, nil
}

// TagHistory returns every record carrying tag, newest-valid-first, ties
// broken by id ascending for determinism.
func (e *Engine) TagHistory(ctx context.Context, tag string, includeArchived bool) ([]*store.Memory, error) {
	all, err := e.store.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*store.Memory
	for _, m := range all {
		if !includeArchived && m.IsArchived {
			continue
		}
		if m.HasTag(tag) {
			matches = append(matches, m)
		}
	}

	sortByValidFromDesc(matches)
	return matches, nil
}

func sortByValidFromDesc(records []*store.Memory) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0; j-- {
			a, b := records[j-1], records[j]
			if a.ValidFrom.Before(b.ValidFrom) || (a.ValidFrom.Equal(b.ValidFrom) && a.ID > b.ID) {
				records[j-1], records[j] = records[j], records[j-1]
				continue
			}
			break
		}
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func truncateBytes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	b := s[:max]
	for len(b) > 0 && !isRuneStart(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

func isRuneStart(c byte) bool {
	return c&0xC0 != 0x80
}

func capTags(tags []string, max int) []string {
	if max <= 0 || len(tags) <= max {
		return tags
	}
	return tags[:max]
}
