// Package store implements the memory engine's persistent document store:
// the Memory record type, its strength/decay/reinforcement arithmetic, and a
// SQLite-backed implementation of the save/get/delete/enumerate/prune/stats
// contract the rest of the engine depends on.
package store

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/coeus-memory/coeus/internal/trigram"
)

// Default field limits, mirrored by pkg/config but enforced here too as a
// last line of defense so a record can never violate the data model's
// invariants regardless of which caller constructed it.
const (
	defaultMaxTags           = 20
	defaultBaseStrength      = 1.0
	defaultDecayRate         = 0.1
	defaultImportance        = 0.5
	reinforcementStep        = 0.1
	recencyHalfLifeDays      = 30.0
)

// Memory is the engine's sole domain entity.
type Memory struct {
	ID                 string
	Title              string
	Summary            string
	Content            string
	ContentNormalized  string
	Tags               []string
	Embedding          []float32
	CreatedAt          time.Time
	LastAccessedAt     time.Time
	AccessCount        int
	BaseStrength       float64
	DecayRate          float64
	Importance         float64
	IsPinned           bool
	ExpiresAt          *time.Time
	IsArchived         bool
	SupersededBy       *string
	SupersededIDs      []string
	ValidFrom          time.Time
	ValidUntil         *time.Time
	LinkedNodeIDs      []string
}

// NewMemory constructs a record with the defaults spec.md §3 requires for a
// freshly created memory, then normalizes it.
func NewMemory(id, title, summary, content string, tags []string) *Memory {
	now := time.Now().UTC()
	m := &Memory{
		ID:             id,
		Title:          title,
		Summary:        summary,
		Content:        content,
		Tags:           tags,
		CreatedAt:      now,
		LastAccessedAt: now,
		BaseStrength:   defaultBaseStrength,
		DecayRate:      defaultDecayRate,
		Importance:     defaultImportance,
		ValidFrom:      now,
	}
	m.Normalize()
	return m
}

// Normalize recomputes content_normalized and dedupes/caps tags, enforcing
// invariants 4 and 5 unconditionally on every mutation path. Callers must
// invoke this after changing Title, Summary, Content, or Tags.
func (m *Memory) Normalize() {
	m.Tags = dedupeTags(m.Tags)
	if len(m.Tags) > defaultMaxTags {
		m.Tags = m.Tags[:defaultMaxTags]
	}
	if m.Importance < 0 {
		m.Importance = 0
	}
	if m.Importance > 1 {
		m.Importance = 1
	}

	var b strings.Builder
	b.WriteString(m.Title)
	b.WriteByte(' ')
	b.WriteString(m.Summary)
	b.WriteByte(' ')
	b.WriteString(m.Content)
	b.WriteByte(' ')
	b.WriteString(strings.Join(m.Tags, " "))
	m.ContentNormalized = strings.TrimSpace(strings.ToLower(b.String()))
}

// Trigrams derives the shingle set from content_normalized. It is never
// persisted; callers recompute it from the loaded record.
func (m *Memory) Trigrams() trigram.Set {
	return trigram.Of(m.ContentNormalized)
}

// dedupeTags preserves insertion order while dropping case-insensitive
// duplicates, per invariant 4.
func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// HasTag reports case-insensitive tag membership.
func (m *Memory) HasTag(tag string) bool {
	target := strings.ToLower(tag)
	for _, t := range m.Tags {
		if strings.ToLower(t) == target {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether m has at least one tag (case-insensitive) in
// filter.
func (m *Memory) HasAnyTag(filter []string) bool {
	for _, f := range filter {
		if m.HasTag(f) {
			return true
		}
	}
	return false
}

// IsCurrent is the pure derived property from spec.md §3.
func (m *Memory) IsCurrent() bool {
	return m.ValidUntil == nil && !m.IsArchived
}

// IsExpired is the pure derived property from spec.md §3.
func (m *Memory) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// CurrentStrength implements the §4.2 decay formula. Pinned records never
// decay. The result is never negative, satisfying invariant 1.
func (m *Memory) CurrentStrength(now time.Time) float64 {
	if m.IsPinned {
		return m.BaseStrength
	}

	days := now.Sub(m.LastAccessedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	exponent := -(m.DecayRate * (1 - m.Importance/2)) * days
	strength := m.BaseStrength * math.Exp(exponent)
	if strength < 0 {
		return 0
	}
	return strength
}

// RecencyScore implements the §4.4 recency sub-score.
func (m *Memory) RecencyScore(now time.Time) float64 {
	days := now.Sub(m.LastAccessedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / recencyHalfLifeDays)
}

// Reinforce applies §4.2's reinforcement arithmetic in place.
func (m *Memory) Reinforce(now time.Time) {
	m.AccessCount++
	m.BaseStrength += reinforcementStep / math.Sqrt(float64(m.AccessCount))
	m.LastAccessedAt = now
}

// HasLinkID reports whether id is already a link target.
func (m *Memory) HasLinkID(id string) bool {
	for _, l := range m.LinkedNodeIDs {
		if l == id {
			return true
		}
	}
	return false
}

// AddLinkID inserts id into LinkedNodeIDs if absent, preserving order.
func (m *Memory) AddLinkID(id string) {
	for _, l := range m.LinkedNodeIDs {
		if l == id {
			return
		}
	}
	m.LinkedNodeIDs = append(m.LinkedNodeIDs, id)
}

// RemoveLinkID removes id from LinkedNodeIDs if present.
func (m *Memory) RemoveLinkID(id string) {
	out := m.LinkedNodeIDs[:0]
	for _, l := range m.LinkedNodeIDs {
		if l != id {
			out = append(out, l)
		}
	}
	m.LinkedNodeIDs = out
}

// AddSupersededID appends id to SupersededIDs, kept sorted for deterministic
// comparisons in tests.
func (m *Memory) AddSupersededID(id string) {
	for _, s := range m.SupersededIDs {
		if s == id {
			return
		}
	}
	m.SupersededIDs = append(m.SupersededIDs, id)
	sort.Strings(m.SupersededIDs)
}
