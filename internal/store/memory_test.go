package store

import (
	"math"
	"testing"
	"time"
)

func TestCurrentStrengthPinnedNeverDecays(t *testing.T) {
	m := NewMemory("m1", "t", "s", "c", nil)
	m.IsPinned = true
	m.BaseStrength = 2.5
	m.LastAccessedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)

	if got := m.CurrentStrength(time.Now().UTC()); got != 2.5 {
		t.Fatalf("pinned strength = %v, want 2.5 (base_strength unchanged)", got)
	}
}

func TestCurrentStrengthNeverNegative(t *testing.T) {
	m := NewMemory("m1", "t", "s", "c", nil)
	m.BaseStrength = 1.0
	m.DecayRate = 5.0
	m.Importance = 0
	m.LastAccessedAt = time.Now().UTC().Add(-365 * 24 * time.Hour)

	if got := m.CurrentStrength(time.Now().UTC()); got < 0 {
		t.Fatalf("current_strength = %v, want >= 0", got)
	}
}

func TestCurrentStrengthDecaysWithTime(t *testing.T) {
	now := time.Now().UTC()
	m := NewMemory("m1", "t", "s", "c", nil)
	m.BaseStrength = 1.0
	m.DecayRate = 1.0
	m.Importance = 0
	m.LastAccessedAt = now.Add(-10 * 24 * time.Hour)

	got := m.CurrentStrength(now)
	want := math.Exp(-10)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("current_strength = %v, want %v", got, want)
	}
}

func TestReinforceIncrementsAndRecencyStamp(t *testing.T) {
	m := NewMemory("m1", "t", "s", "c", nil)
	m.AccessCount = 3
	before := m.BaseStrength

	now := time.Now().UTC()
	m.Reinforce(now)

	if m.AccessCount != 4 {
		t.Fatalf("access_count = %d, want 4", m.AccessCount)
	}
	wantStrength := before + 0.1/math.Sqrt(4)
	if math.Abs(m.BaseStrength-wantStrength) > 1e-9 {
		t.Fatalf("base_strength = %v, want %v", m.BaseStrength, wantStrength)
	}
	if !m.LastAccessedAt.Equal(now) {
		t.Fatalf("last_accessed_at not updated to reinforce time")
	}
}

func TestReinforceDiminishingReturns(t *testing.T) {
	m := NewMemory("m1", "t", "s", "c", nil)
	now := time.Now().UTC()

	m.Reinforce(now)
	firstGain := m.BaseStrength - defaultBaseStrength

	m.Reinforce(now)
	secondGain := m.BaseStrength - defaultBaseStrength - firstGain

	if secondGain >= firstGain {
		t.Fatalf("expected diminishing returns, first=%v second=%v", firstGain, secondGain)
	}
}

func TestNormalizeDedupesTagsCaseInsensitive(t *testing.T) {
	m := NewMemory("m1", "t", "s", "c", []string{"Go", "go", "GO", "rust"})
	if len(m.Tags) != 2 {
		t.Fatalf("tags = %v, want 2 deduped entries", m.Tags)
	}
}

func TestNormalizeCapsTagsAtTwenty(t *testing.T) {
	tags := make([]string, 30)
	for i := range tags {
		tags[i] = string(rune('a' + i%26))
		if i >= 26 {
			tags[i] = tags[i] + "2"
		}
	}
	m := NewMemory("m1", "t", "s", "c", tags)
	if len(m.Tags) > defaultMaxTags {
		t.Fatalf("tags len = %d, want <= %d", len(m.Tags), defaultMaxTags)
	}
}

func TestNormalizeComputesContentNormalized(t *testing.T) {
	m := NewMemory("m1", "Hello World", "A Summary", "Body Text", []string{"Tag1"})
	want := "hello world a summary body text tag1"
	if m.ContentNormalized != want {
		t.Fatalf("content_normalized = %q, want %q", m.ContentNormalized, want)
	}
}

func TestIsCurrentAndIsExpired(t *testing.T) {
	m := NewMemory("m1", "t", "s", "c", nil)
	if !m.IsCurrent() {
		t.Fatalf("fresh record should be current")
	}

	future := time.Now().UTC().Add(time.Hour)
	m.ExpiresAt = &future
	if m.IsExpired(time.Now().UTC()) {
		t.Fatalf("record with future expiry should not be expired yet")
	}

	past := time.Now().UTC().Add(-time.Hour)
	m.ExpiresAt = &past
	if !m.IsExpired(time.Now().UTC()) {
		t.Fatalf("record with past expiry should be expired")
	}

	archivedAt := time.Now().UTC()
	m.ValidUntil = &archivedAt
	m.IsArchived = true
	if m.IsCurrent() {
		t.Fatalf("archived record should not be current")
	}
}

func TestLinkSymmetryHelpers(t *testing.T) {
	a := NewMemory("a", "t", "s", "c", nil)
	a.AddLinkID("b")
	a.AddLinkID("b")
	if len(a.LinkedNodeIDs) != 1 {
		t.Fatalf("AddLinkID should be idempotent, got %v", a.LinkedNodeIDs)
	}

	a.RemoveLinkID("b")
	if len(a.LinkedNodeIDs) != 0 {
		t.Fatalf("expected link removed, got %v", a.LinkedNodeIDs)
	}
}
