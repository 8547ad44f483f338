package trigram

import "testing"

func TestOfDeterministic(t *testing.T) {
	a := Of("The quick brown fox")
	b := Of("The quick brown fox")

	if len(a) != len(b) {
		t.Fatalf("expected equal sets, got %d vs %d trigrams", len(a), len(b))
	}
	for tg := range a {
		if _, ok := b[tg]; !ok {
			t.Fatalf("trigram %q present in first set but not second", tg)
		}
	}
}

func TestOfCaseInsensitive(t *testing.T) {
	a := Of("Memory Engine")
	b := Of("memory engine")

	if Jaccard(a, b) != 1 {
		t.Fatalf("expected identical sets after case folding, got jaccard=%v", Jaccard(a, b))
	}
}

func TestOfExcludesWhitespaceOnlyShingles(t *testing.T) {
	set := Of("a")
	for tg := range set {
		if len(tg) == 0 {
			t.Fatalf("empty trigram present")
		}
	}
	// "a" normalizes to "  a  " (5 runes): shingles "  a", " a ", "a  ".
	// all contain at least one non-space char, so none should be dropped.
	if len(set) != 3 {
		t.Fatalf("expected 3 trigrams for single-char input, got %d: %v", len(set), set)
	}
}

func TestOfEmptyInput(t *testing.T) {
	if len(Of("")) != 0 {
		t.Fatalf("expected empty set for empty input")
	}
	if len(Of("   ")) != 0 {
		t.Fatalf("expected empty set for whitespace-only input")
	}
}

func TestJaccardIdentity(t *testing.T) {
	s := Of("the quick brown fox jumps over the lazy dog")
	if got := Jaccard(s, s); got != 1 {
		t.Fatalf("jaccard(x, x) = %v, want 1", got)
	}
}

func TestJaccardDisjoint(t *testing.T) {
	a := Of("aaaa")
	b := Of("zzzz")
	if got := Jaccard(a, b); got != 0 {
		t.Fatalf("jaccard of disjoint sets = %v, want 0", got)
	}
}

func TestJaccardEmptySets(t *testing.T) {
	if got := Jaccard(Set{}, Set{}); got != 0 {
		t.Fatalf("jaccard of two empty sets = %v, want 0", got)
	}
	if got := Jaccard(Of("hello"), Set{}); got != 0 {
		t.Fatalf("jaccard against empty set = %v, want 0", got)
	}
}

func TestJaccardPartialOverlap(t *testing.T) {
	a := Of("memory engine")
	b := Of("memory store")

	got := Jaccard(a, b)
	if got <= 0 || got >= 1 {
		t.Fatalf("expected partial overlap in (0,1), got %v", got)
	}
}

func TestSimilarityMatchesJaccardOfSets(t *testing.T) {
	a, b := "semantic search", "semantic memory"
	want := Jaccard(Of(a), Of(b))
	if got := Similarity(a, b); got != want {
		t.Fatalf("Similarity() = %v, want %v", got, want)
	}
}
