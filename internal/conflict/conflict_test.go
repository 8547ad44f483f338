package conflict

import (
	"context"
	"testing"

	"github.com/coeus-memory/coeus/internal/embedding"
	"github.com/coeus-memory/coeus/internal/search"
	"github.com/coeus-memory/coeus/internal/store"
	"github.com/coeus-memory/coeus/internal/testutil"
)

func defaultThresholds() Thresholds {
	return Thresholds{Duplicate: 0.95, Supersede: 0.80, Coexist: 0.60}
}

func newResolver(t *testing.T, stub *embedding.StubEmbedder) (*Resolver, *store.Store) {
	t.Helper()
	s := testutil.NewStore(t)
	eng := search.New(s, stub)
	return New(s, eng, stub, defaultThresholds()), s
}

// S1 — duplicate reinforces.
func TestResolveDuplicateReinforcesExisting(t *testing.T) {
	stub := embedding.NewStubEmbedder(2)
	stub.SetFallback([]float32{1, 0})

	r, s := newResolver(t, stub)
	ctx := context.Background()

	first := store.NewMemory("m1", "I live in Paris", "Current residence", "", []string{"residence"})
	outcome, err := r.Resolve(ctx, first)
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	if outcome.Kind != StoredNew {
		t.Fatalf("first Resolve() kind = %v, want StoredNew", outcome.Kind)
	}

	second := store.NewMemory("m2", "I live in Paris", "Current residence", "", []string{"residence"})
	outcome, err = r.Resolve(ctx, second)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if outcome.Kind != ReinforcedExisting {
		t.Fatalf("second Resolve() kind = %v, want ReinforcedExisting", outcome.Kind)
	}
	if outcome.Memory.ID != "m1" {
		t.Fatalf("reinforced memory id = %s, want m1", outcome.Memory.ID)
	}
	if outcome.Memory.AccessCount < 1 {
		t.Fatalf("access_count = %d, want >= 1", outcome.Memory.AccessCount)
	}

	all, err := s.Enumerate(ctx)
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("total records = %d, want 1", len(all))
	}
}

// S2 — supersede employment.
func TestResolveSupersede(t *testing.T) {
	stub := embedding.NewStubEmbedder(4)
	stub.Set("Works at Google Employer", []float32{1, 0, 0, 0})
	stub.Set("Works at Google Employer ", []float32{1, 0, 0, 0})
	stub.Set("Works at Microsoft Employer", []float32{0.85, 0.52, 0, 0})
	stub.Set("Works at Microsoft Employer ", []float32{0.85, 0.52, 0, 0})

	r, s := newResolver(t, stub)
	ctx := context.Background()

	google := store.NewMemory("google", "Works at Google", "Employer", "", []string{"employment"})
	if _, err := r.Resolve(ctx, google); err != nil {
		t.Fatalf("Resolve(google) error = %v", err)
	}

	msft := store.NewMemory("msft", "Works at Microsoft", "Employer", "", []string{"employment"})
	outcome, err := r.Resolve(ctx, msft)
	if err != nil {
		t.Fatalf("Resolve(msft) error = %v", err)
	}
	if outcome.Kind != StoredWithSupersede {
		t.Fatalf("Resolve(msft) kind = %v, want StoredWithSupersede", outcome.Kind)
	}

	archived, err := s.Get(ctx, "google")
	if err != nil {
		t.Fatalf("Get(google) error = %v", err)
	}
	if !archived.IsArchived || archived.SupersededBy == nil || *archived.SupersededBy != "msft" || archived.ValidUntil == nil {
		t.Fatalf("google record not properly superseded: %+v", archived)
	}

	current, err := s.Get(ctx, "msft")
	if err != nil {
		t.Fatalf("Get(msft) error = %v", err)
	}
	found := false
	for _, id := range current.SupersededIDs {
		if id == "google" {
			found = true
		}
	}
	if !found {
		t.Fatalf("msft.superseded_ids = %v, want to contain google", current.SupersededIDs)
	}
}

// S3 — coexist.
func TestResolveCoexist(t *testing.T) {
	stub := embedding.NewStubEmbedder(4)
	stub.Set("First topic Summary one", []float32{1, 0, 0, 0})
	stub.Set("First topic Summary one ", []float32{1, 0, 0, 0})
	stub.Set("Second topic Summary two", []float32{0.7, 0.714, 0, 0})
	stub.Set("Second topic Summary two ", []float32{0.7, 0.714, 0, 0})

	r, s := newResolver(t, stub)
	ctx := context.Background()

	first := store.NewMemory("a", "First topic", "Summary one", "", nil)
	if _, err := r.Resolve(ctx, first); err != nil {
		t.Fatalf("Resolve(a) error = %v", err)
	}

	second := store.NewMemory("b", "Second topic", "Summary two", "", nil)
	outcome, err := r.Resolve(ctx, second)
	if err != nil {
		t.Fatalf("Resolve(b) error = %v", err)
	}
	if outcome.Kind != StoredCoexist {
		t.Fatalf("Resolve(b) kind = %v, want StoredCoexist", outcome.Kind)
	}

	a, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get(a) error = %v", err)
	}
	b, err := s.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get(b) error = %v", err)
	}
	if !a.IsCurrent() || !b.IsCurrent() {
		t.Fatalf("both records should remain current: a.current=%v b.current=%v", a.IsCurrent(), b.IsCurrent())
	}
}

func TestResolveNewWhenNoMatches(t *testing.T) {
	stub := embedding.NewStubEmbedder(2)
	stub.SetFallback([]float32{1, 0})

	r, _ := newResolver(t, stub)
	ctx := context.Background()

	m := store.NewMemory("only", "Unique topic", "Nothing else like it", "", nil)
	outcome, err := r.Resolve(ctx, m)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if outcome.Kind != StoredNew {
		t.Fatalf("Resolve() kind = %v, want StoredNew", outcome.Kind)
	}
}
