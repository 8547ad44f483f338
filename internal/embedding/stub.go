package embedding

import "context"

// StubEmbedder is a deterministic, in-memory embedder for tests that need
// fixed similarity relationships between specific texts (scenarios S2/S3 in
// spec.md §8 call for this explicitly, since a real model's similarity is
// not reproducible across runs).
type StubEmbedder struct {
	dim     int
	vectors map[string][]float32
	// Fallback is used for any text not present in vectors.
	fallback []float32
}

// NewStubEmbedder returns a StubEmbedder of the given dimension whose
// vectors map is empty; populate it with Set before use.
func NewStubEmbedder(dim int) *StubEmbedder {
	return &StubEmbedder{dim: dim, vectors: make(map[string][]float32)}
}

// Set registers the exact vector to return for text.
func (s *StubEmbedder) Set(text string, vector []float32) {
	s.vectors[text] = vector
}

// SetFallback registers the vector returned for any text not explicitly
// Set.
func (s *StubEmbedder) SetFallback(vector []float32) {
	s.fallback = vector
}

func (s *StubEmbedder) IsAvailable(ctx context.Context) bool { return true }
func (s *StubEmbedder) Dim() int                             { return s.dim }

func (s *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return make([]float32, s.dim), nil
}
