// Package embed defines the embedding provider boundary: an external
// collaborator interface plus a deterministic stub implementation used by
// tests and local development.
package embed

import (
	"hash/fnv"
	"math"
	"math/rand"
)

// Provider turns text into embedding vectors. Implementations may call out
// to a remote model; callers should treat Embed as potentially slow and
// fallible.
type Provider interface {
	Embed(texts []string) ([][]float32, error)
	Dim() int
}

// StubProvider produces deterministic pseudo-embeddings seeded by each
// input text's hash, L2-normalized for cosine similarity. It exists for
// tests and local development where a real embedding model isn't wired up;
// the same text always yields the same vector.
type StubProvider struct {
	dim int
}

// NewStubProvider constructs a StubProvider producing vectors of the given
// dimension.
func NewStubProvider(dim int) *StubProvider {
	return &StubProvider{dim: dim}
}

func (s *StubProvider) Dim() int { return s.dim }

// Embed returns one deterministic unit vector per input text. The text's
// FNV-1a hash seeds a dedicated RNG so repeated calls with the same text
// always produce the same vector, independent of call order or batching.
func (s *StubProvider) Embed(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.embedOne(t)
	}
	return out, nil
}

func (s *StubProvider) embedOne(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	v := make([]float32, s.dim)
	var sumSquares float64
	for i := range v {
		x := rng.NormFloat64()
		v[i] = float32(x)
		sumSquares += x * x
	}
	norm := float32(math.Sqrt(sumSquares)) + 1e-12
	for i := range v {
		v[i] /= norm
	}
	return v
}
