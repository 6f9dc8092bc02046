package index

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwinterknight/vectordb/internal/vectordb/model"
)

func randomPairs(n, dim int, seed int64) []Pair {
	rng := rand.New(rand.NewSource(seed))
	pairs := make([]Pair, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		var sumSquares float64
		for j := range v {
			x := rng.NormFloat64()
			v[j] = float32(x)
			sumSquares += x * x
		}
		norm := float32(math.Sqrt(sumSquares))
		for j := range v {
			v[j] /= norm
		}
		pairs[i] = Pair{ChunkID: uuid.New(), Embedding: v}
	}
	return pairs
}

func TestRPForest_EmptyReturnsEmpty(t *testing.T) {
	f := NewRPForest(model.MetricCosine, RPForestParams{Trees: 4, LeafSize: 8, Seed: 1, CandidateMult: 2})
	assert.Empty(t, f.Query([]float32{1, 0}, 5))
}

func TestRPForest_DegenerateLeafSizeMatchesFlatExactly(t *testing.T) {
	pairs := randomPairs(50, 8, 7)

	flat := NewFlatIndex(model.MetricCosine)
	flat.Rebuild(pairs)

	// leaf_size >= N degenerates to exact scan (documented in spec 4.3).
	rp := NewRPForest(model.MetricCosine, RPForestParams{Trees: 3, LeafSize: len(pairs), Seed: 42, CandidateMult: 2})
	rp.Rebuild(pairs)

	q := pairs[0].Embedding
	flatHits := flat.Query(q, 5)
	rpHits := rp.Query(q, 5)

	require.Len(t, rpHits, len(flatHits))
	for i := range flatHits {
		assert.Equal(t, flatHits[i].ChunkID, rpHits[i].ChunkID)
		assert.InDelta(t, flatHits[i].Score, rpHits[i].Score, 1e-5)
	}
}

func TestRPForest_DeterministicGivenSameSeed(t *testing.T) {
	pairs := randomPairs(200, 16, 99)
	params := RPForestParams{Trees: 6, LeafSize: 16, Seed: 1234, CandidateMult: 2}

	f1 := NewRPForest(model.MetricCosine, params)
	f1.Rebuild(pairs)
	f2 := NewRPForest(model.MetricCosine, params)
	f2.Rebuild(pairs)

	q := pairs[3].Embedding
	h1 := f1.Query(q, 5)
	h2 := f2.Query(q, 5)

	require.Equal(t, len(h1), len(h2))
	for i := range h1 {
		assert.Equal(t, h1[i].ChunkID, h2[i].ChunkID)
		assert.Equal(t, h1[i].Score, h2[i].Score)
	}
}

func TestRPForest_CandidateCapParamsClamped(t *testing.T) {
	f := NewRPForest(model.MetricCosine, RPForestParams{Trees: 0, LeafSize: 0, Seed: 1, CandidateMult: 0})
	assert.Equal(t, 1, f.Params().Trees)
	assert.Equal(t, 1, f.Params().LeafSize)
	assert.Equal(t, 0.1, f.Params().CandidateMult)
}
