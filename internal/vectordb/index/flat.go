// Package index provides the two vector index implementations the search
// planner selects between: an exact brute-force FlatIndex and the
// approximate RPForest.
package index

import (
	"sort"

	"github.com/google/uuid"

	"github.com/iwinterknight/vectordb/internal/vectordb/metric"
	"github.com/iwinterknight/vectordb/internal/vectordb/model"
)

// Hit is one scored candidate returned by an index query.
type Hit struct {
	ChunkID uuid.UUID
	Score   float32
}

// Index is the common surface of FlatIndex and RPForest, letting the
// indexing and search services hold either behind one interface.
type Index interface {
	Query(q []float32, k int) []Hit
	Len() int
}

// Pair is a (chunk id, embedding) tuple fed into an index build.
type Pair struct {
	ChunkID   uuid.UUID
	Embedding []float32
}

// FlatIndex does a brute-force scan over every stored vector and ranks by
// the unified score convention. Complexity is O(N*d) per query.
type FlatIndex struct {
	metric model.Metric
	ids    []uuid.UUID
	vecs   [][]float32
}

// NewFlatIndex constructs an empty flat index for the given metric.
func NewFlatIndex(m model.Metric) *FlatIndex {
	return &FlatIndex{metric: m}
}

// Rebuild atomically replaces the index contents. The caller owns pairs and
// must not mutate it afterward.
func (f *FlatIndex) Rebuild(pairs []Pair) {
	ids := make([]uuid.UUID, len(pairs))
	vecs := make([][]float32, len(pairs))
	for i, p := range pairs {
		ids[i] = p.ChunkID
		vecs[i] = p.Embedding
	}
	f.ids = ids
	f.vecs = vecs
}

// Len reports the number of vectors currently indexed.
func (f *FlatIndex) Len() int {
	return len(f.ids)
}

// Metric reports the metric this index was built with.
func (f *FlatIndex) Metric() model.Metric {
	return f.metric
}

// Query scores every stored vector against q and returns the top-k hits in
// decreasing score order, breaking ties by insertion order. Empty index
// returns an empty (non-nil) result.
func (f *FlatIndex) Query(q []float32, k int) []Hit {
	hits := make([]Hit, len(f.ids))
	for i, v := range f.vecs {
		hits[i] = Hit{ChunkID: f.ids[i], Score: metric.Score(f.metric, q, v)}
	}
	return topK(hits, k)
}

// topK sorts hits by decreasing score, breaking ties by original (insertion)
// order, and truncates to k. The sort is stable so ties keep their relative
// insertion order.
func topK(hits []Hit, k int) []Hit {
	if k < 0 {
		k = 0
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if k > len(hits) {
		k = len(hits)
	}
	out := make([]Hit, k)
	copy(out, hits[:k])
	return out
}
