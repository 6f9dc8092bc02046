package index

import (
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iwinterknight/vectordb/internal/vectordb/metric"
	"github.com/iwinterknight/vectordb/internal/vectordb/model"
)

// RPForestParams configures an RPForest build.
type RPForestParams struct {
	Trees         int     // number of trees in the forest, >= 1
	LeafSize      int     // max points per leaf before splitting, >= 1
	Seed          int64   // forest seed; each tree derives its own child seed from this
	CandidateMult float64 // >= 0.1; bounds the candidate pool at query time
}

// maxSplitRetries bounds how many times a node resamples its hyperplane
// before giving up and emitting a leaf on a degenerate (all-left or
// all-right) split.
const maxSplitRetries = 5

// rpNode is either an internal split node or a leaf; exactly one of the two
// shapes is meaningful at a time, selected by isLeaf.
type rpNode struct {
	isLeaf bool

	// internal
	w     []float32
	b     float32
	left  *rpNode
	right *rpNode

	// leaf
	ids []uuid.UUID
}

type rpTree struct {
	leafSize int
	rng      *rand.Rand
	root     *rpNode
}

func (t *rpTree) build(ids []uuid.UUID, vecs [][]float32) {
	idxs := make([]int, len(ids))
	for i := range idxs {
		idxs[i] = i
	}
	t.root = t.buildNode(idxs, ids, vecs)
}

func (t *rpTree) randomUnitVector(dim int) []float32 {
	v := make([]float32, dim)
	var sumSquares float64
	for i := range v {
		x := t.rng.NormFloat64()
		v[i] = float32(x)
		sumSquares += x * x
	}
	norm := float32(math.Sqrt(sumSquares))
	if norm == 0 {
		norm = 1
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}

func (t *rpTree) buildNode(idxs []int, ids []uuid.UUID, vecs [][]float32) *rpNode {
	if len(idxs) <= t.leafSize {
		return leafOf(idxs, ids)
	}

	dim := len(vecs[idxs[0]])
	type proj struct {
		p float32
		i int
	}

	for try := 0; try < maxSplitRetries; try++ {
		w := t.randomUnitVector(dim)
		projs := make([]proj, len(idxs))
		for j, i := range idxs {
			projs[j] = proj{p: metric.Dot(w, vecs[i]), i: i}
		}
		sort.Slice(projs, func(a, b int) bool { return projs[a].p < projs[b].p })
		b := projs[len(projs)/2].p

		var leftIdxs, rightIdxs []int
		for _, pr := range projs {
			if pr.p < b {
				leftIdxs = append(leftIdxs, pr.i)
			} else {
				rightIdxs = append(rightIdxs, pr.i)
			}
		}
		if len(leftIdxs) > 0 && len(rightIdxs) > 0 {
			return &rpNode{
				w:     w,
				b:     b,
				left:  t.buildNode(leftIdxs, ids, vecs),
				right: t.buildNode(rightIdxs, ids, vecs),
			}
		}
	}

	// Every retry produced a degenerate split; fall back to a leaf.
	return leafOf(idxs, ids)
}

func leafOf(idxs []int, ids []uuid.UUID) *rpNode {
	leafIDs := make([]uuid.UUID, len(idxs))
	for j, i := range idxs {
		leafIDs[j] = ids[i]
	}
	return &rpNode{isLeaf: true, ids: leafIDs}
}

func (t *rpTree) candidates(q []float32) []uuid.UUID {
	n := t.root
	for n != nil && !n.isLeaf {
		if metric.Dot(n.w, q) >= n.b {
			n = n.right
		} else {
			n = n.left
		}
	}
	if n == nil {
		return nil
	}
	return n.ids
}

// RPForest is an Annoy-style random-projection forest: M trees split by
// random hyperplanes at the median projection, queried by descending each
// tree to its matching leaf, unioning candidates, and exact-reranking.
type RPForest struct {
	metric model.Metric
	params RPForestParams

	trees   []*rpTree
	byID    map[uuid.UUID][]float32
	idOrder []uuid.UUID
}

// NewRPForest constructs an empty RPForest for the given metric and params.
// Zero/unset params are clamped to their documented minimums.
func NewRPForest(m model.Metric, params RPForestParams) *RPForest {
	if params.Trees < 1 {
		params.Trees = 1
	}
	if params.LeafSize < 1 {
		params.LeafSize = 1
	}
	if params.CandidateMult < 0.1 {
		params.CandidateMult = 0.1
	}
	return &RPForest{metric: m, params: params}
}

// Params returns the params this forest was built with.
func (f *RPForest) Params() RPForestParams {
	return f.params
}

// Len reports the number of vectors currently indexed.
func (f *RPForest) Len() int {
	return len(f.idOrder)
}

// Rebuild constructs params.Trees trees from pairs, replacing prior state
// atomically (the caller swaps in the returned/mutated *RPForest as a single
// pointer assignment). Each tree's child RNG is drawn sequentially from the
// forest's base RNG before any concurrent work starts, so the build is
// deterministic regardless of goroutine scheduling.
func (f *RPForest) Rebuild(pairs []Pair) {
	ids := make([]uuid.UUID, len(pairs))
	vecs := make([][]float32, len(pairs))
	byID := make(map[uuid.UUID][]float32, len(pairs))
	for i, p := range pairs {
		ids[i] = p.ChunkID
		vecs[i] = p.Embedding
		byID[p.ChunkID] = p.Embedding
	}
	f.byID = byID
	f.idOrder = ids

	base := rand.New(rand.NewSource(f.params.Seed))
	childSeeds := make([]int64, f.params.Trees)
	for i := range childSeeds {
		childSeeds[i] = base.Int63()
	}

	trees := make([]*rpTree, f.params.Trees)
	g := new(errgroup.Group)
	g.SetLimit(max(1, runtime.GOMAXPROCS(0)))
	for i := range trees {
		i := i
		g.Go(func() error {
			t := &rpTree{leafSize: f.params.LeafSize, rng: rand.New(rand.NewSource(childSeeds[i]))}
			t.build(ids, vecs)
			trees[i] = t
			return nil
		})
	}
	_ = g.Wait() // tree builds never return an error

	f.trees = trees
}

// Query descends each tree to its matching leaf, unions candidate ids up to
// the forest's cap, and exact-reranks the candidate pool to return the
// top-k hits.
func (f *RPForest) Query(q []float32, k int) []Hit {
	if len(f.trees) == 0 {
		return []Hit{}
	}

	limit := k
	if poolCap := int(float64(f.params.Trees*f.params.LeafSize) * f.params.CandidateMult); poolCap > limit {
		limit = poolCap
	}

	seen := make(map[uuid.UUID]struct{})
	var candOrder []uuid.UUID
	for _, t := range f.trees {
		for _, id := range t.candidates(q) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			candOrder = append(candOrder, id)
		}
		if len(candOrder) >= limit {
			break
		}
	}
	if len(candOrder) > limit {
		candOrder = candOrder[:limit]
	}

	hits := make([]Hit, len(candOrder))
	for i, id := range candOrder {
		hits[i] = Hit{ChunkID: id, Score: metric.Score(f.metric, q, f.byID[id])}
	}
	return topK(hits, k)
}
