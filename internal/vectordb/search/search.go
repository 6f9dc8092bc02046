// Package search implements the query planner: algorithm selection,
// metadata pre-filtering, candidate retrieval, and exact reranking.
package search

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"

	"github.com/iwinterknight/vectordb/internal/vectordb/embed"
	"github.com/iwinterknight/vectordb/internal/vectordb/filter"
	"github.com/iwinterknight/vectordb/internal/vectordb/index"
	"github.com/iwinterknight/vectordb/internal/vectordb/indexing"
	"github.com/iwinterknight/vectordb/internal/vectordb/model"
	"github.com/iwinterknight/vectordb/internal/vectordb/repo"
	"github.com/iwinterknight/vectordb/internal/vectordb/verrors"
)

// defaultEphemeralCacheSize bounds how many libraries' ad-hoc flat indices
// are held in memory at once.
const defaultEphemeralCacheSize = 64

// Hit is one ranked result returned to a caller.
type Hit struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	LibraryID  uuid.UUID
	Score      float32
	Text       string
}

// Request is a k-NN search request.
type Request struct {
	QueryText      string
	QueryEmbedding []float32
	K              int
	Algo           model.IndexAlgo // "", "auto", "flat", "rp"
	Metric         model.Metric
	Filters        filter.Predicate
}

// RerankRequest scores a caller-supplied candidate set exactly, without
// consulting any index or filter.
type RerankRequest struct {
	QueryEmbedding []float32
	CandidateIDs   []uuid.UUID
	K              int
	Metric         model.Metric
}

type cacheEntry struct {
	idx     *index.FlatIndex
	version int64
}

// Service is the query planner. It holds its own ephemeral flat-index
// cache, separate from the indexing service's durable build cache, for
// ad-hoc algo=flat queries issued against a library with no prior build.
type Service struct {
	repo     *repo.Repo
	indexing *indexing.Service
	embedder embed.Provider

	ephemeral *lru.Cache[uuid.UUID, cacheEntry]
}

// New constructs a search service. cacheSize <= 0 uses the default.
func New(r *repo.Repo, idxSvc *indexing.Service, embedder embed.Provider, cacheSize int) *Service {
	if cacheSize <= 0 {
		cacheSize = defaultEphemeralCacheSize
	}
	c, _ := lru.New[uuid.UUID, cacheEntry](cacheSize)
	return &Service{repo: r, indexing: idxSvc, embedder: embedder, ephemeral: c}
}

// Search runs the planner under the library's read lock.
func (s *Service) Search(libraryID uuid.UUID, req Request) ([]Hit, error) {
	lib, ok := s.repo.GetLibrary(libraryID)
	if !ok {
		return nil, verrors.NotFound("Library")
	}

	lock := s.repo.GetLock(libraryID)
	lock.RLock()
	defer lock.RUnlock()

	q, err := s.resolveQueryVector(libraryID, req)
	if err != nil {
		return nil, err
	}

	k := req.K
	if k <= 0 {
		k = 5
	}
	metric := req.Metric
	if metric == "" {
		metric = model.MetricCosine
	}

	allowed, hasFilter := s.allowedIDs(lib, req.Filters)

	algo := req.Algo
	if algo == "" {
		algo = "auto"
	}

	var hits []index.Hit
	switch algo {
	case model.AlgoFlat:
		flatIdx, err := s.flatIndexFor(libraryID)
		if err != nil {
			return nil, err
		}
		hits = s.scoreFlat(flatIdx, q, k, allowed, hasFilter)
	case model.AlgoRP:
		_, idx, ok := s.indexing.GetAvailableIndex(libraryID, model.AlgoRP)
		if !ok {
			return nil, verrors.BadRequest("RP index not built for this library")
		}
		hits = s.scoreRP(idx, q, k, allowed, hasFilter)
	case "auto":
		chosenAlgo, idx, ok := s.indexing.GetAvailableIndex(libraryID, "")
		if ok && chosenAlgo == model.AlgoRP {
			hits = s.scoreRP(idx, q, k, allowed, hasFilter)
		} else if ok && chosenAlgo == model.AlgoFlat {
			hits = s.scoreFlatFromIndex(idx, q, k, allowed, hasFilter)
		} else {
			flatIdx, err := s.flatIndexFor(libraryID)
			if err != nil {
				return nil, err
			}
			hits = s.scoreFlat(flatIdx, q, k, allowed, hasFilter)
		}
	default:
		return nil, verrors.BadRequest("unknown algorithm")
	}

	return s.projectHits(hits), nil
}

// Rerank scores a caller-supplied candidate set exactly and returns top-k.
// It consults neither an index nor filters.
func (s *Service) Rerank(libraryID uuid.UUID, req RerankRequest) ([]Hit, error) {
	lock := s.repo.GetLock(libraryID)
	lock.RLock()
	defer lock.RUnlock()

	metric := req.Metric
	if metric == "" {
		metric = model.MetricCosine
	}
	k := req.K
	if k <= 0 {
		k = 5
	}

	pairs := make([]index.Pair, 0, len(req.CandidateIDs))
	for _, id := range req.CandidateIDs {
		if c, ok := s.repo.GetChunk(id); ok && c.LibraryID == libraryID {
			pairs = append(pairs, index.Pair{ChunkID: c.ID, Embedding: c.Embedding})
		}
	}
	idx := index.NewFlatIndex(metric)
	idx.Rebuild(pairs)
	hits := idx.Query(req.QueryEmbedding, k)
	return s.projectHits(hits), nil
}

func (s *Service) resolveQueryVector(libraryID uuid.UUID, req Request) ([]float32, error) {
	var q []float32
	if req.QueryEmbedding != nil {
		q = req.QueryEmbedding
	} else {
		if req.QueryText == "" {
			return nil, verrors.BadRequest("provide query_text or query_embedding")
		}
		vecs, err := s.embedder.Embed([]string{req.QueryText})
		if err != nil {
			return nil, verrors.Transient("embedding request failed", err)
		}
		q = vecs[0]
	}
	if err := s.ensureDim(libraryID, q); err != nil {
		return nil, err
	}
	return q, nil
}

// ensureDim fixes the library's embedding_dim on first use, or rejects a
// mismatched query vector thereafter.
func (s *Service) ensureDim(libraryID uuid.UUID, q []float32) error {
	lib, ok := s.repo.GetLibrary(libraryID)
	if !ok {
		return verrors.NotFound("Library")
	}
	dim := len(q)
	if lib.EmbeddingDim == nil {
		lib.EmbeddingDim = &dim
		s.repo.PutLibrary(lib)
		return nil
	}
	if *lib.EmbeddingDim != dim {
		return verrors.BadRequest("Embedding dimension mismatch")
	}
	return nil
}

// allowedIDs computes the set of chunk ids passing the filter predicate.
// The second return is false when no filters were supplied (allowed set is
// implicitly "all").
func (s *Service) allowedIDs(lib *model.Library, pred filter.Predicate) (map[uuid.UUID]struct{}, bool) {
	if pred.Empty() {
		return nil, false
	}
	allowed := make(map[uuid.UUID]struct{})
	for _, doc := range s.repo.ListDocumentsByLibrary(lib.ID) {
		for _, c := range s.repo.ListChunksByDocument(doc.ID) {
			if pred.Match(c, doc, lib) {
				allowed[c.ID] = struct{}{}
			}
		}
	}
	return allowed, true
}

func (s *Service) flatIndexFor(libraryID uuid.UUID) (*index.FlatIndex, error) {
	if idx, ok := s.indexing.FlatIndexFor(libraryID); ok {
		return idx, nil
	}
	return s.ephemeralFlatIndex(libraryID)
}

// ephemeralFlatIndex returns a cached ad-hoc flat index for libraryID,
// rebuilding it if the library's chunk set has changed since it was cached
// or if nothing is cached yet.
func (s *Service) ephemeralFlatIndex(libraryID uuid.UUID) (*index.FlatIndex, error) {
	version := s.repo.ChunkVersion(libraryID)
	if entry, ok := s.ephemeral.Get(libraryID); ok && entry.version == version {
		return entry.idx, nil
	}

	chunks := s.repo.ListChunksByLibrary(libraryID)
	pairs := make([]index.Pair, 0, len(chunks))
	for _, c := range chunks {
		if c.Embedding != nil {
			pairs = append(pairs, index.Pair{ChunkID: c.ID, Embedding: c.Embedding})
		}
	}
	idx := index.NewFlatIndex(model.MetricCosine)
	idx.Rebuild(pairs)
	s.ephemeral.Add(libraryID, cacheEntry{idx: idx, version: version})
	return idx, nil
}

func (s *Service) scoreFlat(idx *index.FlatIndex, q []float32, k int, allowed map[uuid.UUID]struct{}, hasFilter bool) []index.Hit {
	if !hasFilter {
		return idx.Query(q, k)
	}
	return scoreAllowedExact(idx, q, k, allowed)
}

func (s *Service) scoreFlatFromIndex(idx index.Index, q []float32, k int, allowed map[uuid.UUID]struct{}, hasFilter bool) []index.Hit {
	flatIdx, ok := idx.(*index.FlatIndex)
	if !ok {
		return filterHits(idx.Query(q, k), allowed, hasFilter, k)
	}
	return s.scoreFlat(flatIdx, q, k, allowed, hasFilter)
}

func (s *Service) scoreRP(idx index.Index, q []float32, k int, allowed map[uuid.UUID]struct{}, hasFilter bool) []index.Hit {
	hits := idx.Query(q, k)
	return filterHits(hits, allowed, hasFilter, k)
}

// scoreAllowedExact scores only the allowed chunk ids that the flat index
// actually holds embeddings for, then top-k's the result.
func scoreAllowedExact(idx *index.FlatIndex, q []float32, k int, allowed map[uuid.UUID]struct{}) []index.Hit {
	all := idx.Query(q, idx.Len())
	return filterHits(all, allowed, true, k)
}

func filterHits(hits []index.Hit, allowed map[uuid.UUID]struct{}, hasFilter bool, k int) []index.Hit {
	if !hasFilter {
		if k < len(hits) {
			return hits[:k]
		}
		return hits
	}
	out := make([]index.Hit, 0, len(hits))
	for _, h := range hits {
		if _, ok := allowed[h.ChunkID]; ok {
			out = append(out, h)
		}
	}
	if k < len(out) {
		out = out[:k]
	}
	return out
}

func (s *Service) projectHits(hits []index.Hit) []Hit {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		c, ok := s.repo.GetChunk(h.ChunkID)
		if !ok {
			continue
		}
		out = append(out, Hit{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			LibraryID:  c.LibraryID,
			Score:      h.Score,
			Text:       c.Text,
		})
	}
	return out
}
