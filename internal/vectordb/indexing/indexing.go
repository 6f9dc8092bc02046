// Package indexing manages per-library flat and RP-forest index caches and
// the write-locked build/swap that keeps them consistent with a library's
// index state.
package indexing

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iwinterknight/vectordb/internal/vectordb/durability"
	"github.com/iwinterknight/vectordb/internal/vectordb/index"
	"github.com/iwinterknight/vectordb/internal/vectordb/model"
	"github.com/iwinterknight/vectordb/internal/vectordb/repo"
	"github.com/iwinterknight/vectordb/internal/vectordb/verrors"
)

// BuildParams configures an index build. Only the fields relevant to Algo
// are consulted; the rest are ignored.
type BuildParams struct {
	Trees         int
	LeafSize      int
	Seed          int64
	CandidateMult float64
}

// DefaultBuildParams mirrors the reference service's defaults.
func DefaultBuildParams() BuildParams {
	return BuildParams{Trees: 8, LeafSize: 64, Seed: 42, CandidateMult: 2.0}
}

// Service owns the per-library index caches. Build takes the library's
// write lock (repo.GetLock) itself, so that a build can't race a concurrent
// mutation of the same library's chunks.
type Service struct {
	repo  *repo.Repo
	store *durability.Store

	mu          sync.RWMutex
	flatIndices map[uuid.UUID]*index.FlatIndex
	rpIndices   map[uuid.UUID]*index.RPForest
}

// New constructs an indexing service bound to repo and the durability store
// Build persists library.index_state entries to.
func New(r *repo.Repo, store *durability.Store) *Service {
	return &Service{
		repo:        r,
		store:       store,
		flatIndices: make(map[uuid.UUID]*index.FlatIndex),
		rpIndices:   make(map[uuid.UUID]*index.RPForest),
	}
}

func pairsForLibrary(r *repo.Repo, libraryID uuid.UUID) []index.Pair {
	chunks := r.ListChunksByLibrary(libraryID)
	pairs := make([]index.Pair, 0, len(chunks))
	for _, c := range chunks {
		if c.Embedding != nil {
			pairs = append(pairs, index.Pair{ChunkID: c.ID, Embedding: c.Embedding})
		}
	}
	return pairs
}

// Build rebuilds the named algorithm's index for libraryID from the
// library's current embedded chunks and atomically swaps it into the
// cache. It holds the library's write lock for its whole run, so the
// caller must not already hold that lock. When
// updateState is true, the library's IndexState mirror and per-algo map
// are updated; when persist is also true, a library.index_state WAL entry
// carrying both is appended so the build survives a restart without a
// fresh snapshot.
func (s *Service) Build(libraryID uuid.UUID, algo model.IndexAlgo, metric model.Metric, params BuildParams, persist, updateState bool) (int, error) {
	lock := s.repo.GetLock(libraryID)
	lock.Lock()
	defer lock.Unlock()

	lib, ok := s.repo.GetLibrary(libraryID)
	if !ok {
		return 0, verrors.NotFound("Library")
	}

	pairs := pairsForLibrary(s.repo, libraryID)
	size := len(pairs)

	rawParams := map[string]any{
		"trees":          params.Trees,
		"leaf_size":       params.LeafSize,
		"seed":           params.Seed,
		"candidate_mult": params.CandidateMult,
	}

	switch algo {
	case model.AlgoFlat:
		idx := index.NewFlatIndex(metric)
		idx.Rebuild(pairs)
		s.mu.Lock()
		s.flatIndices[libraryID] = idx
		s.mu.Unlock()
		rawParams = map[string]any{}
	case model.AlgoRP:
		idx := index.NewRPForest(metric, index.RPForestParams{
			Trees:         params.Trees,
			LeafSize:      params.LeafSize,
			Seed:          params.Seed,
			CandidateMult: params.CandidateMult,
		})
		idx.Rebuild(pairs)
		s.mu.Lock()
		s.rpIndices[libraryID] = idx
		s.mu.Unlock()
	default:
		return 0, verrors.BadRequest("unknown index algo")
	}

	if !updateState {
		return size, nil
	}

	now := time.Now().UTC()
	algoCopy := algo
	state := model.IndexState{
		Built:       true,
		Algo:        &algoCopy,
		Metric:      metric,
		Params:      rawParams,
		Size:        size,
		LastBuiltAt: &now,
	}
	lib.IndexState = state
	if lib.IndexStates == nil {
		lib.IndexStates = map[string]model.IndexState{}
	}
	lib.IndexStates[string(algo)] = state
	s.repo.PutLibrary(lib)

	if persist {
		states := make(map[string]model.IndexState, len(lib.IndexStates))
		for k, v := range lib.IndexStates {
			states[k] = v
		}
		if err := s.store.AppendWAL(repo.WALEntry{
			Op:          repo.WALLibraryIndexState,
			LibraryID:   libraryID,
			IndexState:  &state,
			IndexStates: states,
		}); err != nil {
			return 0, err
		}
	}

	return size, nil
}

// GetIndexState returns the library's most recently built index state.
func (s *Service) GetIndexState(libraryID uuid.UUID) (model.IndexState, error) {
	lib, ok := s.repo.GetLibrary(libraryID)
	if !ok {
		return model.IndexState{}, verrors.NotFound("Library")
	}
	return lib.IndexState, nil
}

// GetAvailableIndex returns the best available index for libraryID. When
// prefer is empty, RP is preferred over flat ("auto"); when prefer names
// an algo, only that algo is returned (or none).
func (s *Service) GetAvailableIndex(libraryID uuid.UUID, prefer model.IndexAlgo) (model.IndexAlgo, index.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rp, hasRP := s.rpIndices[libraryID]
	fl, hasFlat := s.flatIndices[libraryID]

	switch prefer {
	case model.AlgoRP:
		if hasRP {
			return model.AlgoRP, rp, true
		}
		return "", nil, false
	case model.AlgoFlat:
		if hasFlat {
			return model.AlgoFlat, fl, true
		}
		return "", nil, false
	default:
		if hasRP {
			return model.AlgoRP, rp, true
		}
		if hasFlat {
			return model.AlgoFlat, fl, true
		}
		return "", nil, false
	}
}

// FlatIndexFor returns the cached flat index for libraryID, if any.
func (s *Service) FlatIndexFor(libraryID uuid.UUID) (*index.FlatIndex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.flatIndices[libraryID]
	return idx, ok
}

// SetFlatIndex installs idx as the cached flat index for libraryID,
// bypassing the index-state bookkeeping Build performs. The search
// service's ephemeral flat indices do not go through it; they live in that
// service's own LRU cache.
func (s *Service) SetFlatIndex(libraryID uuid.UUID, idx *index.FlatIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flatIndices[libraryID] = idx
}

// RestoreAllIndices rebuilds every built index recorded in each library's
// per-algo IndexStates map (not just the single most-recent mirror) from
// the repository's current chunk state. It is called once at bootstrap,
// after the repository has been hydrated from the snapshot/WAL, and never
// emits further WAL entries: the persisted state is the source of truth
// being replayed, not a new build.
func (s *Service) RestoreAllIndices() error {
	for _, lib := range s.repo.ListLibraries() {
		states := make([]model.IndexState, 0, len(lib.IndexStates))
		algos := make([]model.IndexAlgo, 0, len(lib.IndexStates))
		for algoName, state := range lib.IndexStates {
			if !state.Built {
				continue
			}
			states = append(states, state)
			algos = append(algos, model.IndexAlgo(algoName))
		}
		for i, state := range states {
			params := buildParamsFromState(state)
			if _, err := s.Build(lib.ID, algos[i], state.Metric, params, false, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildParamsFromState(state model.IndexState) BuildParams {
	params := DefaultBuildParams()
	if state.Params == nil {
		return params
	}
	if v, ok := state.Params["trees"]; ok {
		params.Trees = toInt(v, params.Trees)
	}
	if v, ok := state.Params["leaf_size"]; ok {
		params.LeafSize = toInt(v, params.LeafSize)
	}
	if v, ok := state.Params["seed"]; ok {
		params.Seed = int64(toInt(v, int(params.Seed)))
	}
	if v, ok := state.Params["candidate_mult"]; ok {
		params.CandidateMult = toFloat(v, params.CandidateMult)
	}
	return params
}

func toInt(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func toFloat(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return def
	}
}
