package search

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwinterknight/vectordb/internal/vectordb/durability"
	"github.com/iwinterknight/vectordb/internal/vectordb/embed"
	"github.com/iwinterknight/vectordb/internal/vectordb/filter"
	"github.com/iwinterknight/vectordb/internal/vectordb/indexing"
	"github.com/iwinterknight/vectordb/internal/vectordb/model"
	"github.com/iwinterknight/vectordb/internal/vectordb/repo"
	"github.com/iwinterknight/vectordb/internal/vectordb/verrors"
)

func newIndexingService(t *testing.T, r *repo.Repo) *indexing.Service {
	t.Helper()
	store, err := durability.Open(t.TempDir())
	require.NoError(t, err)
	return indexing.New(r, store)
}

func newTestService(t *testing.T) (*Service, *repo.Repo) {
	t.Helper()
	r := repo.New()
	idxSvc := newIndexingService(t, r)
	embedder := embed.NewStubProvider(8)
	return New(r, idxSvc, embedder, 0), r
}

func addChunk(r *repo.Repo, libID, docID uuid.UUID, text string, embedding []float32, tags []string) *model.Chunk {
	c := model.NewChunk(libID, docID, text, model.ChunkMeta{Tags: tags})
	c.Embedding = embedding
	r.PutChunk(c)
	return c
}

func TestSearch_QueryTextFindsClosestChunk(t *testing.T) {
	svc, r := newTestService(t)
	lib := model.NewLibrary("lib", "")
	r.PutLibrary(lib)
	doc := model.NewDocument(lib.ID, "doc")
	r.PutDocument(doc)

	embedder := embed.NewStubProvider(8)
	helloVec, _ := embedder.Embed([]string{"hello embeddings"})
	goodbyeVec, _ := embedder.Embed([]string{"goodbye"})
	c1 := addChunk(r, lib.ID, doc.ID, "hello embeddings", helloVec[0], nil)
	addChunk(r, lib.ID, doc.ID, "goodbye", goodbyeVec[0], nil)

	hits, err := svc.Search(lib.ID, Request{QueryText: "hello embeddings", K: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, c1.ID, hits[0].ChunkID)
}

func TestSearch_DimensionMismatchIsBadRequest(t *testing.T) {
	svc, r := newTestService(t)
	lib := model.NewLibrary("lib", "")
	r.PutLibrary(lib)
	doc := model.NewDocument(lib.ID, "doc")
	r.PutDocument(doc)
	addChunk(r, lib.ID, doc.ID, "a", make([]float32, 7), nil)

	_, err := svc.Search(lib.ID, Request{QueryEmbedding: make([]float32, 7), K: 1})
	require.NoError(t, err)

	_, err = svc.Search(lib.ID, Request{QueryEmbedding: make([]float32, 3), K: 1})
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.KindBadRequest))
	assert.Contains(t, err.Error(), "Embedding dimension mismatch")
}

func TestSearch_MissingQueryFieldsIsBadRequest(t *testing.T) {
	svc, r := newTestService(t)
	lib := model.NewLibrary("lib", "")
	r.PutLibrary(lib)

	_, err := svc.Search(lib.ID, Request{K: 1})
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.KindBadRequest))
}

func TestSearch_UnknownLibraryIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Search(model.NewLibrary("x", "").ID, Request{QueryEmbedding: []float32{1, 0}})
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.KindNotFound))
}

func TestSearch_FilterRestrictsToMatchingTag(t *testing.T) {
	svc, r := newTestService(t)
	lib := model.NewLibrary("lib", "")
	r.PutLibrary(lib)
	doc := model.NewDocument(lib.ID, "doc")
	r.PutDocument(doc)

	mlChunk := addChunk(r, lib.ID, doc.ID, "machine learning basics", []float32{1, 0, 0, 0, 0, 0, 0, 0}, []string{"ml", "intro"})
	addChunk(r, lib.ID, doc.ID, "quarterly earnings", []float32{0.9, 0.1, 0, 0, 0, 0, 0, 0}, []string{"finance"})

	pred := filter.ParsePredicate(map[string]any{
		"metadata.tags": map[string]any{"any": []any{"ml"}},
	}, nil, nil)

	hits, err := svc.Search(lib.ID, Request{QueryEmbedding: []float32{1, 0, 0, 0, 0, 0, 0, 0}, K: 5, Filters: pred})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, mlChunk.ID, hits[0].ChunkID)
}

func TestSearch_RPAlgoWithoutBuildIsBadRequest(t *testing.T) {
	svc, r := newTestService(t)
	lib := model.NewLibrary("lib", "")
	r.PutLibrary(lib)

	_, err := svc.Search(lib.ID, Request{QueryEmbedding: []float32{1, 0}, Algo: model.AlgoRP})
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.KindBadRequest))
}

func TestSearch_RPAlgoAfterBuildReturnsHits(t *testing.T) {
	r := repo.New()
	idxSvc := newIndexingService(t, r)
	embedder := embed.NewStubProvider(8)
	svc := New(r, idxSvc, embedder, 0)

	lib := model.NewLibrary("lib", "")
	r.PutLibrary(lib)
	doc := model.NewDocument(lib.ID, "doc")
	r.PutDocument(doc)
	for i := 0; i < 20; i++ {
		v := make([]float32, 8)
		v[i%8] = 1
		addChunk(r, lib.ID, doc.ID, "chunk", v, nil)
	}

	_, err := idxSvc.Build(lib.ID, model.AlgoRP, model.MetricCosine, indexing.BuildParams{Trees: 4, LeafSize: 4, Seed: 1, CandidateMult: 2}, true, true)
	require.NoError(t, err)

	hits, err := svc.Search(lib.ID, Request{QueryEmbedding: []float32{1, 0, 0, 0, 0, 0, 0, 0}, K: 3, Algo: model.AlgoRP})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestSearch_RerankScoresOnlySuppliedCandidates(t *testing.T) {
	svc, r := newTestService(t)
	lib := model.NewLibrary("lib", "")
	r.PutLibrary(lib)
	doc := model.NewDocument(lib.ID, "doc")
	r.PutDocument(doc)

	c1 := addChunk(r, lib.ID, doc.ID, "a", []float32{1, 0}, nil)
	c2 := addChunk(r, lib.ID, doc.ID, "b", []float32{0, 1}, nil)

	hits, err := svc.Rerank(lib.ID, RerankRequest{
		QueryEmbedding: []float32{1, 0},
		CandidateIDs:   []uuid.UUID{c1.ID, c2.ID},
		K:              1,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, c1.ID, hits[0].ChunkID)
}
