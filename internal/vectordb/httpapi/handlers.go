package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/iwinterknight/vectordb/internal/vectordb/api"
	"github.com/iwinterknight/vectordb/internal/vectordb/app"
	"github.com/iwinterknight/vectordb/internal/vectordb/filter"
	"github.com/iwinterknight/vectordb/internal/vectordb/indexing"
	"github.com/iwinterknight/vectordb/internal/vectordb/model"
	"github.com/iwinterknight/vectordb/internal/vectordb/search"
	"github.com/iwinterknight/vectordb/internal/vectordb/verrors"
)

type handler struct {
	ctx *app.Context
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// -- libraries ---------------------------------------------------------

func (h *handler) createLibrary(w http.ResponseWriter, r *http.Request) {
	var in api.CreateLibraryIn
	if !decodeJSON(w, r, &in) {
		return
	}
	lib, err := h.ctx.Library.Create(in.Name, in.Description)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusCreated, libraryOut(lib))
}

func (h *handler) listLibraries(w http.ResponseWriter, r *http.Request) {
	libs := h.ctx.Library.List()
	out := make([]api.LibraryOut, 0, len(libs))
	for _, l := range libs {
		out = append(out, libraryOut(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	lib, err := h.ctx.Library.Get(id)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, libraryOut(lib))
}

func (h *handler) updateLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	var in api.UpdateLibraryIn
	if !decodeJSON(w, r, &in) {
		return
	}
	lib, err := h.ctx.Library.Update(id, in.Name, in.Description)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, libraryOut(lib))
}

func (h *handler) deleteLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	if err := h.ctx.Library.Delete(id); !writeErr(w, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -- documents -----------------------------------------------------------

func (h *handler) createDocument(w http.ResponseWriter, r *http.Request) {
	libID, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	var in api.CreateDocumentIn
	if !decodeJSON(w, r, &in) {
		return
	}
	doc, err := h.ctx.Document.Create(libID, in.Title)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusCreated, documentOut(doc))
}

func (h *handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	libID, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	docs := h.ctx.Document.ListByLibrary(libID)
	out := make([]api.DocumentOut, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentOut(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	doc, err := h.ctx.Document.Get(id)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, documentOut(doc))
}

func (h *handler) updateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	var in api.UpdateDocumentIn
	if !decodeJSON(w, r, &in) {
		return
	}
	doc, err := h.ctx.Document.Update(id, in.Title)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, documentOut(doc))
}

func (h *handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	libID, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	if err := h.ctx.Document.Delete(libID, id); !writeErr(w, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -- chunks ----------------------------------------------------------------

func (h *handler) createChunk(w http.ResponseWriter, r *http.Request) {
	libID, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	docID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	var in api.CreateChunkIn
	if !decodeJSON(w, r, &in) {
		return
	}
	compute := true
	if in.ComputeEmbedding != nil {
		compute = *in.ComputeEmbedding
	}
	chunk, err := h.ctx.Chunk.Create(libID, docID, in.Text, chunkMetaIn(in.Metadata), compute)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusCreated, chunkOut(chunk))
}

func (h *handler) listChunks(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	chunks := h.ctx.Chunk.ListByDocument(docID)
	out := make([]api.ChunkOut, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, chunkOut(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getChunk(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "chunkID")
	if !ok {
		return
	}
	c, err := h.ctx.Chunk.Get(id)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, chunkOut(c))
}

func (h *handler) updateChunk(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "chunkID")
	if !ok {
		return
	}
	var in api.UpdateChunkIn
	if !decodeJSON(w, r, &in) {
		return
	}
	c, err := h.ctx.Chunk.Update(id, in.Text)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, chunkOut(c))
}

func (h *handler) deleteChunk(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "chunkID")
	if !ok {
		return
	}
	if err := h.ctx.Chunk.Delete(docID, id); !writeErr(w, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -- index -------------------------------------------------------------

func (h *handler) buildIndex(w http.ResponseWriter, r *http.Request) {
	libID, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	var in api.IndexBuildRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	algo := model.IndexAlgo(in.Algo)
	if algo == "" {
		algo = model.AlgoFlat
	}
	metric := model.Metric(in.Metric)
	if metric == "" {
		metric = model.MetricCosine
	}
	params := buildParamsIn(in.Params)

	size, err := h.ctx.Indexing.Build(libID, algo, metric, params, true, true)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, api.IndexBuildOut{
		Status: "built",
		Algo:   string(algo),
		Metric: string(metric),
		Size:   size,
	})
}

func (h *handler) getIndexState(w http.ResponseWriter, r *http.Request) {
	libID, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	state, err := h.ctx.Indexing.GetIndexState(libID)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, indexStateOut(state))
}

// -- search --------------------------------------------------------------

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	libID, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	var in api.SearchRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	req := search.Request{
		K:              in.K,
		Algo:           model.IndexAlgo(in.Algo),
		Metric:         model.Metric(in.Metric),
		QueryEmbedding: in.QueryEmbedding,
	}
	if in.QueryText != nil {
		req.QueryText = *in.QueryText
	}
	if in.Filters != nil {
		req.Filters = filter.ParsePredicate(in.Filters.Chunk, in.Filters.Document, in.Filters.Library)
	}

	hits, err := h.ctx.Search.Search(libID, req)
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, searchHitsOut(hits))
}

func (h *handler) rerank(w http.ResponseWriter, r *http.Request) {
	libID, ok := pathUUID(w, r, "libraryID")
	if !ok {
		return
	}
	var in api.RerankRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	ids := make([]uuid.UUID, 0, len(in.CandidateIDs))
	for _, s := range in.CandidateIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, api.ErrorOut{Error: "invalid candidate_ids entry: " + s})
			return
		}
		ids = append(ids, id)
	}

	hits, err := h.ctx.Search.Rerank(libID, search.RerankRequest{
		QueryEmbedding: in.QueryEmbedding,
		CandidateIDs:   ids,
		K:              in.K,
		Metric:         model.Metric(in.Metric),
	})
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, searchHitsOut(hits))
}

// -- admin -----------------------------------------------------------------

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ctx.Snapshot()
	if !writeErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, api.SnapshotOut{Status: "ok", SnapshotBytes: stats.SnapshotBytes})
}

// -- helpers -----------------------------------------------------------

func pathUUID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, key)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorOut{Error: "invalid " + key})
		return uuid.UUID{}, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorOut{Error: "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeErr maps a core error to an HTTP response when err != nil and
// reports whether the caller should continue writing a success response.
func writeErr(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	status := http.StatusInternalServerError
	switch {
	case verrors.Is(err, verrors.KindNotFound):
		status = http.StatusNotFound
	case verrors.Is(err, verrors.KindConflict):
		status = http.StatusConflict
	case verrors.Is(err, verrors.KindBadRequest):
		status = http.StatusBadRequest
	case verrors.Is(err, verrors.KindTransient):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, api.ErrorOut{Error: err.Error()})
	return false
}

func buildParamsIn(raw map[string]any) indexing.BuildParams {
	p := indexing.DefaultBuildParams()
	if raw == nil {
		return p
	}
	if v, ok := raw["trees"]; ok {
		if f, ok := v.(float64); ok {
			p.Trees = int(f)
		}
	}
	if v, ok := raw["leaf_size"]; ok {
		if f, ok := v.(float64); ok {
			p.LeafSize = int(f)
		}
	}
	if v, ok := raw["seed"]; ok {
		if f, ok := v.(float64); ok {
			p.Seed = int64(f)
		}
	}
	if v, ok := raw["candidate_mult"]; ok {
		if f, ok := v.(float64); ok {
			p.CandidateMult = f
		}
	}
	return p
}

func chunkMetaIn(raw map[string]any) model.ChunkMeta {
	return model.ChunkMeta{Custom: raw}
}
