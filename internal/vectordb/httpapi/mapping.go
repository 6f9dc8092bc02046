package httpapi

import (
	"github.com/iwinterknight/vectordb/internal/vectordb/api"
	"github.com/iwinterknight/vectordb/internal/vectordb/model"
	"github.com/iwinterknight/vectordb/internal/vectordb/search"
)

func libraryOut(l *model.Library) api.LibraryOut {
	return api.LibraryOut{
		ID:           l.ID.String(),
		Name:         l.Name,
		Description:  l.Description,
		EmbeddingDim: l.EmbeddingDim,
		IndexState:   indexStateOut(l.IndexState),
	}
}

func documentOut(d *model.Document) api.DocumentOut {
	return api.DocumentOut{
		ID:        d.ID.String(),
		LibraryID: d.LibraryID.String(),
		Title:     d.Title,
	}
}

func chunkOut(c *model.Chunk) api.ChunkOut {
	return api.ChunkOut{
		ID:         c.ID.String(),
		LibraryID:  c.LibraryID.String(),
		DocumentID: c.DocumentID.String(),
		Text:       c.Text,
		Embedding:  c.Embedding,
	}
}

func indexStateOut(s model.IndexState) api.IndexStateOut {
	out := api.IndexStateOut{
		Built:       s.Built,
		Metric:      string(s.Metric),
		Params:      s.Params,
		Size:        s.Size,
		LastBuiltAt: s.LastBuiltAt,
	}
	if s.Algo != nil {
		algo := string(*s.Algo)
		out.Algo = &algo
	}
	return out
}

func searchHitsOut(hits []search.Hit) []api.SearchHit {
	out := make([]api.SearchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, api.SearchHit{
			ChunkID:    h.ChunkID.String(),
			DocumentID: h.DocumentID.String(),
			LibraryID:  h.LibraryID.String(),
			Score:      h.Score,
			Text:       h.Text,
		})
	}
	return out
}
