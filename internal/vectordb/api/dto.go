// Package api holds the wire-level request/response shapes for the HTTP
// surface, ported field-for-field from the reference DTOs.
package api

import "time"

type CreateLibraryIn struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateLibraryIn struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type LibraryOut struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	EmbeddingDim *int          `json:"embedding_dim,omitempty"`
	IndexState   IndexStateOut `json:"index_state"`
}

type CreateDocumentIn struct {
	Title string `json:"title"`
}

type UpdateDocumentIn struct {
	Title *string `json:"title,omitempty"`
}

type DocumentOut struct {
	ID        string `json:"id"`
	LibraryID string `json:"library_id"`
	Title     string `json:"title"`
}

type CreateChunkIn struct {
	Text             string         `json:"text"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	ComputeEmbedding *bool          `json:"compute_embedding,omitempty"`
}

type UpdateChunkIn struct {
	Text *string `json:"text,omitempty"`
}

type ChunkOut struct {
	ID         string    `json:"id"`
	LibraryID  string    `json:"library_id"`
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// FilterSpec is the raw {chunk?, document?, library?} predicate body.
type FilterSpec struct {
	Chunk    map[string]any `json:"chunk,omitempty"`
	Document map[string]any `json:"document,omitempty"`
	Library  map[string]any `json:"library,omitempty"`
}

type SearchRequest struct {
	QueryText      *string     `json:"query_text,omitempty"`
	QueryEmbedding []float32   `json:"query_embedding,omitempty"`
	K              int         `json:"k,omitempty"`
	Algo           string      `json:"algo,omitempty"`
	Metric         string      `json:"metric,omitempty"`
	Filters        *FilterSpec `json:"filters,omitempty"`
}

type SearchHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	LibraryID  string  `json:"library_id"`
	Score      float32 `json:"score"`
	Text       string  `json:"text"`
}

type RerankRequest struct {
	QueryEmbedding []float32 `json:"query_embedding"`
	CandidateIDs   []string  `json:"candidate_ids"`
	K              int       `json:"k,omitempty"`
	Metric         string    `json:"metric,omitempty"`
}

type IndexBuildRequest struct {
	Algo   string         `json:"algo,omitempty"`
	Metric string         `json:"metric,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

type IndexBuildOut struct {
	Status string `json:"status"`
	Algo   string `json:"algo"`
	Metric string `json:"metric"`
	Size   int    `json:"size"`
}

type IndexStateOut struct {
	Built       bool           `json:"built"`
	Algo        *string        `json:"algo,omitempty"`
	Metric      string         `json:"metric"`
	Params      map[string]any `json:"params,omitempty"`
	Size        int            `json:"size"`
	LastBuiltAt *time.Time     `json:"last_built_at,omitempty"`
}

type SnapshotOut struct {
	Status        string `json:"status"`
	SnapshotBytes int64  `json:"snapshot_bytes"`
}

type ErrorOut struct {
	Error string `json:"error"`
}
