// Package model defines the core entities of the vector database: the
// library -> document -> chunk ownership hierarchy and the index state
// that tracks per-library build metadata.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Metric names the similarity metric used by an index.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// IndexAlgo names a vector index algorithm.
type IndexAlgo string

const (
	AlgoFlat IndexAlgo = "flat"
	AlgoRP   IndexAlgo = "rp"
)

// LibraryMeta holds free-form attributes attached to a library.
type LibraryMeta struct {
	CreatedAt time.Time `json:"created_at"`
	Owner     *string   `json:"owner,omitempty"`
	Topic     *string   `json:"topic,omitempty"`
}

// DocumentMeta holds free-form attributes attached to a document.
type DocumentMeta struct {
	CreatedAt time.Time `json:"created_at"`
	Author    *string   `json:"author,omitempty"`
	SourceURI *string   `json:"source_uri,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// ChunkMeta holds free-form attributes attached to a chunk. Custom carries
// arbitrary caller-supplied key/value pairs that the filter evaluator can
// still reach via dotted-path lookup (e.g. "metadata.tags"). A typed Name
// or Tags value, when set, takes precedence over a Custom key of the same
// name.
type ChunkMeta struct {
	CreatedAt time.Time      `json:"created_at"`
	Name      *string        `json:"name,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Custom    map[string]any `json:"custom,omitempty"`
}

// IndexState mirrors the most recently built index for some algorithm.
// Built=true implies Algo, Size, and LastBuiltAt are set.
type IndexState struct {
	Built       bool           `json:"built"`
	Algo        *IndexAlgo     `json:"algo,omitempty"`
	Metric      Metric         `json:"metric"`
	Params      map[string]any `json:"params,omitempty"`
	Size        int            `json:"size"`
	LastBuiltAt *time.Time     `json:"last_built_at,omitempty"`
}

// Library is the top-level ownership scope. EmbeddingDim is unset until the
// first embedded chunk fixes it; thereafter it is invariant for the library.
type Library struct {
	ID           uuid.UUID             `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description,omitempty"`
	EmbeddingDim *int                  `json:"embedding_dim,omitempty"`
	Meta         LibraryMeta           `json:"library_meta"`
	IndexState   IndexState            `json:"index_state"`
	IndexStates  map[string]IndexState `json:"index_states,omitempty"`
}

// Document belongs to exactly one library. ChunkIDs mirrors membership for
// ordered iteration and is kept consistent by the mutation services.
type Document struct {
	ID        uuid.UUID   `json:"id"`
	LibraryID uuid.UUID   `json:"library_id"`
	Title     string      `json:"title"`
	Meta      DocumentMeta `json:"document_meta"`
	ChunkIDs  []uuid.UUID `json:"chunk_ids"`
}

// Chunk is the retrievable unit of text. Embedding length, when present,
// must equal the owning library's EmbeddingDim.
type Chunk struct {
	ID         uuid.UUID `json:"id"`
	LibraryID  uuid.UUID `json:"library_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Meta       ChunkMeta `json:"chunk_meta"`
}

// NewLibrary constructs a Library with a fresh ID and timestamped metadata.
func NewLibrary(name, description string) *Library {
	return &Library{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Meta:        LibraryMeta{CreatedAt: time.Now().UTC()},
		IndexState:  IndexState{Metric: MetricCosine},
		IndexStates: map[string]IndexState{},
	}
}

// NewDocument constructs a Document with a fresh ID under the given library.
func NewDocument(libraryID uuid.UUID, title string) *Document {
	return &Document{
		ID:        uuid.New(),
		LibraryID: libraryID,
		Title:     title,
		Meta:      DocumentMeta{CreatedAt: time.Now().UTC()},
		ChunkIDs:  []uuid.UUID{},
	}
}

// NewChunk constructs a Chunk with a fresh ID under the given library/document.
func NewChunk(libraryID, documentID uuid.UUID, text string, meta ChunkMeta) *Chunk {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	return &Chunk{
		ID:         uuid.New(),
		LibraryID:  libraryID,
		DocumentID: documentID,
		Text:       text,
		Meta:       meta,
	}
}
