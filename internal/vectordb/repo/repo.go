// Package repo is the in-memory system of record for libraries, documents,
// and chunks: typed entity maps, derived secondary indexes, a per-library
// lock, and the replay/serialization hooks the durability package drives.
package repo

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iwinterknight/vectordb/internal/vectordb/model"
)

// Repo holds every entity in memory plus the secondary maps the search and
// indexing services need to walk library -> documents -> chunks without a
// linear scan.
type Repo struct {
	mu sync.RWMutex

	libraries map[uuid.UUID]*model.Library
	documents map[uuid.UUID]*model.Document
	chunks    map[uuid.UUID]*model.Chunk

	byLibraryDocs    map[uuid.UUID][]uuid.UUID // library id -> document ids, insertion order
	byDocumentChunks map[uuid.UUID][]uuid.UUID // document id -> chunk ids, insertion order

	// chunkVersion increments whenever a chunk belonging to a library is
	// added, updated, or removed, so callers caching a derived view (the
	// search service's ephemeral flat index) can tell whether it's stale.
	chunkVersion map[uuid.UUID]int64

	lockMu sync.Mutex
	locks  map[uuid.UUID]*RWLock
}

// New constructs an empty repository.
func New() *Repo {
	return &Repo{
		libraries:        make(map[uuid.UUID]*model.Library),
		documents:        make(map[uuid.UUID]*model.Document),
		chunks:           make(map[uuid.UUID]*model.Chunk),
		byLibraryDocs:    make(map[uuid.UUID][]uuid.UUID),
		byDocumentChunks: make(map[uuid.UUID][]uuid.UUID),
		chunkVersion:     make(map[uuid.UUID]int64),
		locks:            make(map[uuid.UUID]*RWLock),
	}
}

// GetLock returns the per-library write/read lock, creating one on first
// use. The lock is intentionally never removed from the map even after the
// library is deleted, so that a goroutine racing a delete with a pending
// mutation still synchronizes against the same lock instead of a fresh one.
func (r *Repo) GetLock(libraryID uuid.UUID) *RWLock {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	l, ok := r.locks[libraryID]
	if !ok {
		l = NewRWLock()
		r.locks[libraryID] = l
	}
	return l
}

// --- libraries ---

func (r *Repo) PutLibrary(l *model.Library) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libraries[l.ID] = l
	if _, ok := r.byLibraryDocs[l.ID]; !ok {
		r.byLibraryDocs[l.ID] = nil
	}
}

func (r *Repo) GetLibrary(id uuid.UUID) (*model.Library, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.libraries[id]
	return l, ok
}

func (r *Repo) ListLibraries() []*model.Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Library, 0, len(r.libraries))
	for _, l := range r.libraries {
		out = append(out, l)
	}
	return out
}

// DeleteLibrary removes the library and cascades to its documents and
// chunks. The per-library lock itself is left in place (see GetLock).
func (r *Repo) DeleteLibrary(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, docID := range r.byLibraryDocs[id] {
		for _, chunkID := range r.byDocumentChunks[docID] {
			delete(r.chunks, chunkID)
		}
		delete(r.byDocumentChunks, docID)
		delete(r.documents, docID)
	}
	delete(r.byLibraryDocs, id)
	delete(r.libraries, id)
	r.chunkVersion[id]++
}

// --- documents ---

func (r *Repo) PutDocument(d *model.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.documents[d.ID]; !exists {
		r.byLibraryDocs[d.LibraryID] = append(r.byLibraryDocs[d.LibraryID], d.ID)
	}
	r.documents[d.ID] = d
	if _, ok := r.byDocumentChunks[d.ID]; !ok {
		r.byDocumentChunks[d.ID] = nil
	}
}

func (r *Repo) GetDocument(id uuid.UUID) (*model.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.documents[id]
	return d, ok
}

func (r *Repo) ListDocumentsByLibrary(libraryID uuid.UUID) []*model.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byLibraryDocs[libraryID]
	out := make([]*model.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.documents[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (r *Repo) DeleteDocument(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return
	}
	for _, chunkID := range r.byDocumentChunks[id] {
		delete(r.chunks, chunkID)
	}
	delete(r.byDocumentChunks, id)
	delete(r.documents, id)
	r.byLibraryDocs[d.LibraryID] = removeID(r.byLibraryDocs[d.LibraryID], id)
	r.chunkVersion[d.LibraryID]++
}

// --- chunks ---

func (r *Repo) PutChunk(c *model.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chunks[c.ID]; !exists {
		r.byDocumentChunks[c.DocumentID] = append(r.byDocumentChunks[c.DocumentID], c.ID)
	}
	r.chunks[c.ID] = c
	r.chunkVersion[c.LibraryID]++
}

// ChunkVersion returns a counter that increments every time a chunk
// belonging to libraryID is added, updated, or removed.
func (r *Repo) ChunkVersion(libraryID uuid.UUID) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chunkVersion[libraryID]
}

func (r *Repo) GetChunk(id uuid.UUID) (*model.Chunk, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chunks[id]
	return c, ok
}

func (r *Repo) ListChunksByDocument(documentID uuid.UUID) []*model.Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byDocumentChunks[documentID]
	out := make([]*model.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// ListChunksByLibrary walks byLibraryDocs -> byDocumentChunks to collect
// every chunk under a library, in document-then-chunk insertion order.
func (r *Repo) ListChunksByLibrary(libraryID uuid.UUID) []*model.Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Chunk
	for _, docID := range r.byLibraryDocs[libraryID] {
		for _, chunkID := range r.byDocumentChunks[docID] {
			if c, ok := r.chunks[chunkID]; ok {
				out = append(out, c)
			}
		}
	}
	return out
}

func (r *Repo) DeleteChunk(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok {
		return
	}
	delete(r.chunks, id)
	r.byDocumentChunks[c.DocumentID] = removeID(r.byDocumentChunks[c.DocumentID], id)
	r.chunkVersion[c.LibraryID]++
}

func removeID(ids []uuid.UUID, target uuid.UUID) []uuid.UUID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// --- snapshot / replay ---

// Snapshot is the full repository contents, flattened for serialization.
type Snapshot struct {
	Libraries []*model.Library  `json:"libraries"`
	Documents []*model.Document `json:"documents"`
	Chunks    []*model.Chunk    `json:"chunks"`
}

// DumpSnapshot flattens the repository into a Snapshot for persistence.
func (r *Repo) DumpSnapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{
		Libraries: make([]*model.Library, 0, len(r.libraries)),
		Documents: make([]*model.Document, 0, len(r.documents)),
		Chunks:    make([]*model.Chunk, 0, len(r.chunks)),
	}
	for _, l := range r.libraries {
		s.Libraries = append(s.Libraries, l)
	}
	for _, d := range r.documents {
		s.Documents = append(s.Documents, d)
	}
	for _, c := range r.chunks {
		s.Chunks = append(s.Chunks, c)
	}
	return s
}

// Hydrate replaces the repository's contents with a snapshot's, rebuilding
// the secondary maps. It is only safe to call before concurrent traffic
// starts (bootstrap).
func (r *Repo) Hydrate(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libraries = make(map[uuid.UUID]*model.Library, len(s.Libraries))
	r.documents = make(map[uuid.UUID]*model.Document, len(s.Documents))
	r.chunks = make(map[uuid.UUID]*model.Chunk, len(s.Chunks))
	r.byLibraryDocs = make(map[uuid.UUID][]uuid.UUID)
	r.byDocumentChunks = make(map[uuid.UUID][]uuid.UUID)
	r.chunkVersion = make(map[uuid.UUID]int64)

	for _, l := range s.Libraries {
		r.libraries[l.ID] = l
		if _, ok := r.byLibraryDocs[l.ID]; !ok {
			r.byLibraryDocs[l.ID] = nil
		}
	}
	for _, d := range s.Documents {
		r.documents[d.ID] = d
		r.byLibraryDocs[d.LibraryID] = append(r.byLibraryDocs[d.LibraryID], d.ID)
		if _, ok := r.byDocumentChunks[d.ID]; !ok {
			r.byDocumentChunks[d.ID] = nil
		}
	}
	for _, c := range s.Chunks {
		r.chunks[c.ID] = c
		r.byDocumentChunks[c.DocumentID] = append(r.byDocumentChunks[c.DocumentID], c.ID)
	}
}

// WALOp tags a write-ahead-log entry with the mutation it replays.
type WALOp string

const (
	WALCreateLibrary WALOp = "library.create"
	WALUpdateLibrary WALOp = "library.update"
	WALDeleteLibrary WALOp = "library.delete"

	WALCreateDocument WALOp = "document.create"
	WALUpdateDocument WALOp = "document.update"
	WALDeleteDocument WALOp = "document.delete"

	WALCreateChunk WALOp = "chunk.create"
	WALUpdateChunk WALOp = "chunk.update"
	WALDeleteChunk WALOp = "chunk.delete"

	// WALLibraryIndexState records a persisted index build: the library's
	// latest IndexState mirror plus the full per-algo IndexStates map.
	WALLibraryIndexState WALOp = "library.index_state"
)

// WALEntry is one JSON-lines record in the write-ahead log.
type WALEntry struct {
	TS       time.Time       `json:"ts"`
	Op       WALOp           `json:"op"`
	Library  *model.Library  `json:"library,omitempty"`
	Document *model.Document `json:"document,omitempty"`
	Chunk    *model.Chunk    `json:"chunk,omitempty"`
	ID       uuid.UUID       `json:"id,omitempty"`

	// LibraryID, IndexState, and IndexStates carry a library.index_state
	// payload; unused by every other op.
	LibraryID   uuid.UUID                   `json:"library_id,omitempty"`
	IndexState  *model.IndexState           `json:"index_state,omitempty"`
	IndexStates map[string]model.IndexState `json:"index_states,omitempty"`
}

// SetLibraryIndexState updates a library's index-state mirror and per-algo
// map in place. It is a no-op if the library is gone (e.g. deleted after
// the build that produced this entry was queued).
func (r *Repo) SetLibraryIndexState(libraryID uuid.UUID, state model.IndexState, states map[string]model.IndexState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.libraries[libraryID]
	if !ok {
		return
	}
	l.IndexState = state
	l.IndexStates = states
}

// ApplyWALEntry replays one WAL entry against the repository. It is used
// for bootstrap replay of the log tail after a snapshot load; live
// mutations in the mutate package change the maps directly and then append
// their entry, without going through this function. Unknown
// op tags are ignored rather than rejected, so a log written by a newer
// version with an op this build doesn't know about still replays cleanly.
func (r *Repo) ApplyWALEntry(e WALEntry) error {
	switch e.Op {
	case WALCreateLibrary, WALUpdateLibrary:
		if e.Library == nil {
			return fmt.Errorf("repo: %s entry missing library", e.Op)
		}
		r.PutLibrary(e.Library)
	case WALDeleteLibrary:
		r.DeleteLibrary(e.ID)
	case WALCreateDocument, WALUpdateDocument:
		if e.Document == nil {
			return fmt.Errorf("repo: %s entry missing document", e.Op)
		}
		r.PutDocument(e.Document)
	case WALDeleteDocument:
		r.DeleteDocument(e.ID)
	case WALCreateChunk, WALUpdateChunk:
		if e.Chunk == nil {
			return fmt.Errorf("repo: %s entry missing chunk", e.Op)
		}
		r.PutChunk(e.Chunk)
	case WALDeleteChunk:
		r.DeleteChunk(e.ID)
	case WALLibraryIndexState:
		if e.IndexState == nil {
			return fmt.Errorf("repo: %s entry missing index_state", e.Op)
		}
		r.SetLibraryIndexState(e.LibraryID, *e.IndexState, e.IndexStates)
	default:
		// forward-compat: unrecognized op tags are skipped, not fatal
	}
	return nil
}
