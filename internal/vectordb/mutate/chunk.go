package mutate

import (
	"github.com/google/uuid"

	"github.com/iwinterknight/vectordb/internal/vectordb/durability"
	"github.com/iwinterknight/vectordb/internal/vectordb/embed"
	"github.com/iwinterknight/vectordb/internal/vectordb/model"
	"github.com/iwinterknight/vectordb/internal/vectordb/repo"
	"github.com/iwinterknight/vectordb/internal/vectordb/verrors"
)

// ChunkService mutates chunks and recomputes embeddings on create/update.
type ChunkService struct {
	repo     *repo.Repo
	store    *durability.Store
	embedder embed.Provider
}

// NewChunkService constructs a ChunkService.
func NewChunkService(r *repo.Repo, store *durability.Store, embedder embed.Provider) *ChunkService {
	return &ChunkService{repo: r, store: store, embedder: embedder}
}

// Create adds a chunk under documentID (which must belong to libraryID).
// When computeEmbedding is true, the embedder runs and the library's
// dimension invariant is enforced/fixed before the chunk is stored.
func (s *ChunkService) Create(libraryID, documentID uuid.UUID, text string, meta model.ChunkMeta, computeEmbedding bool) (*model.Chunk, error) {
	lock := s.repo.GetLock(libraryID)
	lock.Lock()
	defer lock.Unlock()

	doc, ok := s.repo.GetDocument(documentID)
	if !ok || doc.LibraryID != libraryID {
		return nil, verrors.NotFound("Document")
	}
	lib, ok := s.repo.GetLibrary(libraryID)
	if !ok {
		return nil, verrors.NotFound("Library")
	}
	prevDim := lib.EmbeddingDim

	chunk := model.NewChunk(libraryID, documentID, text, meta)
	if computeEmbedding {
		if err := s.embedChunk(chunk); err != nil {
			return nil, err
		}
	}

	s.repo.PutChunk(chunk)
	doc.ChunkIDs = append(doc.ChunkIDs, chunk.ID)
	s.repo.PutDocument(doc)

	if err := s.store.AppendWAL(repo.WALEntry{Op: repo.WALCreateChunk, Chunk: chunk}); err != nil {
		s.repo.DeleteChunk(chunk.ID)
		doc.ChunkIDs = removeID(doc.ChunkIDs, chunk.ID)
		s.repo.PutDocument(doc)
		lib.EmbeddingDim = prevDim
		s.repo.PutLibrary(lib)
		return nil, err
	}
	return chunk, nil
}

// Get returns a chunk by id.
func (s *ChunkService) Get(id uuid.UUID) (*model.Chunk, error) {
	c, ok := s.repo.GetChunk(id)
	if !ok {
		return nil, verrors.NotFound("Chunk")
	}
	return c, nil
}

// ListByDocument returns every chunk under documentID.
func (s *ChunkService) ListByDocument(documentID uuid.UUID) []*model.Chunk {
	return s.repo.ListChunksByDocument(documentID)
}

// Update changes a chunk's text, recomputing its embedding to match. A nil
// text leaves the chunk (and its embedding) unchanged.
func (s *ChunkService) Update(id uuid.UUID, text *string) (*model.Chunk, error) {
	c, ok := s.repo.GetChunk(id)
	if !ok {
		return nil, verrors.NotFound("Chunk")
	}

	lock := s.repo.GetLock(c.LibraryID)
	lock.Lock()
	defer lock.Unlock()

	c, ok = s.repo.GetChunk(id)
	if !ok {
		return nil, verrors.NotFound("Chunk")
	}
	prevText, prevEmbedding := c.Text, c.Embedding
	if text != nil {
		c.Text = *text
		if err := s.embedChunk(c); err != nil {
			return nil, err
		}
	}
	s.repo.PutChunk(c)
	if err := s.store.AppendWAL(repo.WALEntry{Op: repo.WALUpdateChunk, Chunk: c}); err != nil {
		c.Text = prevText
		c.Embedding = prevEmbedding
		s.repo.PutChunk(c)
		return nil, err
	}
	return c, nil
}

// Delete removes a chunk. documentID scopes the write lock lookup; the
// chunk must belong to it.
func (s *ChunkService) Delete(documentID, id uuid.UUID) error {
	c, ok := s.repo.GetChunk(id)
	if !ok || c.DocumentID != documentID {
		return verrors.NotFound("Chunk")
	}

	lock := s.repo.GetLock(c.LibraryID)
	lock.Lock()
	defer lock.Unlock()

	c, ok = s.repo.GetChunk(id)
	if !ok {
		return verrors.NotFound("Chunk")
	}
	doc, hasDoc := s.repo.GetDocument(documentID)
	var prevChunkIDs []uuid.UUID
	if hasDoc {
		prevChunkIDs = append(prevChunkIDs, doc.ChunkIDs...)
	}

	s.repo.DeleteChunk(id)
	if hasDoc {
		doc.ChunkIDs = removeID(doc.ChunkIDs, id)
		s.repo.PutDocument(doc)
	}
	if err := s.store.AppendWAL(repo.WALEntry{Op: repo.WALDeleteChunk, ID: id}); err != nil {
		s.repo.PutChunk(c)
		if hasDoc {
			doc.ChunkIDs = prevChunkIDs
			s.repo.PutDocument(doc)
		}
		return err
	}
	return nil
}

func (s *ChunkService) embedChunk(c *model.Chunk) error {
	vecs, err := s.embedder.Embed([]string{c.Text})
	if err != nil {
		return verrors.Transient("embedding request failed", err)
	}
	emb := vecs[0]

	lib, ok := s.repo.GetLibrary(c.LibraryID)
	if !ok {
		return verrors.NotFound("Library")
	}
	dim := len(emb)
	if lib.EmbeddingDim == nil {
		lib.EmbeddingDim = &dim
		s.repo.PutLibrary(lib)
	} else if *lib.EmbeddingDim != dim {
		return verrors.BadRequest("Embedding dimension mismatch")
	}
	c.Embedding = emb
	return nil
}

func removeID(ids []uuid.UUID, target uuid.UUID) []uuid.UUID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
