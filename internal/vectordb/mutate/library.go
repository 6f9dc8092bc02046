// Package mutate implements the library/document/chunk mutation services:
// validate, acquire the library write lock, mutate in-memory state, run the
// embedding hook where relevant, and append exactly one WAL entry before
// releasing the lock.
package mutate

import (
	"github.com/google/uuid"

	"github.com/iwinterknight/vectordb/internal/vectordb/durability"
	"github.com/iwinterknight/vectordb/internal/vectordb/model"
	"github.com/iwinterknight/vectordb/internal/vectordb/repo"
	"github.com/iwinterknight/vectordb/internal/vectordb/verrors"
)

// LibraryService mutates libraries.
type LibraryService struct {
	repo  *repo.Repo
	store *durability.Store
}

// NewLibraryService constructs a LibraryService.
func NewLibraryService(r *repo.Repo, store *durability.Store) *LibraryService {
	return &LibraryService{repo: r, store: store}
}

// Create adds a new library and appends its creation to the WAL.
func (s *LibraryService) Create(name, description string) (*model.Library, error) {
	lib := model.NewLibrary(name, description)

	lock := s.repo.GetLock(lib.ID)
	lock.Lock()
	defer lock.Unlock()

	s.repo.PutLibrary(lib)
	if err := s.store.AppendWAL(repo.WALEntry{Op: repo.WALCreateLibrary, Library: lib}); err != nil {
		s.repo.DeleteLibrary(lib.ID)
		return nil, err
	}
	return lib, nil
}

// Get returns a library by id.
func (s *LibraryService) Get(id uuid.UUID) (*model.Library, error) {
	lib, ok := s.repo.GetLibrary(id)
	if !ok {
		return nil, verrors.NotFound("Library")
	}
	return lib, nil
}

// List returns every library.
func (s *LibraryService) List() []*model.Library {
	return s.repo.ListLibraries()
}

// Update changes a library's name and/or description; nil fields are left
// unchanged.
func (s *LibraryService) Update(id uuid.UUID, name, description *string) (*model.Library, error) {
	lock := s.repo.GetLock(id)
	lock.Lock()
	defer lock.Unlock()

	lib, ok := s.repo.GetLibrary(id)
	if !ok {
		return nil, verrors.NotFound("Library")
	}
	prevName, prevDescription := lib.Name, lib.Description
	if name != nil {
		lib.Name = *name
	}
	if description != nil {
		lib.Description = *description
	}
	s.repo.PutLibrary(lib)
	if err := s.store.AppendWAL(repo.WALEntry{Op: repo.WALUpdateLibrary, Library: lib}); err != nil {
		lib.Name = prevName
		lib.Description = prevDescription
		s.repo.PutLibrary(lib)
		return nil, err
	}
	return lib, nil
}

// Delete removes a library and cascades to its documents and chunks.
func (s *LibraryService) Delete(id uuid.UUID) error {
	lock := s.repo.GetLock(id)
	lock.Lock()
	defer lock.Unlock()

	lib, ok := s.repo.GetLibrary(id)
	if !ok {
		return verrors.NotFound("Library")
	}
	docs := s.repo.ListDocumentsByLibrary(id)
	chunksByDoc := make(map[uuid.UUID][]*model.Chunk, len(docs))
	for _, doc := range docs {
		chunksByDoc[doc.ID] = s.repo.ListChunksByDocument(doc.ID)
	}

	s.repo.DeleteLibrary(id)
	if err := s.store.AppendWAL(repo.WALEntry{Op: repo.WALDeleteLibrary, ID: id}); err != nil {
		s.repo.PutLibrary(lib)
		for _, doc := range docs {
			s.repo.PutDocument(doc)
			for _, c := range chunksByDoc[doc.ID] {
				s.repo.PutChunk(c)
			}
		}
		return err
	}
	return nil
}
