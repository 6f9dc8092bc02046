package mutate

import (
	"github.com/google/uuid"

	"github.com/iwinterknight/vectordb/internal/vectordb/durability"
	"github.com/iwinterknight/vectordb/internal/vectordb/model"
	"github.com/iwinterknight/vectordb/internal/vectordb/repo"
	"github.com/iwinterknight/vectordb/internal/vectordb/verrors"
)

// DocumentService mutates documents within a library.
type DocumentService struct {
	repo  *repo.Repo
	store *durability.Store
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(r *repo.Repo, store *durability.Store) *DocumentService {
	return &DocumentService{repo: r, store: store}
}

// Create adds a document under libraryID.
func (s *DocumentService) Create(libraryID uuid.UUID, title string) (*model.Document, error) {
	lock := s.repo.GetLock(libraryID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := s.repo.GetLibrary(libraryID); !ok {
		return nil, verrors.NotFound("Library")
	}

	doc := model.NewDocument(libraryID, title)
	s.repo.PutDocument(doc)
	if err := s.store.AppendWAL(repo.WALEntry{Op: repo.WALCreateDocument, Document: doc}); err != nil {
		s.repo.DeleteDocument(doc.ID)
		return nil, err
	}
	return doc, nil
}

// Get returns a document by id.
func (s *DocumentService) Get(id uuid.UUID) (*model.Document, error) {
	doc, ok := s.repo.GetDocument(id)
	if !ok {
		return nil, verrors.NotFound("Document")
	}
	return doc, nil
}

// ListByLibrary returns every document under libraryID.
func (s *DocumentService) ListByLibrary(libraryID uuid.UUID) []*model.Document {
	return s.repo.ListDocumentsByLibrary(libraryID)
}

// Update changes a document's title; a nil title leaves it unchanged.
func (s *DocumentService) Update(id uuid.UUID, title *string) (*model.Document, error) {
	doc, ok := s.repo.GetDocument(id)
	if !ok {
		return nil, verrors.NotFound("Document")
	}

	lock := s.repo.GetLock(doc.LibraryID)
	lock.Lock()
	defer lock.Unlock()

	doc, ok = s.repo.GetDocument(id)
	if !ok {
		return nil, verrors.NotFound("Document")
	}
	prevTitle := doc.Title
	if title != nil {
		doc.Title = *title
	}
	s.repo.PutDocument(doc)
	if err := s.store.AppendWAL(repo.WALEntry{Op: repo.WALUpdateDocument, Document: doc}); err != nil {
		doc.Title = prevTitle
		s.repo.PutDocument(doc)
		return nil, err
	}
	return doc, nil
}

// Delete removes a document and cascades to its chunks. libraryID scopes
// the write lock; the document must belong to it.
func (s *DocumentService) Delete(libraryID, id uuid.UUID) error {
	lock := s.repo.GetLock(libraryID)
	lock.Lock()
	defer lock.Unlock()

	doc, ok := s.repo.GetDocument(id)
	if !ok || doc.LibraryID != libraryID {
		return verrors.NotFound("Document")
	}
	chunks := s.repo.ListChunksByDocument(id)

	s.repo.DeleteDocument(id)
	if err := s.store.AppendWAL(repo.WALEntry{Op: repo.WALDeleteDocument, ID: id}); err != nil {
		s.repo.PutDocument(doc)
		for _, c := range chunks {
			s.repo.PutChunk(c)
		}
		return err
	}
	return nil
}
