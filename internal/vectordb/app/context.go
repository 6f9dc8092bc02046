// Package app wires every core service together into one explicit,
// dependency-injected context, replacing the reference implementation's
// module-level singletons with a value the caller constructs and passes
// down (cmd/vectordb and the HTTP layer both hold one).
package app

import (
	"log/slog"

	"github.com/iwinterknight/vectordb/internal/vectordb/durability"
	"github.com/iwinterknight/vectordb/internal/vectordb/embed"
	"github.com/iwinterknight/vectordb/internal/vectordb/indexing"
	"github.com/iwinterknight/vectordb/internal/vectordb/mutate"
	"github.com/iwinterknight/vectordb/internal/vectordb/repo"
	"github.com/iwinterknight/vectordb/internal/vectordb/search"
)

// Context holds every wired service. It has no package-level counterpart:
// callers construct exactly one per process and pass it explicitly.
type Context struct {
	Repo      *repo.Repo
	Store     *durability.Store
	Embedder  embed.Provider
	Indexing  *indexing.Service
	Search    *search.Service
	Library   *mutate.LibraryService
	Document  *mutate.DocumentService
	Chunk     *mutate.ChunkService
	Log       *slog.Logger
}

// Options configures New.
type Options struct {
	DataDir             string
	Embedder            embed.Provider
	Logger              *slog.Logger
	EphemeralCacheSize   int
}

// New opens durability, bootstraps the repository from disk, restores
// every library's persisted index, and wires the mutation/search services
// on top. It is the single place a process assembles the core.
func New(opts Options) (*Context, error) {
	store, err := durability.Open(opts.DataDir)
	if err != nil {
		return nil, err
	}

	r := repo.New()
	if err := store.Bootstrap(r); err != nil {
		return nil, err
	}

	idxSvc := indexing.New(r, store)
	if err := idxSvc.RestoreAllIndices(); err != nil {
		return nil, err
	}

	embedder := opts.Embedder
	if embedder == nil {
		embedder = embed.NewStubProvider(384)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Context{
		Repo:     r,
		Store:    store,
		Embedder: embedder,
		Indexing: idxSvc,
		Search:   search.New(r, idxSvc, embedder, opts.EphemeralCacheSize),
		Library:  mutate.NewLibraryService(r, store),
		Document: mutate.NewDocumentService(r, store),
		Chunk:    mutate.NewChunkService(r, store, embedder),
		Log:      logger,
	}, nil
}

// Snapshot folds the current repository state and WAL into a fresh
// snapshot. The admin endpoint, the snapshot command and serve's shutdown
// call it; nothing triggers it from the WAL's size.
func (c *Context) Snapshot() (durability.Stats, error) {
	if err := c.Store.WriteSnapshot(c.Repo.DumpSnapshot()); err != nil {
		return durability.Stats{}, err
	}
	return c.Store.Stats(), nil
}
