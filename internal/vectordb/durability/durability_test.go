package durability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwinterknight/vectordb/internal/vectordb/model"
	"github.com/iwinterknight/vectordb/internal/vectordb/repo"
)

func TestDurability_AppendAndLoadWAL(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	lib := model.NewLibrary("lib", "")
	require.NoError(t, store.AppendWAL(repo.WALEntry{Op: repo.WALCreateLibrary, Library: lib}))

	snap, entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Libraries)
	require.Len(t, entries, 1)
	assert.Equal(t, repo.WALCreateLibrary, entries[0].Op)
	assert.Equal(t, lib.ID, entries[0].Library.ID)
}

func TestDurability_SnapshotTruncatesWAL(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	lib := model.NewLibrary("lib", "")
	require.NoError(t, store.AppendWAL(repo.WALEntry{Op: repo.WALCreateLibrary, Library: lib}))

	require.NoError(t, store.WriteSnapshot(repo.Snapshot{Libraries: []*model.Library{lib}}))

	snap, entries, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Libraries, 1)
	assert.Equal(t, lib.ID, snap.Libraries[0].ID)
	assert.Empty(t, entries)
}

func TestDurability_LoadToleratesTruncatedFinalLine(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	lib1 := model.NewLibrary("lib1", "")
	lib2 := model.NewLibrary("lib2", "")
	require.NoError(t, store.AppendWAL(repo.WALEntry{Op: repo.WALCreateLibrary, Library: lib1}))
	require.NoError(t, store.AppendWAL(repo.WALEntry{Op: repo.WALCreateLibrary, Library: lib2}))

	walPath := filepath.Join(dir, walFile)
	data, err := os.ReadFile(walPath)
	require.NoError(t, err)
	truncated := append(data, []byte(`{"op":"create_library","library":{"id":"not-va`)...)
	require.NoError(t, os.WriteFile(walPath, truncated, 0o644))

	_, entries, err := store.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, lib1.ID, entries[0].Library.ID)
	assert.Equal(t, lib2.ID, entries[1].Library.ID)
}

func TestDurability_BootstrapHydratesAndReplaysWAL(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	lib := model.NewLibrary("lib", "")
	doc := model.NewDocument(lib.ID, "doc")
	chunk := model.NewChunk(lib.ID, doc.ID, "text", model.ChunkMeta{})

	require.NoError(t, store.WriteSnapshot(repo.Snapshot{Libraries: []*model.Library{lib}}))
	require.NoError(t, store.AppendWAL(repo.WALEntry{Op: repo.WALCreateDocument, Document: doc}))
	require.NoError(t, store.AppendWAL(repo.WALEntry{Op: repo.WALCreateChunk, Chunk: chunk}))

	r := repo.New()
	require.NoError(t, store.Bootstrap(r))

	_, ok := r.GetLibrary(lib.ID)
	assert.True(t, ok)
	_, ok = r.GetChunk(chunk.ID)
	assert.True(t, ok)
}

func TestDurability_StatsReportsFileSizes(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	lib := model.NewLibrary("lib", "")
	require.NoError(t, store.AppendWAL(repo.WALEntry{Op: repo.WALCreateLibrary, Library: lib}))

	stats := store.Stats()
	assert.Greater(t, stats.WALBytes, int64(0))
}
