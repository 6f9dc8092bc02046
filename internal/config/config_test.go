package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_NewHasSaneDefaults(t *testing.T) {
	c := New()
	require.NoError(t, c.Validate())
	assert.Equal(t, "flat", c.Indexing.DefaultAlgo)
	assert.Equal(t, 384, c.Embeddings.Dim)
}

func TestConfig_LoadWithNoFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "./data", c.Data.Dir)
}

func TestConfig_LoadMergesProjectYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := "data:\n  dir: /var/vectordb\nserver:\n  addr: \":9090\"\nindexing:\n  default_algo: rp\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(yaml), 0o644))

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/vectordb", c.Data.Dir)
	assert.Equal(t, ":9090", c.Server.Addr)
	assert.Equal(t, "rp", c.Indexing.DefaultAlgo)
	// untouched fields keep their defaults
	assert.Equal(t, 384, c.Embeddings.Dim)
}

func TestConfig_EnvOverridesBeatFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := "server:\n  addr: \":9090\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(yaml), 0o644))

	t.Setenv("VECTORDB_ADDR", ":7070")
	t.Setenv("VECTORDB_EMBEDDINGS_DIM", "1536")

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":7070", c.Server.Addr)
	assert.Equal(t, 1536, c.Embeddings.Dim)
}

func TestConfig_ValidateRejectsUnknownIndexAlgo(t *testing.T) {
	c := New()
	c.Indexing.DefaultAlgo = "hnsw"
	assert.Error(t, c.Validate())
}

func TestConfig_ValidateRejectsNonPositiveDim(t *testing.T) {
	c := New()
	c.Embeddings.Dim = 0
	assert.Error(t, c.Validate())
}

func TestConfig_WriteYAMLRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")
	c := New()
	c.Server.Addr = ":1234"
	require.NoError(t, c.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), data, 0o644))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":1234", loaded.Server.Addr)
}
