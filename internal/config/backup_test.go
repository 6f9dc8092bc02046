package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackup_BackupSnapshotNoFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	path, err := BackupSnapshot(filepath.Join(dir, "repo.snapshot.json"))
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBackup_BackupSnapshotCopiesContent(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "repo.snapshot.json")
	require.NoError(t, os.WriteFile(snap, []byte(`{"libraries":[]}`), 0o644))

	backupPath, err := BackupSnapshot(snap)
	require.NoError(t, err)
	require.NotEmpty(t, backupPath)

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, `{"libraries":[]}`, string(data))
}

func TestBackup_CleanupKeepsOnlyMaxSnapshotBackups(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "repo.snapshot.json")
	require.NoError(t, os.WriteFile(snap, []byte("v0"), 0o644))

	for i := 0; i < MaxSnapshotBackups+2; i++ {
		_, err := BackupSnapshot(snap)
		require.NoError(t, err)
	}

	backups, err := ListSnapshotBackups(snap)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), MaxSnapshotBackups)
}

func TestBackup_RestoreSnapshotOverwritesLiveFile(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "repo.snapshot.json")
	require.NoError(t, os.WriteFile(snap, []byte("original"), 0o644))

	backupPath, err := BackupSnapshot(snap)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(snap, []byte("mutated"), 0o644))
	require.NoError(t, RestoreSnapshot(snap, backupPath))

	data, err := os.ReadFile(snap)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestBackup_RestoreSnapshotMissingBackupErrors(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "repo.snapshot.json")
	err := RestoreSnapshot(snap, filepath.Join(dir, "does-not-exist.bak"))
	assert.Error(t, err)
}
