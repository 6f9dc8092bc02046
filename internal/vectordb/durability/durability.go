// Package durability persists the repository to disk as a snapshot plus a
// write-ahead log, and replays that state at bootstrap.
package durability

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/iwinterknight/vectordb/internal/vectordb/filelock"
	"github.com/iwinterknight/vectordb/internal/vectordb/repo"
	"github.com/iwinterknight/vectordb/internal/vectordb/verrors"
)

const (
	snapshotFile = "repo.snapshot.json"
	walFile      = "repo.wal.jsonl"
	lockFile     = "repo.lock"
)

// Store is the on-disk persistence layer for one repository: a JSON
// snapshot plus a JSON-lines WAL of operations applied since that
// snapshot, guarded by a cross-process file lock.
type Store struct {
	snapshotPath string
	walPath      string
	lock         *filelock.FileLock
}

// Open creates dataDir if needed and returns a Store bound to it.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, verrors.Transient("create data directory", err)
	}
	return &Store{
		snapshotPath: filepath.Join(dataDir, snapshotFile),
		walPath:      filepath.Join(dataDir, walFile),
		lock:         filelock.New(filepath.Join(dataDir, lockFile)),
	}, nil
}

// AppendWAL appends one JSON line to the WAL and fsyncs it. The data
// directory's exclusive lock is held only for the duration of the append,
// so a concurrent process's append or snapshot can't interleave bytes.
func (s *Store) AppendWAL(entry repo.WALEntry) error {
	if entry.TS.IsZero() {
		entry.TS = time.Now().UTC()
	}

	if err := s.lock.Lock(); err != nil {
		return verrors.Transient("acquire data directory lock", err)
	}
	defer s.lock.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		return verrors.Transient("encode WAL entry", err)
	}

	f, err := os.OpenFile(s.walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return verrors.Transient("open WAL file", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return verrors.Transient("write WAL entry", err)
	}
	if err := f.Sync(); err != nil {
		return verrors.Transient("fsync WAL file", err)
	}
	return nil
}

// WriteSnapshot writes snap to a sibling temp file, fsyncs it, atomically
// renames it over the snapshot path, then truncates (and fsyncs) the WAL.
// A crash at any point leaves either the old snapshot with a full WAL, or
// the new snapshot with an empty WAL — never a partially written snapshot
// observed as valid.
func (s *Store) WriteSnapshot(snap repo.Snapshot) error {
	if err := s.lock.Lock(); err != nil {
		return verrors.Transient("acquire data directory lock", err)
	}
	defer s.lock.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return verrors.Transient("encode snapshot", err)
	}

	tmp := s.snapshotPath + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return verrors.Transient("open snapshot temp file", err)
	}
	if _, err := tf.Write(data); err != nil {
		tf.Close()
		return verrors.Transient("write snapshot temp file", err)
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		return verrors.Transient("fsync snapshot temp file", err)
	}
	if err := tf.Close(); err != nil {
		return verrors.Transient("close snapshot temp file", err)
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return verrors.Transient("rename snapshot into place", err)
	}

	wf, err := os.OpenFile(s.walPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return verrors.Transient("truncate WAL file", err)
	}
	defer wf.Close()
	if err := wf.Sync(); err != nil {
		return verrors.Transient("fsync truncated WAL file", err)
	}
	return nil
}

// Load reads the snapshot (empty Snapshot if absent) and the WAL entries
// applied since it. Parsing stops at the first line that fails to
// unmarshal, tolerating a WAL torn mid-write by a crash.
func (s *Store) Load() (repo.Snapshot, []repo.WALEntry, error) {
	var snap repo.Snapshot
	if data, err := os.ReadFile(s.snapshotPath); err == nil {
		if len(data) > 0 {
			if err := json.Unmarshal(data, &snap); err != nil {
				return repo.Snapshot{}, nil, verrors.Transient("decode snapshot", err)
			}
		}
	} else if !os.IsNotExist(err) {
		return repo.Snapshot{}, nil, verrors.Transient("read snapshot", err)
	}

	var entries []repo.WALEntry
	f, err := os.Open(s.walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, entries, nil
		}
		return repo.Snapshot{}, nil, verrors.Transient("open WAL file", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry repo.WALEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			break // truncated/corrupt tail line: stop replay here
		}
		entries = append(entries, entry)
	}
	return snap, entries, nil
}

// Bootstrap hydrates r from the snapshot and replays the WAL tail in order.
func (s *Store) Bootstrap(r *repo.Repo) error {
	snap, entries, err := s.Load()
	if err != nil {
		return err
	}
	r.Hydrate(snap)
	for _, e := range entries {
		if err := r.ApplyWALEntry(e); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports on-disk sizes, for diagnostics/admin endpoints.
type Stats struct {
	SnapshotBytes int64  `json:"snapshot_bytes"`
	WALBytes      int64  `json:"wal_bytes"`
	SnapshotPath  string `json:"snapshot_path"`
	WALPath       string `json:"wal_path"`
}

func (s *Store) Stats() Stats {
	return Stats{
		SnapshotBytes: fileSize(s.snapshotPath),
		WALBytes:      fileSize(s.walPath),
		SnapshotPath:  s.snapshotPath,
		WALPath:       s.walPath,
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
