package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	snapshotVersion  = 1
	snapshotFileName = "index.json"
)

// snapshot is a persisted copy of the index. It is a cache: the log stays
// authoritative, and a snapshot that does not line up with the log is
// thrown away.
type snapshot struct {
	Version    int                   `json:"version"`
	LastOffset int64                 `json:"last_offset"` // offset of the last covered record
	LastSeq    uint64                `json:"last_seq"`    // seq of the last covered record, 0 if none
	End        int64                 `json:"end"`         // log size covered by the snapshot
	Entries    map[string]IndexEntry `json:"entries"`
}

// snapshotStore loads and saves the snapshot file.
type snapshotStore struct {
	Path string // {dir}/{systemDir}/index.json
}

func newSnapshotStore(dir, systemDir string) *snapshotStore {
	return &snapshotStore{Path: filepath.Join(dir, systemDir, snapshotFileName)}
}

var errNoSnapshot = errors.New("no snapshot")

// Load reads the snapshot. A missing file yields errNoSnapshot; an
// unreadable one is returned as an error for the caller to log and ignore.
func (s *snapshotStore) Load() (*snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, errNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Entries == nil {
		snap.Entries = make(map[string]IndexEntry)
	}
	return &snap, nil
}

// Save writes the snapshot atomically.
func (s *snapshotStore) Save(snap *snapshot) error {
	snap.Version = snapshotVersion
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return err
	}
	return writeFileAtomic(s.Path, data, 0644)
}

// Remove deletes a stale snapshot.
func (s *snapshotStore) Remove() error {
	err := os.Remove(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// validate checks that snap describes a prefix of log.
func (snap *snapshot) validate(log *Log) error {
	if snap.End < 0 || snap.End > log.Size() {
		return fmt.Errorf("snapshot covers %d bytes, log has %d", snap.End, log.Size())
	}
	if snap.LastSeq == 0 {
		if snap.End != 0 || len(snap.Entries) != 0 {
			return errors.New("empty snapshot with entries")
		}
		return nil
	}

	rec, err := log.ReadAt(snap.LastOffset)
	if err != nil {
		return fmt.Errorf("snapshot anchor: %w", err)
	}
	if rec.Seq != snap.LastSeq {
		return fmt.Errorf("snapshot anchor seq %d, log has %d", snap.LastSeq, rec.Seq)
	}
	if snap.LastOffset+int64(rec.frameLen()) != snap.End {
		return fmt.Errorf("snapshot end %d does not follow anchor record", snap.End)
	}
	return nil
}
