package fs

import (
	"slices"
	"sync"

	"github.com/aretw0/humus/pkg/core"
)

// IndexEntry locates the latest record of a document in the log.
type IndexEntry struct {
	Rev     core.Revision `json:"rev"`
	Offset  int64         `json:"offset"`
	Seq     uint64        `json:"seq"`
	Deleted bool          `json:"deleted,omitempty"`
}

// Index maps document ids to their latest log position. It is derived
// state: it can always be rebuilt by replaying the log.
type Index struct {
	mu      sync.RWMutex
	entries map[string]IndexEntry
	live    int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]IndexEntry)}
}

// Lookup returns the entry for id, tombstones included.
func (ix *Index) Lookup(id string) (IndexEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[id]
	return e, ok
}

// Upsert records e as the latest entry for id.
func (ix *Index) Upsert(id string, e IndexEntry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.set(id, e)
}

func (ix *Index) set(id string, e IndexEntry) {
	if old, ok := ix.entries[id]; ok && !old.Deleted {
		ix.live--
	}
	if !e.Deleted {
		ix.live++
	}
	ix.entries[id] = e
}

// Apply folds a replayed record into the index. Records older than the
// current entry are ignored so replay is idempotent.
func (ix *Index) Apply(offset int64, rec Record) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if cur, ok := ix.entries[rec.ID]; ok && cur.Seq >= rec.Seq {
		return
	}
	ix.set(rec.ID, IndexEntry{
		Rev:     rec.Rev,
		Offset:  offset,
		Seq:     rec.Seq,
		Deleted: rec.Op == OpDelete,
	})
}

// Remove drops id entirely.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if old, ok := ix.entries[id]; ok {
		if !old.Deleted {
			ix.live--
		}
		delete(ix.entries, id)
	}
}

// Len returns the number of ids ever seen, tombstones included.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Live returns the number of non-deleted documents.
func (ix *Index) Live() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.live
}

// IDs returns the live ids in ascending order.
func (ix *Index) IDs() []string {
	ix.mu.RLock()
	ids := make([]string, 0, ix.live)
	for id, e := range ix.entries {
		if !e.Deleted {
			ids = append(ids, id)
		}
	}
	ix.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Snapshot copies all entries.
func (ix *Index) Snapshot() map[string]IndexEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string]IndexEntry, len(ix.entries))
	for id, e := range ix.entries {
		out[id] = e
	}
	return out
}

// Reset replaces all entries.
func (ix *Index) Reset(entries map[string]IndexEntry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = make(map[string]IndexEntry, len(entries))
	ix.live = 0
	for id, e := range entries {
		ix.set(id, e)
	}
}
