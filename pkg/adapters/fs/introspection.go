package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path           string        `json:"path"`
	SystemDir      string        `json:"system_dir"`
	ReadOnly       bool          `json:"read_only"`
	Snapshot       bool          `json:"snapshot"`
	SyncAlways     bool          `json:"sync_always"`
	LiveDocs       int           `json:"live_docs"`
	Tombstones     int           `json:"tombstones"`
	LogSize        int64         `json:"log_size"`
	UpdateSeq      uint64        `json:"update_seq"`
	Watchers       int           `json:"watchers"`
	HeldLocks      int           `json:"held_locks"`
	FollowerActive bool          `json:"follower_active"`
	Recovery       RecoveryStats `json:"recovery"`
	LastCheckpoint *time.Time    `json:"last_checkpoint,omitempty"`
	LastRefresh    *time.Time    `json:"last_refresh,omitempty"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total, live := r.index.Len(), r.index.Live()
	state := RepositoryState{
		Path:           r.Path,
		SystemDir:      r.config.SystemDir,
		ReadOnly:       r.config.ReadOnly,
		Snapshot:       !r.config.NoSnapshot,
		SyncAlways:     r.config.SyncMode == SyncAlways,
		LiveDocs:       live,
		Tombstones:     total - live,
		Watchers:       r.broker.len(),
		HeldLocks:      r.locks.len(),
		FollowerActive: r.followerActive,
		Recovery:       r.recovery,
		LastCheckpoint: r.lastCheckpoint,
		LastRefresh:    r.lastRefresh,
	}
	if r.log != nil {
		state.LogSize = r.log.Size()
		state.UpdateSeq = r.log.LastSeq()
	}
	return state
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "repository"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
