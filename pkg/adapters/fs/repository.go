package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/humus/pkg/core"
	"github.com/aretw0/humus/pkg/ident"
)

const (
	// LogFileName is the name of the log inside the store directory.
	LogFileName = "humus.log"
	// DefaultSystemDir holds derived state such as the index snapshot.
	DefaultSystemDir = ".humus"
)

// ErrNotInitialized is returned by operations on a repository whose
// Initialize has not completed.
var ErrNotInitialized = errors.New("repository not initialized")

// Repository implements core.Repository on top of an append-only log and an
// in-memory index.
type Repository struct {
	Path   string
	config Config
	logger *slog.Logger

	log       *Log
	index     *Index
	locks     *keyedLocks
	ids       *ident.Generator
	snapshots *snapshotStore
	broker    *broker

	// commitMu is held shared from append to index update, and exclusively
	// while the index is captured for a snapshot.
	commitMu   sync.RWMutex
	lastOffset atomic.Int64 // offset of the newest indexed record

	refreshMu  sync.Mutex
	replayedTo int64 // guarded by refreshMu; log offset the index has caught up to

	ready  atomic.Bool
	closed atomic.Bool

	mu             sync.RWMutex
	follower       runner
	followerActive bool
	recovery       RecoveryStats
	lastCheckpoint *time.Time
	lastRefresh    *time.Time
}

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path         string
	MustExist    bool
	ReadOnly     bool
	Follow       bool // tail the log for writes by another process; read-only only
	SyncMode     SyncMode
	SystemDir    string // e.g. ".humus"
	NoSnapshot   bool
	EventBuffer  int
	Logger       *slog.Logger
	ErrorHandler func(error)
}

// RecoveryStats describes what Initialize found in the log.
type RecoveryStats struct {
	FromSnapshot bool  `json:"from_snapshot"`
	Replayed     int   `json:"replayed"`
	TornBytes    int64 `json:"torn_bytes,omitempty"`
}

// NewRepository creates a new log-backed repository. Call Initialize before
// use.
func NewRepository(config Config) *Repository {
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = core.DefaultEventBuffer
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	config.Logger = logger

	r := &Repository{
		Path:      config.Path,
		config:    config,
		logger:    logger,
		index:     NewIndex(),
		locks:     newKeyedLocks(),
		ids:       ident.NewGenerator(),
		snapshots: newSnapshotStore(config.Path, config.SystemDir),
		broker:    newBroker(logger),
	}
	r.lastOffset.Store(-1)
	return r
}

// LogPath returns the path of the log file.
func (r *Repository) LogPath() string {
	return filepath.Join(r.Path, LogFileName)
}

// Initialize opens the log and rebuilds the index from it.
//
// Workflow:
//  1. Ensure the directory exists (or create it).
//  2. Open the log; in read-only mode it must already exist.
//  3. Load the snapshot, if any, and keep it only if it lines up with the log.
//  4. Replay the remaining records. A torn tail is truncated in writable
//     mode and left in place in read-only mode.
//  5. Start the follower if requested.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.ready.Load() {
		return nil
	}

	if r.config.MustExist || r.config.ReadOnly {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("store path does not exist: %s", r.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", r.Path)
		}
	} else if err := os.MkdirAll(r.Path, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	logPath := r.LogPath()
	_, statErr := os.Stat(logPath)
	if r.config.ReadOnly && os.IsNotExist(statErr) {
		return fmt.Errorf("log does not exist: %s", logPath)
	}

	log, err := OpenLog(logPath, LogConfig{SyncMode: r.config.SyncMode, ReadOnly: r.config.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	if os.IsNotExist(statErr) {
		if err := syncDir(r.Path); err != nil {
			_ = log.Close()
			return fmt.Errorf("failed to sync store directory: %w", err)
		}
	}
	r.log = log

	if err := r.recover(ctx); err != nil {
		_ = log.Close()
		r.log = nil
		return err
	}

	r.ready.Store(true)

	if r.config.Follow {
		if !r.config.ReadOnly {
			r.logger.Debug("follow ignored for writable repository")
		} else if err := r.startFollower(ctx); err != nil {
			_ = r.Close()
			return err
		}
	}
	return nil
}

func (r *Repository) recover(ctx context.Context) error {
	from := int64(0)
	stats := RecoveryStats{}

	if !r.config.NoSnapshot {
		snap, err := r.snapshots.Load()
		switch {
		case errors.Is(err, errNoSnapshot):
		case err != nil:
			r.logger.Warn("ignoring unreadable snapshot", "path", r.snapshots.Path, "error", err)
			r.dropSnapshot()
		default:
			if verr := snap.validate(r.log); verr != nil {
				r.logger.Warn("discarding stale snapshot", "path", r.snapshots.Path, "reason", verr)
				r.dropSnapshot()
			} else {
				r.index.Reset(snap.Entries)
				r.log.observe(snap.LastSeq)
				if snap.LastSeq > 0 {
					r.lastOffset.Store(snap.LastOffset)
				}
				from = snap.End
				stats.FromSnapshot = true
				r.logger.Debug("loaded snapshot", "entries", len(snap.Entries), "end", snap.End)
			}
		}
	}

	scanner := r.log.Scan(from)
	for offset, rec := range scanner.All() {
		if stats.Replayed%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		r.index.Apply(offset, rec)
		r.log.observe(rec.Seq)
		r.lastOffset.Store(offset)
		stats.Replayed++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to replay log: %w", err)
	}

	end := scanner.End()
	if scanner.Torn() {
		stats.TornBytes = r.log.Size() - end
		if r.config.ReadOnly {
			r.logger.Warn("log ends in a partial record", "offset", end, "bytes", stats.TornBytes)
		} else {
			r.logger.Warn("discarding torn tail", "offset", end, "bytes", stats.TornBytes)
			if err := r.log.Truncate(end); err != nil {
				return err
			}
		}
	}

	r.refreshMu.Lock()
	r.replayedTo = end
	r.refreshMu.Unlock()

	r.mu.Lock()
	r.recovery = stats
	r.mu.Unlock()

	r.logger.Debug("log replayed",
		"records", stats.Replayed,
		"from_snapshot", stats.FromSnapshot,
		"live", r.index.Live(),
		"seq", r.log.LastSeq(),
	)
	return nil
}

func (r *Repository) checkOpen() error {
	if r.closed.Load() {
		return core.ErrClosed
	}
	if !r.ready.Load() {
		return ErrNotInitialized
	}
	return nil
}

func (r *Repository) checkWritable() error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	return nil
}

// Create stores a new document. An empty id is replaced by a generated one.
// Creating over a tombstone continues that id's revision history.
func (r *Repository) Create(ctx context.Context, body core.Value, id string) (string, core.Revision, error) {
	if err := r.checkWritable(); err != nil {
		return "", core.Revision{}, err
	}
	if id == "" {
		id = r.ids.Next()
	} else if err := core.ValidateID(id); err != nil {
		return "", core.Revision{}, err
	}
	body, err := core.ValidateBody(body)
	if err != nil {
		return "", core.Revision{}, err
	}
	content, err := body.MarshalJSON()
	if err != nil {
		return "", core.Revision{}, fmt.Errorf("%w: %v", core.ErrInvalidDocument, err)
	}

	unlock, err := r.locks.lock(ctx, id)
	if err != nil {
		return "", core.Revision{}, err
	}
	defer unlock()

	var prev core.Revision
	if cur, ok := r.index.Lookup(id); ok {
		if !cur.Deleted {
			return "", core.Revision{}, fmt.Errorf("%w: document %q already exists", core.ErrConflict, id)
		}
		prev = cur.Rev
	}
	rev, err := core.CheckAndAdvance(prev, prev, content, false)
	if err != nil {
		return "", core.Revision{}, err
	}

	if err := r.commit(ctx, &Record{Op: OpCreate, ID: id, Rev: rev, Body: content}); err != nil {
		return "", core.Revision{}, err
	}
	return id, rev, nil
}

// Get returns the live document for id.
func (r *Repository) Get(ctx context.Context, id string) (core.Document, error) {
	if err := r.checkOpen(); err != nil {
		return core.Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}

	entry, ok := r.index.Lookup(id)
	if !ok || entry.Deleted {
		return core.Document{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return r.load(id, entry)
}

func (r *Repository) load(id string, entry IndexEntry) (core.Document, error) {
	rec, err := r.log.ReadAt(entry.Offset)
	if err != nil {
		return core.Document{}, err
	}
	if rec.ID != id || rec.Seq != entry.Seq {
		return core.Document{}, fmt.Errorf("%w: index entry for %q points at record %q (seq %d)",
			core.ErrCorruptRecord, id, rec.ID, rec.Seq)
	}
	body, err := core.ParseJSON(rec.Body)
	if err != nil {
		return core.Document{}, fmt.Errorf("%w: body of %q: %v", core.ErrCorruptRecord, id, err)
	}
	return core.Document{ID: id, Rev: rec.Rev, Body: body}, nil
}

// Update replaces the body of a live document. rev must be its current
// revision.
func (r *Repository) Update(ctx context.Context, id string, rev core.Revision, body core.Value) (core.Revision, error) {
	if err := r.checkWritable(); err != nil {
		return core.Revision{}, err
	}
	if err := core.ValidateID(id); err != nil {
		return core.Revision{}, err
	}
	body, err := core.ValidateBody(body)
	if err != nil {
		return core.Revision{}, err
	}
	content, err := body.MarshalJSON()
	if err != nil {
		return core.Revision{}, fmt.Errorf("%w: %v", core.ErrInvalidDocument, err)
	}

	unlock, err := r.locks.lock(ctx, id)
	if err != nil {
		return core.Revision{}, err
	}
	defer unlock()

	cur, ok := r.index.Lookup(id)
	if !ok || cur.Deleted {
		return core.Revision{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	next, err := core.CheckAndAdvance(cur.Rev, rev, content, false)
	if err != nil {
		return core.Revision{}, fmt.Errorf("%w: %s is at %s", err, id, cur.Rev)
	}

	if err := r.commit(ctx, &Record{Op: OpUpdate, ID: id, Rev: next, Body: content}); err != nil {
		return core.Revision{}, err
	}
	return next, nil
}

// Delete writes a tombstone for a live document. rev must be its current
// revision.
func (r *Repository) Delete(ctx context.Context, id string, rev core.Revision) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	if err := core.ValidateID(id); err != nil {
		return err
	}

	unlock, err := r.locks.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	cur, ok := r.index.Lookup(id)
	if !ok || cur.Deleted {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	next, err := core.CheckAndAdvance(cur.Rev, rev, nil, true)
	if err != nil {
		return fmt.Errorf("%w: %s is at %s", err, id, cur.Rev)
	}

	return r.commit(ctx, &Record{Op: OpDelete, ID: id, Rev: next})
}

// commit appends rec and, once it is durable, indexes and publishes it.
// The caller holds the id lock.
func (r *Repository) commit(ctx context.Context, rec *Record) error {
	r.commitMu.RLock()
	defer r.commitMu.RUnlock()

	offset, err := r.log.Append(ctx, rec)
	if err != nil {
		return err
	}

	r.index.Upsert(rec.ID, IndexEntry{
		Rev:     rec.Rev,
		Offset:  offset,
		Seq:     rec.Seq,
		Deleted: rec.Op == OpDelete,
	})
	r.advanceLastOffset(offset)
	r.broker.publish(eventFor(rec))
	return nil
}

func (r *Repository) advanceLastOffset(offset int64) {
	for {
		cur := r.lastOffset.Load()
		if offset <= cur || r.lastOffset.CompareAndSwap(cur, offset) {
			return
		}
	}
}

func eventFor(rec *Record) core.Event {
	e := core.Event{
		ID:        rec.ID,
		Rev:       rec.Rev,
		Seq:       rec.Seq,
		Timestamp: rec.Time,
	}
	switch rec.Op {
	case OpCreate:
		e.Type = core.EventCreate
	case OpUpdate:
		e.Type = core.EventModify
	case OpDelete:
		e.Type = core.EventDelete
	}
	return e
}

// List returns live documents sorted by id.
func (r *Repository) List(ctx context.Context, opts core.ListOptions) ([]core.Document, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if err := validatePattern(opts.Pattern); err != nil {
		return nil, err
	}

	var docs []core.Document
	for _, id := range r.index.IDs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !matchID(opts.Pattern, id) {
			continue
		}
		entry, ok := r.index.Lookup(id)
		if !ok || entry.Deleted {
			continue
		}

		doc := core.Document{ID: id, Rev: entry.Rev}
		if opts.IncludeDocs {
			loaded, err := r.load(id, entry)
			if err != nil {
				return nil, err
			}
			doc = loaded
		}
		docs = append(docs, doc)
		if opts.Limit > 0 && len(docs) >= opts.Limit {
			break
		}
	}
	return docs, nil
}

// Info summarizes the repository.
func (r *Repository) Info(ctx context.Context) (core.Info, error) {
	if err := r.checkOpen(); err != nil {
		return core.Info{}, err
	}
	total, live := r.index.Len(), r.index.Live()
	return core.Info{
		Path:         r.Path,
		DocCount:     live,
		DeletedCount: total - live,
		UpdateSeq:    r.log.LastSeq(),
		LogSize:      r.log.Size(),
		ReadOnly:     r.config.ReadOnly,
	}, nil
}

// Watch subscribes to committed changes whose id matches pattern. The
// channel closes when ctx is done or the repository is closed.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	return r.broker.subscribe(ctx, pattern, r.config.EventBuffer)
}

// Refresh indexes records appended by another process since the last
// replay. It is a no-op for writable repositories, which are the only
// writer of their log.
func (r *Repository) Refresh(ctx context.Context) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if !r.config.ReadOnly {
		return nil
	}

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	size, err := r.log.Refresh()
	if err != nil {
		return fmt.Errorf("failed to stat log: %w", err)
	}
	if size < r.replayedTo {
		r.logger.Warn("log shrank, rebuilding index", "size", size, "indexed", r.replayedTo)
		r.index.Reset(nil)
		r.lastOffset.Store(-1)
		r.replayedTo = 0
	}
	if size == r.replayedTo {
		r.touchRefresh()
		return nil
	}

	scanner := r.log.Scan(r.replayedTo)
	applied := 0
	for offset, rec := range scanner.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.index.Apply(offset, rec)
		r.log.observe(rec.Seq)
		r.advanceLastOffset(offset)
		r.replayedTo = scanner.End()
		r.broker.publish(eventFor(&rec))
		applied++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to follow log: %w", err)
	}
	r.replayedTo = scanner.End()
	r.touchRefresh()

	if applied > 0 {
		r.logger.Debug("caught up with log", "records", applied, "seq", r.log.LastSeq())
	}
	return nil
}

func (r *Repository) touchRefresh() {
	now := time.Now()
	r.mu.Lock()
	r.lastRefresh = &now
	r.mu.Unlock()
}

// Checkpoint writes the index snapshot so the next Initialize only replays
// records appended after it.
func (r *Repository) Checkpoint(ctx context.Context) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	if r.config.NoSnapshot {
		return errors.New("snapshots are disabled")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.writeSnapshot()
}

// dropSnapshot removes a snapshot that recovery could not use so the next
// open does not trip over it again. Read-only handles leave it in place.
func (r *Repository) dropSnapshot() {
	if r.config.ReadOnly {
		return
	}
	if err := r.snapshots.Remove(); err != nil {
		r.logger.Warn("failed to remove snapshot", "path", r.snapshots.Path, "error", err)
	}
}

func (r *Repository) writeSnapshot() error {
	r.commitMu.Lock()
	snap := &snapshot{
		LastSeq: r.log.LastSeq(),
		End:     r.log.Size(),
		Entries: r.index.Snapshot(),
	}
	if snap.LastSeq > 0 {
		snap.LastOffset = r.lastOffset.Load()
	}
	r.commitMu.Unlock()

	// The snapshot must never describe bytes the log has not made durable.
	if err := r.log.Sync(); err != nil {
		return fmt.Errorf("failed to sync log: %w", err)
	}
	if err := r.snapshots.Save(snap); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	now := time.Now()
	r.mu.Lock()
	r.lastCheckpoint = &now
	r.mu.Unlock()

	r.logger.Debug("snapshot written", "entries", len(snap.Entries), "end", snap.End)
	return nil
}

// Close stops the follower, writes a final snapshot in writable mode,
// closes every Watch channel and the log. It is safe to call more than once.
func (r *Repository) Close() error {
	if r.closed.Swap(true) {
		return nil
	}

	r.stopFollower()

	var errs []error
	if r.log != nil {
		if r.ready.Load() && !r.config.ReadOnly && !r.config.NoSnapshot {
			if err := r.writeSnapshot(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := r.log.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.broker.close()
	return errors.Join(errs...)
}

var _ core.Repository = (*Repository)(nil)
var _ core.Watchable = (*Repository)(nil)
var _ core.Refreshable = (*Repository)(nil)
var _ core.Checkpointer = (*Repository)(nil)
