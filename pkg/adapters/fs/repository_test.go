package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/humus/pkg/adapters/fs"
	"github.com/aretw0/humus/pkg/core"
)

// setupRepo creates and initializes a repository in a fresh directory.
func setupRepo(t *testing.T, opts ...func(*fs.Config)) (*fs.Repository, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "store")
	repo := openRepo(t, path, opts...)
	return repo, path
}

func openRepo(t *testing.T, path string, opts ...func(*fs.Config)) *fs.Repository {
	t.Helper()

	cfg := fs.Config{Path: path}
	for _, opt := range opts {
		opt(&cfg)
	}
	repo := fs.NewRepository(cfg)
	require.NoError(t, repo.Initialize(context.Background()))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func noSnapshot(c *fs.Config) { c.NoSnapshot = true }

func obj(kv ...any) core.Value {
	fields := make(map[string]core.Value)
	for i := 0; i+1 < len(kv); i += 2 {
		v, err := core.FromAny(kv[i+1])
		if err != nil {
			panic(err)
		}
		fields[kv[i].(string)] = v
	}
	return core.Object(fields)
}

func TestInitialize(t *testing.T) {
	t.Run("Creates Directory if Missing", func(t *testing.T) {
		_, path := setupRepo(t)
		_, err := os.Stat(filepath.Join(path, fs.LogFileName))
		assert.NoError(t, err)
	})

	t.Run("Fails if MustExist and Missing", func(t *testing.T) {
		repo := fs.NewRepository(fs.Config{Path: filepath.Join(t.TempDir(), "nope"), MustExist: true})
		assert.Error(t, repo.Initialize(context.Background()))
	})

	t.Run("Read-only requires an existing log", func(t *testing.T) {
		repo := fs.NewRepository(fs.Config{Path: t.TempDir(), ReadOnly: true})
		assert.Error(t, repo.Initialize(context.Background()))
	})

	t.Run("Operations before Initialize fail", func(t *testing.T) {
		repo := fs.NewRepository(fs.Config{Path: t.TempDir()})
		_, err := repo.Get(context.Background(), "x")
		assert.ErrorIs(t, err, fs.ErrNotInitialized)
	})
}

func TestRepository_CreateThenGet(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	body := obj("a", 1, "tags", []any{"x", "y"}, "nested", map[string]any{"ok": true})
	id, rev, err := repo.Create(ctx, body, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, uint64(1), rev.Generation)

	doc, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
	assert.Equal(t, rev, doc.Rev)
	assert.True(t, core.Equal(body, doc.Body), "got %s", doc.Body)
}

func TestRepository_GeneratedIDsAreOrdered(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	var prev string
	for i := 0; i < 50; i++ {
		id, _, err := repo.Create(ctx, core.Null(), "")
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestRepository_StaleUpdateConflicts(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	id, r1, err := repo.Create(ctx, obj("a", 1), "")
	require.NoError(t, err)
	r2, err := repo.Update(ctx, id, r1, obj("a", 2))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.Generation)
	assert.NotEqual(t, r1.Hash, r2.Hash)

	_, err = repo.Update(ctx, id, r1, obj("a", 3))
	assert.ErrorIs(t, err, core.ErrConflict)

	doc, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, core.Equal(obj("a", 2), doc.Body))
}

func TestRepository_CreateExistingConflicts(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	_, _, err := repo.Create(ctx, core.Null(), "doc")
	require.NoError(t, err)
	_, _, err = repo.Create(ctx, core.Null(), "doc")
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestRepository_DeleteThenGet(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	id, r1, err := repo.Create(ctx, core.Null(), "")
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, id, r1))

	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = repo.Update(ctx, id, r1, core.Null())
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, id, r1), core.ErrNotFound)

	t.Run("recreate continues the history", func(t *testing.T) {
		_, rev, err := repo.Create(ctx, obj("again", true), id)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), rev.Generation)
	})
}

func TestRepository_DeleteWithStaleRevConflicts(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	id, r1, err := repo.Create(ctx, core.Null(), "")
	require.NoError(t, err)
	_, err = repo.Update(ctx, id, r1, obj("v", 2))
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, id, r1), core.ErrConflict)
	_, err = repo.Get(ctx, id)
	assert.NoError(t, err)
}

func TestRepository_MissingDocument(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = repo.Update(ctx, "ghost", core.Revision{}, core.Null())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRepository_InvalidInput(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	_, _, err := repo.Create(ctx, core.Array(), "")
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
	_, _, err = repo.Create(ctx, core.Null(), "_local/x")
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
	_, err = repo.List(ctx, core.ListOptions{Pattern: "[unclosed"})
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
}

func TestRepository_ReplayRestoresState(t *testing.T) {
	for _, snap := range []bool{true, false} {
		name := "with snapshot"
		if !snap {
			name = "without snapshot"
		}
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "store")
			opts := []func(*fs.Config){}
			if !snap {
				opts = append(opts, noSnapshot)
			}
			ctx := context.Background()

			repo := openRepo(t, path, opts...)
			idA, ra, err := repo.Create(ctx, obj("n", 1), "a")
			require.NoError(t, err)
			ra, err = repo.Update(ctx, idA, ra, obj("n", 2))
			require.NoError(t, err)
			_, rb, err := repo.Create(ctx, obj("n", 1), "b")
			require.NoError(t, err)
			require.NoError(t, repo.Delete(ctx, "b", rb))
			_, rc, err := repo.Create(ctx, obj("n", 3), "c")
			require.NoError(t, err)
			before, err := repo.Info(ctx)
			require.NoError(t, err)
			require.NoError(t, repo.Close())

			reopened := openRepo(t, path, opts...)
			after, err := reopened.Info(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after)

			doc, err := reopened.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, ra, doc.Rev)
			assert.True(t, core.Equal(obj("n", 2), doc.Body))

			_, err = reopened.Get(ctx, "b")
			assert.ErrorIs(t, err, core.ErrNotFound)

			doc, err = reopened.Get(ctx, "c")
			require.NoError(t, err)
			assert.Equal(t, rc, doc.Rev)

			state := reopened.State().(fs.RepositoryState)
			assert.Equal(t, snap, state.Recovery.FromSnapshot)

			// The logical clock continues after replay.
			_, err = reopened.Update(ctx, "c", rc, obj("n", 4))
			require.NoError(t, err)
			info, err := reopened.Info(ctx)
			require.NoError(t, err)
			assert.Equal(t, before.UpdateSeq+1, info.UpdateSeq)
		})
	}
}

func TestRepository_TornTailIsDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	repo := openRepo(t, path)
	for _, id := range []string{"a", "b", "c"} {
		_, _, err := repo.Create(ctx, obj("id", id), id)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Close())

	// Simulate a crash in the middle of writing "c".
	logPath := filepath.Join(path, fs.LogFileName)
	info, err := os.Stat(logPath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(logPath, info.Size()-5))

	reopened := openRepo(t, path)
	_, err = reopened.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = reopened.Get(ctx, "b")
	assert.NoError(t, err)
	_, err = reopened.Get(ctx, "c")
	assert.ErrorIs(t, err, core.ErrNotFound)

	state := reopened.State().(fs.RepositoryState)
	assert.False(t, state.Recovery.FromSnapshot, "snapshot beyond the log must be discarded")
	assert.Positive(t, state.Recovery.TornBytes)

	// Appends continue cleanly after the truncation.
	_, _, err = reopened.Create(ctx, core.Null(), "c")
	require.NoError(t, err)
	require.NoError(t, reopened.Close())

	again := openRepo(t, path, noSnapshot)
	docs, err := again.List(ctx, core.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestRepository_CorruptionSurfaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	repo := openRepo(t, path, noSnapshot)
	for _, id := range []string{"a", "b", "c"} {
		_, _, err := repo.Create(ctx, obj("payload", "some bytes to flip"), id)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Close())

	logPath := filepath.Join(path, fs.LogFileName)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	data[20] ^= 0xFF // inside the first record's payload
	require.NoError(t, os.WriteFile(logPath, data, 0644))

	broken := fs.NewRepository(fs.Config{Path: path, NoSnapshot: true})
	err = broken.Initialize(ctx)
	assert.ErrorIs(t, err, core.ErrCorruptRecord)
}

func TestRepository_CorruptLengthPrefixIsNotTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()
	logPath := filepath.Join(path, fs.LogFileName)

	repo := openRepo(t, path, noSnapshot)
	_, _, err := repo.Create(ctx, obj("n", 1), "a")
	require.NoError(t, err)
	require.NoError(t, repo.Close())
	info, err := os.Stat(logPath)
	require.NoError(t, err)
	second := info.Size()

	repo = openRepo(t, path, noSnapshot)
	for _, id := range []string{"b", "c", "d"} {
		_, _, err := repo.Create(ctx, obj("n", 1), id)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	data[second] ^= 0x01 // low byte of the length prefix of "b"
	require.NoError(t, os.WriteFile(logPath, data, 0644))

	broken := fs.NewRepository(fs.Config{Path: path, NoSnapshot: true})
	err = broken.Initialize(ctx)
	assert.ErrorIs(t, err, core.ErrCorruptRecord)

	after, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), after.Size(), "records after the damage must stay on disk")
}

func TestRepository_ZeroFilledTailIsDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()
	logPath := filepath.Join(path, fs.LogFileName)

	repo := openRepo(t, path, noSnapshot)
	for _, id := range []string{"a", "b"} {
		_, _, err := repo.Create(ctx, obj("n", 1), id)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Close())
	info, err := os.Stat(logPath)
	require.NoError(t, err)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 64))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := openRepo(t, path, noSnapshot)
	docs, err := reopened.List(ctx, core.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	state := reopened.State().(fs.RepositoryState)
	assert.Equal(t, int64(64), state.Recovery.TornBytes)

	after, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), after.Size())
}

func TestRepository_CorruptionBehindSnapshotSurfacesOnRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	repo := openRepo(t, path)
	for _, id := range []string{"a", "b"} {
		_, _, err := repo.Create(ctx, obj("payload", "some bytes to flip"), id)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Close())

	logPath := filepath.Join(path, fs.LogFileName)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	data[20] ^= 0xFF
	require.NoError(t, os.WriteFile(logPath, data, 0644))

	reopened := openRepo(t, path)
	_, err = reopened.Get(ctx, "a")
	assert.ErrorIs(t, err, core.ErrCorruptRecord)
	_, err = reopened.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestRepository_ConcurrentUpdatesExactlyOneWins(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	id, base, err := repo.Create(ctx, obj("n", 0), "")
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = repo.Update(ctx, id, base, obj("n", i+1))
		}(i)
	}
	close(start)
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, core.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)

	doc, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), doc.Rev.Generation)
}

func TestRepository_ParallelWritersOnDistinctIDs(t *testing.T) {
	repo, _ := setupRepo(t, func(c *fs.Config) { c.SyncMode = fs.SyncNone })
	ctx := context.Background()

	const writers, perWriter = 20, 500
	ids := make([][]string, writers)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id, _, err := repo.Create(ctx, obj("i", i), "")
				if !assert.NoError(t, err) {
					return
				}
				ids[w] = append(ids[w], id)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[string]struct{}, writers*perWriter)
	for _, batch := range ids {
		for _, id := range batch {
			_, dup := seen[id]
			require.False(t, dup, "duplicate generated id %s", id)
			seen[id] = struct{}{}
		}
	}
	assert.Len(t, seen, writers*perWriter)

	info, err := repo.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, info.DocCount)
	assert.Equal(t, uint64(writers*perWriter), info.UpdateSeq)
}

func TestRepository_CancelledBeforeCommit(t *testing.T) {
	repo, _ := setupRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := repo.Create(ctx, core.Null(), "doc")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = repo.Get(context.Background(), "doc")
	assert.ErrorIs(t, err, core.ErrNotFound)

	info, err := repo.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.UpdateSeq)
}

func TestRepository_List(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	for _, id := range []string{"users/b", "users/a", "orders/1", "users/c/avatar"} {
		_, _, err := repo.Create(ctx, obj("id", id), id)
		require.NoError(t, err)
	}
	_, rev, err := repo.Create(ctx, core.Null(), "users/gone")
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "users/gone", rev))

	ids := func(docs []core.Document) []string {
		out := make([]string, len(docs))
		for i, d := range docs {
			out[i] = d.ID
		}
		return out
	}

	all, err := repo.List(ctx, core.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"orders/1", "users/a", "users/b", "users/c/avatar"}, ids(all))
	assert.Equal(t, 0, all[0].Body.Len(), "bodies are omitted by default")

	users, err := repo.List(ctx, core.ListOptions{Pattern: "users/*", IncludeDocs: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"users/a", "users/b"}, ids(users))
	v, ok := users[0].Body.Field("id")
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "users/a", s)

	limited, err := repo.List(ctx, core.ListOptions{Pattern: "users/**", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"users/a", "users/b"}, ids(limited))
}

func TestRepository_Watch(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := repo.Watch(ctx, "notes/*")
	require.NoError(t, err)

	_, rev, err := repo.Create(ctx, core.Null(), "notes/1")
	require.NoError(t, err)
	_, _, err = repo.Create(ctx, core.Null(), "other")
	require.NoError(t, err)
	rev2, err := repo.Update(ctx, "notes/1", rev, obj("x", 1))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "notes/1", rev2))

	want := []core.EventType{core.EventCreate, core.EventModify, core.EventDelete}
	var lastSeq uint64
	for _, typ := range want {
		select {
		case e := <-events:
			assert.Equal(t, typ, e.Type)
			assert.Equal(t, "notes/1", e.ID)
			assert.Greater(t, e.Seq, lastSeq)
			lastSeq = e.Seq
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", typ)
		}
	}

	require.NoError(t, repo.Close())
	_, ok := <-events
	assert.False(t, ok, "Close closes watch channels")
}

func TestRepository_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	writer := openRepo(t, path)
	_, rev, err := writer.Create(ctx, obj("v", 1), "doc")
	require.NoError(t, err)

	reader := openRepo(t, path, func(c *fs.Config) { c.ReadOnly = true })

	doc, err := reader.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, rev, doc.Rev)

	_, _, err = reader.Create(ctx, core.Null(), "x")
	assert.ErrorIs(t, err, core.ErrReadOnly)
	_, err = reader.Update(ctx, "doc", rev, core.Null())
	assert.ErrorIs(t, err, core.ErrReadOnly)
	assert.ErrorIs(t, reader.Delete(ctx, "doc", rev), core.ErrReadOnly)
	assert.ErrorIs(t, reader.Checkpoint(ctx), core.ErrReadOnly)

	t.Run("Refresh catches up", func(t *testing.T) {
		_, err := writer.Update(ctx, "doc", rev, obj("v", 2))
		require.NoError(t, err)
		_, _, err = writer.Create(ctx, core.Null(), "new")
		require.NoError(t, err)

		_, err = reader.Get(ctx, "new")
		assert.ErrorIs(t, err, core.ErrNotFound)

		require.NoError(t, reader.Refresh(ctx))
		_, err = reader.Get(ctx, "new")
		assert.NoError(t, err)
		doc, err := reader.Get(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), doc.Rev.Generation)
	})
}

func TestRepository_Follower(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	writer := openRepo(t, path)
	reader := openRepo(t, path, func(c *fs.Config) {
		c.ReadOnly = true
		c.Follow = true
	})

	require.Eventually(t, func() bool {
		return reader.State().(fs.RepositoryState).FollowerActive
	}, 5*time.Second, 10*time.Millisecond)

	events, err := reader.Watch(ctx, "")
	require.NoError(t, err)

	_, _, err = writer.Create(ctx, obj("from", "writer"), "shared")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := reader.Get(ctx, "shared")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case e := <-events:
		assert.Equal(t, core.EventCreate, e.Type)
		assert.Equal(t, "shared", e.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("follower did not publish the external write")
	}

	require.NoError(t, reader.Close())
	assert.Eventually(t, func() bool {
		return !reader.State().(fs.RepositoryState).FollowerActive
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRepository_Checkpoint(t *testing.T) {
	repo, path := setupRepo(t)
	ctx := context.Background()

	_, _, err := repo.Create(ctx, core.Null(), "doc")
	require.NoError(t, err)
	require.NoError(t, repo.Checkpoint(ctx))

	_, err = os.Stat(filepath.Join(path, fs.DefaultSystemDir, "index.json"))
	assert.NoError(t, err)
	assert.NotNil(t, repo.State().(fs.RepositoryState).LastCheckpoint)

	disabled, _ := setupRepo(t, noSnapshot)
	assert.Error(t, disabled.Checkpoint(ctx))
}

func TestRepository_StaleSnapshotIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	repo := openRepo(t, path)
	_, _, err := repo.Create(ctx, core.Null(), "a")
	require.NoError(t, err)
	require.NoError(t, repo.Checkpoint(ctx))
	snapPath := filepath.Join(path, fs.DefaultSystemDir, "index.json")
	stale, err := os.ReadFile(snapPath)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	// Replace the log with a different history of the same length or more.
	require.NoError(t, os.Remove(filepath.Join(path, fs.LogFileName)))
	other := openRepo(t, path, noSnapshot)
	_, _, err = other.Create(ctx, core.Null(), "zzzz")
	require.NoError(t, err)
	_, _, err = other.Create(ctx, core.Null(), "y")
	require.NoError(t, err)
	require.NoError(t, other.Close())
	require.NoError(t, os.WriteFile(snapPath, stale, 0644))

	reopened := openRepo(t, path)
	_, err = reopened.Get(ctx, "a")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = reopened.Get(ctx, "zzzz")
	assert.NoError(t, err)
	assert.False(t, reopened.State().(fs.RepositoryState).Recovery.FromSnapshot)

	_, err = os.Stat(snapPath)
	assert.True(t, os.IsNotExist(err), "stale snapshot must be removed")
}

func TestRepository_UnreadableSnapshotIsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	repo := openRepo(t, path)
	_, _, err := repo.Create(ctx, core.Null(), "a")
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	snapPath := filepath.Join(path, fs.DefaultSystemDir, "index.json")
	require.NoError(t, os.WriteFile(snapPath, []byte("{not json"), 0644))

	ro := openRepo(t, path, func(c *fs.Config) { c.ReadOnly = true })
	_, err = ro.Get(ctx, "a")
	assert.NoError(t, err)
	require.NoError(t, ro.Close())
	_, err = os.Stat(snapPath)
	assert.NoError(t, err, "read-only handles leave the snapshot alone")

	rw := openRepo(t, path)
	_, err = rw.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = os.Stat(snapPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRepository_Closed(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())

	_, _, err := repo.Create(ctx, core.Null(), "")
	assert.ErrorIs(t, err, core.ErrClosed)
	_, err = repo.Get(ctx, "x")
	assert.ErrorIs(t, err, core.ErrClosed)
	_, err = repo.Watch(ctx, "")
	assert.ErrorIs(t, err, core.ErrClosed)
}
