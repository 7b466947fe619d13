package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/humus/pkg/core"
)

func TestSnapshotStore_Load(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		s := newSnapshotStore(t.TempDir(), DefaultSystemDir)
		_, err := s.Load()
		assert.ErrorIs(t, err, errNoSnapshot)
	})

	t.Run("corrupted json", func(t *testing.T) {
		dir := t.TempDir()
		s := newSnapshotStore(dir, DefaultSystemDir)
		require.NoError(t, os.MkdirAll(filepath.Dir(s.Path), 0755))
		require.NoError(t, os.WriteFile(s.Path, []byte("{ invalid json"), 0644))

		_, err := s.Load()
		require.Error(t, err)
		assert.NotErrorIs(t, err, errNoSnapshot)
	})

	t.Run("round trip", func(t *testing.T) {
		s := newSnapshotStore(t.TempDir(), DefaultSystemDir)
		rev := core.Revision{Generation: 3, Hash: "0123abcd"}
		in := &snapshot{LastOffset: 10, LastSeq: 4, End: 90, Entries: map[string]IndexEntry{
			"doc": {Rev: rev, Offset: 10, Seq: 4},
		}}
		require.NoError(t, s.Save(in))

		out, err := s.Load()
		require.NoError(t, err)
		assert.Equal(t, snapshotVersion, out.Version)
		assert.Equal(t, in.Entries, out.Entries)
		assert.Equal(t, int64(90), out.End)

		require.NoError(t, s.Remove())
		require.NoError(t, s.Remove())
	})
}

func TestSnapshot_Validate(t *testing.T) {
	l, _ := openTestLog(t)

	empty := &snapshot{Entries: map[string]IndexEntry{}}
	assert.NoError(t, empty.validate(l))

	offsets := appendDocs(t, l, "a", "b")
	good := &snapshot{LastOffset: offsets[1], LastSeq: 2, End: l.Size()}
	assert.NoError(t, good.validate(l))

	prefix := &snapshot{LastOffset: offsets[0], LastSeq: 1, End: offsets[1]}
	assert.NoError(t, prefix.validate(l), "a snapshot may cover a prefix of the log")

	tooLong := &snapshot{LastOffset: offsets[1], LastSeq: 2, End: l.Size() + 1}
	assert.Error(t, tooLong.validate(l))

	wrongSeq := &snapshot{LastOffset: offsets[1], LastSeq: 7, End: l.Size()}
	assert.Error(t, wrongSeq.validate(l))

	badAnchor := &snapshot{LastOffset: offsets[1] + 3, LastSeq: 2, End: l.Size()}
	assert.Error(t, badAnchor.validate(l))

	_, err := l.Append(context.Background(), &Record{Op: OpDelete, ID: "a", Rev: core.Revision{Generation: 2, Hash: "x"}})
	require.NoError(t, err)
	assert.NoError(t, good.validate(l), "still a valid prefix after more appends")
}
