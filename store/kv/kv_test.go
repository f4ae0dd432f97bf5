package kv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitThenGetAndScan(t *testing.T) {
	ks, err := Open(t.TempDir())
	require.NoError(t, err)
	defer ks.Close()

	b := NewBatch()
	b.Put(TagEvents, []byte("a"), []byte("1"))
	b.Put(TagEvents, []byte("b"), []byte("2"))
	require.NoError(t, ks.Commit(b))

	v, ok := ks.Get(TagEvents, []byte("a"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	_, ok = ks.Get(TagEvents, []byte("missing"))
	require.False(t, ok)

	ops := ks.Scan(TagEvents, []byte("a"), nil)
	require.Len(t, ops, 2)
	require.Equal(t, []byte("a"), ops[0].Key)
	require.Equal(t, []byte("b"), ops[1].Key)
}

func TestScanRespectsUpperBound(t *testing.T) {
	ks, err := Open(t.TempDir())
	require.NoError(t, err)
	defer ks.Close()

	b := NewBatch()
	b.Put(TagTagIndex, []byte("a"), []byte("1"))
	b.Put(TagTagIndex, []byte("b"), []byte("2"))
	b.Put(TagTagIndex, []byte("c"), []byte("3"))
	require.NoError(t, ks.Commit(b))

	ops := ks.Scan(TagTagIndex, []byte("a"), []byte("c"))
	require.Len(t, ops, 2)
	require.Equal(t, []byte("a"), ops[0].Key)
	require.Equal(t, []byte("b"), ops[1].Key)
}

func TestCommitIsAtomicAcrossPartitions(t *testing.T) {
	ks, err := Open(t.TempDir())
	require.NoError(t, err)
	defer ks.Close()

	b := NewBatch()
	b.Put(TagEvents, []byte("pos"), []byte("event"))
	b.Put(TagIdentifierIndex, []byte("idx"), []byte("ref"))
	require.NoError(t, ks.Commit(b))

	_, ok := ks.Get(TagEvents, []byte("pos"))
	require.True(t, ok)
	_, ok = ks.Get(TagIdentifierIndex, []byte("idx"))
	require.True(t, ok)
}

func TestReopenReplaysWal(t *testing.T) {
	dir := t.TempDir()
	ks, err := Open(dir)
	require.NoError(t, err)

	b := NewBatch()
	b.Put(TagEvents, []byte("a"), []byte("1"))
	b.Put(TagTimestampIndex, []byte("t"), []byte("2"))
	require.NoError(t, ks.Commit(b))
	require.NoError(t, ks.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok := reopened.Get(TagEvents, []byte("a"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
	v, ok = reopened.Get(TagTimestampIndex, []byte("t"))
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}

func TestReopenDiscardsTornTrailingRecord(t *testing.T) {
	dir := t.TempDir()
	ks, err := Open(dir)
	require.NoError(t, err)

	good := NewBatch()
	good.Put(TagEvents, []byte("a"), []byte("1"))
	require.NoError(t, ks.Commit(good))
	require.NoError(t, ks.Close())

	goodSize, err := os.Stat(filepath.Join(dir, walFileName))
	require.NoError(t, err)

	// Simulate a crash mid-write: append a well-formed length+checksum
	// header for a record whose payload never fully landed on disk.
	f, err := os.OpenFile(filepath.Join(dir, walFileName), os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	torn := encodeRecord(func() *Batch {
		b := NewBatch()
		b.Put(TagEvents, []byte("b"), []byte("2"))
		return b
	}())
	// Write the header and all but the last 3 payload bytes, simulating a torn write.
	_, err = f.Write(torn[:len(torn)-3])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tornSize, err := os.Stat(filepath.Join(dir, walFileName))
	require.NoError(t, err)
	require.Greater(t, tornSize.Size(), goodSize.Size())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok := reopened.Get(TagEvents, []byte("a"))
	require.True(t, ok, "the fully committed record must survive recovery")
	_, ok = reopened.Get(TagEvents, []byte("b"))
	require.False(t, ok, "the torn record must be discarded")

	truncated, err := os.Stat(filepath.Join(dir, walFileName))
	require.NoError(t, err)
	require.Equal(t, goodSize.Size(), truncated.Size(), "the torn tail must be truncated off")
}

func TestStorageSizeGrowsWithCommits(t *testing.T) {
	ks, err := Open(t.TempDir())
	require.NoError(t, err)
	defer ks.Close()

	before, err := ks.StorageSize()
	require.NoError(t, err)

	b := NewBatch()
	b.Put(TagEvents, []byte("a"), []byte("12345"))
	require.NoError(t, ks.Commit(b))

	after, err := ks.StorageSize()
	require.NoError(t, err)
	require.Greater(t, after, before)
}

func TestOpenCreatesMetaFile(t *testing.T) {
	dir := t.TempDir()
	ks, err := Open(dir)
	require.NoError(t, err)
	defer ks.Close()

	_, err = os.Stat(filepath.Join(dir, metaFileName))
	require.NoError(t, err)
	require.Equal(t, schemaVersion, ks.meta.SchemaVersion)
	require.Len(t, ks.meta.PartitionTags, 6)
}

func TestReopenReusesExistingMetaFile(t *testing.T) {
	dir := t.TempDir()
	ks, err := Open(dir)
	require.NoError(t, err)
	createdAt := ks.meta.CreatedAt
	require.NoError(t, ks.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, createdAt, reopened.meta.CreatedAt)
}

func TestRolloverCompressesActiveSegmentAndStartsFresh(t *testing.T) {
	dir := t.TempDir()
	ks, err := Open(dir)
	require.NoError(t, err)
	defer ks.Close()

	b := NewBatch()
	b.Put(TagEvents, []byte("a"), []byte("1"))
	require.NoError(t, ks.Commit(b))

	activeBefore, err := ks.StorageSize()
	require.NoError(t, err)
	require.Greater(t, activeBefore, int64(0))

	require.NoError(t, ks.Rollover())

	activeAfter, err := ks.StorageSize()
	require.NoError(t, err)
	require.Zero(t, activeAfter, "the active wal file must be empty right after rollover")

	segmentsSize, err := ks.SegmentsSize()
	require.NoError(t, err)
	require.Greater(t, segmentsSize, int64(0))

	v, ok := ks.Get(TagEvents, []byte("a"))
	require.True(t, ok, "in-memory indexes survive rollover untouched")
	require.Equal(t, []byte("1"), v)
}

func TestReopenAfterRolloverReplaysSegmentThenActiveWal(t *testing.T) {
	dir := t.TempDir()
	ks, err := Open(dir)
	require.NoError(t, err)

	rolled := NewBatch()
	rolled.Put(TagEvents, []byte("a"), []byte("1"))
	require.NoError(t, ks.Commit(rolled))
	require.NoError(t, ks.Rollover())

	afterRollover := NewBatch()
	afterRollover.Put(TagEvents, []byte("b"), []byte("2"))
	require.NoError(t, ks.Commit(afterRollover))
	require.NoError(t, ks.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok := reopened.Get(TagEvents, []byte("a"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
	v, ok = reopened.Get(TagEvents, []byte("b"))
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}

func TestEmptyBatchCommitIsNoop(t *testing.T) {
	ks, err := Open(t.TempDir())
	require.NoError(t, err)
	defer ks.Close()

	require.NoError(t, ks.Commit(NewBatch()))
	size, err := ks.StorageSize()
	require.NoError(t, err)
	require.Zero(t, size)
}
