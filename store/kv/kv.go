// Package kv implements the write-ahead-logged keyspace the six partitions
// sit on: a single append-only, checksum-framed log plus an in-memory
// sorted index per partition, rebuilt by replaying the log at Open.
package kv

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/eventric-io/eventstore/store/types"
)

var log = logging.Logger("eventstore/kv")

// Tag identifies which partition an op inside a WAL record belongs to.
type Tag uint8

const (
	TagEvents Tag = iota + 1
	TagIdentifierIndex
	TagTagIndex
	TagTimestampIndex
	TagIdentifierRefs
	TagTagRefs
)

func (t Tag) valid() bool {
	return t >= TagEvents && t <= TagTagRefs
}

// Op is one key/value write staged into a Batch.
type Op struct {
	Partition Tag
	Key       []byte
	Value     []byte
}

// Batch collects the ops of one append call. A Batch is committed as a
// single WAL record: either every op lands, or none does.
type Batch struct {
	ops []Op
}

func NewBatch() *Batch { return &Batch{} }

func (b *Batch) Put(partition Tag, key, value []byte) {
	b.ops = append(b.ops, Op{Partition: partition, Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
}

func (b *Batch) Len() int { return len(b.ops) }

// entry is one live key/value pair in a partition's in-memory sorted run.
type entry struct {
	key   []byte
	value []byte
}

type partitionIndex struct {
	mu      sync.RWMutex
	entries []entry // sorted ascending by key
}

func (p *partitionIndex) find(key []byte) (int, bool) {
	i := sort.Search(len(p.entries), func(i int) bool {
		return compareBytes(p.entries[i].key, key) >= 0
	})
	if i < len(p.entries) && compareBytes(p.entries[i].key, key) == 0 {
		return i, true
	}
	return i, false
}

func (p *partitionIndex) insert(key, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, exists := p.find(key)
	if exists {
		p.entries[i].value = value
		return
	}
	p.entries = append(p.entries, entry{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = entry{key: key, value: value}
}

func (p *partitionIndex) get(key []byte) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, exists := p.find(key)
	if !exists {
		return nil, false
	}
	return p.entries[i].value, true
}

// scanRange returns a copy of every entry whose key is within
// [lowerBound, upperBound); a nil upperBound means unbounded above. The
// copy is taken under the read lock so the returned cursor is a stable
// snapshot independent of concurrent writers, matching the "readers run
// against a snapshot" concurrency model.
func (p *partitionIndex) scanRange(lowerBound, upperBound []byte) []entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	start := sort.Search(len(p.entries), func(i int) bool {
		return compareBytes(p.entries[i].key, lowerBound) >= 0
	})
	end := len(p.entries)
	if upperBound != nil {
		end = sort.Search(len(p.entries), func(i int) bool {
			return compareBytes(p.entries[i].key, upperBound) >= 0
		})
	}
	if start >= end {
		return nil
	}
	out := make([]entry, end-start)
	copy(out, p.entries[start:end])
	return out
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// Keyspace owns the WAL and the in-memory index of every partition.
type Keyspace struct {
	path string
	file *os.File
	w    *bufio.Writer
	meta keyspaceMeta

	commitMu sync.Mutex // serialises Commit; the store layer also serialises Append, this is defense in depth

	partitions map[Tag]*partitionIndex
}

const walFileName = "wal.log"

// Open opens (creating if absent) the keyspace rooted at dir, replaying
// wal.log to rebuild every partition's in-memory index. A torn trailing
// record (the signature of a crash mid-Commit) is discarded and the file
// is truncated back to the last good record boundary.
func Open(dir string) (*Keyspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.IoWrap(err, "create keyspace directory")
	}

	m, err := loadOrCreateMeta(dir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, walFileName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, types.IoWrap(err, "open wal file")
	}

	ks := &Keyspace{
		path: path,
		file: file,
		meta: m,
		partitions: map[Tag]*partitionIndex{
			TagEvents:          {},
			TagIdentifierIndex: {},
			TagTagIndex:        {},
			TagTimestampIndex:  {},
			TagIdentifierRefs:  {},
			TagTagRefs:         {},
		},
	}

	segments, err := listSegments(dir)
	if err != nil {
		file.Close()
		return nil, err
	}
	for _, segment := range segments {
		if err := ks.replaySegment(segment); err != nil {
			file.Close()
			return nil, err
		}
	}

	goodLength, err := ks.replay()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info, statErr := file.Stat(); statErr == nil && info.Size() > goodLength {
		log.Infow("truncating torn wal tail", "path", path, "fileSize", info.Size(), "goodLength", goodLength)
		if err := file.Truncate(goodLength); err != nil {
			file.Close()
			return nil, types.IoWrap(err, "truncate torn wal tail")
		}
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, types.IoWrap(err, "seek to end of wal")
	}
	ks.w = bufio.NewWriterSize(file, 64*1024)
	return ks, nil
}

// replay reads every well-formed record from the start of the file and
// applies its ops to the in-memory indexes, returning the byte length of
// the file up to and including the last good record.
func (ks *Keyspace) replay() (int64, error) {
	if _, err := ks.file.Seek(0, io.SeekStart); err != nil {
		return 0, types.IoWrap(err, "seek to start of wal")
	}
	r := bufio.NewReader(ks.file)
	var offset int64
	for {
		header := make([]byte, 8)
		n, _ := io.ReadFull(r, header)
		if n < len(header) {
			break // EOF or short read: nothing more, or a torn length prefix
		}
		recordLen := binary.BigEndian.Uint32(header[0:4])
		checksum := binary.BigEndian.Uint32(header[4:8])
		payload := make([]byte, recordLen)
		n, _ = io.ReadFull(r, payload)
		if uint32(n) < recordLen {
			break // torn payload: this record never finished writing
		}
		if crc32.ChecksumIEEE(payload) != checksum {
			break // corrupted payload: treat as torn, stop here
		}
		if err := ks.applyPayload(payload); err != nil {
			return offset, err
		}
		offset += int64(8 + recordLen)
	}
	return offset, nil
}

func (ks *Keyspace) applyPayload(payload []byte) error {
	off := 0
	for off < len(payload) {
		if off+1+4+4 > len(payload) {
			return types.DataIntegrityf("wal record truncated mid-op")
		}
		tag := Tag(payload[off])
		off++
		keyLen := binary.BigEndian.Uint32(payload[off:])
		off += 4
		if off+int(keyLen) > len(payload) {
			return types.DataIntegrityf("wal record truncated mid-key")
		}
		key := payload[off : off+int(keyLen)]
		off += int(keyLen)
		if off+4 > len(payload) {
			return types.DataIntegrityf("wal record truncated before value length")
		}
		valLen := binary.BigEndian.Uint32(payload[off:])
		off += 4
		if off+int(valLen) > len(payload) {
			return types.DataIntegrityf("wal record truncated mid-value")
		}
		value := payload[off : off+int(valLen)]
		off += int(valLen)
		if !tag.valid() {
			return types.DataIntegrityf("wal record references unknown partition tag %d", tag)
		}
		ks.partitions[tag].insert(append([]byte(nil), key...), append([]byte(nil), value...))
	}
	return nil
}

// encodeRecord frames a batch's ops as one length+checksum payload.
func encodeRecord(b *Batch) []byte {
	size := 0
	for _, op := range b.ops {
		size += 1 + 4 + len(op.Key) + 4 + len(op.Value)
	}
	payload := make([]byte, size)
	off := 0
	for _, op := range b.ops {
		payload[off] = byte(op.Partition)
		off++
		binary.BigEndian.PutUint32(payload[off:], uint32(len(op.Key)))
		off += 4
		copy(payload[off:], op.Key)
		off += len(op.Key)
		binary.BigEndian.PutUint32(payload[off:], uint32(len(op.Value)))
		off += 4
		copy(payload[off:], op.Value)
		off += len(op.Value)
	}
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))
	return append(header, payload...)
}

// Commit appends b as a single fsync'd WAL record and, only once that sync
// succeeds, applies its ops to the in-memory indexes. This fsync'd append
// is the sole commit point.
func (ks *Keyspace) Commit(b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	ks.commitMu.Lock()
	defer ks.commitMu.Unlock()

	record := encodeRecord(b)
	if _, err := ks.w.Write(record); err != nil {
		return types.IoWrap(err, "write wal record")
	}
	if err := ks.w.Flush(); err != nil {
		return types.IoWrap(err, "flush wal writer")
	}
	if err := ks.file.Sync(); err != nil {
		return types.IoWrap(err, "sync wal file")
	}
	for _, op := range b.ops {
		ks.partitions[op.Partition].insert(op.Key, op.Value)
	}
	return nil
}

// Get reads a single key from partition tag.
func (ks *Keyspace) Get(tag Tag, key []byte) ([]byte, bool) {
	return ks.partitions[tag].get(key)
}

// Scan returns every live entry in [lowerBound, upperBound) of partition
// tag, ascending by key. A nil upperBound scans to the end of the
// partition's key space.
func (ks *Keyspace) Scan(tag Tag, lowerBound, upperBound []byte) []Op {
	entries := ks.partitions[tag].scanRange(lowerBound, upperBound)
	ops := make([]Op, len(entries))
	for i, e := range entries {
		ops[i] = Op{Partition: tag, Key: e.key, Value: e.value}
	}
	return ops
}

// StorageSize returns the current on-disk size of the active WAL file
// only, which is what WithWalSegmentLimit gates rollover on; the
// compressed segments directory is reported separately since it has
// already been shrunk and isn't part of what triggers a rollover.
func (ks *Keyspace) StorageSize() (int64, error) {
	info, err := ks.file.Stat()
	if err != nil {
		return 0, types.IoWrap(err, "stat wal file")
	}
	return info.Size(), nil
}

// SegmentsSize returns the total on-disk size of every sealed, compressed
// WAL segment.
func (ks *Keyspace) SegmentsSize() (int64, error) {
	segments, err := listSegments(filepath.Dir(ks.path))
	if err != nil {
		return 0, err
	}
	var total int64
	for _, segment := range segments {
		info, err := os.Stat(segment)
		if err != nil {
			return 0, types.IoWrap(err, "stat wal segment")
		}
		total += info.Size()
	}
	return total, nil
}

// Close flushes and syncs any buffered writes and closes the WAL file.
func (ks *Keyspace) Close() error {
	ks.commitMu.Lock()
	defer ks.commitMu.Unlock()
	if err := ks.w.Flush(); err != nil {
		ks.file.Close()
		return types.IoWrap(err, "flush wal writer on close")
	}
	if err := ks.file.Sync(); err != nil {
		ks.file.Close()
		return types.IoWrap(err, "sync wal file on close")
	}
	if err := ks.file.Close(); err != nil {
		return types.IoWrap(err, "close wal file")
	}
	return nil
}

func (ks *Keyspace) String() string {
	return fmt.Sprintf("Keyspace{path=%s}", ks.path)
}
