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
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/eventric-io/eventstore/store/types"
)

const segmentsDirName = "segments"

// listSegments returns the keyspace's sealed, compressed WAL segments in
// the order they were written (their names are zero-padded so lexical and
// numeric order agree).
func listSegments(dir string) ([]string, error) {
	segmentsDir := filepath.Join(dir, segmentsDirName)
	entries, err := os.ReadDir(segmentsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, types.IoWrap(err, "list wal segments directory")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(segmentsDir, name)
	}
	return paths, nil
}

func nextSegmentIndex(segmentsDir string) (int, error) {
	entries, err := os.ReadDir(segmentsDir)
	if os.IsNotExist(err) {
		return 1, nil
	}
	if err != nil {
		return 0, types.IoWrap(err, "list wal segments directory")
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log.zst") {
			count++
		}
	}
	return count + 1, nil
}

// replaySegment decompresses a sealed WAL segment and applies every
// record it holds to the in-memory partitions. A segment is only ever
// written whole by Rollover (after the active WAL file it came from was
// itself fully fsync'd), so no torn-tail handling is needed here: any
// malformed record is a genuine integrity failure, not a crash signature.
func (ks *Keyspace) replaySegment(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return types.IoWrap(err, "open wal segment")
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return types.IoWrap(err, "create zstd decoder for wal segment")
	}
	defer dec.Close()

	r := bufio.NewReader(dec)
	for {
		header := make([]byte, 8)
		n, _ := io.ReadFull(r, header)
		if n == 0 {
			return nil
		}
		if n < len(header) {
			return types.DataIntegrityf("wal segment %s ends mid-header", path)
		}
		recordLen := binary.BigEndian.Uint32(header[0:4])
		checksum := binary.BigEndian.Uint32(header[4:8])
		payload := make([]byte, recordLen)
		n, _ = io.ReadFull(r, payload)
		if uint32(n) < recordLen {
			return types.DataIntegrityf("wal segment %s ends mid-record", path)
		}
		if crc32.ChecksumIEEE(payload) != checksum {
			return types.DataIntegrityf("wal segment %s has a corrupted record", path)
		}
		if err := ks.applyPayload(payload); err != nil {
			return err
		}
	}
}

// Rollover seals the active WAL file, compresses it with zstd into the
// segments directory, and starts a fresh, empty active WAL file. The
// in-memory partition indexes are untouched: they already hold the
// sealed segment's entries from when it was the active file.
func (ks *Keyspace) Rollover() error {
	ks.commitMu.Lock()
	defer ks.commitMu.Unlock()

	if err := ks.w.Flush(); err != nil {
		return types.IoWrap(err, "flush wal writer before rollover")
	}
	if err := ks.file.Sync(); err != nil {
		return types.IoWrap(err, "sync wal file before rollover")
	}
	if err := ks.file.Close(); err != nil {
		return types.IoWrap(err, "close wal file before rollover")
	}

	sealedPath := ks.path + ".sealed"
	if err := os.Rename(ks.path, sealedPath); err != nil {
		return types.IoWrap(err, "rename wal file for rollover")
	}

	segmentsDir := filepath.Join(filepath.Dir(ks.path), segmentsDirName)
	if err := os.MkdirAll(segmentsDir, 0o755); err != nil {
		return types.IoWrap(err, "create segments directory")
	}
	index, err := nextSegmentIndex(segmentsDir)
	if err != nil {
		return err
	}
	compressedPath := filepath.Join(segmentsDir, fmt.Sprintf("wal-%06d.log.zst", index))
	if err := compressFile(sealedPath, compressedPath); err != nil {
		return err
	}
	if err := os.Remove(sealedPath); err != nil {
		return types.IoWrap(err, "remove sealed wal file after compression")
	}

	file, err := os.OpenFile(ks.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return types.IoWrap(err, "open fresh wal file after rollover")
	}
	ks.file = file
	ks.w = bufio.NewWriterSize(file, 64*1024)

	log.Infow("rolled over wal segment", "path", ks.path, "segment", compressedPath)
	return nil
}

func compressFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return types.IoWrap(err, "open file for compression")
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return types.IoWrap(err, "create compressed segment file")
	}
	defer dst.Close()

	enc, err := zstd.NewWriter(dst)
	if err != nil {
		return types.IoWrap(err, "create zstd encoder")
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return types.IoWrap(err, "compress wal segment")
	}
	if err := enc.Close(); err != nil {
		return types.IoWrap(err, "finalize compressed segment")
	}
	return nil
}
