// Package codec implements the fixed-width key layouts and the variable
// width event-value layout shared by every partition. Keys are always
// big-endian so that byte-lexicographic order equals numeric order; values
// use little-endian length prefixes and native integer order since nothing
// ever range-scans a value.
package codec

import (
	"encoding/binary"

	"github.com/eventric-io/eventstore/store/types"
)

const (
	PositionLen  = 8
	VersionLen   = 8
	TimestampLen = 8
	HashLen      = 8
)

// EncodePosition renders position as an 8-byte big-endian key.
func EncodePosition(position uint64) []byte {
	b := make([]byte, PositionLen)
	binary.BigEndian.PutUint64(b, position)
	return b
}

// DecodePosition reverses EncodePosition.
func DecodePosition(b []byte) (uint64, error) {
	if len(b) != PositionLen {
		return 0, types.DataIntegrityf("position key must be %d bytes, got %d", PositionLen, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// EncodeHashKey renders a reference-partition key.
func EncodeHashKey(hash uint64) []byte {
	b := make([]byte, HashLen)
	binary.BigEndian.PutUint64(b, hash)
	return b
}

// DecodeHashKey reverses EncodeHashKey.
func DecodeHashKey(b []byte) (uint64, error) {
	if len(b) != HashLen {
		return 0, types.DataIntegrityf("hash key must be %d bytes, got %d", HashLen, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// EncodeIdentifierIndexKey renders the identifier-index key:
// identifier_hash(8) | version(8) | position(8).
func EncodeIdentifierIndexKey(identifierHash, version, position uint64) []byte {
	b := make([]byte, HashLen+VersionLen+PositionLen)
	binary.BigEndian.PutUint64(b[0:8], identifierHash)
	binary.BigEndian.PutUint64(b[8:16], version)
	binary.BigEndian.PutUint64(b[16:24], position)
	return b
}

// DecodeIdentifierIndexKey reverses EncodeIdentifierIndexKey.
func DecodeIdentifierIndexKey(b []byte) (identifierHash, version, position uint64, err error) {
	if len(b) != HashLen+VersionLen+PositionLen {
		return 0, 0, 0, types.DataIntegrityf("identifier index key must be %d bytes, got %d", HashLen+VersionLen+PositionLen, len(b))
	}
	identifierHash = binary.BigEndian.Uint64(b[0:8])
	version = binary.BigEndian.Uint64(b[8:16])
	position = binary.BigEndian.Uint64(b[16:24])
	return
}

// EncodeTagIndexKey renders the tag-index key: tag_hash(8) | position(8).
func EncodeTagIndexKey(tagHash, position uint64) []byte {
	b := make([]byte, HashLen+PositionLen)
	binary.BigEndian.PutUint64(b[0:8], tagHash)
	binary.BigEndian.PutUint64(b[8:16], position)
	return b
}

// DecodeTagIndexKey reverses EncodeTagIndexKey.
func DecodeTagIndexKey(b []byte) (tagHash, position uint64, err error) {
	if len(b) != HashLen+PositionLen {
		return 0, 0, types.DataIntegrityf("tag index key must be %d bytes, got %d", HashLen+PositionLen, len(b))
	}
	tagHash = binary.BigEndian.Uint64(b[0:8])
	position = binary.BigEndian.Uint64(b[8:16])
	return
}

// EncodeTimestampIndexKey renders the timestamp-index key:
// timestamp(8) | position(8). timestamp is the bit pattern of a
// non-negative Unix-millisecond value, so big-endian order matches time
// order.
func EncodeTimestampIndexKey(timestamp int64, position uint64) []byte {
	b := make([]byte, TimestampLen+PositionLen)
	binary.BigEndian.PutUint64(b[0:8], uint64(timestamp))
	binary.BigEndian.PutUint64(b[8:16], position)
	return b
}

// DecodeTimestampIndexKey reverses EncodeTimestampIndexKey.
func DecodeTimestampIndexKey(b []byte) (timestamp int64, position uint64, err error) {
	if len(b) != TimestampLen+PositionLen {
		return 0, 0, types.DataIntegrityf("timestamp index key must be %d bytes, got %d", TimestampLen+PositionLen, len(b))
	}
	timestamp = int64(binary.BigEndian.Uint64(b[0:8]))
	position = binary.BigEndian.Uint64(b[8:16])
	return
}

// EventValue is the decoded form of an Events-partition value.
type EventValue struct {
	Version        uint64
	Timestamp      int64
	IdentifierHash uint64
	TagHashes      []uint64
	Data           []byte
}

// EncodeEventValue renders the Events-partition value:
// version(8) | timestamp(8) | identifier_hash(8) | tag_count(4) |
// tag_hash[]*(8) | data_len(4) | data, all little-endian.
func EncodeEventValue(v EventValue) []byte {
	size := 8 + 8 + 8 + 4 + len(v.TagHashes)*8 + 4 + len(v.Data)
	b := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(b[off:], v.Version)
	off += 8
	binary.LittleEndian.PutUint64(b[off:], uint64(v.Timestamp))
	off += 8
	binary.LittleEndian.PutUint64(b[off:], v.IdentifierHash)
	off += 8
	binary.LittleEndian.PutUint32(b[off:], uint32(len(v.TagHashes)))
	off += 4
	for _, h := range v.TagHashes {
		binary.LittleEndian.PutUint64(b[off:], h)
		off += 8
	}
	binary.LittleEndian.PutUint32(b[off:], uint32(len(v.Data)))
	off += 4
	copy(b[off:], v.Data)
	return b
}

// DecodeEventValue reverses EncodeEventValue. Malformed input is a
// DataIntegrity error, never a panic.
func DecodeEventValue(b []byte) (EventValue, error) {
	const headerLen = 8 + 8 + 8 + 4
	if len(b) < headerLen {
		return EventValue{}, types.DataIntegrityf("event value truncated: need at least %d bytes, got %d", headerLen, len(b))
	}
	off := 0
	version := binary.LittleEndian.Uint64(b[off:])
	off += 8
	timestamp := int64(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	identifierHash := binary.LittleEndian.Uint64(b[off:])
	off += 8
	tagCount := binary.LittleEndian.Uint32(b[off:])
	off += 4
	if uint64(off)+uint64(tagCount)*8+4 > uint64(len(b)) {
		return EventValue{}, types.DataIntegrityf("event value truncated: tag_count=%d exceeds remaining bytes", tagCount)
	}
	tagHashes := make([]uint64, tagCount)
	for i := range tagHashes {
		tagHashes[i] = binary.LittleEndian.Uint64(b[off:])
		off += 8
	}
	dataLen := binary.LittleEndian.Uint32(b[off:])
	off += 4
	if uint64(off)+uint64(dataLen) != uint64(len(b)) {
		return EventValue{}, types.DataIntegrityf("event value truncated: data_len=%d does not match remaining bytes", dataLen)
	}
	data := make([]byte, dataLen)
	copy(data, b[off:])
	return EventValue{
		Version:        version,
		Timestamp:      timestamp,
		IdentifierHash: identifierHash,
		TagHashes:      tagHashes,
		Data:           data,
	}, nil
}
