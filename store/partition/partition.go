// Package partition provides typed wrappers over the kv keyspace for each
// of the store's six column families: events, identifier index, tag index,
// timestamp index, and the two reference partitions.
package partition

import (
	"sort"

	"github.com/eventric-io/eventstore/store/codec"
	"github.com/eventric-io/eventstore/store/hashkey"
	"github.com/eventric-io/eventstore/store/iter"
	"github.com/eventric-io/eventstore/store/kv"
)

// Events wraps the Events partition: Position -> encoded event value.
type Events struct{ ks *kv.Keyspace }

func NewEvents(ks *kv.Keyspace) *Events { return &Events{ks: ks} }

func (e *Events) Put(batch *kv.Batch, position uint64, value codec.EventValue) {
	batch.Put(kv.TagEvents, codec.EncodePosition(position), codec.EncodeEventValue(value))
}

func (e *Events) Get(position uint64) (codec.EventValue, bool, error) {
	raw, ok := e.ks.Get(kv.TagEvents, codec.EncodePosition(position))
	if !ok {
		return codec.EventValue{}, false, nil
	}
	v, err := codec.DecodeEventValue(raw)
	if err != nil {
		return codec.EventValue{}, false, err
	}
	return v, true, nil
}

// PositionedValue is one event record as stored, paired with its position.
type PositionedValue struct {
	Position uint64
	Value    codec.EventValue
}

// Scan returns every event whose position falls in the inclusive range
// [from, to], ascending by position.
func (e *Events) Scan(from, to uint64) ([]PositionedValue, error) {
	upper := codec.EncodePosition(to + 1)
	if to == ^uint64(0) {
		upper = nil
	}
	ops := e.ks.Scan(kv.TagEvents, codec.EncodePosition(from), upper)
	out := make([]PositionedValue, len(ops))
	for i, op := range ops {
		position, err := codec.DecodePosition(op.Key)
		if err != nil {
			return nil, err
		}
		value, err := codec.DecodeEventValue(op.Value)
		if err != nil {
			return nil, err
		}
		out[i] = PositionedValue{Position: position, Value: value}
	}
	return out, nil
}

// Head returns the highest position stored, or 0 if the partition is
// empty.
func (e *Events) Head() (uint64, error) {
	ops := e.ks.Scan(kv.TagEvents, codec.EncodePosition(0), nil)
	if len(ops) == 0 {
		return 0, nil
	}
	return codec.DecodePosition(ops[len(ops)-1].Key)
}

// IdentifierIndex wraps the identifier-index partition.
type IdentifierIndex struct{ ks *kv.Keyspace }

func NewIdentifierIndex(ks *kv.Keyspace) *IdentifierIndex { return &IdentifierIndex{ks: ks} }

func (idx *IdentifierIndex) Put(batch *kv.Batch, identifierHash, version, position uint64) {
	batch.Put(kv.TagIdentifierIndex, codec.EncodeIdentifierIndexKey(identifierHash, version, position), nil)
}

// Scan returns every position for identifierHash whose version falls in
// versionRange and whose position is >= positionFrom, ascending by
// position. Keys are ordered (hash, version, position), so a single
// identifier's matches arrive grouped by version bucket; the result is
// re-sorted numerically by position before being handed to the caller
// rather than maintaining a second ordering partition.
func (idx *IdentifierIndex) Scan(identifierHash uint64, versionRange *hashkey.VersionRange, positionFrom uint64) (iter.PositionIter, error) {
	prefix := codec.EncodeHashKey(identifierHash)
	upper := codec.EncodeHashKey(identifierHash + 1)
	if identifierHash == ^uint64(0) {
		upper = nil
	}
	ops := idx.ks.Scan(kv.TagIdentifierIndex, prefix, upper)
	positions := make([]uint64, 0, len(ops))
	for _, op := range ops {
		_, version, position, err := codec.DecodeIdentifierIndexKey(op.Key)
		if err != nil {
			return nil, err
		}
		if position < positionFrom {
			continue
		}
		if versionRange != nil {
			if version < versionRange.Min {
				continue
			}
			if versionRange.Max != nil && version >= *versionRange.Max {
				continue
			}
		}
		positions = append(positions, position)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	return iter.Slice(positions), nil
}

// TagIndex wraps the tag-index partition.
type TagIndex struct{ ks *kv.Keyspace }

func NewTagIndex(ks *kv.Keyspace) *TagIndex { return &TagIndex{ks: ks} }

func (t *TagIndex) Put(batch *kv.Batch, tagHash, position uint64) {
	batch.Put(kv.TagTagIndex, codec.EncodeTagIndexKey(tagHash, position), nil)
}

// Scan returns every position for tagHash >= positionFrom. Keys are
// ordered (hash, position), so the scan is already ascending by position
// with no re-sort required.
func (t *TagIndex) Scan(tagHash, positionFrom uint64) (iter.PositionIter, error) {
	lower := codec.EncodeTagIndexKey(tagHash, positionFrom)
	upper := codec.EncodeHashKey(tagHash + 1)
	if tagHash == ^uint64(0) {
		upper = nil
	}
	ops := t.ks.Scan(kv.TagTagIndex, lower, upper)
	positions := make([]uint64, len(ops))
	for i, op := range ops {
		_, position, err := codec.DecodeTagIndexKey(op.Key)
		if err != nil {
			return nil, err
		}
		positions[i] = position
	}
	return iter.Slice(positions), nil
}

// TimestampIndex wraps the auxiliary timestamp-index partition. Maintained
// on every append but not consulted by the base query grammar; exposed for
// Store.ScanByTimestamp.
type TimestampIndex struct{ ks *kv.Keyspace }

func NewTimestampIndex(ks *kv.Keyspace) *TimestampIndex { return &TimestampIndex{ks: ks} }

func (t *TimestampIndex) Put(batch *kv.Batch, timestamp int64, position uint64) {
	batch.Put(kv.TagTimestampIndex, codec.EncodeTimestampIndexKey(timestamp, position), nil)
}

func (t *TimestampIndex) Scan(from, to int64) (iter.PositionIter, error) {
	lower := codec.EncodeTimestampIndexKey(from, 0)
	upper := codec.EncodeTimestampIndexKey(to, 0)
	ops := t.ks.Scan(kv.TagTimestampIndex, lower, upper)
	positions := make([]uint64, len(ops))
	for i, op := range ops {
		_, position, err := codec.DecodeTimestampIndexKey(op.Key)
		if err != nil {
			return nil, err
		}
		positions[i] = position
	}
	return iter.Slice(positions), nil
}

// References wraps one of the two write-once hash->string reference
// partitions (identifier_refs or tag_refs).
type References struct {
	ks  *kv.Keyspace
	tag kv.Tag
}

func NewIdentifierRefs(ks *kv.Keyspace) *References { return &References{ks: ks, tag: kv.TagIdentifierRefs} }
func NewTagRefs(ks *kv.Keyspace) *References        { return &References{ks: ks, tag: kv.TagTagRefs} }

// PutIfAbsent stages a write for hash only if the partition does not
// already hold it; returns whether it already existed. The append engine
// is responsible for not calling this twice for the same hash within one
// batch.
func (r *References) PutIfAbsent(batch *kv.Batch, hash uint64, value string) bool {
	key := codec.EncodeHashKey(hash)
	if _, ok := r.ks.Get(r.tag, key); ok {
		return true
	}
	batch.Put(r.tag, key, []byte(value))
	return false
}

func (r *References) Get(hash uint64) (string, bool) {
	raw, ok := r.ks.Get(r.tag, codec.EncodeHashKey(hash))
	if !ok {
		return "", false
	}
	return string(raw), true
}
