package store

import (
	"context"
	"time"

	"github.com/eventric-io/eventstore/internal/metrics"
	"github.com/eventric-io/eventstore/store/cache"
	"github.com/eventric-io/eventstore/store/iter"
	"github.com/eventric-io/eventstore/store/partition"
	"github.com/eventric-io/eventstore/store/types"
)

// QueryOptions controls how a query hydrates hash-referenced strings.
type QueryOptions struct {
	// RetrieveTags, when false, leaves uncached tags as empty-string
	// placeholders instead of reading the tag-references partition.
	// Identifiers are always hydrated. Defaults to true.
	RetrieveTags bool
	// Cache, when non-nil, is used (and shared) instead of the store's
	// default cache, letting callers amortise lookups across queries.
	Cache *cache.Cache
}

// DefaultQueryOptions returns the zero-value-safe defaults: tags
// retrieved, no explicit shared cache (the store's own cache is used).
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{RetrieveTags: true}
}

// EventIterator is the lazy, single-pass, forward-only iterator Query
// returns. It pulls positions from the planned iterator tree, fetches the
// primary event record, and hydrates hash-referenced identifier and tag
// strings through a shared Cache.
type EventIterator struct {
	ctx    context.Context
	events *partition.Events

	identifierRefs *partition.References
	tagRefs        *partition.References

	positions iter.PositionIter
	options   QueryOptions
	cache     *cache.Cache
	metrics   *metrics.Metrics

	done bool
	err  error
}

func newEventIterator(
	ctx context.Context,
	events *partition.Events,
	identifierRefs, tagRefs *partition.References,
	positions iter.PositionIter,
	options QueryOptions,
	defaultCache *cache.Cache,
	m *metrics.Metrics,
) *EventIterator {
	c := options.Cache
	if c == nil {
		c = defaultCache
	}
	return &EventIterator{
		ctx:            ctx,
		events:         events,
		identifierRefs: identifierRefs,
		tagRefs:        tagRefs,
		positions:      positions,
		options:        options,
		cache:          c,
		metrics:        m,
	}
}

// Next returns the next Event in ascending position order, or ok=false
// once exhausted. Once err is non-nil, every subsequent call returns the
// same error.
func (it *EventIterator) Next() (Event, bool, error) {
	if it.done {
		return Event{}, false, it.err
	}
	if err := it.ctx.Err(); err != nil {
		it.done, it.err = true, types.IoWrap(err, "query context cancelled")
		return Event{}, false, it.err
	}

	position, ok, err := it.positions.Next()
	if err != nil {
		it.done, it.err = true, err
		return Event{}, false, it.err
	}
	if !ok {
		it.done = true
		return Event{}, false, nil
	}
	it.metrics.QueryPositionsEmitted.Inc()

	value, found, err := it.events.Get(position)
	if err != nil {
		it.done, it.err = true, err
		return Event{}, false, it.err
	}
	if !found {
		it.done, it.err = true, types.DataIntegrityf("position %d indexed but missing from events partition", position)
		return Event{}, false, it.err
	}

	identifier, err := it.hydrateIdentifier(value.IdentifierHash)
	if err != nil {
		it.done, it.err = true, err
		return Event{}, false, it.err
	}

	tags, err := it.hydrateTags(value.TagHashes)
	if err != nil {
		it.done, it.err = true, err
		return Event{}, false, it.err
	}

	return Event{
		Data:       value.Data,
		Identifier: identifier,
		Tags:       tags,
		Version:    value.Version,
		Position:   position,
		Timestamp:  time.UnixMilli(value.Timestamp),
	}, true, nil
}

func (it *EventIterator) hydrateIdentifier(hash uint64) (string, error) {
	v, ok, err := it.cache.GetOrLoad(hash, func() (string, bool, error) {
		s, ok := it.identifierRefs.Get(hash)
		return s, ok, nil
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", types.DataIntegrityf("identifier reference missing for hash %d", hash)
	}
	return v, nil
}

func (it *EventIterator) hydrateTags(hashes []uint64) ([]string, error) {
	tags := make([]string, len(hashes))
	for i, hash := range hashes {
		if !it.options.RetrieveTags {
			if v, ok := it.cache.Get(hash); ok {
				tags[i] = v
			}
			continue
		}
		v, ok, err := it.cache.GetOrLoad(hash, func() (string, bool, error) {
			s, ok := it.tagRefs.Get(hash)
			return s, ok, nil
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, types.DataIntegrityf("tag reference missing for hash %d", hash)
		}
		tags[i] = v
	}
	return tags, nil
}

// Close releases the iterator's underlying scan cursors. Safe to call more
// than once. Go has no destructor, so every caller should defer Close
// rather than relying on the iterator being dropped.
func (it *EventIterator) Close() {
	it.done = true
	it.positions = iter.Empty()
}
