// Package store implements an embedded, single-process event store:
// append-only streams of typed events with boolean AND/OR query retrieval
// over a write-ahead-logged keyspace.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"

	"github.com/eventric-io/eventstore/internal/metrics"
	"github.com/eventric-io/eventstore/store/cache"
	"github.com/eventric-io/eventstore/store/codec"
	"github.com/eventric-io/eventstore/store/hashkey"
	"github.com/eventric-io/eventstore/store/kv"
	"github.com/eventric-io/eventstore/store/partition"
	"github.com/eventric-io/eventstore/store/types"
)

var log = logging.Logger("eventstore")

var tracer = otel.Tracer("github.com/eventric-io/eventstore/store")

// Store is an open handle onto an event store rooted at a filesystem
// directory. A Store is safe for concurrent use: one writer and any
// number of concurrent readers.
type Store struct {
	id string

	ks *kv.Keyspace

	events          *partition.Events
	identifierIndex *partition.IdentifierIndex
	tagIndex        *partition.TagIndex
	timestampIndex  *partition.TimestampIndex
	identifierRefs  *partition.References
	tagRefs         *partition.References

	cache   *cache.Cache
	metrics *metrics.Metrics

	appendMu sync.Mutex // serialises Append: single writer, many readers
	headMu   sync.RWMutex
	head     uint64

	background *backgroundLoop
	closeOnce  sync.Once
}

// Open opens (creating if absent) the event store rooted at path.
func Open(path string, opts ...Option) (*Store, error) {
	c := config{
		flushInterval:   defaultFlushInterval,
		walSegmentLimit: defaultWalSegmentSize,
		registerer:      nil,
	}
	c.apply(opts)
	if err := c.validate(); err != nil {
		return nil, err
	}

	ks, err := kv.Open(path)
	if err != nil {
		return nil, err
	}

	events := partition.NewEvents(ks)
	head, err := events.Head()
	if err != nil {
		ks.Close()
		return nil, err
	}

	instanceID := c.instanceName
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	sharedCache := c.cache
	if sharedCache == nil {
		sharedCache = cache.New()
	}

	var m *metrics.Metrics
	if c.registerer != nil {
		m = metrics.New(c.registerer, instanceID)
	} else {
		m = metrics.Noop()
	}

	s := &Store{
		id:              instanceID,
		ks:              ks,
		events:          events,
		identifierIndex: partition.NewIdentifierIndex(ks),
		tagIndex:        partition.NewTagIndex(ks),
		timestampIndex:  partition.NewTimestampIndex(ks),
		identifierRefs:  partition.NewIdentifierRefs(ks),
		tagRefs:         partition.NewTagRefs(ks),
		cache:           sharedCache,
		metrics:         m,
		head:            head,
	}

	s.background = startBackgroundLoop(s, c.flushInterval, c.walSegmentLimit)

	log.Infow("opened store", "instance", instanceID, "path", path, "head", head)
	return s, nil
}

// Head returns the current highest persisted position, or 0 if the store
// is empty.
func (s *Store) Head() uint64 {
	s.headMu.RLock()
	defer s.headMu.RUnlock()
	return s.head
}

// Append validates, hashes, sequences, and atomically persists candidates,
// returning the resulting head position. If condition is non-nil its
// query is evaluated first; any match fails the call with
// ConditionNotMet and nothing is staged.
func (s *Store) Append(ctx context.Context, candidates []CandidateEvent, condition *Condition) (position uint64, err error) {
	ctx, span := tracer.Start(ctx, "store.Append")
	defer span.End()

	s.metrics.AppendsTotal.Inc()
	start := time.Now()
	defer s.metrics.ObserveAppendLatency(start)
	defer func() {
		if err != nil {
			kind := types.Io
			if e, ok := err.(*types.Error); ok {
				kind = e.Kind
			}
			s.metrics.AppendFailuresTotal.WithLabelValues(string(kind)).Inc()
		}
	}()

	if len(candidates) == 0 {
		return 0, types.Validationf("candidates must not be empty")
	}
	for i := range candidates {
		candidates[i].Tags = dedupTags(candidates[i].Tags)
		if err := validateCandidate(candidates[i]); err != nil {
			return 0, err
		}
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if condition != nil {
		if err := s.checkCondition(ctx, *condition); err != nil {
			return 0, err
		}
	}

	head := s.Head()
	timestamp := time.Now().UnixMilli()
	batch := kv.NewBatch()
	seenHashes := make(map[uint64]struct{})

	var newHead uint64
	for i, candidate := range candidates {
		pos := head + 1 + uint64(i)
		newHead = pos

		identifierHash := hashkey.Identifier(candidate.Identifier)
		tagHashes := make([]uint64, len(candidate.Tags))
		for j, tag := range candidate.Tags {
			tagHashes[j] = hashkey.Tag(tag)
		}

		s.events.Put(batch, pos, codec.EventValue{
			Version:        candidate.Version,
			Timestamp:      timestamp,
			IdentifierHash: identifierHash,
			TagHashes:      tagHashes,
			Data:           candidate.Data,
		})
		s.identifierIndex.Put(batch, identifierHash, candidate.Version, pos)
		for _, tagHash := range tagHashes {
			s.tagIndex.Put(batch, tagHash, pos)
		}
		s.timestampIndex.Put(batch, timestamp, pos)

		if _, ok := seenHashes[identifierHash]; !ok {
			seenHashes[identifierHash] = struct{}{}
			s.identifierRefs.PutIfAbsent(batch, identifierHash, candidate.Identifier)
		}
		for j, tagHash := range tagHashes {
			if _, ok := seenHashes[tagHash]; ok {
				continue
			}
			seenHashes[tagHash] = struct{}{}
			s.tagRefs.PutIfAbsent(batch, tagHash, candidate.Tags[j])
		}
	}

	if err := s.ks.Commit(batch); err != nil {
		return 0, err
	}

	s.headMu.Lock()
	s.head = newHead
	s.headMu.Unlock()

	s.metrics.EventsAppendedTotal.Add(float64(len(candidates)))
	return newHead, nil
}

func (s *Store) checkCondition(ctx context.Context, condition Condition) error {
	it, err := s.Query(ctx, condition, DefaultQueryOptions())
	if err != nil {
		return err
	}
	defer it.Close()
	_, ok, err := it.Next()
	if err != nil {
		return err
	}
	if ok {
		return types.New(types.ConditionNotMet, "condition query matched an existing event")
	}
	return nil
}

// Query plans condition into an iterator tree and returns a lazy,
// position-ordered EventIterator over the result.
func (s *Store) Query(ctx context.Context, condition Condition, opts ...QueryOptions) (*EventIterator, error) {
	ctx, span := tracer.Start(ctx, "store.Query")
	defer span.End()
	s.metrics.QueriesTotal.Inc()

	queryHash := condition.Matches.Hash()
	span.SetAttributes(attribute.String("eventstore.query_hash", fmt.Sprintf("%016x", queryHash)))
	log.Debugw("planning query", "instance", s.id, "queryHash", fmt.Sprintf("%016x", queryHash), "from", condition.From)

	options := DefaultQueryOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	positions, err := planQuery(s.identifierIndex, s.tagIndex, condition)
	if err != nil {
		return nil, err
	}
	return newEventIterator(ctx, s.events, s.identifierRefs, s.tagRefs, positions, options, s.cache, s.metrics), nil
}

// ScanByTimestamp returns events whose capture timestamp falls in
// [from, to), via the auxiliary timestamp-index partition.
func (s *Store) ScanByTimestamp(ctx context.Context, from, to time.Time) (*EventIterator, error) {
	positions, err := s.timestampIndex.Scan(from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	options := DefaultQueryOptions()
	return newEventIterator(ctx, s.events, s.identifierRefs, s.tagRefs, positions, options, s.cache, s.metrics), nil
}

// StorageSize returns the current on-disk footprint of the store: the
// active WAL file plus every compressed, rolled-over segment.
func (s *Store) StorageSize() (int64, error) {
	active, err := s.ks.StorageSize()
	if err != nil {
		return 0, err
	}
	segments, err := s.ks.SegmentsSize()
	if err != nil {
		return 0, err
	}
	return active + segments, nil
}

// Close flushes and releases the underlying keyspace. Safe to call more
// than once.
func (s *Store) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		log.Infow("closing store", "instance", s.id, "head", s.Head())
		closeErr = multierr.Combine(s.background.stop(), s.ks.Close())
	})
	return closeErr
}
