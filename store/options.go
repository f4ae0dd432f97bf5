package store

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eventric-io/eventstore/store/cache"
	"github.com/eventric-io/eventstore/store/types"
)

const (
	defaultFlushInterval  = time.Second
	defaultWalSegmentSize = 256 * humanize.MiByte
)

type config struct {
	flushInterval   time.Duration
	walSegmentLimit int64
	cache           *cache.Cache
	registerer      prometheus.Registerer
	instanceName    string
}

func (c *config) apply(opts []Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option configures a Store at Open.
type Option func(*config)

// WithFlushInterval sets how often the background goroutine checks for
// work, for implementations that batch writes; the WAL-per-commit design
// in this module fsyncs synchronously on every Append, so this only paces
// the cache-statistics sampling and the StorageSize-driven rollover checks
// (see WithWalSegmentLimit).
func WithFlushInterval(d time.Duration) Option {
	return func(c *config) { c.flushInterval = d }
}

// WithWalSegmentLimit sets the size, in bytes, at which point the
// background loop rolls the active WAL file over into a compressed,
// sealed segment. Values <= 0 are rejected at Open with a Validation
// error.
func WithWalSegmentLimit(bytes int64) Option {
	return func(c *config) { c.walSegmentLimit = bytes }
}

// WithSharedCache supplies a cache shared across the store and every query
// that doesn't specify its own via QueryOptions.Cache.
func WithSharedCache(c2 *cache.Cache) Option {
	return func(c *config) { c.cache = c2 }
}

// WithMetrics registers the store's Prometheus collectors against reg
// instead of leaving metrics unregistered.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

// WithInstanceName overrides the random UUID instance label otherwise
// attached to the store's logger and metrics.
func WithInstanceName(name string) Option {
	return func(c *config) { c.instanceName = name }
}

func (c *config) validate() error {
	if c.walSegmentLimit <= 0 {
		return types.Validationf("wal segment limit must be positive, got %d bytes", c.walSegmentLimit)
	}
	return nil
}
