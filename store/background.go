package store

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// backgroundLoop owns the store's single background goroutine, which
// periodically copies the cache hit/miss counts into the metrics gauges and
// checks the active WAL size against the configured segment limit, rolling
// the WAL over once it's exceeded. It's supervised by an errgroup so
// Close can wait for a clean exit rather than leaking the goroutine.
type backgroundLoop struct {
	cancel context.CancelFunc
	group  *errgroup.Group
}

func startBackgroundLoop(s *Store, interval time.Duration, limit int64) *backgroundLoop {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.metrics.CacheHits.Set(float64(s.cache.Hits()))
				s.metrics.CacheMisses.Set(float64(s.cache.Misses()))

				size, err := s.ks.StorageSize()
				if err != nil {
					log.Warnw("background storage size check failed", "instance", s.id, "error", err)
					continue
				}
				if size > limit {
					log.Infow("wal exceeds configured segment limit, rolling over", "instance", s.id, "size", size, "limit", limit)
					if err := s.ks.Rollover(); err != nil {
						log.Warnw("wal rollover failed", "instance", s.id, "error", err)
					}
				}
			}
		}
	})
	return &backgroundLoop{cancel: cancel, group: group}
}

func (b *backgroundLoop) stop() error {
	if b == nil {
		return nil
	}
	b.cancel()
	return b.group.Wait()
}
