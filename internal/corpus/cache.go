package corpus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

const populateKey = "snapshot"

// PopulateFunc performs one full read of the corpus.
type PopulateFunc func() (*Snapshot, error)

// CacheStats is a point-in-time view of cache activity.
type CacheStats struct {
	Hits   int64
	Misses int64
	Loads  int64
}

// Cache holds the snapshot shared by every cached-mode request. The first
// request populates it; concurrent first requests wait on the same read and
// receive the same *Snapshot. Once populated, reads are a single atomic load
// and the snapshot is never modified. Failed populations are not cached.
type Cache struct {
	populate PopulateFunc
	snap     atomic.Pointer[Snapshot]
	group    singleflight.Group

	// mu orders Store against Invalidate so a read that started before an
	// invalidation cannot publish its result after it.
	mu  sync.Mutex
	gen uint64

	hits   atomic.Int64
	misses atomic.Int64
	loads  atomic.Int64
	logger *slog.Logger
}

func NewCache(populate PopulateFunc) *Cache {
	return &Cache{
		populate: populate,
		logger:   slog.Default().With("component", "corpus-cache"),
	}
}

// Get returns the cached snapshot, populating it on first use. hit reports
// whether the snapshot was already present.
func (c *Cache) Get(ctx context.Context) (snap *Snapshot, hit bool, err error) {
	if s := c.snap.Load(); s != nil {
		c.hits.Add(1)
		return s, true, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	c.misses.Add(1)

	val, err, shared := c.group.Do(populateKey, func() (interface{}, error) {
		if s := c.snap.Load(); s != nil {
			return s, nil
		}
		c.mu.Lock()
		gen := c.gen
		c.mu.Unlock()

		c.loads.Add(1)
		s, err := c.populate()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		stored := c.gen == gen
		if stored {
			c.snap.Store(s)
		}
		c.mu.Unlock()
		if stored {
			c.logger.Info("corpus cache populated",
				"path", s.Path(),
				"lines", s.Len(),
				"digest", s.Digest(),
			)
		} else {
			c.logger.Info("corpus read superseded by invalidation, not cached",
				"path", s.Path(),
				"lines", s.Len(),
			)
		}
		return s, nil
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		c.logger.Debug("joined in-flight cache population")
	}
	return val.(*Snapshot), false, nil
}

// Current returns the populated snapshot or nil.
func (c *Cache) Current() *Snapshot {
	return c.snap.Load()
}

// Invalidate drops the snapshot; the next Get reads the file again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.gen++
	old := c.snap.Swap(nil)
	c.mu.Unlock()
	c.group.Forget(populateKey)
	if old != nil {
		c.logger.Info("corpus cache invalidated", "previous_lines", old.Len())
	}
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Loads:  c.loads.Load(),
	}
}
