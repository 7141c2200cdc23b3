package corpus

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/metrics"
)

const (
	ModeCached = "cached"
	ModeReread = "reread"
)

// Store hands out snapshots according to the configured coherence mode:
// reread mode reads and sorts the file on every call and never touches the
// cache; cached mode serves the shared Cache.
type Store struct {
	path    string
	reread  bool
	loader  Loader
	cache   *Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithLoader replaces the filesystem loader.
func WithLoader(l Loader) Option {
	return func(s *Store) { s.loader = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func NewStore(cfg config.CorpusConfig, opts ...Option) *Store {
	s := &Store{
		path:   cfg.Path,
		reread: cfg.RereadOnQuery,
		loader: FileLoader{},
		logger: slog.Default().With("component", "corpus-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = NewCache(func() (*Snapshot, error) {
		return s.load(ModeCached)
	})
	return s
}

// Snapshot returns the lines to search for one request.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s.reread {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.load(ModeReread)
	}
	snap, hit, err := s.cache.Get(ctx)
	if s.metrics != nil {
		if hit {
			s.metrics.CacheHitsTotal.Inc()
		} else {
			s.metrics.CacheMissesTotal.Inc()
		}
	}
	return snap, err
}

func (s *Store) Mode() string {
	if s.reread {
		return ModeReread
	}
	return ModeCached
}

func (s *Store) Path() string { return s.path }

func (s *Store) Cache() *Cache { return s.cache }

func (s *Store) load(mode string) (*Snapshot, error) {
	start := time.Now()
	snap, err := s.loader.Load(s.path)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Warn("corpus load failed", "mode", mode, "path", s.path, "error", err)
		if s.metrics != nil {
			s.metrics.SnapshotLoadsTotal.WithLabelValues(mode, "error").Inc()
		}
		return nil, err
	}
	s.logger.Debug("corpus loaded",
		"mode", mode,
		"lines", snap.Len(),
		"elapsed", elapsed,
	)
	if s.metrics != nil {
		s.metrics.SnapshotLoadsTotal.WithLabelValues(mode, "ok").Inc()
		s.metrics.SnapshotLoadDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
		s.metrics.SnapshotLines.Set(float64(snap.Len()))
	}
	return snap, nil
}
