package corpus

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/linematch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/metrics"
)

type countingLoader struct {
	reads atomic.Int64
}

func (l *countingLoader) Load(path string) (*Snapshot, error) {
	l.reads.Add(1)
	return FileLoader{}.Load(path)
}

func lookup(t *testing.T, s *Store, query string) bool {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return snap.Contains(query)
}

func TestStoreCachedModeIsStale(t *testing.T) {
	path := writeCorpus(t, "alice", "bob", "carol")
	loader := &countingLoader{}
	store := NewStore(config.CorpusConfig{Path: path}, WithLoader(loader))

	assert.Equal(t, ModeCached, store.Mode())
	assert.True(t, lookup(t, store, "bob"))
	assert.False(t, lookup(t, store, "dave"))

	require.NoError(t, os.WriteFile(path, []byte("dave\n"), 0o644))

	assert.True(t, lookup(t, store, "bob"), "cached mode keeps serving the first snapshot")
	assert.False(t, lookup(t, store, "dave"))
	assert.Equal(t, int64(1), loader.reads.Load())
}

func TestStoreRereadModeIsFresh(t *testing.T) {
	path := writeCorpus(t, "alice", "bob", "carol")
	loader := &countingLoader{}
	store := NewStore(config.CorpusConfig{Path: path, RereadOnQuery: true}, WithLoader(loader))

	assert.Equal(t, ModeReread, store.Mode())
	assert.True(t, lookup(t, store, "bob"))
	assert.False(t, lookup(t, store, "dave"))

	require.NoError(t, os.WriteFile(path, []byte("dave\nerin\n"), 0o644))

	assert.True(t, lookup(t, store, "dave"), "reread mode reflects the next query")
	assert.False(t, lookup(t, store, "bob"))
	assert.Equal(t, int64(4), loader.reads.Load())
	assert.Nil(t, store.Cache().Current(), "reread mode never touches the cache")
}

func TestStoreMissingFile(t *testing.T) {
	for _, reread := range []bool{false, true} {
		store := NewStore(config.CorpusConfig{
			Path:          filepath.Join(t.TempDir(), "missing.txt"),
			RereadOnQuery: reread,
		})
		_, err := store.Snapshot(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrFileUnavailable, "reread=%v", reread)
	}
}

func TestStoreCachedModeRecoversOnceFileAppears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.txt")
	store := NewStore(config.CorpusConfig{Path: path})

	_, err := store.Snapshot(context.Background())
	require.ErrorIs(t, err, apperrors.ErrFileUnavailable)

	require.NoError(t, os.WriteFile(path, []byte("alice\n"), 0o644))
	assert.True(t, lookup(t, store, "alice"))
}

func TestStoreRecordsMetrics(t *testing.T) {
	path := writeCorpus(t, "alice", "bob")
	m := metrics.New(prometheus.NewRegistry())
	store := NewStore(config.CorpusConfig{Path: path}, WithMetrics(m))

	lookup(t, store, "alice")
	lookup(t, store, "bob")
	lookup(t, store, "carol")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SnapshotLoadsTotal.WithLabelValues(ModeCached, "ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SnapshotLines))
}

func TestWatcherInvalidatesCache(t *testing.T) {
	path := writeCorpus(t, "alice")
	store := NewStore(config.CorpusConfig{Path: path, Watch: true})
	assert.True(t, lookup(t, store, "alice"))

	w, err := NewWatcher(path, store.Cache(), 10*time.Millisecond)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, os.WriteFile(path, []byte("zed\n"), 0o644))

	require.Eventually(t, func() bool {
		return store.Cache().Current() == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, lookup(t, store, "zed"))
}
