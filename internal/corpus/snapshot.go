// Package corpus turns the backing text file into sorted, immutable line
// snapshots and decides, per request, whether a snapshot comes from the
// shared cache or from a fresh read of the file.
package corpus

import (
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/linematch/internal/search"
)

// Snapshot is a sorted, read-only view of the corpus lines at load time.
// It is never modified after construction, so it can be shared freely
// between goroutines.
type Snapshot struct {
	lines    []string
	digest   uint64
	path     string
	loadedAt time.Time
}

// NewSnapshot sorts lines in place and takes ownership of the slice.
func NewSnapshot(path string, lines []string) *Snapshot {
	sort.Strings(lines)
	h := xxhash.New()
	for _, l := range lines {
		h.WriteString(l)
		h.Write([]byte{'\n'})
	}
	return &Snapshot{
		lines:    lines,
		digest:   h.Sum64(),
		path:     path,
		loadedAt: time.Now(),
	}
}

// Contains reports whether query is an exact line of the snapshot.
func (s *Snapshot) Contains(query string) bool {
	return search.Exists(s.lines, query)
}

func (s *Snapshot) Len() int { return len(s.lines) }

// Digest is the xxhash64 of the sorted content; equal corpora give equal
// digests regardless of the on-disk line order.
func (s *Snapshot) Digest() uint64 { return s.digest }

func (s *Snapshot) Path() string { return s.path }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }
