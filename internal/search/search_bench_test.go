package search

import (
	"fmt"
	"sort"
	"testing"
)

func buildLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("7;0;6;28;0;23;5;%d;", i)
	}
	sort.Strings(lines)
	return lines
}

// BenchmarkExists measures lookup latency for corpora of increasing size.
func BenchmarkExists(b *testing.B) {
	for _, n := range []int{10_000, 250_000, 1_000_000} {
		lines := buildLines(n)
		hit := lines[n/2]
		b.Run(fmt.Sprintf("lines_%d/hit", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Exists(lines, hit)
			}
		})
		b.Run(fmt.Sprintf("lines_%d/miss", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Exists(lines, "not-in-corpus")
			}
		})
	}
}

// BenchmarkSortCorpus approximates the per-query cost of reread mode.
func BenchmarkSortCorpus(b *testing.B) {
	src := buildLines(250_000)
	rev := make([]string, len(src))
	for i := range src {
		rev[i] = src[len(src)-1-i]
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		lines := make([]string, len(rev))
		copy(lines, rev)
		b.StartTimer()
		sort.Strings(lines)
	}
}
