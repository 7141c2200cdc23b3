package search

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExists(t *testing.T) {
	lines := []string{"alice", "bob", "carol"}

	assert.True(t, Exists(lines, "bob"))
	assert.False(t, Exists(lines, "dave"))
	assert.False(t, Exists(lines, ""))
	assert.False(t, Exists(lines, "bo"), "prefix must not match")
	assert.False(t, Exists(lines, "bobby"), "extension must not match")
	assert.False(t, Exists(lines, "Bob"), "match is case sensitive")
	assert.False(t, Exists(nil, "bob"))
}

func TestExistsDuplicatesAndEmptyLines(t *testing.T) {
	lines := []string{"", "x", "x", "x", "y"}

	assert.True(t, Exists(lines, ""))
	assert.True(t, Exists(lines, "x"))
	assert.True(t, Exists(lines, "y"))
	assert.False(t, Exists(lines, "z"))
}

// Every element of a sorted slice is found and every string that was never
// inserted is not.
func TestExistsMembership(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	present := make(map[string]struct{})
	lines := make([]string, 0, 5000)
	for i := 0; i < 5000; i++ {
		s := fmt.Sprintf("%d;0;%d;%d;0;", rng.Intn(30), rng.Intn(1000), rng.Intn(100))
		present[s] = struct{}{}
		lines = append(lines, s)
	}
	sort.Strings(lines)
	assert.True(t, IsSorted(lines))

	for _, s := range lines {
		if !Exists(lines, s) {
			t.Fatalf("expected %q to be found", s)
		}
	}
	for i := 0; i < 5000; i++ {
		s := fmt.Sprintf("%d;1;%d;", rng.Intn(30), rng.Intn(1000))
		if _, ok := present[s]; ok {
			continue
		}
		if Exists(lines, s) {
			t.Fatalf("did not expect %q to be found", s)
		}
	}
}
