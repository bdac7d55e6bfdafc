package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddAndGet(t *testing.T) {
	r := NewRegistry()
	r.Add(Run{ID: "a", Instruction: "first"})
	r.Add(Run{ID: "b", Instruction: "second"})

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "first", got.Instruction)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RecentNewestFirst(t *testing.T) {
	r := NewRegistry()
	r.Add(Run{ID: "a"})
	r.Add(Run{ID: "b"})
	r.Add(Run{ID: "c"})

	recent := r.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "a", recent[2].ID)
}

func TestRegistry_EvictsOldestBeyondCap(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < maxRecentRuns+8; i++ {
		r.Add(Run{ID: fmt.Sprintf("run-%d", i)})
	}

	assert.Equal(t, maxRecentRuns, r.Len())

	recent := r.Recent()
	assert.Equal(t, fmt.Sprintf("run-%d", maxRecentRuns+7), recent[0].ID)

	_, ok := r.Get("run-0")
	assert.False(t, ok, "oldest run should have been evicted")
}
