package correlation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"rpmirror/internal/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_PutGet(t *testing.T) {
	table := NewTable()

	_, ok := table.Get("missing")
	assert.False(t, ok)

	h1 := backend.ResolvedHandle(nil, "1")
	table.Put("a", h1)
	got, ok := table.Get("a")
	require.True(t, ok)
	assert.Same(t, h1, got)

	h2 := backend.ResolvedHandle(nil, "2")
	table.Put("a", h2)
	got, _ = table.Get("a")
	assert.Same(t, h2, got, "put replaces")

	actual, stored := table.PutIfAbsent("a", h1)
	assert.False(t, stored)
	assert.Same(t, h2, actual)

	actual, stored = table.PutIfAbsent("b", h1)
	assert.True(t, stored)
	assert.Same(t, h1, actual)
	assert.Equal(t, 2, table.Len())
}

func TestTable_ConcurrentAccess(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("node-%d", i)
			table.Put(key, backend.ResolvedHandle(nil, key))
			h, ok := table.Get(key)
			if assert.True(t, ok) {
				id, _ := h.ID()
				assert.Equal(t, key, id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, table.Len())
}

func TestTree_StartFinish(t *testing.T) {
	tree := NewTree()
	launch := backend.ResolvedHandle(nil, "launch")
	tree.SetLaunch(launch)
	tree.SetLaunch(backend.ResolvedHandle(nil, "other"))
	assert.Same(t, launch, tree.Launch())

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	suite := backend.ResolvedHandle(nil, "s")
	step := backend.ResolvedHandle(suite, "1")
	tree.Start(Leaf{Key: "s", Name: "suite", Type: backend.ItemTypeSuite, Handle: suite, StartTime: start})
	tree.Start(Leaf{Key: "s/1", Name: "step", Type: backend.ItemTypeStep, ParentKey: "s", ParentHandle: suite,
		Handle: step, StartTime: start})

	leaf, ok := tree.Get("s/1")
	require.True(t, ok)
	assert.False(t, leaf.Finished())

	assert.True(t, tree.Finish(step, backend.StatusFailed, backend.Completed(nil), start.Add(time.Second)))
	assert.False(t, tree.Finish(backend.ResolvedHandle(nil, "unknown"), backend.StatusPassed, nil, start))

	leaf, _ = tree.Get("s/1")
	assert.True(t, leaf.Finished())
	assert.Equal(t, backend.StatusFailed, leaf.Status)
	assert.Equal(t, start.Add(time.Second), leaf.EndTime)

	leaves := tree.Leaves()
	require.Len(t, leaves, 2)
	assert.Equal(t, "s", leaves[0].Key)
	assert.Equal(t, "s/1", leaves[1].Key)
}

func TestTree_RestartAddsLeaf(t *testing.T) {
	tree := NewTree()
	first := backend.ResolvedHandle(nil, "1")
	second := backend.ResolvedHandle(nil, "2")
	tree.Start(Leaf{Key: "a", Name: "first", Handle: first})
	tree.Start(Leaf{Key: "b", Name: "b"})
	tree.Start(Leaf{Key: "a", Name: "second", Handle: second})

	assert.True(t, tree.Finish(first, backend.StatusFailed, nil, time.Time{}))
	assert.True(t, tree.Finish(second, backend.StatusPassed, nil, time.Time{}))

	leaves := tree.Leaves()
	require.Len(t, leaves, 3)
	assert.Equal(t, backend.StatusFailed, leaves[0].Status)
	assert.Equal(t, backend.StatusPassed, leaves[2].Status)

	latest, ok := tree.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", latest.Name)
}
