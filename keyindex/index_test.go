package keyindex

import (
	"fmt"
	"sync"
	"testing"

	"github.com/INLOpen/nexuslake/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loc(file uint64, off int64) core.Location {
	return core.Location{FileID: file, Offset: off}
}

func TestIndex_RecordKeepsWriteOrder(t *testing.T) {
	idx := New[string]()
	assert.True(t, idx.Record("a", loc(1, 29)))
	assert.True(t, idx.Record("b", loc(1, 60)))
	assert.False(t, idx.Record("a", loc(1, 91)))
	assert.False(t, idx.Record("a", loc(2, 29)))

	assert.Equal(t, []core.Location{loc(1, 29), loc(1, 91), loc(2, 29)}, idx.LocationsOf("a"))
	assert.Equal(t, []core.Location{loc(1, 60)}, idx.LocationsOf("b"))
	assert.Empty(t, idx.LocationsOf("missing"))

	latest, ok := idx.LatestLocationOf("a")
	require.True(t, ok)
	assert.Equal(t, loc(2, 29), latest)
	_, ok = idx.LatestLocationOf("missing")
	assert.False(t, ok)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 4, idx.LocationCount())
}

func TestIndex_LocationsOfReturnsCopy(t *testing.T) {
	idx := New[int]()
	idx.Record(1, loc(1, 29))
	got := idx.LocationsOf(1)
	got[0] = loc(9, 9)
	assert.Equal(t, loc(1, 29), idx.LocationsOf(1)[0])
}

func TestIndex_Remove(t *testing.T) {
	idx := New[string]()
	idx.Record("a", loc(1, 29))
	idx.Record("a", loc(1, 40))
	idx.Record("b", loc(1, 50))

	assert.True(t, idx.Remove("a"))
	assert.False(t, idx.Remove("a"), "already removed")
	assert.False(t, idx.Remove("missing"))
	assert.Empty(t, idx.LocationsOf("a"))
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 1, idx.LocationCount())
	assert.Equal(t, []string{"b"}, idx.Keys())

	// A removed key can be recorded again and starts a new list.
	assert.True(t, idx.Record("a", loc(2, 29)))
	assert.Equal(t, []core.Location{loc(2, 29)}, idx.LocationsOf("a"))
	assert.Equal(t, 2, idx.Len())
}

func TestIndex_RemoveUnlinksNode(t *testing.T) {
	idx := New[int]()
	for i := 0; i < 100; i++ {
		idx.Record(i, loc(1, int64(29+i)))
		require.True(t, idx.Remove(i))
	}
	assert.Equal(t, 0, idx.data.Len())
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 0, idx.LocationCount())
	assert.Empty(t, idx.Keys())
}

func TestIndex_KeysAreOrdered(t *testing.T) {
	idx := New[string]()
	for _, k := range []string{"delta", "alpha", "charlie", "bravo"} {
		idx.Record(k, loc(1, 29))
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, idx.Keys())
}

func TestIndex_ReferencedFiles(t *testing.T) {
	idx := New[int]()
	idx.Record(1, loc(1, 29))
	idx.Record(2, loc(3, 29))
	idx.Record(2, loc(4, 29))
	idx.Record(3, loc(4, 80))
	idx.Remove(2)

	files := idx.ReferencedFiles()
	assert.Equal(t, []uint64{1, 4}, files.ToArray())
}

func TestIndex_ClearAndSwap(t *testing.T) {
	idx := New[string]()
	idx.Record("old", loc(1, 29))

	fresh := New[string]()
	fresh.Record("new", loc(2, 29))
	fresh.Record("new", loc(2, 50))

	idx.Swap(fresh)
	assert.Empty(t, idx.LocationsOf("old"))
	assert.Len(t, idx.LocationsOf("new"), 2)
	assert.Equal(t, 0, fresh.Len())
	assert.Empty(t, fresh.Keys())

	idx.Clear()
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 0, idx.LocationCount())
	assert.Empty(t, idx.Keys())
}

func TestIndex_ConcurrentAccess(t *testing.T) {
	idx := New[string]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", w%4)
			for i := 0; i < 100; i++ {
				idx.Record(key, loc(uint64(w), int64(i)))
				_ = idx.LocationsOf(key)
				_ = idx.Keys()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, 800, idx.LocationCount())
	for k := 0; k < 4; k++ {
		locs := idx.LocationsOf(fmt.Sprintf("key-%d", k))
		require.Len(t, locs, 200)
		// Per writer, offsets appear in the order they were recorded.
		last := map[uint64]int64{}
		for _, l := range locs {
			if prev, ok := last[l.FileID]; ok {
				assert.Greater(t, l.Offset, prev)
			}
			last[l.FileID] = l.Offset
		}
	}
}
