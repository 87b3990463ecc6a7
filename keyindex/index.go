// Package keyindex maps keys to the locations of every version of their
// value, oldest first.
package keyindex

import (
	"cmp"
	"sync"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/skiplist"
	"github.com/RoaringBitmap/roaring/roaring64"
)

// entry is the location list of one key. It is never empty.
type entry struct {
	locs []core.Location
}

// Index is an ordered key -> []core.Location map guarded by a RWMutex.
// It is derived data and never persisted.
type Index[K cmp.Ordered] struct {
	mu        sync.RWMutex
	data      *skiplist.SkipList[K, *entry]
	live      int
	locations int
}

// New creates an empty Index.
func New[K cmp.Ordered]() *Index[K] {
	return &Index[K]{data: newSkipList[K]()}
}

func newSkipList[K cmp.Ordered]() *skiplist.SkipList[K, *entry] {
	return skiplist.NewWithComparator[K, *entry](cmp.Compare[K])
}

// find returns the entry for key, or nil. Must be called with mu held.
func (idx *Index[K]) find(key K) *entry {
	node, ok := idx.data.Seek(key)
	if !ok || node.Key() != key {
		return nil
	}
	return node.Value()
}

// Record appends loc to key's location list, creating the list if needed.
// It reports whether key was not indexed before.
func (idx *Index[K]) Record(key K, loc core.Location) (created bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.locations++
	if e := idx.find(key); e != nil {
		e.locs = append(e.locs, loc)
		return false
	}
	idx.data.Insert(key, &entry{locs: []core.Location{loc}})
	idx.live++
	return true
}

// LocationsOf returns a copy of key's location list, oldest first. It is
// empty when the key is not indexed.
func (idx *Index[K]) LocationsOf(key K) []core.Location {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e := idx.find(key)
	if e == nil {
		return nil
	}
	out := make([]core.Location, len(e.locs))
	copy(out, e.locs)
	return out
}

// LatestLocationOf returns the most recently recorded location of key.
func (idx *Index[K]) LatestLocationOf(key K) (core.Location, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e := idx.find(key)
	if e == nil {
		return core.Location{}, false
	}
	return e.locs[len(e.locs)-1], true
}

// Remove drops every location of key. It reports whether the key was indexed.
// The records themselves stay in the log.
func (idx *Index[K]) Remove(key K) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e := idx.find(key)
	if e == nil {
		return false
	}
	idx.data.Delete(key)
	idx.live--
	idx.locations -= len(e.locs)
	return true
}

// Clear empties the index.
func (idx *Index[K]) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.data = newSkipList[K]()
	idx.live = 0
	idx.locations = 0
}

// Len returns the number of indexed keys.
func (idx *Index[K]) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.live
}

// LocationCount returns the number of indexed locations across all keys.
func (idx *Index[K]) LocationCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.locations
}

// Keys returns the indexed keys in ascending order.
func (idx *Index[K]) Keys() []K {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := make([]K, 0, idx.live)
	idx.data.Range(func(key K, _ *entry) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// ReferencedFiles returns the IDs of every file that holds at least one
// indexed location.
func (idx *Index[K]) ReferencedFiles() *roaring64.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	files := roaring64.New()
	idx.data.Range(func(_ K, e *entry) bool {
		for _, loc := range e.locs {
			files.Add(loc.FileID)
		}
		return true
	})
	return files
}

// Swap replaces the contents of idx with those of other in one step and
// leaves other empty. Readers of idx see either the old or the new contents,
// never a mix. other must not be used concurrently.
func (idx *Index[K]) Swap(other *Index[K]) {
	other.mu.Lock()
	data, live, locations := other.data, other.live, other.locations
	other.data = newSkipList[K]()
	other.live = 0
	other.locations = 0
	other.mu.Unlock()

	idx.mu.Lock()
	idx.data = data
	idx.live = live
	idx.locations = locations
	idx.mu.Unlock()
}
