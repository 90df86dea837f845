// Package memo is a reference, in-process CacheOracle implementation: a
// generation-rotated trie of sync.Map layers keyed by a tuple of
// comparable-or-stringified arguments, specialized here to a (function
// identity, call argument) fingerprint.
package memo

import (
	"sync"
	"sync/atomic"
)

// Key is one level of a Trie lookup path: either a naturally comparable
// value or the string form of a fmt.Stringer (see argKey), mirroring
// pure.ComparableOrString.
type Key any

// Trie is a fixed-capacity, two-generation memoization table. When the
// active generation fills past maxSize, the other generation becomes
// active and starts empty, bounding memory without ever requiring an
// explicit eviction policy — the same "rotate, don't evict one-by-one"
// tradeoff pure.Trie makes.
type Trie[O any] struct {
	generations [2]*sync.Map
	headIdx     uint32
	size        atomic.Uint32
	maxSize     uint32
}

// New constructs a Trie that rotates generations every maxSize stores.
func New[O any](maxSize uint32) *Trie[O] {
	if maxSize == 0 {
		panic("memo: maxSize must be greater than 0")
	}
	return &Trie[O]{
		generations: [2]*sync.Map{{}, {}},
		maxSize:     maxSize,
	}
}

func (t *Trie[O]) traverse(root *sync.Map, path []Key) (*sync.Map, Key) {
	n := len(path)
	if n == 0 {
		panic("memo: traverse called with empty path")
	}
	m := root
	for _, k := range path[:n-1] {
		next, ok := m.Load(k)
		if !ok {
			child := &sync.Map{}
			m.Store(k, child)
			next = child
		}
		m = next.(*sync.Map)
	}
	return m, path[n-1]
}

// Load looks up path, checking the active generation first and falling
// back to the previous one so a recently-rotated entry is not lost
// immediately.
func (t *Trie[O]) Load(path []Key) (O, bool) {
	headIdx := t.headIdx
	m, k := t.traverse(t.generations[headIdx], path)
	if v, ok := m.Load(k); ok {
		return v.(O), true
	}
	m, k = t.traverse(t.generations[1-headIdx], path)
	if v, ok := m.Load(k); ok {
		return v.(O), true
	}
	var zero O
	return zero, false
}

// Store records value under path in the active generation, rotating
// generations once the active one has accumulated maxSize entries.
func (t *Trie[O]) Store(path []Key, value O) {
	if t.size.CompareAndSwap(t.maxSize, 0) {
		t.headIdx = 1 - t.headIdx
		t.generations[t.headIdx] = &sync.Map{}
	}
	m, k := t.traverse(t.generations[t.headIdx], path)
	m.Store(k, value)
	t.size.Add(1)
}
