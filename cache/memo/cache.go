package memo

import "fmt"

// Cache is a standalone, in-process parallel.CacheOracle/CacheWriter
// built on Trie. It is the simplest of the module's reference cache
// oracles: useful for tests and single-process pipelines where the
// durability and cross-process sharing of cache/oracle.TwoTier are not
// needed.
type Cache struct {
	trie *Trie[any]
}

// NewCache constructs a Cache that rotates its backing Trie every
// maxSize entries.
func NewCache(maxSize uint32) *Cache {
	return &Cache{trie: New[any](maxSize)}
}

func fingerprint(functionIdentity string, arg any) []Key {
	return []Key{functionIdentity, argKey(arg)}
}

// argKey mirrors pure.tableKey: a fmt.Stringer argument is keyed by its
// string form, everything else is used as-is and must be comparable, or
// Store/Load will panic the same way a plain Go map would on a
// non-comparable map key.
func argKey(arg any) Key {
	if s, ok := arg.(fmt.Stringer); ok {
		return s.String()
	}
	return arg
}

// Has reports whether an entry exists for (functionIdentity, arg).
func (c *Cache) Has(functionIdentity string, arg any) bool {
	_, ok := c.trie.Load(fingerprint(functionIdentity, arg))
	return ok
}

// Get retrieves the cached value for (functionIdentity, arg), if any.
func (c *Cache) Get(functionIdentity string, arg any) (any, bool) {
	return c.trie.Load(fingerprint(functionIdentity, arg))
}

// Set records result for (functionIdentity, arg).
func (c *Cache) Set(functionIdentity string, arg any, result any) {
	c.trie.Store(fingerprint(functionIdentity, arg), result)
}
