package parallel

// CacheOracle is the read side of the persistent memoization oracle the
// core consumes but does not own. Has and Get are keyed by the owning
// function's stable identity plus its argument; the oracle owns the
// derivation of the actual fingerprint from those two values.
type CacheOracle interface {
	// Has reports whether an entry exists for this call without
	// retrieving it. Consulted during REPLAYING, where a missing entry is
	// reported as a CaptureDeterminismError.
	Has(functionIdentity string, arg any) bool

	// Get retrieves the cached value for this call, if any. Consulted
	// during CAPTURING (to short-circuit a call that already hit) and by
	// well-behaved REPLAYING-mode Compute implementations.
	Get(functionIdentity string, arg any) (value any, ok bool)
}

// CacheWriter is the write side of the persistent memoization oracle.
// A Backend's jobs call Set once a batch's results are known, so that the
// driver-side replay phase can observe them.
type CacheWriter interface {
	Set(functionIdentity string, arg any, result any)
}

// Cache is the full persistent cache oracle surface the core and its
// backends need: membership/retrieval for the driver, and population for
// the backend's workers.
type Cache interface {
	CacheOracle
	CacheWriter
}
