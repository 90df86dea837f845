package parallel

import (
	"context"
	"fmt"
)

// PlaceholderFactory produces a stand-in value for a not-yet-computed call
// during CAPTURING. It must support whatever downstream operations the
// user's body applies to a parallelizable call's result.
type PlaceholderFactory[A, R any] func(arg A) R

// BatchKeyFunc maps a call's argument to a grouping token. The returned
// value is used as a map key internally, so it must be comparable; a
// dynamic value that turns out not to be (e.g. a slice smuggled through an
// any-typed A) is reported as a ContractError at the point of use rather
// than rejected at compile time, matching the source's runtime-checked
// "hashable" requirement.
type BatchKeyFunc[A any] func(arg A) any

// Batcher executes every call sharing one batch key. It receives the
// argument list in arrival order and must return results in the same
// order, or an error that aborts the whole batch. The default batcher
// (DefaultBatcher) simply loops over Compute.
type Batcher[A, R any] func(ctx context.Context, args []A) ([]R, error)

// Compute is the underlying, persistently-memoized computation a
// ParallelizableFunction wraps. Its correctness under replay depends on an
// external cache oracle memoizing it by (identity, arg); the core does not
// enforce this. An error aborts the call in whatever mode it was invoked
// from (passthrough or REPLAYING); it never reaches the cache.
type Compute[A, R any] func(ctx context.Context, arg A) (R, error)

// CallRecord captures one CAPTURING-phase call before it is folded into a
// Batch: the owning function's identity, the call argument, and the batch
// key computed for it. A Batch only ever aggregates calls sharing one
// (Identity, BatchKey) pair, so a CallRecord's fields are redundant with
// its destination Batch once appended; it exists as the named unit a call
// is captured as, separate from the aggregate it is folded into.
type CallRecord[A any] struct {
	Identity string
	Arg      A
	BatchKey any
}

// ParallelizableFunction is the decoration contract, adapted to Go: a
// single generic argument type stands in for separate positional/keyword
// argument lists, since a hashable batch key and a type-erased registry
// both need one concrete comparable surface per function rather than an
// open args/kwargs tuple.
type ParallelizableFunction[A, R any] struct {
	// Identity is the stable, process- and worker-resolvable name used to
	// look this function back up from a Job.
	Identity string

	Placeholder PlaceholderFactory[A, R]
	BatchKey    BatchKeyFunc[A]
	Batcher     Batcher[A, R]
	Compute     Compute[A, R]
}

// DefaultBatcher adapts a plain Compute into a Batcher by invoking it once
// per argument, in order, aborting the batch on the first error. It is the
// batcher used when Parallelized is not given one explicitly.
func DefaultBatcher[A, R any](compute Compute[A, R]) Batcher[A, R] {
	return func(ctx context.Context, args []A) ([]R, error) {
		results := make([]R, len(args))
		for i, a := range args {
			r, err := compute(ctx, a)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}
}

// ParallelizedOption configures a ParallelizableFunction at construction.
type ParallelizedOption[A, R any] func(*ParallelizableFunction[A, R])

// WithBatcher overrides the default per-call batcher, typically to
// amortize shared setup across a batch.
func WithBatcher[A, R any](b Batcher[A, R]) ParallelizedOption[A, R] {
	return func(pf *ParallelizableFunction[A, R]) {
		pf.Batcher = b
	}
}

// Parallelized builds a ParallelizableFunction and registers it under
// identity so that a Job carrying only that identity can resolve it later.
// identity must be unique within the process; registering a second
// function under the same identity replaces the first, which is almost
// certainly a caller bug.
func Parallelized[A, R any](
	identity string,
	compute Compute[A, R],
	placeholder PlaceholderFactory[A, R],
	batchKey BatchKeyFunc[A],
	opts ...ParallelizedOption[A, R],
) *ParallelizableFunction[A, R] {
	if identity == "" {
		panic("parallel: Parallelized requires a non-empty identity")
	}
	pf := &ParallelizableFunction[A, R]{
		Identity:    identity,
		Placeholder: placeholder,
		BatchKey:    batchKey,
		Compute:     compute,
		Batcher:     DefaultBatcher(compute),
	}
	for _, opt := range opts {
		opt(pf)
	}
	if pf.Batcher == nil {
		panic(fmt.Sprintf("parallel: %s: batcher must not be nil", identity))
	}
	registerFunction(pf)
	return pf
}
