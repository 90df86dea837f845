package parallel

import (
	"context"
	"sync"
)

// ErasedFunction is the type-erased surface a Backend needs to resolve a
// ParallelizableFunction by its stable identity and run its batcher over a
// list of boxed arguments. Resolution happens by name rather than by
// shipping executable bytes, so that an out-of-process backend can resolve
// the same name on a remote worker that imported the same function
// registrations; the in-process workerpool backend uses the exact same
// path so that swapping it for a remote backend later requires no change
// to how a batch is run.
type ErasedFunction interface {
	RunBatch(ctx context.Context, args []any, cache Cache) error
}

type typedFunction[A, R any] struct {
	fn *ParallelizableFunction[A, R]
}

func (tf typedFunction[A, R]) RunBatch(ctx context.Context, boxed []any, cache Cache) error {
	args := make([]A, len(boxed))
	for i, a := range boxed {
		args[i] = a.(A)
	}
	results, err := tf.fn.Batcher(ctx, args)
	if err != nil {
		return err
	}
	for i, r := range results {
		cache.Set(tf.fn.Identity, args[i], r)
	}
	return nil
}

var (
	registryMu sync.RWMutex
	registry   = map[string]ErasedFunction{}
)

func registerFunction[A, R any](fn *ParallelizableFunction[A, R]) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[fn.Identity] = typedFunction[A, R]{fn: fn}
}

// Resolve looks up a registered ParallelizableFunction by its stable
// identity. Backends use this to run a Batch's calls without needing the
// concrete generic type.
func Resolve(identity string) (ErasedFunction, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[identity]
	return fn, ok
}
