package parallel_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenoscopic/owls-parallel/backend/workerpool"
	"github.com/xenoscopic/owls-parallel/cache/memo"
	"github.com/xenoscopic/owls-parallel/parallel"
)

// addFn builds a fresh parallelized "add" function per test so that
// concurrent tests don't collide in the process-wide registry.
func addFn(identity string) *parallel.ParallelizableFunction[[2]int, int] {
	return parallel.Parallelized(
		identity,
		func(ctx context.Context, arg [2]int) (int, error) { return arg[0] + arg[1], nil },
		func(arg [2]int) int { return 0 },
		func(arg [2]int) any { return arg[0] },
	)
}

func newBackend(t *testing.T) *workerpool.Backend {
	t.Helper()
	b := workerpool.New(context.Background(), workerpool.NewConfig(2, 4))
	t.Cleanup(b.Close)
	return b
}

// Two calls sharing a batch key dispatch together.
func TestDriver_TwoCallsOneBatch(t *testing.T) {
	ctx := context.Background()
	fn := addFn("add.two-calls")
	backend := newBackend(t)
	cache := memo.NewCache(64)

	var x, y int
	var passes int
	err := parallel.Drive(ctx, backend, cache, func() error {
		passes++
		var err error
		x, err = parallel.Call(ctx, fn, [2]int{1, 2})
		if err != nil {
			return err
		}
		y, err = parallel.Call(ctx, fn, [2]int{1, 4})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, passes)
	assert.Equal(t, 3, x)
	assert.Equal(t, 5, y)
}

// Distinct batch keys dispatch as separate batches.
func TestDriver_TwoBatches(t *testing.T) {
	ctx := context.Background()
	fn := addFn("add.two-batches")
	backend := newBackend(t)
	cache := memo.NewCache(64)

	var x, y, z int
	err := parallel.Drive(ctx, backend, cache, func() error {
		var err error
		if x, err = parallel.Call(ctx, fn, [2]int{1, 2}); err != nil {
			return err
		}
		if y, err = parallel.Call(ctx, fn, [2]int{1, 4}); err != nil {
			return err
		}
		z, err = parallel.Call(ctx, fn, [2]int{2, 6})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, x)
	assert.Equal(t, 5, y)
	assert.Equal(t, 8, z)
}

// A scope over an already-fully-cached set of calls skips replay entirely.
func TestDriver_FullyCached(t *testing.T) {
	ctx := context.Background()
	fn := addFn("add.fully-cached")
	cache := memo.NewCache(64)

	{
		backend := newBackend(t)
		var x, y int
		err := parallel.Drive(ctx, backend, cache, func() error {
			var err error
			if x, err = parallel.Call(ctx, fn, [2]int{1, 2}); err != nil {
				return err
			}
			y, err = parallel.Call(ctx, fn, [2]int{1, 4})
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 3, x)
		assert.Equal(t, 5, y)
	}

	backend := newBackend(t)
	var passes int
	var x, y int
	err := parallel.Drive(ctx, backend, cache, func() error {
		passes++
		var err error
		if x, err = parallel.Call(ctx, fn, [2]int{1, 2}); err != nil {
			return err
		}
		y, err = parallel.Call(ctx, fn, [2]int{1, 4})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, passes, "fully cached run should execute the body exactly once")
	assert.Equal(t, 3, x)
	assert.Equal(t, 5, y)
}

// Outside any driver scope, Call runs Compute directly.
func TestDriver_Passthrough(t *testing.T) {
	fn := addFn("add.passthrough")
	result, err := parallel.Call(context.Background(), fn, [2]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, result)
}

// Compute's error return propagates through passthrough rather than being
// silently dropped.
func TestDriver_PassthroughComputeError(t *testing.T) {
	boom := errors.New("boom")
	fn := parallel.Parallelized(
		"add.passthrough-error",
		func(ctx context.Context, arg [2]int) (int, error) { return 0, boom },
		func(arg [2]int) int { return 0 },
		func(arg [2]int) any { return arg[0] },
	)
	_, err := parallel.Call(context.Background(), fn, [2]int{1, 2})
	require.ErrorIs(t, err, boom)
}

// A backend failure during the wait surfaces a BackendError and exits
// the scope cleanly, freeing the active-driver slot.
type flakyBackend struct{ submitted int }

func (b *flakyBackend) Submit(ctx context.Context, cache parallel.Cache, batch *parallel.Batch) (parallel.JobHandle, error) {
	b.submitted++
	return "handle", nil
}

func (b *flakyBackend) Prune(handles []parallel.JobHandle) ([]parallel.JobHandle, error) {
	return nil, errors.New("prune exploded")
}

func TestDriver_BackendFailure(t *testing.T) {
	ctx := context.Background()
	fn := addFn("add.backend-failure")
	backend := &flakyBackend{}
	cache := memo.NewCache(64)

	err := parallel.Drive(ctx, backend, cache, func() error {
		_, err := parallel.Call(ctx, fn, [2]int{1, 2})
		return err
	})
	require.Error(t, err)
	var backendErr *parallel.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.ErrorIs(t, err, parallel.ErrBackend, "BackendError must stay reachable via errors.Is even after wrapping")

	// The scope must have been released despite the failure.
	backend2 := newBackend(t)
	cache2 := memo.NewCache(64)
	err = parallel.Drive(ctx, backend2, cache2, func() error { return nil })
	require.NoError(t, err)
}

// The default batcher invokes Compute once per call.
func TestDriver_DefaultBatcher(t *testing.T) {
	ctx := context.Background()
	var computeCalls int
	fn := parallel.Parallelized(
		"add.default-batcher",
		func(ctx context.Context, arg [2]int) (int, error) {
			computeCalls++
			return arg[0] + arg[1], nil
		},
		func(arg [2]int) int { return 0 },
		func(arg [2]int) any { return arg[0] },
	)
	backend := newBackend(t)
	cache := memo.NewCache(64)

	var x, y int
	err := parallel.Drive(ctx, backend, cache, func() error {
		var err error
		if x, err = parallel.Call(ctx, fn, [2]int{1, 2}); err != nil {
			return err
		}
		y, err = parallel.Call(ctx, fn, [2]int{1, 3})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, x)
	assert.Equal(t, 4, y)
	assert.Equal(t, 2, computeCalls)
}

// Batch grouping: same batch key co-locates calls into one batcher
// invocation; distinct keys land in distinct invocations.
func TestDriver_BatchGrouping(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var invocations [][][2]int
	fn := parallel.Parallelized(
		"add.grouping",
		func(ctx context.Context, arg [2]int) (int, error) { return arg[0] + arg[1], nil },
		func(arg [2]int) int { return 0 },
		func(arg [2]int) any { return arg[0] },
		parallel.WithBatcher(func(ctx context.Context, args [][2]int) ([]int, error) {
			mu.Lock()
			invocations = append(invocations, append([][2]int{}, args...))
			mu.Unlock()
			results := make([]int, len(args))
			for i, a := range args {
				results[i] = a[0] + a[1]
			}
			return results, nil
		}),
	)
	backend := newBackend(t)
	cache := memo.NewCache(64)

	err := parallel.Drive(ctx, backend, cache, func() error {
		var err error
		if _, err = parallel.Call(ctx, fn, [2]int{1, 2}); err != nil {
			return err
		}
		if _, err = parallel.Call(ctx, fn, [2]int{1, 4}); err != nil {
			return err
		}
		_, err = parallel.Call(ctx, fn, [2]int{2, 9})
		return err
	})
	require.NoError(t, err)
	require.Len(t, invocations, 2)

	var keyOneBatch [][2]int
	for _, batch := range invocations {
		if len(batch) == 2 {
			keyOneBatch = batch
		}
	}
	require.Len(t, keyOneBatch, 2)
	assert.Equal(t, [2]int{1, 2}, keyOneBatch[0])
	assert.Equal(t, [2]int{1, 4}, keyOneBatch[1])
}

// Nested scopes are rejected to avoid ambiguous batch attribution.
func TestDriver_NestedScopeRejected(t *testing.T) {
	backend := newBackend(t)
	cache := memo.NewCache(64)
	outer := parallel.NewDriver(backend, cache)
	closeOuter, err := parallel.Open(outer)
	require.NoError(t, err)
	defer closeOuter()

	inner := parallel.NewDriver(backend, cache)
	_, err = parallel.Open(inner)
	require.Error(t, err)
	var cfgErr *parallel.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestDriver_ContractErrorOnUnhashableBatchKey(t *testing.T) {
	ctx := context.Background()
	fn := parallel.Parallelized(
		"add.unhashable",
		func(ctx context.Context, arg [2]int) (int, error) { return arg[0] + arg[1], nil },
		func(arg [2]int) int { return 0 },
		func(arg [2]int) any { return []int{arg[0]} }, // slices are not comparable
	)
	backend := newBackend(t)
	cache := memo.NewCache(64)

	err := parallel.Drive(ctx, backend, cache, func() error {
		_, err := parallel.Call(ctx, fn, [2]int{1, 2})
		return err
	})
	require.Error(t, err)
	var contractErr *parallel.ContractError
	require.ErrorAs(t, err, &contractErr)
}

// A replay-phase call whose fingerprint is absent from both the
// capture-phase record and the cache means the body issued a different
// call sequence on its second pass; it must surface as a
// CaptureDeterminismError rather than silently recomputing or panicking.
func TestDriver_CaptureDeterminismErrorOnDivergentReplay(t *testing.T) {
	ctx := context.Background()
	fn := addFn("add.nondeterministic")
	backend := newBackend(t)
	cache := memo.NewCache(64)

	pass := 0
	err := parallel.Drive(ctx, backend, cache, func() error {
		pass++
		var err error
		if _, err = parallel.Call(ctx, fn, [2]int{1, 2}); err != nil {
			return err
		}
		// On the second pass (REPLAYING) issue an extra call that was
		// never recorded during CAPTURING.
		if pass == 2 {
			_, err = parallel.Call(ctx, fn, [2]int{9, 9})
		}
		return err
	})
	require.Error(t, err)
	var detErr *parallel.CaptureDeterminismError
	require.ErrorAs(t, err, &detErr)
	assert.Equal(t, fn.Identity, detErr.Identity)
	assert.Equal(t, [2]int{9, 9}, detErr.Arg)
	assert.ErrorIs(t, err, parallel.ErrCaptureDeterminism)
}

func TestMain_ExampleErrorFormatting(t *testing.T) {
	// Sanity check that the taxonomy errors format with fmt.Errorf %w
	// chains intact, since callers are expected to errors.Is/As against
	// the sentinels.
	err := fmt.Errorf("wrapped: %w", &parallel.ConfigurationError{Detail: "no backend"})
	assert.True(t, errors.Is(err, parallel.ErrConfiguration))
}
