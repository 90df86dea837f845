package parallel

import (
	"context"

	"go.uber.org/zap"
)

// Call applies fn to arg under whatever driver mode is currently active
// in this process. Outside any driver scope it is exactly fn.Compute;
// inside a scope its behavior is selected by the active Driver's Mode.
func Call[A, R any](ctx context.Context, fn *ParallelizableFunction[A, R], arg A) (R, error) {
	d := currentDriver()
	if d == nil {
		return fn.Compute(ctx, arg)
	}
	switch d.mode {
	case ModeIdle, ModeDone:
		return fn.Compute(ctx, arg)
	case ModeCapturing:
		return captureCall(ctx, d, fn, arg)
	case ModeReplaying:
		return replayCall(ctx, d, fn, arg)
	default:
		// ModeComputing: the driver is not executing user code in this
		// mode. A call reaching here is a caller bug; it is answered
		// with the placeholder rather than corrupting the frozen
		// pending registry.
		d.logger.Warn("parallel: parallelized call observed during computing",
			zap.String("identity", fn.Identity))
		return fn.Placeholder(arg), nil
	}
}

func captureCall[A, R any](ctx context.Context, d *Driver, fn *ParallelizableFunction[A, R], arg A) (R, error) {
	if d.cache == nil {
		var zero R
		return zero, &ConfigurationError{Detail: "no cache oracle active during capture"}
	}
	if cached, ok := d.cache.Get(fn.Identity, arg); ok {
		return cached.(R), nil
	}

	key, err := safeBatchKey(fn, arg)
	if err != nil {
		var zero R
		return zero, err
	}
	record := CallRecord[A]{Identity: fn.Identity, Arg: arg, BatchKey: key}

	rk := registryKey{identity: record.Identity, key: record.BatchKey}
	batch, ok := d.pending[rk]
	if !ok {
		batch = NewBatch(record.BatchKey, record.Identity, typedFunction[A, R]{fn: fn})
		d.pending[rk] = batch
	}
	batch.Append(record.Arg)

	return fn.Placeholder(arg), nil
}

func replayCall[A, R any](ctx context.Context, d *Driver, fn *ParallelizableFunction[A, R], arg A) (R, error) {
	var zero R
	if d.cache == nil {
		return zero, &ConfigurationError{Detail: "no cache oracle active during replay"}
	}
	if !d.cache.Has(fn.Identity, arg) {
		return zero, &CaptureDeterminismError{Identity: fn.Identity, Arg: arg}
	}
	return fn.Compute(ctx, arg)
}

// safeBatchKey invokes fn.BatchKey and recovers a panic caused by using a
// non-comparable value as a Go map key, reporting it as a ContractError
// instead of letting the panic escape.
func safeBatchKey[A, R any](fn *ParallelizableFunction[A, R], arg A) (key any, err error) {
	defer func() {
		if r := recover(); r != nil {
			key = nil
			err = &ContractError{Detail: fn.Identity + ": batch key must be comparable", Cause: asError(r)}
		}
	}()
	k := fn.BatchKey(arg)
	// Probe comparability the same way the pending map eventually will,
	// so an unhashable key is reported here rather than surfacing later
	// as an opaque runtime panic deep inside map insertion.
	func() {
		m := map[any]struct{}{}
		m[k] = struct{}{}
	}()
	return k, nil
}

func asError(r any) error {
	if e, ok := r.(error); ok {
		return e
	}
	return &panicValue{v: r}
}

type panicValue struct{ v any }

func (p *panicValue) Error() string { return "panic: " + toString(p.v) }

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "non-string panic value"
}
