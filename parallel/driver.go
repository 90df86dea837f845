package parallel

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Driver is the capture/replay orchestrator. A Driver is constructed once
// per scope and driven through Run until it returns false; it is not
// reusable across scopes.
type Driver struct {
	backend Backend
	cache   Cache
	logger  *zap.Logger

	mode    Mode
	pending map[registryKey]*Batch

	// invocation counts the number of Run calls, used only for logging;
	// the real state lives in mode.
	invocation int
}

// registryKey identifies one Batch within the pending registry: the
// owning function's identity plus its batch key.
type registryKey struct {
	identity string
	key      any
}

// DriverOption configures a Driver at construction.
type DriverOption func(*Driver)

// WithLogger attaches a *zap.Logger the Driver uses to report mode
// transitions, batch dispatch, and errors. Defaults to zap.NewNop(), so a
// Driver built without one stays silent.
func WithLogger(logger *zap.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDriver constructs a Driver over the given backend and cache oracle.
// No I/O occurs at construction; cache is held current for the lifetime of
// the Driver's scope.
func NewDriver(backend Backend, cache Cache, opts ...DriverOption) *Driver {
	d := &Driver{
		backend: backend,
		cache:   cache,
		logger:  zap.NewNop(),
		mode:    ModeIdle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode reports the driver's current position in the state machine.
func (d *Driver) Mode() Mode {
	return d.mode
}

// Run drives one step of the capture/compute/replay protocol. It returns
// true while the caller's body should execute again, and false once the
// driver has reached ModeDone.
//
//	for {
//	    more, err := d.Run(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    if !more {
//	        break
//	    }
//	    body()
//	}
func (d *Driver) Run(ctx context.Context) (bool, error) {
	d.invocation++
	switch d.mode {
	case ModeIdle:
		return d.enterCapturing()
	case ModeCapturing:
		return d.enterComputing(ctx)
	case ModeReplaying:
		d.logger.Info("parallel: replay complete, driver done", zap.Int("invocation", d.invocation))
		d.mode = ModeDone
		return false, nil
	case ModeDone:
		return false, nil
	default:
		return false, fmt.Errorf("%w: unreachable mode %s", ErrConfiguration, d.mode)
	}
}

func (d *Driver) enterCapturing() (bool, error) {
	if d.cache == nil {
		d.mode = ModeDone
		d.logger.Error("parallel: no cache oracle attached to driver scope")
		return false, &ConfigurationError{Detail: "no cache oracle attached to driver scope"}
	}
	if d.backend == nil {
		d.mode = ModeDone
		d.logger.Error("parallel: no backend attached to driver scope")
		return false, &ConfigurationError{Detail: "no backend attached to driver scope"}
	}
	d.pending = make(map[registryKey]*Batch)
	d.mode = ModeCapturing
	d.logger.Info("parallel: entering capture pass")
	return true, nil
}

func (d *Driver) enterComputing(ctx context.Context) (bool, error) {
	batches := d.pending
	d.mode = ModeComputing
	d.logger.Info("parallel: capture complete", zap.Int("batchCount", len(batches)))

	if len(batches) == 0 {
		d.logger.Info("parallel: nothing to dispatch, skipping replay")
		d.pending = nil
		d.mode = ModeDone
		return false, nil
	}

	if err := d.dispatchAndWait(ctx, batches); err != nil {
		d.logger.Error("parallel: computing pass failed", zap.Error(err))
		d.mode = ModeDone
		return false, err
	}

	d.pending = nil
	d.mode = ModeReplaying
	d.logger.Info("parallel: entering replay pass")
	return true, nil
}

// dispatchAndWait submits every batch in the pending registry to the
// backend and blocks until all of their jobs report complete.
func (d *Driver) dispatchAndWait(ctx context.Context, batches map[registryKey]*Batch) error {
	handles := make([]JobHandle, 0, len(batches))
	var submitErrs []error
	for rk, batch := range batches {
		d.logger.Info("parallel: dispatching batch",
			zap.String("identity", rk.identity),
			zap.Any("batchKey", rk.key),
			zap.Int("batchSize", batch.Len()),
		)
		handle, err := d.backend.Submit(ctx, d.cache, batch)
		if err != nil {
			submitErrs = append(submitErrs, fmt.Errorf("submit %s/%v: %w", rk.identity, rk.key, err))
			continue
		}
		handles = append(handles, handle)
	}
	if len(submitErrs) > 0 {
		return &BackendError{Cause: combineErrors(submitErrs...)}
	}

	for len(handles) > 0 {
		remaining, err := d.backend.Prune(handles)
		if err != nil {
			return &BackendError{Cause: err}
		}
		handles = remaining
	}
	d.logger.Info("parallel: all batches complete")
	return nil
}

// combineErrors folds a slice of per-batch errors into one, using
// multierr so a caller inspecting the result with multierr.Errors sees
// every failed batch rather than only the first.
func combineErrors(errs ...error) error {
	return multierr.Combine(errs...)
}
