package parallel

import "context"

// JobHandle is the opaque handle a Backend returns from Submit. Drivers
// compare handles only by identity (map membership); backends are free to
// make the concrete type whatever fits their transport.
type JobHandle any

// Backend is the abstract dispatch contract a parallelization backend must
// satisfy: accept batches, report when they complete. A reference,
// in-process fixed-size worker pool implementation lives in
// backend/workerpool.
type Backend interface {
	// Submit accepts one Batch for asynchronous execution against cache
	// and returns an opaque job handle. ctx accompanies the submission;
	// how it is applied is up to the backend (backend/workerpool checks it
	// before running the job and passes it on to the batcher). The backend is responsible for resolving the batch's function by
	// identity, invoking its batcher, and persisting results to cache
	// before reporting the job complete through Prune.
	Submit(ctx context.Context, cache Cache, batch *Batch) (JobHandle, error)

	// Prune is given the current set of outstanding handles and returns
	// the subset still incomplete. It may raise to abort the run; a
	// raised error becomes a BackendError.
	Prune(handles []JobHandle) ([]JobHandle, error)
}

// Batch is the unit of dispatch: every call recorded during CAPTURING for
// one (function identity, batch key) pair.
type Batch struct {
	Key      any
	Function ErasedFunction
	Identity string

	// args holds the boxed call arguments in arrival order. Boxed as any
	// because a Batch, once frozen, is handed across the Backend boundary
	// where the concrete argument type is no longer visible.
	args []any
}

// NewBatch constructs an empty Batch for key under identity. fn may be
// nil, in which case a Backend can find the function only through
// Resolve(identity).
func NewBatch(key any, identity string, fn ErasedFunction) *Batch {
	return &Batch{Key: key, Identity: identity, Function: fn}
}

// Append adds arg to the batch's ordered argument list. Exposed so a
// Backend's tests, or a caller assembling batches outside the capture
// wrapper, can populate one without reaching into an unexported field.
func (b *Batch) Append(arg any) {
	b.args = append(b.args, arg)
}

// Args returns the batch's call arguments in arrival order, preserved
// exactly as they were recorded during capture.
func (b *Batch) Args() []any {
	return b.args
}

// Len reports the number of calls aggregated into this batch.
func (b *Batch) Len() int {
	return len(b.args)
}
