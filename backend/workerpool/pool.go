// Package workerpool is a reference, in-process Backend: a fixed-size
// pool of goroutines draining a partitioned job queue, where each job's
// completion is signaled over a channel tracked in a sync.Map keyed by
// job handle.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenoscopic/owls-parallel/parallel"
)

// job is one submitted Batch threaded through the pool's channels.
type job struct {
	ctx         context.Context
	handle      string
	batch       *parallel.Batch
	cache       parallel.Cache
	submittedAt time.Time
}

// Backend is the reference fixed-size worker pool. It satisfies
// parallel.Backend.
type Backend struct {
	cfg    Config
	logger *zap.Logger

	chans []chan job
	done  sync.Map // handle string -> chan error, buffered 1

	cancel context.CancelFunc
}

// Option configures a Backend at construction.
type Option func(*Backend)

// WithLogger attaches a *zap.Logger for batch dispatch/completion
// messages. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New starts cfg.PoolSize worker goroutines and returns a ready Backend.
// The returned Backend must be stopped with Close once the driver scope
// using it has exited.
func New(ctx context.Context, cfg Config, opts ...Option) *Backend {
	ctx, cancel := context.WithCancel(ctx)
	b := &Backend{
		cfg:    cfg,
		logger: zap.NewNop(),
		chans:  make([]chan job, cfg.PoolSize),
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(b)
	}

	ready := sync.WaitGroup{}
	for i := 0; i < cfg.PoolSize; i++ {
		ready.Add(1)
		ch := make(chan job, cfg.QueueSize)
		b.chans[i] = ch
		go b.runWorker(ctx, ch, &ready)
	}
	ready.Wait()
	return b
}

func (b *Backend) runWorker(ctx context.Context, ch chan job, ready *sync.WaitGroup) {
	ready.Done()
	for {
		select {
		case j := <-ch:
			b.run(j)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Backend) run(j job) {
	var err error
	if err = j.ctx.Err(); err != nil {
		// The submitting ctx was already canceled by the time this
		// worker picked the job up; don't run it.
	} else if fn, ok := resolve(j.batch); ok {
		err = fn.RunBatch(j.ctx, j.batch.Args(), j.cache)
	} else {
		err = fmt.Errorf("%w: %s", parallel.ErrUnknownFunction, j.batch.Identity)
	}

	span := newTimeSpan(j.submittedAt, time.Now())
	if err != nil {
		b.logger.Error("workerpool: batch failed",
			zap.String("identity", j.batch.Identity),
			zap.Any("batchKey", j.batch.Key),
			zap.Error(err),
			zap.Duration("duration", span.Duration()),
		)
	} else {
		b.logger.Info("workerpool: batch complete",
			zap.String("identity", j.batch.Identity),
			zap.Any("batchKey", j.batch.Key),
			zap.Int("batchSize", j.batch.Len()),
			zap.Duration("duration", span.Duration()),
		)
	}

	if ch, ok := b.done.Load(j.handle); ok {
		ch.(chan error) <- err
	}
}

// resolve looks up batch's function by identity, falling back to the
// batch's own in-process reference, which a purely local caller may rely
// on instead of registering globally; a remote backend has no such
// option and must resolve by name.
func resolve(batch *parallel.Batch) (parallel.ErasedFunction, bool) {
	if fn, ok := parallel.Resolve(batch.Identity); ok {
		return fn, true
	}
	if batch.Function != nil {
		return batch.Function, true
	}
	return nil, false
}

// partitionIndex hashes a batch key with xxhash to pick a worker channel,
// giving same-keyed batches affinity for the same worker when PoolSize >
// 1.
func partitionIndex(key any, numChans int) int {
	switch numChans {
	case 0:
		panic("workerpool: pool has zero workers")
	case 1:
		return 0
	default:
		h := xxhash.Sum64String(fmt.Sprintf("%v", key))
		return int(h % uint64(numChans))
	}
}

// Submit implements parallel.Backend. It enqueues batch onto the worker
// selected by hashing its batch key and returns an opaque job handle. ctx
// is carried onto the job and checked before the job runs, but Submit
// itself never blocks on it.
func (b *Backend) Submit(ctx context.Context, cache parallel.Cache, batch *parallel.Batch) (parallel.JobHandle, error) {
	handle := uuid.New().String()
	doneCh := make(chan error, 1)
	b.done.Store(handle, doneCh)

	idx := partitionIndex(batch.Key, len(b.chans))
	b.chans[idx] <- job{
		ctx:         ctx,
		handle:      handle,
		batch:       batch,
		cache:       cache,
		submittedAt: time.Now(),
	}
	return handle, nil
}

// Prune implements parallel.Backend. It reports the subset of handles
// whose jobs have not yet signaled completion, combining any errors
// observed among the jobs that did complete in this poll with
// go.uber.org/multierr so a caller sees every failure, not just the
// first.
func (b *Backend) Prune(handles []parallel.JobHandle) ([]parallel.JobHandle, error) {
	remaining := make([]parallel.JobHandle, 0, len(handles))
	var errs []error

	for _, h := range handles {
		handle, _ := h.(string)
		v, ok := b.done.Load(handle)
		if !ok {
			continue
		}
		ch := v.(chan error)
		select {
		case err := <-ch:
			b.done.Delete(handle)
			if err != nil {
				errs = append(errs, err)
			}
		default:
			remaining = append(remaining, h)
		}
	}

	if len(errs) > 0 {
		return nil, multierr.Combine(errs...)
	}
	return remaining, nil
}

// Close stops all worker goroutines. It does not wait for in-flight jobs
// to finish; callers should exhaust Prune to completion first.
func (b *Backend) Close() {
	b.cancel()
}
