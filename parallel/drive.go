package parallel

import "context"

// Drive opens a driver scope over backend and cache and runs body once per
// capture/replay pass, guaranteeing the process-wide active-driver slot is
// released on every exit path including a panic in body. ctx is passed to
// the backend on every batch submission.
//
// Drive is the Run loop shown on Driver.Run, returning the first error
// from Run or from body.
//
// body must be deterministic with respect to the Parallelized calls it
// issues: both passes must issue the same sequence of calls with the same
// arguments.
func Drive(ctx context.Context, backend Backend, cache Cache, body func() error, opts ...DriverOption) error {
	d := NewDriver(backend, cache, opts...)
	closeScope, err := Open(d)
	if err != nil {
		return err
	}
	defer closeScope()

	for {
		more, err := d.Run(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		if err := body(); err != nil {
			return err
		}
	}
}
