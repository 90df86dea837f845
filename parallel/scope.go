package parallel

import "sync"

// activeMu guards the process-wide active-driver slot: at most one
// driver may be active per process, and release is guaranteed on every
// exit path including a panic.
var (
	activeMu sync.Mutex
	active   *Driver
)

// currentDriver returns the process's active driver, or nil if none is
// open. Consulted by the parallelized wrapper to discover the current
// Mode without a context parameter threaded through every call site.
func currentDriver() *Driver {
	activeMu.Lock()
	defer activeMu.Unlock()
	return active
}

// Open acquires the process-wide active-driver slot for d and returns a
// close function that releases it. Nested scopes are rejected outright
// rather than stacked, since a Batch attributed to the wrong driver would
// silently corrupt both drivers' pending registries.
//
// Callers must defer the returned close function immediately so the slot
// is freed on every exit path:
//
//	close, err := parallel.Open(d)
//	if err != nil {
//		return err
//	}
//	defer close()
func Open(d *Driver) (func(), error) {
	activeMu.Lock()
	defer activeMu.Unlock()
	if active != nil {
		return nil, &ConfigurationError{Detail: "a driver scope is already active in this process"}
	}
	if d != nil && d.mode != ModeIdle {
		return nil, &ConfigurationError{Detail: "driver has already run and cannot be reused in another scope"}
	}
	active = d
	return func() {
		activeMu.Lock()
		defer activeMu.Unlock()
		active = nil
	}, nil
}
