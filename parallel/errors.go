package parallel

import (
	"errors"
	"fmt"
)

// Sentinel errors covering the failure modes a driver scope can surface.
// Use errors.Is against these, or errors.As against the concrete *Error
// types below when the attached detail is needed.
var (
	// ErrConfiguration covers a missing cache oracle or backend at scope
	// entry, and reuse of a Driver across more than one scope.
	ErrConfiguration = errors.New("owls-parallel: configuration error")

	// ErrContract covers a user-supplied callback that violates its
	// contract, such as a batch key that is not hashable.
	ErrContract = errors.New("owls-parallel: contract error")

	// ErrBackend covers a failure raised by a Backend's Submit or Prune.
	ErrBackend = errors.New("owls-parallel: backend error")

	// ErrCaptureDeterminism is the optional diagnostic raised during
	// replay when a call was neither recorded during capture nor present
	// in the cache.
	ErrCaptureDeterminism = errors.New("owls-parallel: capture determinism error")

	// ErrUnknownFunction is raised by a Job when no ParallelizableFunction
	// with a matching identity has been registered in this process.
	ErrUnknownFunction = errors.New("owls-parallel: unknown parallelizable function")
)

// ConfigurationError reports a misconfigured driver scope.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, e.Detail)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ContractError reports a user-supplied callback that violated its
// contract.
type ContractError struct {
	Detail string
	Cause  error
}

func (e *ContractError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrContract, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrContract, e.Detail)
}

func (e *ContractError) Unwrap() error { return ErrContract }

// BackendError reports a failure surfaced by a Backend during Submit or
// Prune.
type BackendError struct {
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", ErrBackend, e.Cause)
}

// Unwrap exposes both ErrBackend and Cause so errors.Is(err, ErrBackend)
// and errors.Is(err, <specific cause>) both succeed through a wrapping
// fmt.Errorf("%w", ...) chain.
func (e *BackendError) Unwrap() []error { return []error{ErrBackend, e.Cause} }

// CaptureDeterminismError reports that a replay-phase call could not be
// resolved from either the capture-phase call record or the cache,
// meaning the user's body issued a different sequence of calls on its two
// executions.
type CaptureDeterminismError struct {
	Identity string
	Arg      any
}

func (e *CaptureDeterminismError) Error() string {
	return fmt.Sprintf("%s: %s: no cached entry for %v and no matching capture-phase record", ErrCaptureDeterminism, e.Identity, e.Arg)
}

func (e *CaptureDeterminismError) Unwrap() error { return ErrCaptureDeterminism }
