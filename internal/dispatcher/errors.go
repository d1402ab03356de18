package dispatcher

import "errors"

var (
	// ErrNotInitialized is returned by RunInference when no channel exists.
	ErrNotInitialized = errors.New("dispatcher not initialized")
	// ErrModelLoadTimeout is returned when no load acknowledgment arrives in time.
	ErrModelLoadTimeout = errors.New("model loading timed out")
	// ErrChannelClosed fails pending work when the worker channel goes away.
	ErrChannelClosed = errors.New("worker channel closed")
	// ErrTerminated fails pending work on explicit teardown.
	ErrTerminated = errors.New("dispatcher terminated")
	// ErrRunTimeout fails an in-flight call that exceeded the run timeout.
	ErrRunTimeout = errors.New("inference timed out")
	// ErrPending is returned by Call.Result before the call completes.
	ErrPending = errors.New("call still pending")
)

// ModelLoadError carries the worker's message for a failed loadModel.
type ModelLoadError struct{ Message string }

func (e *ModelLoadError) Error() string { return "model load failed: " + e.Message }

// IsModelLoadError reports whether err is a worker-reported load failure.
func IsModelLoadError(err error) bool {
	var e *ModelLoadError
	return errors.As(err, &e)
}

// BackendError carries the worker's message for a failed run.
type BackendError struct{ Message string }

func (e *BackendError) Error() string { return e.Message }

// IsBackendError reports whether err is a worker-reported run failure.
func IsBackendError(err error) bool {
	var e *BackendError
	return errors.As(err, &e)
}
