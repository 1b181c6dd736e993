package infer

import (
	"errors"
	"fmt"
)

var (
	// ErrDispatch reports that a command could not be handed to the worker
	// because it has stopped. The request never ran.
	ErrDispatch = errors.New("worker unavailable")
	// ErrLostResponse reports that the worker dropped the reply channel
	// without answering.
	ErrLostResponse = errors.New("response lost")
)

// dispatchError signals that the queue no longer accepts work.
type dispatchError struct {
	queue string
	task  TaskID
}

func (e dispatchError) Error() string {
	return fmt.Sprintf("queue %s: task %s: %v", e.queue, e.task, ErrDispatch)
}

func (e dispatchError) Is(target error) bool { return target == ErrDispatch }

// IsDispatch reports whether err indicates a dead or stopped worker (return 503).
func IsDispatch(err error) bool { return errors.Is(err, ErrDispatch) }

// lostResponseError signals a reply channel closed without a value.
type lostResponseError struct {
	queue string
	task  TaskID
}

func (e lostResponseError) Error() string {
	return fmt.Sprintf("queue %s: task %s: %v", e.queue, e.task, ErrLostResponse)
}

func (e lostResponseError) Is(target error) bool { return target == ErrLostResponse }

// IsLostResponse reports whether err indicates the worker died mid-request.
func IsLostResponse(err error) bool { return errors.Is(err, ErrLostResponse) }

// ProcessingError wraps a failure returned (or panicked) by the handler for a
// single request. The worker keeps serving other requests.
type ProcessingError struct {
	Queue string
	Task  TaskID
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("queue %s: task %s: %v", e.Queue, e.Task, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IsProcessing reports whether err came from the handler itself.
func IsProcessing(err error) bool {
	var pe *ProcessingError
	return errors.As(err, &pe)
}

// panicError carries a recovered handler panic.
type panicError struct{ value any }

func (e panicError) Error() string { return fmt.Sprintf("handler panic: %v", e.value) }
