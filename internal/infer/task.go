package infer

import (
	"time"

	"github.com/google/uuid"
)

// TaskRequest is the constraint for request payloads. Any type qualifies; a
// request value is handed to the worker and not touched by the caller again.
type TaskRequest interface{}

// TaskResponse is the constraint for response payloads. Each request yields
// exactly one response.
type TaskResponse interface{}

// TaskID identifies a single enqueued task.
type TaskID = uuid.UUID

// RequestHandler is a stateful processor that turns one request into one
// response. Handle is never called concurrently with itself.
type RequestHandler[Req TaskRequest, Resp TaskResponse] interface {
	Handle(req Req) (Resp, error)
}

// HandlerFactory performs the expensive, thread-affine setup of a handler
// (e.g. loading a model onto a device). A Queue calls it exactly once, on the
// worker thread. If the returned handler implements io.Closer, Close is called
// on the same thread when the worker stops.
type HandlerFactory[Req TaskRequest, Resp TaskResponse] func() (RequestHandler[Req, Resp], error)

// HandlerFunc adapts a plain function to RequestHandler.
type HandlerFunc[Req TaskRequest, Resp TaskResponse] func(Req) (Resp, error)

// Handle calls f(req).
func (f HandlerFunc[Req, Resp]) Handle(req Req) (Resp, error) { return f(req) }

// TaskInfo reports how long a task waited in the queue and how long the
// handler took.
type TaskInfo struct {
	ID         TaskID
	QueuedFor  time.Duration
	Processing time.Duration
}
