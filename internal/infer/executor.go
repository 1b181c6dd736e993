package infer

import (
	"context"
	"fmt"
)

// DedicatedExecutor pairs one handler with one worker thread for the lifetime
// of a loaded model. It is the unit of isolation between models.
type DedicatedExecutor[Req TaskRequest, Resp TaskResponse] struct {
	queue *Queue[Req, Resp]
}

// NewDedicatedExecutor starts a worker for the handler built by factory. It
// fails if the handler cannot be constructed.
func NewDedicatedExecutor[Req TaskRequest, Resp TaskResponse](ctx context.Context, name string, factory HandlerFactory[Req, Resp], opts ...Option) (*DedicatedExecutor[Req, Resp], error) {
	q, err := NewQueue(ctx, name, factory, opts...)
	if err != nil {
		return nil, fmt.Errorf("start executor %q: %w", name, err)
	}
	return &DedicatedExecutor[Req, Resp]{queue: q}, nil
}

// Name returns the executor (queue) name.
func (e *DedicatedExecutor[Req, Resp]) Name() string { return e.queue.Name() }

// Stats reports the worker's counters and state.
func (e *DedicatedExecutor[Req, Resp]) Stats() Stats { return e.queue.Stats() }

// Done is closed once the worker thread has exited, for whatever reason.
func (e *DedicatedExecutor[Req, Resp]) Done() <-chan struct{} { return e.queue.Done() }

// Shutdown sends Stop and joins the worker thread.
func (e *DedicatedExecutor[Req, Resp]) Shutdown(ctx context.Context) error {
	return e.queue.Stop(ctx)
}

func (e *DedicatedExecutor[Req, Resp]) sender() Sender[Req, Resp] { return e.queue.Sender() }
