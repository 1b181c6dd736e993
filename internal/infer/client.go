package infer

import "context"

// Client submits requests to a DedicatedExecutor and waits for the correlated
// response. It is a small value: copy it freely and share it across
// goroutines without locking.
type Client[Req TaskRequest, Resp TaskResponse] struct {
	name string
	tx   Sender[Req, Resp]
}

// NewClient returns a client bound to e's submission channel.
func NewClient[Req TaskRequest, Resp TaskResponse](e *DedicatedExecutor[Req, Resp]) Client[Req, Resp] {
	return Client[Req, Resp]{name: e.Name(), tx: e.sender()}
}

// Name returns the name of the executor behind the client.
func (c Client[Req, Resp]) Name() string { return c.name }

// Submit enqueues req and waits for its response.
func (c Client[Req, Resp]) Submit(ctx context.Context, req Req) (Resp, error) {
	resp, _, err := c.SubmitWithInfo(ctx, req)
	return resp, err
}

// SubmitWithInfo is Submit plus queue and processing timings.
//
// Errors: ErrDispatch if the worker is gone (the request never ran),
// ErrLostResponse if the worker died without answering, *ProcessingError if
// the handler failed, or ctx.Err(). A canceled caller does not interrupt a
// handler call that is already running.
func (c Client[Req, Resp]) SubmitWithInfo(ctx context.Context, req Req) (Resp, TaskInfo, error) {
	var zero Resp
	if err := ctx.Err(); err != nil {
		return zero, TaskInfo{}, err
	}
	entry := newQueueEntry[Req, Resp](ctx, req)
	if err := c.tx.Send(QueueCommand[Req, Resp]{Kind: CmdAppend, Entry: entry}); err != nil {
		return zero, TaskInfo{ID: entry.ID}, err
	}
	select {
	case r, ok := <-entry.reply:
		if !ok {
			return zero, TaskInfo{ID: entry.ID}, lostResponseError{queue: c.name, task: entry.ID}
		}
		return r.resp, r.info, r.err
	case <-ctx.Done():
		return zero, TaskInfo{ID: entry.ID}, ctx.Err()
	}
}
