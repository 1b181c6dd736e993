package infer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a queue worker.
type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// QueueEntry is one in-flight unit of work. The worker consumes it exactly
// once and answers through its single-use reply channel.
type QueueEntry[Req TaskRequest, Resp TaskResponse] struct {
	ID       TaskID
	Request  Req
	QueuedAt time.Time

	ctx   context.Context
	reply chan reply[Resp] // size 1: one send or one close, never both
}

type reply[Resp TaskResponse] struct {
	resp Resp
	info TaskInfo
	err  error
}

func newQueueEntry[Req TaskRequest, Resp TaskResponse](ctx context.Context, req Req) *QueueEntry[Req, Resp] {
	return &QueueEntry[Req, Resp]{
		ID:       uuid.New(),
		Request:  req,
		QueuedAt: time.Now(),
		ctx:      ctx,
		reply:    make(chan reply[Resp], 1),
	}
}

// CommandKind tags a QueueCommand.
type CommandKind uint8

const (
	CmdAppend CommandKind = iota
	CmdStop
)

func (k CommandKind) String() string {
	if k == CmdStop {
		return "stop"
	}
	return "append"
}

// QueueCommand is the message alphabet accepted by a worker.
type QueueCommand[Req TaskRequest, Resp TaskResponse] struct {
	Kind  CommandKind
	Entry *QueueEntry[Req, Resp] // set for CmdAppend
}

// Sender is the submission side of a queue. It is safe to copy and to use
// from many goroutines.
type Sender[Req TaskRequest, Resp TaskResponse] struct {
	queue string
	mb    *mailbox[QueueCommand[Req, Resp]]
}

// Send hands cmd to the worker without blocking. It fails with ErrDispatch
// once the worker has stopped.
func (s Sender[Req, Resp]) Send(cmd QueueCommand[Req, Resp]) error {
	if s.mb == nil || !s.mb.push(cmd) {
		var id TaskID
		if cmd.Entry != nil {
			id = cmd.Entry.ID
		}
		queueTasksTotal.WithLabelValues(s.queue, "rejected").Inc()
		return dispatchError{queue: s.queue, task: id}
	}
	queueDepth.WithLabelValues(s.queue).Set(float64(s.mb.len()))
	return nil
}

// Stats is a point-in-time view of a queue.
type Stats struct {
	Name      string
	State     State
	QueueLen  int
	Processed uint64
	Failed    uint64
	Dropped   uint64
	LastError string
	StartedAt time.Time
}

// Queue serializes access to one handler instance living on a dedicated OS
// thread.
type Queue[Req TaskRequest, Resp TaskResponse] struct {
	name       string
	mb         *mailbox[QueueCommand[Req, Resp]]
	policy     FailurePolicy
	callerErrs func(error) bool
	log        zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once

	mu        sync.RWMutex
	state     State
	lastErr   string
	startedAt time.Time

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewQueue starts the worker thread, constructs the handler on it and waits
// until construction finishes. A construction failure is returned here. If
// ctx ends first, the worker is told to stop as soon as it is up.
func NewQueue[Req TaskRequest, Resp TaskResponse](ctx context.Context, name string, factory HandlerFactory[Req, Resp], opts ...Option) (*Queue[Req, Resp], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	q := &Queue[Req, Resp]{
		name:   name,
		mb:     newMailbox[QueueCommand[Req, Resp]](),
		policy:     o.policy,
		callerErrs: o.callerErrs,
		log:        o.logger,
		done:   make(chan struct{}),
		state:  StateStarting,
	}
	started := make(chan error, 1)
	go q.run(factory, started)

	select {
	case err := <-started:
		if err != nil {
			return nil, fmt.Errorf("construct handler for %s: %w", name, err)
		}
		return q, nil
	case <-ctx.Done():
		q.stopOnce.Do(func() { q.mb.push(QueueCommand[Req, Resp]{Kind: CmdStop}) })
		return nil, ctx.Err()
	}
}

// Name returns the queue name.
func (q *Queue[Req, Resp]) Name() string { return q.name }

// Sender returns a submission handle for this queue.
func (q *Queue[Req, Resp]) Sender() Sender[Req, Resp] {
	return Sender[Req, Resp]{queue: q.name, mb: q.mb}
}

// Done is closed when the worker thread has exited.
func (q *Queue[Req, Resp]) Done() <-chan struct{} { return q.done }

// Len returns the number of commands waiting.
func (q *Queue[Req, Resp]) Len() int { return q.mb.len() }

// Stop asks the worker to finish the commands queued so far, close the
// handler and exit, then waits for that or for ctx. Safe to call repeatedly.
func (q *Queue[Req, Resp]) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.mb.push(QueueCommand[Req, Resp]{Kind: CmdStop})
	})
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of counters and state.
func (q *Queue[Req, Resp]) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return Stats{
		Name:      q.name,
		State:     q.state,
		QueueLen:  q.mb.len(),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		LastError: q.lastErr,
		StartedAt: q.startedAt,
	}
}

func (q *Queue[Req, Resp]) setState(s State, err error) {
	q.mu.Lock()
	q.state = s
	if s == StateReady {
		q.startedAt = time.Now()
	}
	if err != nil {
		q.lastErr = err.Error()
	}
	q.mu.Unlock()
}

func (q *Queue[Req, Resp]) run(factory HandlerFactory[Req, Resp], started chan<- error) {
	// The thread is never unlocked: it exits together with this goroutine.
	runtime.LockOSThread()
	defer close(q.done)

	handler, err := construct(factory)
	if err != nil {
		q.mb.close()
		q.setState(StateFailed, err)
		q.log.Error().Str("queue", q.name).Err(err).Msg("handler construction failed")
		started <- err
		return
	}
	q.setState(StateReady, nil)
	q.log.Debug().Str("queue", q.name).Msg("queue ready")
	started <- nil
	q.loop(handler)
}

func construct[Req TaskRequest, Resp TaskResponse](factory HandlerFactory[Req, Resp]) (h RequestHandler[Req, Resp], err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, panicError{value: r}
		}
	}()
	if factory == nil {
		return nil, errors.New("nil handler factory")
	}
	h, err = factory()
	if err == nil && h == nil {
		err = errors.New("handler factory returned nil handler")
	}
	return h, err
}

func (q *Queue[Req, Resp]) loop(h RequestHandler[Req, Resp]) {
	defer q.teardown(h)
	for {
		cmd := q.mb.pop()
		queueDepth.WithLabelValues(q.name).Set(float64(q.mb.len()))
		switch cmd.Kind {
		case CmdStop:
			q.log.Info().Str("queue", q.name).Msg("stopping queue")
			q.setState(StateStopped, nil)
			return
		case CmdAppend:
			if cmd.Entry == nil {
				continue
			}
			if !q.process(h, cmd.Entry) {
				return
			}
		}
	}
}

// process runs one entry. It returns false when the worker must terminate.
func (q *Queue[Req, Resp]) process(h RequestHandler[Req, Resp], e *QueueEntry[Req, Resp]) bool {
	wait := time.Since(e.QueuedAt)
	queueWait.WithLabelValues(q.name).Observe(wait.Seconds())
	q.log.Trace().Str("queue", q.name).Stringer("task", e.ID).Dur("queued_for", wait).Msg("processing task")

	start := time.Now()
	resp, err := safeHandle(h, e.Request)
	elapsed := time.Since(start)
	queueProcess.WithLabelValues(q.name).Observe(elapsed.Seconds())
	info := TaskInfo{ID: e.ID, QueuedFor: wait, Processing: elapsed}

	if err != nil {
		q.failed.Add(1)
		queueTasksTotal.WithLabelValues(q.name, "error").Inc()
		if q.policy == StopOnError && !q.isCallerErr(err) {
			q.setState(StateFailed, err)
			q.log.Error().Str("queue", q.name).Stringer("task", e.ID).Err(err).Msg("task failed, stopping queue")
			close(e.reply)
			return false
		}
		q.mu.Lock()
		q.lastErr = err.Error()
		q.mu.Unlock()
		q.log.Warn().Str("queue", q.name).Stringer("task", e.ID).Err(err).Msg("task failed")
		q.deliver(e, reply[Resp]{info: info, err: &ProcessingError{Queue: q.name, Task: e.ID, Err: err}})
		return true
	}
	q.processed.Add(1)
	queueTasksTotal.WithLabelValues(q.name, "ok").Inc()
	q.deliver(e, reply[Resp]{resp: resp, info: info})
	return true
}

func (q *Queue[Req, Resp]) isCallerErr(err error) bool {
	return q.callerErrs != nil && q.callerErrs(err)
}

func safeHandle[Req TaskRequest, Resp TaskResponse](h RequestHandler[Req, Resp], req Req) (resp Resp, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return h.Handle(req)
}

// deliver never blocks: the reply channel has room for exactly this value.
func (q *Queue[Req, Resp]) deliver(e *QueueEntry[Req, Resp], r reply[Resp]) {
	if e.ctx != nil && e.ctx.Err() != nil {
		q.dropped.Add(1)
		queueTasksTotal.WithLabelValues(q.name, "dropped").Inc()
		q.log.Warn().Str("queue", q.name).Stringer("task", e.ID).Msg("caller gone, response discarded")
	} else {
		q.log.Trace().Str("queue", q.name).Stringer("task", e.ID).Msg("sent response")
	}
	e.reply <- r
}

func (q *Queue[Req, Resp]) teardown(h RequestHandler[Req, Resp]) {
	for _, cmd := range q.mb.close() {
		if cmd.Kind != CmdAppend || cmd.Entry == nil {
			continue
		}
		queueTasksTotal.WithLabelValues(q.name, "rejected").Inc()
		cmd.Entry.reply <- reply[Resp]{err: dispatchError{queue: q.name, task: cmd.Entry.ID}}
	}
	queueDepth.WithLabelValues(q.name).Set(0)
	if c, ok := h.(io.Closer); ok {
		if err := c.Close(); err != nil {
			q.log.Warn().Str("queue", q.name).Err(err).Msg("handler close failed")
		}
	}
}
