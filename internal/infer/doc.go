// Package infer turns a stateful, non-shareable request handler (typically a
// model bound to a compute device) into a service that many goroutines can call
// concurrently. It is structured into small files by concern:
//
//   - task.go: TaskRequest/TaskResponse constraints, RequestHandler and HandlerFactory.
//   - queue.go: QueueEntry, QueueCommand and the Queue worker loop.
//   - mailbox.go: the unbounded multi-producer single-consumer command channel.
//   - executor.go: DedicatedExecutor, the per-model owner of one Queue.
//   - client.go: Client, the cheap copyable submission handle.
//   - errors.go: dispatch, lost-response and processing failures (IsDispatch, ...).
//   - metrics.go: prometheus collectors shared by all queues.
//
// Every Queue runs its handler on a goroutine locked to its own OS thread. The
// handler is constructed on that thread and is never touched by anything else,
// so handler state needs no locking.
package infer
