package infer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewQueue_ConstructsHandlerOnce(t *testing.T) {
	var calls atomic.Int32
	h := &echoHandler{}
	q, err := NewQueue(testCtx(t), "once", func() (RequestHandler[echoReq, echoResp], error) {
		calls.Add(1)
		return h, nil
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	defer q.Stop(context.Background())
	if st := q.Stats(); st.State != StateReady {
		t.Fatalf("expected ready, got %s", st.State)
	}
	c := NewClient(&DedicatedExecutor[echoReq, echoResp]{queue: q})
	for i := 0; i < 3; i++ {
		if _, err := c.Submit(testCtx(t), echoReq{Tag: "x"}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("factory called %d times", n)
	}
}

func TestNewQueue_FactoryErrorSurfaces(t *testing.T) {
	_, err := NewQueue(testCtx(t), "broken", func() (RequestHandler[echoReq, echoResp], error) {
		return nil, errBoom
	})
	if err == nil || !errors.Is(err, errBoom) {
		t.Fatalf("expected construction error, got %v", err)
	}
}

func TestNewQueue_FactoryPanicSurfaces(t *testing.T) {
	_, err := NewQueue(testCtx(t), "panicky", func() (RequestHandler[echoReq, echoResp], error) {
		panic("no device")
	})
	if err == nil {
		t.Fatalf("expected error from panicking factory")
	}
}

func TestNewQueue_NilHandlerRejected(t *testing.T) {
	_, err := NewQueue(testCtx(t), "nil", func() (RequestHandler[echoReq, echoResp], error) {
		return nil, nil
	})
	if err == nil {
		t.Fatalf("expected error for nil handler")
	}
}

func TestNewQueue_ContextEndsBeforeConstruction(t *testing.T) {
	release := make(chan struct{})
	h := &echoHandler{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewQueue(ctx, "slow", func() (RequestHandler[echoReq, echoResp], error) {
		<-release
		return h, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
	// The worker comes up, sees the pending Stop and closes the handler.
	deadline := time.Now().Add(2 * time.Second)
	for h.closed.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("handler was never closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClient_NoCrossTalk(t *testing.T) {
	h := &echoHandler{}
	c := NewClient(newTestExecutor(t, h))

	const n = 64
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag := fmt.Sprintf("req-%d", i)
			resp, err := c.Submit(testCtx(t), echoReq{Tag: tag})
			if err != nil {
				errs <- err
				return
			}
			if resp.Tag != tag {
				errs <- fmt.Errorf("got %q for %q", resp.Tag, tag)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if got := len(h.order()); got != n {
		t.Fatalf("expected %d handled, got %d", n, got)
	}
}

func TestQueue_ProcessesSerially(t *testing.T) {
	h := &echoHandler{delay: time.Millisecond}
	c := NewClient(newTestExecutor(t, h))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Submit(testCtx(t), echoReq{Tag: "s"})
		}()
	}
	wg.Wait()
	if m := h.maxSeen.Load(); m != 1 {
		t.Fatalf("handler ran %d calls concurrently", m)
	}
}

func TestQueue_FIFOFromSingleProducer(t *testing.T) {
	h := &echoHandler{}
	ex := newTestExecutor(t, h)
	tx := ex.sender()

	var entries []*QueueEntry[echoReq, echoResp]
	for i := 0; i < 20; i++ {
		e := newQueueEntry[echoReq, echoResp](context.Background(), echoReq{Tag: fmt.Sprintf("%02d", i)})
		if err := tx.Send(QueueCommand[echoReq, echoResp]{Kind: CmdAppend, Entry: e}); err != nil {
			t.Fatalf("send: %v", err)
		}
		entries = append(entries, e)
	}
	for i, e := range entries {
		r := <-e.reply
		if r.err != nil {
			t.Fatalf("entry %d: %v", i, r.err)
		}
		if r.resp.Seq != i+1 {
			t.Fatalf("entry %d processed at position %d", i, r.resp.Seq)
		}
	}
	order := h.order()
	for i, tag := range order {
		if want := fmt.Sprintf("%02d", i); tag != want {
			t.Fatalf("position %d: got %s want %s", i, tag, want)
		}
	}
}

func TestQueue_DroppedReceiverDoesNotBlockWorker(t *testing.T) {
	h := &echoHandler{gate: make(chan struct{}), started: make(chan struct{})}
	ex := newTestExecutor(t, h)
	c := NewClient(ex)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, echoReq{Tag: "abandoned"})
		done <- err
	}()
	waitClosed(t, h.started, "handler start")
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	close(h.gate)

	resp, err := c.Submit(testCtx(t), echoReq{Tag: "next"})
	if err != nil {
		t.Fatalf("next request: %v", err)
	}
	if resp.Tag != "next" {
		t.Fatalf("unexpected response %+v", resp)
	}
	// The abandoned call still ran to completion.
	if got := h.order(); len(got) != 2 || got[0] != "abandoned" {
		t.Fatalf("unexpected order %v", got)
	}
	if d := ex.Stats().Dropped; d != 1 {
		t.Fatalf("expected 1 dropped delivery, got %d", d)
	}
}

func TestQueue_ProcessingErrorKeepsWorkerAlive(t *testing.T) {
	h := &echoHandler{}
	ex := newTestExecutor(t, h)
	c := NewClient(ex)

	_, err := c.Submit(testCtx(t), echoReq{Tag: "bad", Fail: true})
	if err == nil || !IsProcessing(err) {
		t.Fatalf("expected processing error, got %v", err)
	}
	if IsDispatch(err) || IsLostResponse(err) {
		t.Fatalf("processing error misclassified: %v", err)
	}
	resp, err := c.Submit(testCtx(t), echoReq{Tag: "good"})
	if err != nil || resp.Tag != "good" {
		t.Fatalf("expected worker to keep serving, got %+v %v", resp, err)
	}
	st := ex.Stats()
	if st.Failed != 1 || st.Processed != 1 || st.State != StateReady {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.LastError == "" {
		t.Fatalf("expected last error to be recorded")
	}
}

func TestQueue_HandlerPanicBecomesProcessingError(t *testing.T) {
	ex, err := NewDedicatedExecutor(testCtx(t), "panic", func() (RequestHandler[echoReq, echoResp], error) {
		return HandlerFunc[echoReq, echoResp](func(r echoReq) (echoResp, error) {
			if r.Fail {
				panic("tensor shape mismatch")
			}
			return echoResp{Tag: r.Tag}, nil
		}), nil
	})
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	defer ex.Shutdown(context.Background())
	c := NewClient(ex)
	if _, err := c.Submit(testCtx(t), echoReq{Fail: true}); !IsProcessing(err) {
		t.Fatalf("expected processing error, got %v", err)
	}
	if resp, err := c.Submit(testCtx(t), echoReq{Tag: "ok"}); err != nil || resp.Tag != "ok" {
		t.Fatalf("worker should survive a panic: %+v %v", resp, err)
	}
}

// With StopOnError a single failed request takes the worker down: the failing
// caller sees a lost response and every later caller a dispatch failure.
func TestQueue_StopOnErrorTerminatesWorker(t *testing.T) {
	h := &echoHandler{}
	ex := newTestExecutor(t, h, WithFailurePolicy(StopOnError))
	c := NewClient(ex)

	if _, err := c.Submit(testCtx(t), echoReq{Tag: "ok"}); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := c.Submit(testCtx(t), echoReq{Tag: "bad", Fail: true})
	if !IsLostResponse(err) {
		t.Fatalf("expected lost response, got %v", err)
	}
	waitClosed(t, ex.Done(), "worker exit")
	_, err = c.Submit(testCtx(t), echoReq{Tag: "later"})
	if !IsDispatch(err) {
		t.Fatalf("expected dispatch failure, got %v", err)
	}
	if st := ex.Stats(); st.State != StateFailed {
		t.Fatalf("expected failed state, got %s", st.State)
	}
	if h.closed.Load() != 1 {
		t.Fatalf("expected handler to be closed once")
	}
}

// Caller errors are answered even under StopOnError; the worker only stops
// on a real handler failure.
func TestQueue_StopOnErrorSparesCallerErrors(t *testing.T) {
	h := &echoHandler{}
	ex := newTestExecutor(t, h,
		WithFailurePolicy(StopOnError),
		WithCallerErrors(func(err error) bool { return errors.Is(err, errBadInput) }))
	c := NewClient(ex)

	_, err := c.Submit(testCtx(t), echoReq{Tag: "empty", BadInput: true})
	if !IsProcessing(err) || !errors.Is(err, errBadInput) {
		t.Fatalf("expected processing error wrapping bad input, got %v", err)
	}
	if resp, err := c.Submit(testCtx(t), echoReq{Tag: "ok"}); err != nil || resp.Tag != "ok" {
		t.Fatalf("worker should survive a caller error: %+v %v", resp, err)
	}
	if st := ex.Stats(); st.State != StateReady || st.Failed != 1 {
		t.Fatalf("stats=%+v", st)
	}

	_, err = c.Submit(testCtx(t), echoReq{Tag: "bad", Fail: true})
	if !IsLostResponse(err) {
		t.Fatalf("expected lost response, got %v", err)
	}
	waitClosed(t, ex.Done(), "worker exit")
}

func TestQueue_StopDrainsThenRejects(t *testing.T) {
	h := &echoHandler{gate: make(chan struct{}), started: make(chan struct{})}
	ex, err := NewDedicatedExecutor(testCtx(t), "stop", factoryFor(h))
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	c := NewClient(ex)

	results := make(chan error, 3)
	go func() { _, err := c.Submit(testCtx(t), echoReq{Tag: "a"}); results <- err }()
	waitClosed(t, h.started, "handler start")
	go func() { _, err := c.Submit(testCtx(t), echoReq{Tag: "b"}); results <- err }()
	// Wait until b is queued behind a.
	deadline := time.Now().Add(2 * time.Second)
	for ex.Stats().QueueLen < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("b never queued")
		}
		time.Sleep(time.Millisecond)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- ex.Shutdown(testCtx(t)) }()
	close(h.gate)
	if err := <-stopped; err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatalf("queued request failed: %v", err)
		}
	}
	if _, err := c.Submit(testCtx(t), echoReq{Tag: "c"}); !IsDispatch(err) {
		t.Fatalf("expected dispatch failure after stop, got %v", err)
	}
	if err := ex.Shutdown(testCtx(t)); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if st := ex.Stats(); st.State != StateStopped {
		t.Fatalf("expected stopped, got %s", st.State)
	}
	if h.closed.Load() != 1 {
		t.Fatalf("expected handler closed once, got %d", h.closed.Load())
	}
}

func TestSubmitWithInfoReportsTimings(t *testing.T) {
	h := &echoHandler{delay: 5 * time.Millisecond}
	c := NewClient(newTestExecutor(t, h))
	_, info, err := c.SubmitWithInfo(testCtx(t), echoReq{Tag: "t"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if info.Processing < 5*time.Millisecond {
		t.Fatalf("processing too short: %v", info.Processing)
	}
	var zero TaskID
	if info.ID == zero {
		t.Fatalf("expected task id")
	}
}

func TestSubmit_CanceledContextFailsFast(t *testing.T) {
	h := &echoHandler{}
	c := NewClient(newTestExecutor(t, h))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Submit(ctx, echoReq{Tag: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if len(h.order()) != 0 {
		t.Fatalf("request should not have been enqueued")
	}
}

func TestParseFailurePolicy(t *testing.T) {
	cases := map[string]FailurePolicy{"": ContinueOnError, "continue": ContinueOnError, "STOP": StopOnError}
	for in, want := range cases {
		got, err := ParseFailurePolicy(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %v %v", in, got, err)
		}
	}
	if _, err := ParseFailurePolicy("restart"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
