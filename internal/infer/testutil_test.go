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

type echoReq struct {
	Tag      string
	Fail     bool
	BadInput bool
}

type echoResp struct {
	Tag string
	Seq int
}

// echoHandler answers with the request tag and records arrival order.
type echoHandler struct {
	mu      sync.Mutex
	seen    []string
	seq     int
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
	closed  atomic.Int32
	gate    chan struct{} // if set, the first Handle waits on it
	started chan struct{} // if set, closed when the first Handle begins
	once    sync.Once
}

func (h *echoHandler) Handle(req echoReq) (echoResp, error) {
	n := h.active.Add(1)
	defer h.active.Add(-1)
	for {
		cur := h.maxSeen.Load()
		if n <= cur || h.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	first := false
	h.once.Do(func() { first = true })
	if first && h.started != nil {
		close(h.started)
	}
	if first && h.gate != nil {
		<-h.gate
	}
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	if req.BadInput {
		return echoResp{}, fmt.Errorf("request %s: %w", req.Tag, errBadInput)
	}
	if req.Fail {
		return echoResp{}, fmt.Errorf("bad request %s", req.Tag)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, req.Tag)
	h.seq++
	return echoResp{Tag: req.Tag, Seq: h.seq}, nil
}

func (h *echoHandler) Close() error {
	h.closed.Add(1)
	return nil
}

func (h *echoHandler) order() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func factoryFor(h *echoHandler) HandlerFactory[echoReq, echoResp] {
	return func() (RequestHandler[echoReq, echoResp], error) { return h, nil }
}

// newTestExecutor starts an executor and stops it on cleanup.
func newTestExecutor(t *testing.T, h *echoHandler, opts ...Option) *DedicatedExecutor[echoReq, echoResp] {
	t.Helper()
	ex, err := NewDedicatedExecutor(testCtx(t), "test/"+t.Name(), factoryFor(h), opts...)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ex.Shutdown(ctx)
	})
	return ex
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

var (
	errBoom     = errors.New("boom")
	errBadInput = errors.New("bad input")
)
