package infer

import (
	"sync"
	"testing"
	"time"
)

func TestMailboxOrderAndClose(t *testing.T) {
	m := newMailbox[int]()
	for i := 0; i < 5; i++ {
		if !m.push(i) {
			t.Fatalf("push %d rejected", i)
		}
	}
	if m.len() != 5 {
		t.Fatalf("len = %d", m.len())
	}
	for i := 0; i < 3; i++ {
		if v := m.pop(); v != i {
			t.Fatalf("pop = %d, want %d", v, i)
		}
	}
	rest := m.close()
	if len(rest) != 2 || rest[0] != 3 || rest[1] != 4 {
		t.Fatalf("close returned %v", rest)
	}
	if m.push(9) {
		t.Fatalf("push after close accepted")
	}
}

func TestMailboxPopBlocksUntilPush(t *testing.T) {
	m := newMailbox[string]()
	got := make(chan string, 1)
	go func() { got <- m.pop() }()

	select {
	case v := <-got:
		t.Fatalf("pop returned %q before push", v)
	case <-time.After(20 * time.Millisecond):
	}
	m.push("hi")
	select {
	case v := <-got:
		if v != "hi" {
			t.Fatalf("pop = %q", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("pop never woke")
	}
}

func TestMailboxManyProducers(t *testing.T) {
	m := newMailbox[int]()
	const producers, each = 8, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				m.push(p*each + i)
			}
		}(p)
	}
	seen := make(map[int]bool, producers*each)
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	for n := 0; n < producers*each; n++ {
		v := m.pop()
		if seen[v] {
			t.Fatalf("duplicate %d", v)
		}
		seen[v] = true
		// Per-producer order is preserved.
		p, i := v/each, v%each
		if i <= last[p] {
			t.Fatalf("producer %d out of order: %d after %d", p, i, last[p])
		}
		last[p] = i
	}
	wg.Wait()
}
