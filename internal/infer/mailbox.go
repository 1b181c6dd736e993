package infer

import "sync"

// mailbox is an unbounded multi-producer single-consumer channel. Producers
// never block; the single consumer blocks in pop until an item arrives.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{} // size 1: wakes the consumer
	closed bool
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{notify: make(chan struct{}, 1)}
}

// push appends v. It returns false once the mailbox is closed.
func (m *mailbox[T]) push(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest item, waiting for one if necessary. Only the
// consumer goroutine may call pop.
func (m *mailbox[T]) pop() T {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			v := m.items[0]
			var zero T
			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()
			return v
		}
		m.mu.Unlock()
		<-m.notify
	}
}

// close rejects further pushes and returns whatever was still queued.
func (m *mailbox[T]) close() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	rest := m.items
	m.items = nil
	return rest
}

func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
