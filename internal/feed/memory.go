package feed

import (
	"context"
	"sync"
)

// Memory is an in-process broker. Publish delivers synchronously on the
// caller's goroutine, outside the broker's lock, so handlers may publish.
type Memory struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
	closed   bool
}

// NewMemory creates an in-process broker.
func NewMemory() *Memory {
	return &Memory{handlers: make(map[int]Handler)}
}

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil
	}
	hs := make([]Handler, 0, len(m.handlers))
	for i := 0; i < m.next; i++ {
		if h, ok := m.handlers[i]; ok {
			hs = append(hs, h)
		}
	}
	m.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
	return nil
}

func (m *Memory) Subscribe(h Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.next
	m.next++
	m.handlers[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.handlers, id)
			m.mu.Unlock()
		})
	}, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.handlers = make(map[int]Handler)
	return nil
}
