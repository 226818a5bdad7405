package journal

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// DefaultMemoryCapacity bounds the in-memory ring when no size is given.
const DefaultMemoryCapacity = 1024

// Memory keeps the most recent events in a bounded ring.
type Memory struct {
	mu       sync.Mutex
	events   deque.Deque[Event]
	capacity int
	nextID   int64
}

// NewMemory creates an in-memory journal holding up to capacity events.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

// Append adds an event, evicting the oldest when full.
func (m *Memory) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e = stamp(e)
	e.ID = m.nextID

	if m.events.Len() >= m.capacity {
		m.events.PopFront()
	}
	m.events.PushBack(e)
	return nil
}

// Recent returns up to n events, newest first.
func (m *Memory) Recent(_ context.Context, n int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > m.events.Len() {
		n = m.events.Len()
	}
	out := make([]Event, 0, n)
	for i := m.events.Len() - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.events.At(i))
	}
	return out, nil
}

// Len returns the number of retained events.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.Len()
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
