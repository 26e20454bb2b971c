package config

import "sync"

// MemStore is an in-memory Store for tests that never writes to disk.
type MemStore[T any] struct {
	mu       sync.Mutex
	value    *T
	defaults func() T
}

// NewMemStore returns an empty store that loads defaults until saved.
func NewMemStore[T any](defaults func() T) *MemStore[T] {
	return &MemStore[T]{defaults: defaults}
}

func (m *MemStore[T]) Load() (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.value == nil {
		v := m.defaults()
		return &v, nil
	}
	cp := *m.value
	return &cp, nil
}

func (m *MemStore[T]) Save(v *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.value = &cp
	return nil
}

func (m *MemStore[T]) Path() string { return ":memory:" }

func (m *MemStore[T]) Flush() error { return nil }

var _ Store[struct{}] = (*MemStore[struct{}])(nil)
