package config

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const debounceDelay = 500 * time.Millisecond

// JSONStore is an atomic JSON file store with debounced writes. Missing or
// corrupt files load as defaults; every load is passed through migrate.
type JSONStore[T any] struct {
	mu       sync.Mutex
	path     string
	defaults func() T
	migrate  func(*T)
	timer    *time.Timer
	pending  *T
}

// NewJSONStore creates a store for path. migrate may be nil.
func NewJSONStore[T any](path string, defaults func() T, migrate func(*T)) *JSONStore[T] {
	return &JSONStore[T]{path: path, defaults: defaults, migrate: migrate}
}

// Path returns the file path used by this store.
func (s *JSONStore[T]) Path() string { return s.path }

// Load reads the file. Keys missing from the file keep their defaults.
func (s *JSONStore[T]) Load() (*T, error) {
	v := s.defaults()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &v, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, &v); err != nil {
		slog.Warn("config: corrupt JSON file, using defaults", "path", s.path, "err", err)
		v = s.defaults()
		return &v, nil
	}

	if s.migrate != nil {
		s.migrate(&v)
	}
	return &v, nil
}

// Save schedules a debounced write. The write happens after 500ms of no
// further Save calls.
func (s *JSONStore[T]) Save(v *T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *v
	s.pending = &cp

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(debounceDelay, func() {
		s.mu.Lock()
		pending := s.pending
		s.mu.Unlock()
		if pending != nil {
			if err := s.writeAtomic(pending); err != nil {
				slog.Error("config: failed to write file", "path", s.path, "err", err)
			}
		}
	})
	return nil
}

// Flush writes any pending value now.
func (s *JSONStore[T]) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if pending == nil {
		return nil
	}
	return s.writeAtomic(pending)
}

func (s *JSONStore[T]) writeAtomic(v *T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

var _ Store[struct{}] = (*JSONStore[struct{}])(nil)
