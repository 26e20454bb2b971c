package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the current value of a settings file and reloads it when
// the file is written. onChange runs on the watcher goroutine.
type Watcher[T any] struct {
	store    Store[T]
	onChange func(T)

	mu      sync.RWMutex
	current T

	fw   *fsnotify.Watcher
	done chan struct{}
}

// Watch loads store and starts watching its file. A watcher that cannot be
// created is logged and the returned Watcher serves the initial value.
func Watch[T any](store Store[T], onChange func(T)) (*Watcher[T], error) {
	w := &Watcher[T]{store: store, onChange: onChange, done: make(chan struct{})}
	if err := w.load(); err != nil {
		return nil, err
	}

	path := store.Path()
	if path == ":memory:" {
		close(w.done)
		return w, nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config: could not create fsnotify watcher", "err", err)
		close(w.done)
		return w, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		slog.Warn("config: could not create config dir", "err", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		slog.Warn("config: could not watch config dir", "path", path, "err", err)
	}
	w.fw = fw
	go w.watchLoop(path)
	return w, nil
}

// Current returns the last loaded value.
func (w *Watcher[T]) Current() T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload re-reads the file and notifies onChange.
func (w *Watcher[T]) Reload() error {
	if err := w.load(); err != nil {
		return err
	}
	if w.onChange != nil {
		w.onChange(w.Current())
	}
	return nil
}

func (w *Watcher[T]) load() error {
	v, err := w.store.Load()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = *v
	w.mu.Unlock()
	return nil
}

// Close stops watching and waits for the watch goroutine to exit.
func (w *Watcher[T]) Close() error {
	if w.fw == nil {
		return nil
	}
	err := w.fw.Close()
	<-w.done
	return err
}

func (w *Watcher[T]) watchLoop(path string) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Name == path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				if err := w.Reload(); err != nil {
					slog.Warn("config: failed to reload", "path", path, "err", err)
				} else {
					slog.Info("config: reloaded", "path", path)
				}
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "err", err)
		}
	}
}
