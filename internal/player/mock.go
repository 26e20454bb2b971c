package player

import (
	"context"
	"sync"
	"time"

	"github.com/micro-nova/amplipi-rfid/internal/models"
)

// Mock is an in-memory Player that records every call.
type Mock struct {
	mu       sync.Mutex
	calls    []string
	state    models.PlaybackState
	position time.Duration
	track    models.Track
	queue    []string
	failAll  bool
}

// NewMock creates a stopped mock player.
func NewMock() *Mock { return &Mock{} }

// SetPlayback scripts what the query methods return.
func (m *Mock) SetPlayback(state models.PlaybackState, position time.Duration, track models.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state, m.position, m.track = state, position, track
}

// SetFail makes every call fail with ErrPlayer.
func (m *Mock) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = fail
}

// Calls returns the recorded calls, e.g. "clear", "add queue:track:x", "play".
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Queue returns the URIs added since the last Clear.
func (m *Mock) Queue() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queue...)
}

func (m *Mock) record(call string) error {
	m.calls = append(m.calls, call)
	if m.failAll {
		return models.ErrPlayer
	}
	return nil
}

func (m *Mock) State(ctx context.Context) (models.PlaybackState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return models.StateStopped, models.ErrPlayer
	}
	return m.state, nil
}

func (m *Mock) Position(ctx context.Context) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return 0, models.ErrPlayer
	}
	return m.position, nil
}

func (m *Mock) CurrentTrack(ctx context.Context) (models.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return models.Track{}, models.ErrPlayer
	}
	return m.track, nil
}

func (m *Mock) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("clear"); err != nil {
		return err
	}
	m.queue = nil
	return nil
}

func (m *Mock) Add(ctx context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("add " + uri); err != nil {
		return err
	}
	m.queue = append(m.queue, uri)
	return nil
}

func (m *Mock) Play(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("play"); err != nil {
		return err
	}
	m.state = models.StatePlaying
	return nil
}

func (m *Mock) Pause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("pause"); err != nil {
		return err
	}
	m.state = models.StatePaused
	return nil
}

func (m *Mock) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("stop"); err != nil {
		return err
	}
	m.state = models.StateStopped
	return nil
}

var _ Player = (*Mock)(nil)
