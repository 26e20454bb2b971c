// Package reader runs the self-healing RFID polling loop.
package reader

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-nova/amplipi-rfid/internal/hardware"
	"github.com/micro-nova/amplipi-rfid/internal/models"
)

// State is the loop's position in its state machine.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateErrorBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateErrorBackoff:
		return "error_backoff"
	case StateStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

// Config holds the loop timings and thresholds.
type Config struct {
	PollInterval  time.Duration // sleep after an empty read
	Debounce      time.Duration // sleep after a reported tag
	ErrorSleep    time.Duration // sleep after a read error
	RetryInterval time.Duration // sleep while no reader could be acquired
	// RepeatWindow suppresses re-reports of the tag last reported while it
	// keeps being seen within this window. Zero disables suppression.
	RepeatWindow   time.Duration
	ErrorThreshold int           // consecutive errors before a reset
	SuccessTimeout time.Duration // max time since the last good read before a reset
	StopTimeout    time.Duration // how long Stop waits for the loop to exit
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:   100 * time.Millisecond,
		Debounce:       time.Second,
		ErrorSleep:     500 * time.Millisecond,
		RetryInterval:  time.Second,
		RepeatWindow:   2 * time.Second,
		ErrorThreshold: 3,
		SuccessTimeout: 10 * time.Second,
		StopTimeout:    2 * time.Second,
	}
}

// Callback receives every detected tag on the loop goroutine.
type Callback func(tag models.Tag)

// Stats is a snapshot of the loop counters.
type Stats struct {
	State         State      `json:"-"`
	Detections    uint64     `json:"detections"`
	Suppressed    uint64     `json:"suppressed"`
	ReadErrors    uint64     `json:"read_errors"`
	Recoveries    uint64     `json:"recoveries"`
	LastTag       models.Tag `json:"last_tag"`
	LastDetection time.Time  `json:"last_detection"`
}

// Loop owns the reader handle and polls it on its own goroutine.
type Loop struct {
	cfg   Config
	open  hardware.Opener
	reset hardware.ResetLine
	onTag Callback
	now   func() time.Time

	mu      sync.Mutex
	stats   Stats
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Owned by the loop goroutine.
	handle            hardware.TagReader
	consecutiveErrors int
	lastSuccess       time.Time
	lastSeen          time.Time
}

// New creates a stopped loop. reset may be nil when the reader has no reset line.
func New(open hardware.Opener, reset hardware.ResetLine, onTag Callback, cfg Config) *Loop {
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = DefaultConfig().ErrorThreshold
	}
	return &Loop{
		cfg:   cfg,
		open:  open,
		reset: reset,
		onTag: onTag,
		now:   time.Now,
	}
}

// Start launches the polling goroutine. Calling Start on a running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.stats.State = StateUninitialized
	l.lastSuccess = l.now()
	go l.run(l.stopCh, l.doneCh)
}

// Stop signals the loop and waits up to StopTimeout for it to exit. A loop
// stuck in a hardware call is abandoned.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	done := l.doneCh
	l.mu.Unlock()

	select {
	case <-done:
	case <-time.After(l.cfg.StopTimeout):
		slog.Warn("reader: loop did not stop in time", "timeout", l.cfg.StopTimeout)
	}
	l.setState(StateStopped)
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats.State
}

// Stats returns a snapshot of the counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) run(stop, done chan struct{}) {
	defer close(done)
	defer l.release()
	slog.Info("reader: loop started")
	for {
		d := l.step()
		if !sleep(stop, d) {
			slog.Info("reader: loop stopped")
			return
		}
	}
}

// sleep waits for d or until stop is closed. It reports false on stop.
func sleep(stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// step runs one iteration and returns how long to sleep before the next.
func (l *Loop) step() time.Duration {
	if l.handle == nil {
		if !l.acquire() {
			l.setState(StateUninitialized)
			return l.cfg.RetryInterval
		}
		l.setState(StateReady)
	}

	raw, err := l.tryRead()
	if err != nil {
		return l.readFailed(err)
	}
	if raw == nil {
		return l.cfg.PollInterval
	}

	tag, err := hardware.ParseRawTag(raw)
	if err != nil {
		slog.Warn("reader: ignoring unparseable tag", "raw", fmt.Sprintf("%v", raw), "err", err)
		return l.cfg.PollInterval
	}

	now := l.now()
	l.lastSuccess = now
	l.consecutiveErrors = 0

	l.mu.Lock()
	repeat := l.stats.Detections > 0 && tag == l.stats.LastTag &&
		l.cfg.RepeatWindow > 0 && now.Sub(l.lastSeen) < l.cfg.RepeatWindow
	l.lastSeen = now
	if repeat {
		l.stats.Suppressed++
		l.mu.Unlock()
		slog.Debug("reader: suppressing repeat read", "tag", tag)
		return l.cfg.Debounce
	}
	l.stats.Detections++
	l.stats.LastTag = tag
	l.stats.LastDetection = now
	l.mu.Unlock()

	slog.Info("reader: tag detected", "tag", tag)
	l.deliver(tag)
	return l.cfg.Debounce
}

func (l *Loop) readFailed(err error) time.Duration {
	l.consecutiveErrors++
	l.mu.Lock()
	l.stats.ReadErrors++
	l.mu.Unlock()
	slog.Debug("reader: read error", "err", err, "consecutive", l.consecutiveErrors)

	sinceSuccess := l.now().Sub(l.lastSuccess)
	if l.consecutiveErrors >= l.cfg.ErrorThreshold || sinceSuccess > l.cfg.SuccessTimeout {
		slog.Warn("reader: sustained read errors, resetting reader",
			"consecutive", l.consecutiveErrors,
			"since_success", sinceSuccess.Round(time.Millisecond),
			"err", err)
		l.recoverReader()
	}
	return l.cfg.ErrorSleep
}

// tryRead converts a panicking backend into a read error.
func (l *Loop) tryRead() (raw hardware.RawTag, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw, err = nil, fmt.Errorf("reader: backend panic: %v", r)
		}
	}()
	return l.handle.TryRead()
}

// deliver invokes the callback; a panic is logged and swallowed so polling continues.
func (l *Loop) deliver(tag models.Tag) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("reader: tag callback panicked", "tag", tag, "panic", r)
		}
	}()
	if l.onTag != nil {
		l.onTag(tag)
	}
}

// acquire opens a reader, pulsing reset and retrying once on failure.
func (l *Loop) acquire() bool {
	h, err := l.open()
	if err != nil {
		slog.Warn("reader: init failed, pulsing reset", "err", err)
		l.pulse()
		h, err = l.open()
		if err != nil {
			slog.Warn("reader: init failed after reset", "err", err, "retry_in", l.cfg.RetryInterval)
			return false
		}
	}
	l.handle = h
	l.consecutiveErrors = 0
	l.lastSuccess = l.now()
	slog.Info("reader: ready")
	return true
}

// recoverReader is the ErrorBackoff transition: reset, reopen, clear the error count.
func (l *Loop) recoverReader() {
	l.setState(StateErrorBackoff)
	l.mu.Lock()
	l.stats.Recoveries++
	l.mu.Unlock()

	l.pulse()
	l.closeHandle()

	h, err := l.open()
	if err != nil {
		l.pulse()
		h, err = l.open()
	}
	l.consecutiveErrors = 0
	if err != nil {
		slog.Warn("reader: re-init failed", "err", err)
		l.setState(StateUninitialized)
		return
	}
	l.handle = h
	l.lastSuccess = l.now()
	l.setState(StateReady)
	slog.Info("reader: recovered")
}

func (l *Loop) pulse() {
	if l.reset == nil {
		return
	}
	if err := l.reset.Pulse(); err != nil {
		slog.Warn("reader: reset pulse failed", "err", err)
	}
}

func (l *Loop) closeHandle() {
	if l.handle == nil {
		return
	}
	if err := l.handle.Close(); err != nil {
		slog.Debug("reader: close failed", "err", err)
	}
	l.handle = nil
}

// release runs when the loop exits: it closes the reader and frees the reset line.
func (l *Loop) release() {
	l.closeHandle()
	if l.reset != nil {
		if err := l.reset.Release(); err != nil {
			slog.Warn("reader: reset line release failed", "err", err)
		}
	}
	l.setState(StateStopped)
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.State = s
}
