// Package progress follows playback and mirrors it on the LED ring: the
// idle comet while stopped, a countdown of the remaining time while playing
// and a sweep over the remaining pixels while paused.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/micro-nova/amplipi-rfid/internal/led"
	"github.com/micro-nova/amplipi-rfid/internal/models"
	"github.com/micro-nova/amplipi-rfid/internal/player"
)

// Display is the part of the animator the tracker drives.
type Display interface {
	SetContinuous(c led.Continuous)
	UpdatePausedRemain(count int)
	ResetProgress()
	RingSize() int
}

// Config holds the tracker timings.
type Config struct {
	Interval     time.Duration
	QueryTimeout time.Duration
	ProbeTimeout time.Duration
	// LengthTTL is how long a probed track length is remembered.
	LengthTTL   time.Duration
	StopTimeout time.Duration
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		Interval:     200 * time.Millisecond,
		QueryTimeout: time.Second,
		ProbeTimeout: 5 * time.Second,
		LengthTTL:    time.Hour,
		StopTimeout:  2 * time.Second,
	}
}

// probeRetry is how long a failed probe is remembered before retrying.
const probeRetry = time.Minute

// Tracker polls the player and pushes the matching continuous animation.
type Tracker struct {
	player  player.Player
	display Display
	cfg     Config
	probe   ProbeFunc
	lengths *cache.Cache

	remaining atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	doneCh chan struct{}

	// Owned by the polling goroutine.
	last        models.PlaybackState
	lastEnabled bool
	primed      bool
}

// New creates a tracker. probe may be nil to use FFProbe.
func New(p player.Player, d Display, cfg Config, probe ProbeFunc) *Tracker {
	if probe == nil {
		probe = FFProbe
	}
	t := &Tracker{
		player:  p,
		display: d,
		cfg:     cfg,
		probe:   probe,
		lengths: cache.New(cfg.LengthTTL, 2*cfg.LengthTTL),
	}
	t.remaining.Store(true)
	return t
}

// SetRemainingEnabled toggles the remaining-time display. When off the
// ring stays in standby whatever the player does.
func (t *Tracker) SetRemainingEnabled(on bool) { t.remaining.Store(on) }

// RemainingEnabled reports the toggle.
func (t *Tracker) RemainingEnabled() bool { return t.remaining.Load() }

// Start launches the polling goroutine. It is a no-op when already running.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.doneCh = make(chan struct{})
	done := t.doneCh
	go func() {
		defer close(done)
		t.Run(ctx)
	}()
	slog.Debug("progress: started")
}

// Stop cancels the goroutine and waits up to StopTimeout for it.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.cancel == nil {
		t.mu.Unlock()
		return
	}
	t.cancel()
	t.cancel = nil
	done := t.doneCh
	t.mu.Unlock()

	select {
	case <-done:
	case <-time.After(t.cfg.StopTimeout):
		slog.Warn("progress: tracker did not stop in time")
	}
}

// Run polls until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	t.primed = false
	t.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick runs one poll. It must not be called concurrently with Run.
func (t *Tracker) Tick(ctx context.Context) {
	qctx, cancel := context.WithTimeout(ctx, t.cfg.QueryTimeout)
	defer cancel()

	state, err := t.player.State(qctx)
	if err != nil {
		slog.Debug("progress: state query failed", "err", err)
		return
	}
	enabled := t.remaining.Load()
	changed := !t.primed || state != t.last || enabled != t.lastEnabled

	if !enabled {
		if changed {
			t.display.SetContinuous(led.Standby())
			t.commit(state, enabled)
		}
		return
	}

	switch state {
	case models.StateStopped:
		if changed {
			t.display.ResetProgress()
			t.display.SetContinuous(led.Standby())
			t.commit(state, enabled)
		}
	case models.StatePlaying:
		ratio, ok := t.remainRatio(ctx, qctx, state)
		if !ok {
			return
		}
		t.display.SetContinuous(led.RemainingProgress(ratio))
		t.commit(state, enabled)
	case models.StatePaused:
		ratio, ok := t.remainRatio(ctx, qctx, state)
		if !ok {
			return
		}
		lit := led.LitCount(t.display.RingSize(), ratio)
		if changed {
			t.display.SetContinuous(led.PausedSweep(lit))
		} else {
			t.display.UpdatePausedRemain(lit)
		}
		t.commit(state, enabled)
	}
}

// commit records a transition once its animation has been applied, so a
// tick that could not compute a ratio retries the transition.
func (t *Tracker) commit(state models.PlaybackState, enabled bool) {
	if t.primed && t.last != state {
		slog.Debug("progress: playback state changed", "from", t.last, "to", state)
	}
	t.last, t.lastEnabled, t.primed = state, enabled, true
}

func (t *Tracker) remainRatio(ctx, qctx context.Context, state models.PlaybackState) (float64, bool) {
	pos, err := t.player.Position(qctx)
	if err != nil {
		slog.Debug("progress: position query failed", "err", err)
		return 0, false
	}
	track, err := t.player.CurrentTrack(qctx)
	if err != nil {
		slog.Debug("progress: track query failed", "err", err)
		return 0, false
	}
	length := track.Length
	if length <= 0 {
		length = t.lookupLength(ctx, track.URI)
	}
	snap := models.PlaybackSnapshot{State: state, Position: pos, Length: length}
	return snap.RemainRatio()
}

// lookupLength finds a length the player did not report, probing local
// files and caching successful probes by URI.
func (t *Tracker) lookupLength(ctx context.Context, uri string) time.Duration {
	if uri == "" {
		return 0
	}
	if v, ok := t.lengths.Get(uri); ok {
		return v.(time.Duration)
	}
	path, ok := LocalPath(uri)
	if !ok {
		return 0
	}
	pctx, cancel := context.WithTimeout(ctx, t.cfg.ProbeTimeout)
	defer cancel()
	d, err := t.probe(pctx, path)
	if err != nil {
		slog.Debug("progress: probe failed", "uri", uri, "err", err)
		t.lengths.Set(uri, time.Duration(0), probeRetry)
		return 0
	}
	t.lengths.Set(uri, d, cache.DefaultExpiration)
	return d
}
