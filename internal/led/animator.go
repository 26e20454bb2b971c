// Package led drives the LED ring: one continuous animation at a time
// (standby comet, paused sweep, remaining progress) plus one-shot flashes
// and scans that preempt it. Every pixel write goes through a single draw
// lock.
package led

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/micro-nova/amplipi-rfid/internal/hardware"
)

// Mode is the continuous animation selector.
type Mode int

const (
	ModeNone Mode = iota
	ModeStandby
	ModePausedSweep
	ModeRemaining
)

func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return "standby"
	case ModePausedSweep:
		return "paused_sweep"
	case ModeRemaining:
		return "remaining_progress"
	default:
		return "none"
	}
}

// Continuous selects a continuous animation and its parameters. Count is
// used by ModePausedSweep and Ratio by ModeRemaining.
type Continuous struct {
	Mode  Mode
	Count int
	Ratio float64
}

// Off turns the continuous animation off.
func Off() Continuous { return Continuous{Mode: ModeNone} }

// Standby selects the idle comet.
func Standby() Continuous { return Continuous{Mode: ModeStandby} }

// PausedSweep selects the sweep over the first count pixels.
func PausedSweep(count int) Continuous { return Continuous{Mode: ModePausedSweep, Count: count} }

// RemainingProgress selects the countdown ring at ratio in [0, 1].
func RemainingProgress(ratio float64) Continuous {
	return Continuous{Mode: ModeRemaining, Ratio: ratio}
}

// Direction selects the scan animation.
type Direction int

const (
	Welcome Direction = iota
	Farewell
)

// Options configures colors and timings.
type Options struct {
	Brightness      uint8
	IdleBrightness  uint8
	StandbyColor    hardware.RGB
	ProgressColor   hardware.RGB
	SweepColor      hardware.RGB
	StandbyInterval time.Duration
	SweepInterval   time.Duration
	// StopTimeout bounds the wait for a continuous loop to acknowledge a stop.
	StopTimeout time.Duration
	// ShutdownTimeout bounds the wait for running transients on Shutdown.
	ShutdownTimeout time.Duration
}

// DefaultOptions returns the stock ring look.
func DefaultOptions() Options {
	return Options{
		Brightness:      60,
		IdleBrightness:  10,
		StandbyColor:    hardware.RGB{R: 0, G: 80, B: 255},
		ProgressColor:   hardware.RGB{R: 255, G: 255, B: 255},
		SweepColor:      hardware.RGB{R: 255, G: 160, B: 40},
		StandbyInterval: 120 * time.Millisecond,
		SweepInterval:   80 * time.Millisecond,
		StopTimeout:     1500 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
	}
}

// Stock transient colors.
var (
	ColorConfirm = hardware.RGB{G: 255}
	ColorUnknown = hardware.RGB{R: 255}
	ColorScan    = hardware.RGB{G: 255}
)

// scanHold is the pause before a scan starts moving.
const scanHold = 100 * time.Millisecond

// Status is a snapshot of the animation state.
type Status struct {
	Mode      Mode   `json:"-"`
	ModeName  string `json:"mode"`
	Transient bool   `json:"transient"`
	Lit       int    `json:"lit"`
	Enabled   bool   `json:"enabled"`
}

type loopHandle struct {
	stop chan struct{}
	done chan struct{}
}

// Animator owns the ring's pixel buffer. All methods are safe for concurrent
// use. A nil strip turns every ring operation into a no-op.
type Animator struct {
	strip  hardware.Strip
	button hardware.Light
	size   int
	opts   Options

	// ctlMu serializes mode changes and shutdown. It is always taken
	// before drawMu.
	ctlMu      sync.Mutex
	requested  Continuous
	loop       *loopHandle
	loopStarts int
	closed     bool

	drawMu      sync.Mutex
	pixels      []hardware.RGB
	current     Mode
	transient   bool
	lastRemain  int
	brightness  uint8
	idle        uint8
	frameErrors int

	// remainHint mirrors lastRemain for the lock-free pre-check.
	remainHint   atomic.Int64
	pausedRemain atomic.Int64

	quit       chan struct{}
	transients sync.WaitGroup
}

// New creates an animator for strip. strip and button may be nil.
func New(strip hardware.Strip, button hardware.Light, opts Options) *Animator {
	a := &Animator{
		strip:      strip,
		button:     button,
		opts:       opts,
		lastRemain: -1,
		brightness: opts.Brightness,
		idle:       opts.IdleBrightness,
		quit:       make(chan struct{}),
	}
	if strip != nil {
		a.size = strip.Len()
	}
	if a.size <= 0 {
		a.strip = nil
		a.size = 0
		slog.Info("led: ring disabled")
	}
	a.pixels = make([]hardware.RGB, a.size)
	a.remainHint.Store(-1)
	return a
}

// Enabled reports whether a ring is attached.
func (a *Animator) Enabled() bool { return a.strip != nil }

// RingSize returns the number of pixels, 0 when disabled.
func (a *Animator) RingSize() int { return a.size }

// SetContinuous switches the continuous animation. Re-selecting the active
// mode never restarts it: remaining progress redraws if the lit count
// changed and the paused sweep picks up the new count.
func (a *Animator) SetContinuous(c Continuous) {
	if !a.Enabled() {
		return
	}
	c = a.normalize(c)

	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()
	if a.closed {
		return
	}

	if a.requested.Mode == c.Mode {
		a.requested = c
		switch c.Mode {
		case ModeRemaining:
			a.drawRemaining(c.Ratio)
		case ModePausedSweep:
			a.pausedRemain.Store(int64(c.Count))
		}
		return
	}

	a.stopLoopLocked()

	a.drawMu.Lock()
	a.current = c.Mode
	a.lastRemain = -1
	a.remainHint.Store(-1)
	a.drawMu.Unlock()

	a.requested = c
	slog.Debug("led: continuous mode", "mode", c.Mode)

	switch c.Mode {
	case ModeStandby:
		a.startLoopLocked(a.standbyFrame, a.opts.StandbyInterval)
	case ModePausedSweep:
		a.pausedRemain.Store(int64(c.Count))
		a.startLoopLocked(a.sweepFrame, a.opts.SweepInterval)
	case ModeRemaining:
		a.drawRemaining(c.Ratio)
	case ModeNone:
		a.drawMu.Lock()
		fill(a.pixels, hardware.Off)
		a.showLocked(a.brightness)
		a.drawMu.Unlock()
	}
}

// UpdatePausedRemain changes the paused sweep range without restarting it.
func (a *Animator) UpdatePausedRemain(count int) {
	if !a.Enabled() {
		return
	}
	a.pausedRemain.Store(int64(clamp(count, 0, a.size)))
}

// ResetProgress drops the cached remaining count so the next remaining
// progress update always redraws.
func (a *Animator) ResetProgress() {
	if !a.Enabled() {
		return
	}
	a.drawMu.Lock()
	a.lastRemain = -1
	a.remainHint.Store(-1)
	a.drawMu.Unlock()
}

// SetBrightness updates the active and idle brightness levels.
func (a *Animator) SetBrightness(active, idle uint8) {
	if !a.Enabled() {
		return
	}
	a.drawMu.Lock()
	defer a.drawMu.Unlock()
	if a.brightness == active && a.idle == idle {
		return
	}
	a.brightness, a.idle = active, idle
	if a.current == ModeRemaining && !a.transient {
		a.showLocked(a.levelLocked())
	}
}

// Flash fills the ring with c for d and then restores the previous frame.
// It returns immediately; the flash runs on its own goroutine.
func (a *Animator) Flash(c hardware.RGB, d time.Duration) {
	if !a.Enabled() {
		return
	}
	a.ctlMu.Lock()
	if a.closed {
		a.ctlMu.Unlock()
		return
	}
	a.transients.Add(1)
	a.ctlMu.Unlock()

	go func() {
		defer a.transients.Done()
		a.drawMu.Lock()
		defer a.drawMu.Unlock()

		saved := slices.Clone(a.pixels)
		a.transient = true
		fill(a.pixels, c)
		a.showLocked(a.brightness)

		a.pause(d)

		copy(a.pixels, saved)
		a.transient = false
		a.showLocked(a.levelLocked())
	}()
}

// Scan runs the welcome or farewell sweep and returns when it is done.
func (a *Animator) Scan(dir Direction, c hardware.RGB, delay time.Duration) {
	if !a.Enabled() {
		return
	}
	a.ctlMu.Lock()
	closed := a.closed
	a.ctlMu.Unlock()
	if closed {
		return
	}

	a.drawMu.Lock()
	defer a.drawMu.Unlock()
	a.transient = true
	defer func() { a.transient = false }()

	switch dir {
	case Welcome:
		fill(a.pixels, hardware.Off)
		a.showLocked(a.brightness)
		a.pause(scanHold)
		for i := range a.pixels {
			a.pixels[i] = c
			a.showLocked(a.brightness)
			if !a.pause(delay) {
				break
			}
		}
	case Farewell:
		fill(a.pixels, c)
		a.showLocked(a.brightness)
		a.pause(scanHold)
		for i := len(a.pixels) - 1; i >= 0; i-- {
			a.pixels[i] = hardware.Off
			a.showLocked(a.brightness)
			if !a.pause(delay) {
				break
			}
		}
	}

	// The scan overwrote whatever progress frame was cached.
	a.lastRemain = -1
	a.remainHint.Store(-1)
}

// SetButton switches the button LED.
func (a *Animator) SetButton(on bool) {
	if a.button == nil {
		return
	}
	if err := a.button.Set(on); err != nil {
		slog.Warn("led: button light failed", "on", on, "err", err)
	}
}

// Status returns a snapshot of the animation state.
func (a *Animator) Status() Status {
	if !a.Enabled() {
		return Status{ModeName: ModeNone.String()}
	}
	a.drawMu.Lock()
	defer a.drawMu.Unlock()
	lit := 0
	for _, p := range a.pixels {
		if p != hardware.Off {
			lit++
		}
	}
	return Status{
		Mode:      a.current,
		ModeName:  a.current.String(),
		Transient: a.transient,
		Lit:       lit,
		Enabled:   true,
	}
}

// Shutdown stops all animations, blanks the ring and releases the strip and
// button. It is safe to call more than once.
func (a *Animator) Shutdown() {
	a.ctlMu.Lock()
	defer a.ctlMu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	close(a.quit)
	a.stopLoopLocked()
	a.requested = Off()

	done := make(chan struct{})
	go func() {
		a.transients.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.opts.ShutdownTimeout):
		slog.Warn("led: transient animations did not finish in time")
	}

	if a.strip != nil {
		a.drawMu.Lock()
		a.current = ModeNone
		fill(a.pixels, hardware.Off)
		a.showLocked(a.brightness)
		a.drawMu.Unlock()
		if err := a.strip.Close(); err != nil {
			slog.Warn("led: strip close failed", "err", err)
		}
	}
	if a.button != nil {
		a.SetButton(false)
		if err := a.button.Close(); err != nil {
			slog.Warn("led: button release failed", "err", err)
		}
	}
	slog.Info("led: shut down")
}

func (a *Animator) normalize(c Continuous) Continuous {
	switch c.Mode {
	case ModePausedSweep:
		c.Count = clamp(c.Count, 0, a.size)
		c.Ratio = 0
	case ModeRemaining:
		if c.Ratio < 0 {
			c.Ratio = 0
		}
		if c.Ratio > 1 {
			c.Ratio = 1
		}
		c.Count = 0
	default:
		c.Count, c.Ratio = 0, 0
	}
	return c
}

// drawRemaining redraws the countdown only when its lit count changed.
func (a *Animator) drawRemaining(ratio float64) {
	n := LitCount(a.size, ratio)
	if a.remainHint.Load() == int64(n) {
		return
	}
	a.drawMu.Lock()
	defer a.drawMu.Unlock()
	if a.current != ModeRemaining || a.lastRemain == n {
		return
	}
	progressFrame(a.pixels, n, a.opts.ProgressColor)
	a.showLocked(a.brightness)
	a.lastRemain = n
	a.remainHint.Store(int64(n))
}

func (a *Animator) standbyFrame(step int) {
	cometFrame(a.pixels, step, a.opts.StandbyColor)
	a.showLocked(a.idle)
}

func (a *Animator) sweepFrame(step int) {
	n := int(a.pausedRemain.Load())
	sweepFrame(a.pixels, n, bounce(step, n), a.opts.SweepColor)
	a.showLocked(a.brightness)
}

func (a *Animator) startLoopLocked(frame func(step int), every time.Duration) {
	h := &loopHandle{stop: make(chan struct{}), done: make(chan struct{})}
	a.loop = h
	a.loopStarts++
	go a.runLoop(h, frame, every)
}

// runLoop draws one frame per tick. The stop check happens under the draw
// lock so a stopped loop can never land another frame.
func (a *Animator) runLoop(h *loopHandle, frame func(step int), every time.Duration) {
	defer close(h.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for step := 0; ; step++ {
		a.drawMu.Lock()
		select {
		case <-h.stop:
			a.drawMu.Unlock()
			return
		default:
		}
		frame(step)
		a.drawMu.Unlock()

		select {
		case <-h.stop:
			return
		case <-t.C:
		}
	}
}

// stopLoopLocked signals the running loop and waits for it to exit.
func (a *Animator) stopLoopLocked() {
	h := a.loop
	if h == nil {
		return
	}
	a.loop = nil
	close(h.stop)
	select {
	case <-h.done:
	case <-time.After(a.opts.StopTimeout):
		slog.Warn("led: animation loop did not stop in time", "timeout", a.opts.StopTimeout)
	}
}

// pause sleeps for d unless Shutdown is called. It reports false on shutdown.
func (a *Animator) pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-a.quit:
		return false
	}
}

func (a *Animator) levelLocked() uint8 {
	if a.current == ModeStandby {
		return a.idle
	}
	return a.brightness
}

// showLocked pushes the buffer to the strip. Frame errors are logged and
// the caller carries on with the next frame.
func (a *Animator) showLocked(level uint8) {
	for i, c := range a.pixels {
		a.strip.SetPixel(i, c)
	}
	a.strip.SetBrightness(level)
	if err := a.strip.Show(); err != nil {
		a.frameErrors++
		if a.frameErrors == 1 || a.frameErrors%100 == 0 {
			slog.Warn("led: frame failed", "err", err, "failures", a.frameErrors)
		} else {
			slog.Debug("led: frame failed", "err", err)
		}
		return
	}
	a.frameErrors = 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
