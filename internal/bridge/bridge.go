// Package bridge ties the reader, the LED ring and the player together. A
// detected tag is looked up in the mapping store and its action executed
// on the player; the ring confirms every scan and follows playback.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/micro-nova/amplipi-rfid/internal/events"
	"github.com/micro-nova/amplipi-rfid/internal/hardware"
	"github.com/micro-nova/amplipi-rfid/internal/led"
	"github.com/micro-nova/amplipi-rfid/internal/mappings"
	"github.com/micro-nova/amplipi-rfid/internal/models"
	"github.com/micro-nova/amplipi-rfid/internal/player"
	"github.com/micro-nova/amplipi-rfid/internal/progress"
	"github.com/micro-nova/amplipi-rfid/internal/reader"
)

// Deps are the components the bridge drives. Bus, Sounds and Reset may be nil.
type Deps struct {
	Open     hardware.Opener
	Reset    hardware.ResetLine
	Animator *led.Animator
	Player   player.Player
	Store    *mappings.Store
	Bus      *events.Bus
	// Sounds returns the current sounds.json content.
	Sounds func() models.Sounds
	// Probe measures local files the player reports no length for.
	Probe progress.ProbeFunc
}

// Options holds the bridge timings.
type Options struct {
	Reader        reader.Config
	Progress      progress.Config
	FlashDuration time.Duration
	ScanDelay     time.Duration
	CallTimeout   time.Duration
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		Reader:        reader.DefaultConfig(),
		Progress:      progress.DefaultConfig(),
		FlashDuration: 250 * time.Millisecond,
		ScanDelay:     50 * time.Millisecond,
		CallTimeout:   5 * time.Second,
	}
}

// Status is a point-in-time view of the bridge.
type Status struct {
	ReaderState string             `json:"reader_state"`
	Reader      reader.Stats       `json:"reader"`
	LED         led.Status         `json:"led"`
	Settings    models.LEDSettings `json:"settings"`
	LastScan    *models.TagEvent   `json:"last_scan,omitempty"`
}

// Bridge is the orchestrator. The reader loop calls HandleTag; everything
// else is driven by Start, Stop and ApplySettings.
type Bridge struct {
	deps    Deps
	opts    Options
	reader  *reader.Loop
	tracker *progress.Tracker

	mu       sync.RWMutex
	settings models.LEDSettings
	last     models.TagEvent
	hasLast  bool
	started  bool
}

// New wires a bridge. The reader loop and the progress tracker are created
// here so the loop's callback is the bridge itself.
func New(deps Deps, opts Options) (*Bridge, error) {
	if deps.Open == nil {
		return nil, fmt.Errorf("bridge: %w", models.ErrNoReader)
	}
	if deps.Player == nil || deps.Store == nil || deps.Animator == nil {
		return nil, errors.New("bridge: player, store and animator are required")
	}
	b := &Bridge{
		deps:     deps,
		opts:     opts,
		settings: models.DefaultLEDSettings(),
	}
	b.reader = reader.New(deps.Open, deps.Reset, b.HandleTag, opts.Reader)
	b.tracker = progress.New(deps.Player, deps.Animator, opts.Progress, deps.Probe)
	return b, nil
}

// Mappings returns the mapping store for layers that edit mappings.
func (b *Bridge) Mappings() *mappings.Store { return b.deps.Store }

// Reader returns the reader loop.
func (b *Bridge) Reader() *reader.Loop { return b.reader }

// Start lights the button, plays the welcome animation and sound, and starts
// the reader loop and the progress tracker.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	settings := b.settings
	b.mu.Unlock()

	anim := b.deps.Animator
	anim.SetButton(true)
	if settings.Welcome {
		anim.Scan(led.Welcome, led.ColorScan, b.opts.ScanDelay)
	}
	anim.SetContinuous(led.Standby())
	b.playSound(ctx, "welcome", b.sounds().Welcome)

	b.reader.Start()
	b.tracker.Start()
	slog.Info("bridge: started", "ring", anim.RingSize(), "remaining", settings.Remaining)
}

// Stop plays the farewell sound and animation, stops the loops and
// releases the ring.
func (b *Bridge) Stop(ctx context.Context) {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	settings := b.settings
	b.mu.Unlock()

	b.playSound(ctx, "farewell", b.sounds().Farewell)
	b.reader.Stop()
	b.tracker.Stop()

	anim := b.deps.Animator
	if settings.Farewell {
		anim.SetContinuous(led.Off())
		anim.Scan(led.Farewell, led.ColorScan, b.opts.ScanDelay)
	}
	anim.Shutdown()
	slog.Info("bridge: stopped")
}

// ApplySettings applies led.json. It is called at start and whenever the
// file changes.
func (b *Bridge) ApplySettings(s models.LEDSettings) {
	s.Brightness = models.ClampBrightness(s.Brightness)
	s.IdleBrightness = models.ClampBrightness(s.IdleBrightness)

	b.mu.Lock()
	b.settings = s
	b.mu.Unlock()

	b.deps.Animator.SetBrightness(uint8(s.Brightness), uint8(s.IdleBrightness))
	b.tracker.SetRemainingEnabled(s.Remaining)
	slog.Debug("bridge: settings applied",
		"brightness", s.Brightness, "idle_brightness", s.IdleBrightness,
		"welcome", s.Welcome, "farewell", s.Farewell, "remaining", s.Remaining)
}

// Settings returns the LED settings in effect.
func (b *Bridge) Settings() models.LEDSettings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// HandleTag reacts to one detection. It runs on the reader goroutine.
func (b *Bridge) HandleTag(tag models.Tag) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.CallTimeout)
	defer cancel()

	slog.Info("bridge: tag detected", "tag", tag)
	m, mapped := b.deps.Store.Get(tag.Key())
	if mapped {
		b.deps.Animator.Flash(led.ColorConfirm, b.opts.FlashDuration)
	} else {
		b.deps.Animator.Flash(led.ColorUnknown, b.opts.FlashDuration)
	}
	b.playSound(ctx, "detected", b.sounds().Detected)

	ev := models.TagEvent{ID: uuid.NewString(), Tag: tag, At: time.Now()}
	if mapped {
		ev.Mapping = &m
	}
	b.mu.Lock()
	b.last, b.hasLast = ev, true
	b.mu.Unlock()
	if b.deps.Bus != nil {
		b.deps.Bus.Publish(ev)
	}

	if !mapped {
		slog.Warn("bridge: tag ignored", "tag", tag, "err", models.ErrUnknownTag)
		return
	}
	if err := b.Execute(ctx, m.Action); err != nil {
		slog.Error("bridge: action failed", "tag", tag, "action", m.Action, "err", err)
	}
}

// Execute runs action on the player.
func (b *Bridge) Execute(ctx context.Context, action models.Action) error {
	p := b.deps.Player
	switch action.Kind {
	case models.ActionTogglePlay:
		state, err := p.State(ctx)
		if err != nil {
			return fmt.Errorf("bridge: toggle: %w", err)
		}
		if state == models.StatePlaying {
			return p.Pause(ctx)
		}
		return p.Play(ctx)
	case models.ActionStop:
		return p.Stop(ctx)
	default:
		if action.URI == "" {
			return errors.New("bridge: play: empty uri")
		}
		slog.Info("bridge: playing", "uri", action.URI)
		return playURI(ctx, p, action.URI)
	}
}

// LastScan returns the most recent detection.
func (b *Bridge) LastScan() (models.TagEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.hasLast
}

// Status returns the reader, ring and last scan state.
func (b *Bridge) Status() Status {
	st := Status{
		ReaderState: b.reader.State().String(),
		Reader:      b.reader.Stats(),
		LED:         b.deps.Animator.Status(),
		Settings:    b.Settings(),
	}
	if ev, ok := b.LastScan(); ok {
		st.LastScan = &ev
	}
	return st
}

func (b *Bridge) sounds() models.Sounds {
	if b.deps.Sounds == nil {
		return models.DefaultSounds()
	}
	return b.deps.Sounds()
}

func (b *Bridge) playSound(ctx context.Context, name, uri string) {
	if uri == "" {
		return
	}
	slog.Info("bridge: playing sound", "sound", name, "uri", uri)
	if err := playURI(ctx, b.deps.Player, uri); err != nil {
		slog.Warn("bridge: sound failed", "sound", name, "err", err)
	}
}

func playURI(ctx context.Context, p player.Player, uri string) error {
	if err := p.Clear(ctx); err != nil {
		return fmt.Errorf("bridge: clear: %w", err)
	}
	if err := p.Add(ctx, uri); err != nil {
		return fmt.Errorf("bridge: add: %w", err)
	}
	if err := p.Play(ctx); err != nil {
		return fmt.Errorf("bridge: play: %w", err)
	}
	return nil
}
