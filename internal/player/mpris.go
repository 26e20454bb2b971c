package player

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/micro-nova/amplipi-rfid/internal/models"
)

const (
	mprisPath        = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	mprisBusPrefix   = "org.mpris.MediaPlayer2."
)

// MPRIS controls any MPRIS2-capable player over D-Bus. MPRIS has no
// tracklist, so Add remembers the URI and the following Play opens it.
type MPRIS struct {
	busName string
	system  bool

	mu      sync.Mutex
	conn    *dbus.Conn
	pending string
}

// NewMPRIS creates a client for the player registered as
// org.mpris.MediaPlayer2.<name>. system selects the system bus.
func NewMPRIS(name string, system bool) *MPRIS {
	if name == "" {
		name = "mopidy"
	}
	return &MPRIS{busName: mprisBusPrefix + name, system: system}
}

func (p *MPRIS) object() (dbus.BusObject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		var conn *dbus.Conn
		var err error
		if p.system {
			conn, err = dbus.ConnectSystemBus()
		} else {
			conn, err = dbus.ConnectSessionBus()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: mpris: connect bus: %v", models.ErrPlayer, err)
		}
		slog.Debug("mpris: connected", "bus_name", p.busName, "system", p.system)
		p.conn = conn
	}
	return p.conn.Object(p.busName, mprisPath), nil
}

func (p *MPRIS) property(name string) (dbus.Variant, error) {
	obj, err := p.object()
	if err != nil {
		return dbus.Variant{}, err
	}
	v, err := obj.GetProperty(mprisPlayerIface + "." + name)
	if err != nil {
		return dbus.Variant{}, fmt.Errorf("%w: mpris: get %s: %v", models.ErrPlayer, name, err)
	}
	return v, nil
}

func (p *MPRIS) method(ctx context.Context, name string, args ...any) error {
	obj, err := p.object()
	if err != nil {
		return err
	}
	if call := obj.CallWithContext(ctx, mprisPlayerIface+"."+name, 0, args...); call.Err != nil {
		return fmt.Errorf("%w: mpris: %s: %v", models.ErrPlayer, name, call.Err)
	}
	return nil
}

func (p *MPRIS) State(ctx context.Context) (models.PlaybackState, error) {
	v, err := p.property("PlaybackStatus")
	if err != nil {
		return models.StateStopped, err
	}
	s, _ := v.Value().(string)
	return models.ParsePlaybackState(s), nil
}

func (p *MPRIS) Position(ctx context.Context) (time.Duration, error) {
	v, err := p.property("Position")
	if err != nil {
		return 0, err
	}
	us, ok := asInt64(v.Value())
	if !ok {
		return 0, nil
	}
	return time.Duration(us) * time.Microsecond, nil
}

func (p *MPRIS) CurrentTrack(ctx context.Context) (models.Track, error) {
	v, err := p.property("Metadata")
	if err != nil {
		return models.Track{}, err
	}
	meta, ok := v.Value().(map[string]dbus.Variant)
	if !ok {
		return models.Track{}, nil
	}
	var t models.Track
	if u, ok := meta["xesam:url"]; ok {
		t.URI, _ = u.Value().(string)
	}
	if l, ok := meta["mpris:length"]; ok {
		if us, ok := asInt64(l.Value()); ok {
			t.Length = time.Duration(us) * time.Microsecond
		}
	}
	return t, nil
}

// Clear forgets any URI queued by Add.
func (p *MPRIS) Clear(ctx context.Context) error {
	p.mu.Lock()
	p.pending = ""
	p.mu.Unlock()
	return nil
}

func (p *MPRIS) Add(ctx context.Context, uri string) error {
	if _, err := url.Parse(uri); err != nil {
		return fmt.Errorf("mpris: add: %w", err)
	}
	p.mu.Lock()
	p.pending = uri
	p.mu.Unlock()
	return nil
}

// Play opens the URI queued by Add, or resumes playback when none is queued.
func (p *MPRIS) Play(ctx context.Context) error {
	p.mu.Lock()
	uri := p.pending
	p.pending = ""
	p.mu.Unlock()
	if uri != "" {
		return p.method(ctx, "OpenUri", uri)
	}
	return p.method(ctx, "Play")
}

func (p *MPRIS) Pause(ctx context.Context) error { return p.method(ctx, "Pause") }

func (p *MPRIS) Stop(ctx context.Context) error { return p.method(ctx, "Stop") }

// Close releases the bus connection.
func (p *MPRIS) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// asInt64 accepts the integer types players use for microsecond values.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

var _ Player = (*MPRIS)(nil)
