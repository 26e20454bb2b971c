package bridge_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/amplipi-rfid/internal/bridge"
	"github.com/micro-nova/amplipi-rfid/internal/events"
	"github.com/micro-nova/amplipi-rfid/internal/hardware"
	"github.com/micro-nova/amplipi-rfid/internal/led"
	"github.com/micro-nova/amplipi-rfid/internal/mappings"
	"github.com/micro-nova/amplipi-rfid/internal/models"
	"github.com/micro-nova/amplipi-rfid/internal/player"
	"github.com/micro-nova/amplipi-rfid/internal/reader"
)

type fixture struct {
	bridge *bridge.Bridge
	reader *hardware.MockReader
	reset  *hardware.MockResetLine
	strip  *hardware.MockStrip
	button *hardware.MockLight
	player *player.Mock
	store  *mappings.Store
	bus    *events.Bus
	sounds models.Sounds
}

func testOptions() bridge.Options {
	o := bridge.DefaultOptions()
	o.Reader.PollInterval = 5 * time.Millisecond
	o.Reader.Debounce = 10 * time.Millisecond
	o.Reader.ErrorSleep = 5 * time.Millisecond
	o.Reader.RetryInterval = 5 * time.Millisecond
	o.Reader.StopTimeout = time.Second
	o.Progress.Interval = 10 * time.Millisecond
	o.Progress.StopTimeout = time.Second
	o.FlashDuration = 5 * time.Millisecond
	o.ScanDelay = time.Millisecond
	return o
}

func newFixture(t *testing.T, sounds models.Sounds) *fixture {
	t.Helper()
	store, err := mappings.Open(mappings.Options{DSN: filepath.Join(t.TempDir(), "mappings.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledOpts := led.DefaultOptions()
	ledOpts.StandbyInterval = 5 * time.Millisecond
	ledOpts.SweepInterval = 5 * time.Millisecond

	f := &fixture{
		reader: hardware.NewMockReader(),
		reset:  &hardware.MockResetLine{},
		strip:  hardware.NewMockStrip(8),
		button: &hardware.MockLight{},
		player: player.NewMock(),
		store:  store,
		bus:    events.NewBus(),
		sounds: sounds,
	}
	anim := led.New(f.strip, f.button, ledOpts)
	opener := hardware.NewMockOpener(f.reader)

	b, err := bridge.New(bridge.Deps{
		Open:     opener.Open,
		Reset:    f.reset,
		Animator: anim,
		Player:   f.player,
		Store:    store,
		Bus:      f.bus,
		Sounds:   func() models.Sounds { return f.sounds },
		Probe: func(context.Context, string) (time.Duration, error) {
			return 0, models.ErrPlayer
		},
	}, testOptions())
	require.NoError(t, err)
	f.bridge = b
	t.Cleanup(func() { b.Stop(context.Background()) })
	return f
}

func TestNew_RequiresReader(t *testing.T) {
	_, err := bridge.New(bridge.Deps{}, bridge.DefaultOptions())
	require.ErrorIs(t, err, models.ErrNoReader)
}

func TestBridge_ScannedTagPlaysMappedURIOnce(t *testing.T) {
	f := newFixture(t, models.Sounds{})
	require.NoError(t, f.store.Set("123", models.PlayURI("queue:track:test"), ""))

	f.bridge.Start(context.Background())
	f.reader.Push(hardware.MockRead{Tag: "123"})

	require.Eventually(t, func() bool { return len(f.player.Calls()) >= 3 },
		2*time.Second, 5*time.Millisecond)
	// Give a duplicate delivery the chance to show up.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"clear", "add queue:track:test", "play"}, f.player.Calls())
	ev, ok := f.bridge.LastScan()
	require.True(t, ok)
	assert.Equal(t, models.Tag(123), ev.Tag)
	assert.Equal(t, "queue:track:test", ev.URI())
}

func TestBridge_UnmappedTagPublishesWithoutMapping(t *testing.T) {
	f := newFixture(t, models.Sounds{})
	ch := f.bus.Subscribe("test")

	f.bridge.HandleTag(999)

	select {
	case ev := <-ch:
		assert.Equal(t, models.Tag(999), ev.Tag)
		assert.Nil(t, ev.Mapping)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
	assert.Empty(t, f.player.Calls())
}

func TestBridge_ConfigFallbackMapping(t *testing.T) {
	store, err := mappings.Open(mappings.Options{
		DSN:      filepath.Join(t.TempDir(), "mappings.db"),
		Fallback: map[string]string{"7": "STOP"},
	})
	require.NoError(t, err)
	defer store.Close()

	p := player.NewMock()
	b, err := bridge.New(bridge.Deps{
		Open:     hardware.NewMockOpener(hardware.NewMockReader()).Open,
		Animator: led.New(nil, nil, led.DefaultOptions()),
		Player:   p,
		Store:    store,
	}, testOptions())
	require.NoError(t, err)

	b.HandleTag(7)
	assert.Equal(t, []string{"stop"}, p.Calls())
}

func TestBridge_DetectedSoundPlaysBeforeAction(t *testing.T) {
	f := newFixture(t, models.Sounds{Detected: "file:///sounds/beep.wav"})
	require.NoError(t, f.store.Set("5", models.PlayURI("local:track:song.mp3"), "song"))

	f.bridge.HandleTag(5)

	assert.Equal(t, []string{
		"clear", "add file:///sounds/beep.wav", "play",
		"clear", "add local:track:song.mp3", "play",
	}, f.player.Calls())
}

func TestExecute_TogglePlay(t *testing.T) {
	f := newFixture(t, models.Sounds{})
	ctx := context.Background()

	require.NoError(t, f.bridge.Execute(ctx, models.TogglePlay()))
	f.player.SetPlayback(models.StatePlaying, 0, models.Track{})
	require.NoError(t, f.bridge.Execute(ctx, models.TogglePlay()))
	require.NoError(t, f.bridge.Execute(ctx, models.Stop()))

	assert.Equal(t, []string{"play", "pause", "stop"}, f.player.Calls())
}

func TestExecute_PlayerFailureIsReturned(t *testing.T) {
	f := newFixture(t, models.Sounds{})
	f.player.SetFail(true)

	err := f.bridge.Execute(context.Background(), models.PlayURI("x"))
	require.ErrorIs(t, err, models.ErrPlayer)
	assert.Equal(t, []string{"clear"}, f.player.Calls())
}

func TestExecute_RejectsEmptyURI(t *testing.T) {
	f := newFixture(t, models.Sounds{})
	require.Error(t, f.bridge.Execute(context.Background(), models.PlayURI("")))
	assert.Empty(t, f.player.Calls())
}

func TestBridge_StartStopLifecycle(t *testing.T) {
	f := newFixture(t, models.Sounds{
		Welcome:  "file:///sounds/hello.wav",
		Farewell: "file:///sounds/bye.wav",
	})
	ctx := context.Background()

	f.bridge.Start(ctx)
	f.bridge.Start(ctx)
	assert.True(t, f.button.On())
	assert.Equal(t, []string{"clear", "add file:///sounds/hello.wav", "play"}, f.player.Calls())
	require.Eventually(t, func() bool { return f.bridge.Reader().State() == reader.StateReady },
		2*time.Second, 5*time.Millisecond)

	f.bridge.Stop(ctx)
	f.bridge.Stop(ctx)

	calls := f.player.Calls()
	assert.Equal(t, []string{"clear", "add file:///sounds/bye.wav", "play"}, calls[len(calls)-3:])
	assert.True(t, f.strip.Closed())
	assert.True(t, f.button.Closed())
	assert.False(t, f.button.On())
	assert.Equal(t, 0, f.strip.Lit())
	assert.True(t, f.reset.Released())
}

func TestApplySettings_ClampsAndRecords(t *testing.T) {
	f := newFixture(t, models.Sounds{})

	f.bridge.ApplySettings(models.LEDSettings{
		Welcome:        false,
		Farewell:       true,
		Remaining:      false,
		Brightness:     400,
		IdleBrightness: -5,
	})

	got := f.bridge.Settings()
	assert.Equal(t, models.MaxBrightness, got.Brightness)
	assert.Equal(t, 0, got.IdleBrightness)
	assert.False(t, got.Remaining)
	assert.Equal(t, got, f.bridge.Status().Settings)
}

func TestStatus_ReportsLastScan(t *testing.T) {
	f := newFixture(t, models.Sounds{})

	st := f.bridge.Status()
	assert.Nil(t, st.LastScan)
	assert.Equal(t, "uninitialized", st.ReaderState)
	assert.True(t, st.LED.Enabled)

	f.bridge.HandleTag(42)
	st = f.bridge.Status()
	require.NotNil(t, st.LastScan)
	assert.Equal(t, models.Tag(42), st.LastScan.Tag)
}
