package reader

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/micro-nova/amplipi-rfid/internal/hardware"
	"github.com/micro-nova/amplipi-rfid/internal/models"
)

var errBus = errors.New("spi: bus timeout")

func fastConfig() Config {
	return Config{
		PollInterval:   time.Millisecond,
		Debounce:       time.Millisecond,
		ErrorSleep:     time.Millisecond,
		RetryInterval:  time.Millisecond,
		RepeatWindow:   time.Second,
		ErrorThreshold: 3,
		SuccessTimeout: 10 * time.Second,
		StopTimeout:    time.Second,
	}
}

type recorder struct {
	mu   sync.Mutex
	tags []models.Tag
}

func (r *recorder) onTag(tag models.Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tag)
}

func (r *recorder) got() []models.Tag {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Tag(nil), r.tags...)
}

func newTestLoop(script ...hardware.MockRead) (*Loop, *hardware.MockReader, *hardware.MockOpener, *hardware.MockResetLine, *recorder) {
	reader := hardware.NewMockReader(script...)
	opener := hardware.NewMockOpener(reader)
	reset := &hardware.MockResetLine{}
	rec := &recorder{}
	l := New(opener.Open, reset, rec.onTag, fastConfig())
	return l, reader, opener, reset, rec
}

func TestStep_ErrorsThenTag_OneRecovery(t *testing.T) {
	l, reader, opener, reset, rec := newTestLoop(
		hardware.MockRead{Err: errBus},
		hardware.MockRead{Err: errBus},
		hardware.MockRead{Err: errBus},
		hardware.MockRead{Tag: 42},
		hardware.MockRead{},
	)
	l.lastSuccess = l.now()

	for i := 0; i < 5; i++ {
		l.step()
	}

	if reader.Remaining() != 0 {
		t.Fatalf("script not consumed, %d reads left", reader.Remaining())
	}
	st := l.Stats()
	if st.Recoveries != 1 {
		t.Errorf("Recoveries = %d, want 1", st.Recoveries)
	}
	if reset.Pulses() != 1 {
		t.Errorf("reset pulses = %d, want 1", reset.Pulses())
	}
	if opener.Opens() != 2 {
		t.Errorf("opens = %d, want 2 (initial + reinit)", opener.Opens())
	}
	got := rec.got()
	if len(got) != 1 || got[0] != 42 {
		t.Errorf("callback tags = %v, want [42]", got)
	}
	if l.consecutiveErrors != 0 {
		t.Errorf("consecutiveErrors = %d, want 0", l.consecutiveErrors)
	}
	if st.State != StateReady {
		t.Errorf("State = %v, want ready", st.State)
	}
}

func TestStep_TwoErrorsDoNotReset(t *testing.T) {
	l, _, _, reset, _ := newTestLoop(
		hardware.MockRead{Err: errBus},
		hardware.MockRead{Err: errBus},
		hardware.MockRead{Tag: 7},
	)
	l.lastSuccess = l.now()
	for i := 0; i < 3; i++ {
		l.step()
	}
	if reset.Pulses() != 0 {
		t.Errorf("reset pulses = %d, want 0", reset.Pulses())
	}
	if l.consecutiveErrors != 0 {
		t.Errorf("consecutiveErrors = %d, want 0 after a good read", l.consecutiveErrors)
	}
}

func TestStep_SuccessTimeoutTriggersRecovery(t *testing.T) {
	l, _, _, _, _ := newTestLoop(hardware.MockRead{}, hardware.MockRead{Err: errBus})
	l.cfg.ErrorThreshold = 100

	clock := time.Unix(1000, 0)
	l.now = func() time.Time { return clock }
	l.lastSuccess = clock

	l.step() // acquire + empty read
	clock = clock.Add(11 * time.Second)
	l.step() // first error, but 11s since the last success

	if got := l.Stats().Recoveries; got != 1 {
		t.Errorf("Recoveries = %d, want 1", got)
	}
}

func TestStep_DuplicateWithinWindowIsSuppressed(t *testing.T) {
	l, _, _, _, rec := newTestLoop(
		hardware.MockRead{Tag: "42"},
		hardware.MockRead{Tag: []byte{42}},
		hardware.MockRead{},
		hardware.MockRead{Tag: 43},
	)
	for i := 0; i < 4; i++ {
		l.step()
	}
	got := rec.got()
	if len(got) != 2 || got[0] != 42 || got[1] != 43 {
		t.Errorf("callback tags = %v, want [42 43]", got)
	}
	if s := l.Stats().Suppressed; s != 1 {
		t.Errorf("Suppressed = %d, want 1", s)
	}
}

func TestStep_RepeatAfterWindowIsReported(t *testing.T) {
	l, _, _, _, rec := newTestLoop(hardware.MockRead{Tag: 5}, hardware.MockRead{Tag: 5})
	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }

	l.step()
	clock = clock.Add(3 * time.Second)
	l.step()

	if got := rec.got(); len(got) != 2 {
		t.Errorf("callback tags = %v, want two reports", got)
	}
}

func TestStep_UnparseableTagIsNoRead(t *testing.T) {
	l, _, _, _, rec := newTestLoop(hardware.MockRead{Tag: "zz-not-hex"}, hardware.MockRead{Tag: 9})
	if d := l.step(); d != l.cfg.PollInterval {
		t.Errorf("step() sleep = %v, want poll interval", d)
	}
	l.step()
	if got := rec.got(); len(got) != 1 || got[0] != 9 {
		t.Errorf("callback tags = %v, want [9]", got)
	}
}

func TestStep_AcquireRetriesOnceAfterReset(t *testing.T) {
	l, _, opener, reset, _ := newTestLoop()
	opener.FailOpens(1)

	l.step()
	if l.handle == nil {
		t.Fatal("handle is nil after retry")
	}
	if opener.Opens() != 2 || reset.Pulses() != 1 {
		t.Errorf("opens = %d, pulses = %d; want 2, 1", opener.Opens(), reset.Pulses())
	}
}

func TestStep_AcquireFailureStaysUninitialized(t *testing.T) {
	l, _, opener, _, _ := newTestLoop()
	opener.FailOpens(2)

	if d := l.step(); d != l.cfg.RetryInterval {
		t.Errorf("step() sleep = %v, want retry interval", d)
	}
	if l.State() != StateUninitialized {
		t.Errorf("State = %v, want uninitialized", l.State())
	}
	l.step()
	if l.State() != StateReady {
		t.Errorf("State = %v, want ready after next tick", l.State())
	}
}

func TestStep_FailedRecoveryStillClearsCounter(t *testing.T) {
	l, _, opener, reset, _ := newTestLoop(
		hardware.MockRead{Err: errBus},
		hardware.MockRead{Err: errBus},
		hardware.MockRead{Err: errBus},
	)
	l.lastSuccess = l.now()
	l.step()
	l.step()
	opener.FailOpens(2)
	l.step()

	if l.consecutiveErrors != 0 {
		t.Errorf("consecutiveErrors = %d, want 0", l.consecutiveErrors)
	}
	if l.handle != nil {
		t.Error("handle should be discarded after failed recovery")
	}
	if reset.Pulses() != 2 {
		t.Errorf("pulses = %d, want 2 (reset + second attempt)", reset.Pulses())
	}
	if l.State() != StateUninitialized {
		t.Errorf("State = %v, want uninitialized", l.State())
	}
}

func TestLoop_PanickingCallbackDoesNotStopPolling(t *testing.T) {
	reader := hardware.NewMockReader(hardware.MockRead{Tag: 1}, hardware.MockRead{Tag: 2})
	opener := hardware.NewMockOpener(reader)

	var mu sync.Mutex
	var seen []models.Tag
	second := make(chan struct{})
	l := New(opener.Open, nil, func(tag models.Tag) {
		mu.Lock()
		seen = append(seen, tag)
		mu.Unlock()
		if tag == 1 {
			panic("downstream failure")
		}
		close(second)
	}, fastConfig())

	l.Start()
	defer l.Stop()

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second tag was never reported")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Errorf("seen = %v, want [1 2]", seen)
	}
}

type panicReader struct{}

func (panicReader) TryRead() (hardware.RawTag, error) { panic("driver bug") }
func (panicReader) Close() error                      { return nil }

func TestStep_BackendPanicCountsAsError(t *testing.T) {
	l := New(func() (hardware.TagReader, error) { return panicReader{}, nil }, nil, nil, fastConfig())
	l.lastSuccess = l.now()
	l.step()
	if l.consecutiveErrors != 1 {
		t.Errorf("consecutiveErrors = %d, want 1", l.consecutiveErrors)
	}
}

func TestLoop_StopIsPromptAndReleases(t *testing.T) {
	cfg := fastConfig()
	cfg.Debounce = time.Hour
	reader := hardware.NewMockReader(hardware.MockRead{Tag: 3})
	reset := &hardware.MockResetLine{}
	detected := make(chan struct{}, 1)
	l := New(hardware.NewMockOpener(reader).Open, reset, func(models.Tag) { detected <- struct{}{} }, cfg)

	l.Start()
	l.Start() // second start is a no-op
	select {
	case <-detected:
	case <-time.After(2 * time.Second):
		t.Fatal("tag not reported")
	}

	start := time.Now()
	l.Stop()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Stop() took %v while sleeping out a 1h debounce", elapsed)
	}
	if l.State() != StateStopped {
		t.Errorf("State = %v, want stopped", l.State())
	}
	if !reset.Released() {
		t.Error("reset line not released")
	}
	l.Stop() // idempotent
}
