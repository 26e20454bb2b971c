package hardware

import "sync"

// HardwareError is returned when a hardware operation fails.
type HardwareError struct {
	msg string
}

func (e HardwareError) Error() string { return e.msg }

// ErrHardware creates a new hardware error.
func ErrHardware(msg string) error { return HardwareError{msg: msg} }

// MockRead is one scripted TryRead result.
type MockRead struct {
	Tag RawTag
	Err error
}

// MockReader is a thread-safe scripted TagReader. Once the script is
// exhausted every TryRead reports no tag.
type MockReader struct {
	mu     sync.Mutex
	script []MockRead
	reads  int
	closed int
}

// NewMockReader returns a reader that replays script in order.
func NewMockReader(script ...MockRead) *MockReader {
	return &MockReader{script: script}
}

// Push appends reads to the script.
func (m *MockReader) Push(reads ...MockRead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, reads...)
}

func (m *MockReader) TryRead() (RawTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if len(m.script) == 0 {
		return nil, nil
	}
	r := m.script[0]
	m.script = m.script[1:]
	return r.Tag, r.Err
}

func (m *MockReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Reads returns the number of TryRead calls.
func (m *MockReader) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Remaining returns the number of scripted reads not yet consumed.
func (m *MockReader) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

// MockOpener hands out the same MockReader on every Open and counts calls.
// Failures configured with FailOpens are returned first.
type MockOpener struct {
	mu       sync.Mutex
	reader   *MockReader
	failNext int
	opens    int
}

// NewMockOpener wraps r.
func NewMockOpener(r *MockReader) *MockOpener {
	return &MockOpener{reader: r}
}

// FailOpens makes the next n Open calls fail.
func (o *MockOpener) FailOpens(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failNext = n
}

// Open implements Opener.
func (o *MockOpener) Open() (TagReader, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.failNext > 0 {
		o.failNext--
		return nil, ErrHardware("mock: open failure configured")
	}
	return o.reader, nil
}

// Opens returns the number of Open calls.
func (o *MockOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// MockResetLine counts pulses.
type MockResetLine struct {
	mu       sync.Mutex
	pulses   int
	released bool
}

func (l *MockResetLine) Pulse() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pulses++
	return nil
}

func (l *MockResetLine) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

// Pulses returns the number of reset pulses issued.
func (l *MockResetLine) Pulses() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pulses
}

// Released reports whether Release was called.
func (l *MockResetLine) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

// MockStrip is an in-memory Strip that records every Show.
type MockStrip struct {
	mu         sync.Mutex
	pixels     []RGB
	shown      []RGB
	brightness uint8
	shows      int
	failShow   bool
	closed     bool
}

// NewMockStrip creates a strip with n pixels.
func NewMockStrip(n int) *MockStrip {
	return &MockStrip{pixels: make([]RGB, n), shown: make([]RGB, n), brightness: 255}
}

func (s *MockStrip) Len() int { return len(s.pixels) }

func (s *MockStrip) SetPixel(i int, c RGB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.pixels) {
		s.pixels[i] = c
	}
}

func (s *MockStrip) SetBrightness(level uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brightness = level
}

func (s *MockStrip) Show() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failShow {
		return ErrHardware("mock: show failure configured")
	}
	copy(s.shown, s.pixels)
	s.shows++
	return nil
}

func (s *MockStrip) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SetFailShow configures Show to fail.
func (s *MockStrip) SetFailShow(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failShow = fail
}

// Shows returns the number of successful Show calls.
func (s *MockStrip) Shows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shows
}

// Shown returns a copy of the pixels as of the last successful Show.
func (s *MockStrip) Shown() []RGB {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RGB, len(s.shown))
	copy(out, s.shown)
	return out
}

// Lit returns how many pixels were non-black at the last Show.
func (s *MockStrip) Lit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.shown {
		if p != Off {
			n++
		}
	}
	return n
}

// Brightness returns the last brightness level set.
func (s *MockStrip) Brightness() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brightness
}

// Closed reports whether Close was called.
func (s *MockStrip) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockLight records the last state set.
type MockLight struct {
	mu     sync.Mutex
	on     bool
	closed bool
}

func (l *MockLight) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = on
	return nil
}

func (l *MockLight) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// On reports the current state.
func (l *MockLight) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Closed reports whether Close was called.
func (l *MockLight) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
