// Package hardware provides the hardware abstraction layer for the RFID
// bridge: tag readers, the reader reset line, the LED ring and the button
// light. Each capability is an interface with a real (periph, serial, evdev,
// gpiocdev) implementation and a mock used by tests and --mock runs.
package hardware

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/micro-nova/amplipi-rfid/internal/models"
)

// RawTag is an identifier as produced by a reader backend: an integer type,
// a decimal or 0x-prefixed hex string, or a big-endian byte slice.
type RawTag any

// TagReader is a non-blocking reader handle.
type TagReader interface {
	// TryRead polls once. It returns (nil, nil) when no tag is present.
	TryRead() (RawTag, error)
	Close() error
}

// BlockingReader is a reader whose primitive waits up to a timeout.
// It returns ErrReadTimeout when nothing was read in time.
type BlockingReader interface {
	ReadTimeout(d time.Duration) (RawTag, error)
	Close() error
}

// ErrReadTimeout is returned by BlockingReader when no tag arrived in time.
var ErrReadTimeout = errors.New("hardware: read timeout")

// Bounded adapts a BlockingReader into a TagReader that waits at most d per poll.
func Bounded(r BlockingReader, d time.Duration) TagReader {
	return &boundedReader{r: r, timeout: d}
}

type boundedReader struct {
	r       BlockingReader
	timeout time.Duration
}

func (b *boundedReader) TryRead() (RawTag, error) {
	raw, err := b.r.ReadTimeout(b.timeout)
	if errors.Is(err, ErrReadTimeout) {
		return nil, nil
	}
	return raw, err
}

func (b *boundedReader) Close() error { return b.r.Close() }

// Opener acquires a fresh reader handle.
type Opener func() (TagReader, error)

// ResetLine drives the reader's reset pin.
type ResetLine interface {
	// Pulse drives the line low, waits, drives it high and waits again.
	Pulse() error
	// Release returns the pin to a high-impedance input.
	Release() error
}

// RGB is a pixel color.
type RGB struct {
	R, G, B uint8
}

// Scale returns c with every channel multiplied by f in [0, 1].
func (c RGB) Scale(f float64) RGB {
	if f <= 0 {
		return RGB{}
	}
	if f >= 1 {
		return c
	}
	return RGB{
		R: uint8(float64(c.R)*f + 0.5),
		G: uint8(float64(c.G)*f + 0.5),
		B: uint8(float64(c.B)*f + 0.5),
	}
}

// Off is the unlit pixel color.
var Off = RGB{}

// Strip is an addressable LED strip.
type Strip interface {
	Len() int
	SetPixel(i int, c RGB)
	// SetBrightness sets the global brightness applied on Show (0-255).
	SetBrightness(level uint8)
	Show() error
	Close() error
}

// Light is a single on/off output such as the button LED.
type Light interface {
	Set(on bool) error
	Close() error
}

// ParseRawTag converts a backend identifier into a Tag.
func ParseRawTag(raw RawTag) (models.Tag, error) {
	switch v := raw.(type) {
	case models.Tag:
		return v, nil
	case uint64:
		return models.Tag(v), nil
	case uint32:
		return models.Tag(v), nil
	case uint:
		return models.Tag(v), nil
	case int:
		return fromSigned(int64(v))
	case int64:
		return fromSigned(v)
	case int32:
		return fromSigned(int64(v))
	case string:
		return parseTagString(v)
	case []byte:
		return parseTagBytes(v)
	case fmt.Stringer:
		return parseTagString(v.String())
	case nil:
		return 0, errors.New("hardware: nil tag")
	default:
		return 0, fmt.Errorf("hardware: unsupported tag type %T", raw)
	}
}

func fromSigned(v int64) (models.Tag, error) {
	if v < 0 {
		return 0, fmt.Errorf("hardware: negative tag %d", v)
	}
	return models.Tag(v), nil
}

// parseTagString accepts decimal, or hex only when prefixed with 0x.
func parseTagString(s string) (models.Tag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("hardware: empty tag string")
	}
	base := 10
	if h, ok := cutHexPrefix(s); ok {
		s, base = h, 16
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("hardware: unparseable tag %q", s)
	}
	return models.Tag(v), nil
}

func cutHexPrefix(s string) (string, bool) {
	if h, ok := strings.CutPrefix(s, "0x"); ok {
		return h, true
	}
	return strings.CutPrefix(s, "0X")
}

func parseTagBytes(b []byte) (models.Tag, error) {
	if len(b) == 0 || len(b) > 8 {
		return 0, fmt.Errorf("hardware: tag has %d bytes", len(b))
	}
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return models.Tag(binary.BigEndian.Uint64(buf[:])), nil
}
