package hardware

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"go.bug.st/serial"
)

// Framing bytes of RDM6300-style 125kHz readers.
const (
	stx = 0x02
	etx = 0x03
)

// frameLen is 10 hex data characters plus 2 hex checksum characters.
const frameLen = 12

// Serial is a UART RFID reader that sends STX <10 hex data> <2 hex xor> ETX.
type Serial struct {
	port serial.Port
	buf  []byte
}

// OpenSerial opens the serial device.
func OpenSerial(device string, baud int) (*Serial, error) {
	if baud == 0 {
		baud = 9600
	}
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", device, err)
	}
	s := &Serial{port: p}
	s.flush()
	return s, nil
}

// ReadTimeout waits up to d for one complete frame.
func (s *Serial) ReadTimeout(d time.Duration) (RawTag, error) {
	if err := s.port.SetReadTimeout(d); err != nil {
		return nil, fmt.Errorf("serial: set timeout: %w", err)
	}
	deadline := time.Now().Add(d)
	chunk := make([]byte, 32)
	for {
		if id, rest, ok := nextFrame(s.buf); ok {
			s.buf = rest
			return id, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrReadTimeout
		}
		n, err := s.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("serial: read: %w", err)
		}
		if n == 0 {
			return nil, ErrReadTimeout
		}
		s.buf = append(s.buf, chunk[:n]...)
		if len(s.buf) > 4*frameLen {
			s.buf = s.buf[len(s.buf)-2*frameLen:]
		}
	}
}

// Close releases the serial port.
func (s *Serial) Close() error {
	return s.port.Close()
}

func (s *Serial) flush() {
	_ = s.port.SetReadTimeout(10 * time.Millisecond)
	tmp := make([]byte, 64)
	for {
		n, err := s.port.Read(tmp)
		if err != nil || n == 0 {
			return
		}
	}
}

// nextFrame extracts the first well-formed frame from buf. Bytes before a
// bad or incomplete frame are dropped. The returned id is the 32-bit card
// number (the last 8 data characters).
func nextFrame(buf []byte) (id uint64, rest []byte, ok bool) {
	for {
		start := bytes.IndexByte(buf, stx)
		if start < 0 {
			return 0, nil, false
		}
		buf = buf[start:]
		end := bytes.IndexByte(buf, etx)
		if end < 0 {
			return 0, buf, false
		}
		body := buf[1:end]
		buf = buf[end+1:]
		if v, err := parseFrame(body); err == nil {
			return v, buf, true
		}
	}
}

func parseFrame(body []byte) (uint64, error) {
	if len(body) != frameLen {
		return 0, fmt.Errorf("serial: frame has %d chars", len(body))
	}
	var sum byte
	for i := 0; i < 10; i += 2 {
		b, err := strconv.ParseUint(string(body[i:i+2]), 16, 8)
		if err != nil {
			return 0, fmt.Errorf("serial: bad hex at %d: %w", i, err)
		}
		sum ^= byte(b)
	}
	want, err := strconv.ParseUint(string(body[10:12]), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("serial: bad checksum hex: %w", err)
	}
	if byte(want) != sum {
		return 0, fmt.Errorf("serial: checksum %02x, want %02x", sum, want)
	}
	return strconv.ParseUint(string(body[2:10]), 16, 32)
}

// NewSerialOpener returns an Opener for a serial reader.
func NewSerialOpener(device string, baud int, pollTimeout time.Duration) Opener {
	return func() (TagReader, error) {
		s, err := OpenSerial(device, baud)
		if err != nil {
			return nil, err
		}
		return Bounded(s, pollTimeout), nil
	}
}
