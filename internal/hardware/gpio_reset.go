//go:build linux

package hardware

import (
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Reset pulse timing for the MFRC522: the datasheet asks for >100ns low and
// the oscillator needs time to start after release.
const (
	resetLowTime    = 100 * time.Millisecond
	resetSettleTime = 100 * time.Millisecond
)

// GPIOResetLine drives a reader reset pin through periph.
type GPIOResetLine struct {
	name string
	pin  gpio.PinIO
}

// NewGPIOResetLine opens the named pin (BCM naming, e.g. "GPIO25").
func NewGPIOResetLine(name string) (*GPIOResetLine, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: host init failed: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio: failed to open %s (RST)", name)
	}
	return &GPIOResetLine{name: name, pin: pin}, nil
}

// Pin exposes the underlying pin for drivers that toggle reset themselves.
func (l *GPIOResetLine) Pin() gpio.PinIO { return l.pin }

// Pulse asserts reset (low), waits, releases it (high) and waits for the
// chip to come back up.
func (l *GPIOResetLine) Pulse() error {
	if err := l.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio: failed to assert RST: %w", err)
	}
	time.Sleep(resetLowTime)
	if err := l.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("gpio: failed to release RST: %w", err)
	}
	time.Sleep(resetSettleTime)

	slog.Debug("gpio: reader reset complete", "rst_pin", l.name)
	return nil
}

// Release turns the pin back into an input so the line floats.
func (l *GPIOResetLine) Release() error {
	if err := l.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("gpio: failed to release %s: %w", l.name, err)
	}
	return nil
}
