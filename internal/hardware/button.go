//go:build linux

package hardware

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// ButtonLight is the illuminated button LED on a GPIO character-device line.
type ButtonLight struct {
	line *gpiocdev.Line
}

// OpenButtonLight requests offset on chip (e.g. "gpiochip0", 13) as an output, initially off.
func OpenButtonLight(chip string, offset int) (*ButtonLight, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("amplipi-rfid"))
	if err != nil {
		return nil, fmt.Errorf("button: request %s:%d: %w", chip, offset, err)
	}
	return &ButtonLight{line: l}, nil
}

func (b *ButtonLight) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := b.line.SetValue(v); err != nil {
		return fmt.Errorf("button: set %d: %w", v, err)
	}
	return nil
}

// Close drives the LED off, returns the line to input and releases it.
func (b *ButtonLight) Close() error {
	_ = b.line.SetValue(0)
	if err := b.line.Reconfigure(gpiocdev.AsInput); err != nil {
		b.line.Close()
		return fmt.Errorf("button: release: %w", err)
	}
	return b.line.Close()
}
