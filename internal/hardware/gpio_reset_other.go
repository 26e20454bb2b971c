//go:build !linux

package hardware

import "errors"

// GPIOResetLine is unavailable off Linux.
type GPIOResetLine struct{}

// NewGPIOResetLine always fails off Linux.
func NewGPIOResetLine(name string) (*GPIOResetLine, error) {
	return nil, errors.New("gpio: reset line requires linux")
}

func (l *GPIOResetLine) Pulse() error   { return nil }
func (l *GPIOResetLine) Release() error { return nil }
