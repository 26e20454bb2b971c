//go:build !linux

package hardware

import (
	"errors"
	"time"
)

var errNotLinux = errors.New("hardware: backend requires linux")

// NewMFRC522Opener returns an Opener that always fails off Linux.
func NewMFRC522Opener(spiPort, rstPin, irqPin string, pollTimeout time.Duration) Opener {
	return func() (TagReader, error) { return nil, errNotLinux }
}

// NewKeyboardOpener returns an Opener that always fails off Linux.
func NewKeyboardOpener(device string, pollTimeout time.Duration) Opener {
	return func() (TagReader, error) { return nil, errNotLinux }
}

// NRZStrip is unavailable off Linux.
type NRZStrip struct{ MockStrip }

// OpenNRZStrip always fails off Linux.
func OpenNRZStrip(spiPort string, count int) (*NRZStrip, error) { return nil, errNotLinux }

// ButtonLight is unavailable off Linux.
type ButtonLight struct{ MockLight }

// OpenButtonLight always fails off Linux.
func OpenButtonLight(chip string, offset int) (*ButtonLight, error) { return nil, errNotLinux }
