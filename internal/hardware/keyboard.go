//go:build linux

package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kenshaw/evdev"
)

// maxKeyLine bounds a single keyboard-wedge line.
const maxKeyLine = 32

// Keyboard reads tag ids typed by a USB keyboard-wedge reader. The evdev
// event stream is consumed by a goroutine that queues complete lines.
type Keyboard struct {
	dev    *evdev.Evdev
	lines  chan string
	cancel context.CancelFunc
	done   chan struct{}
}

// OpenKeyboard opens the input device (e.g. /dev/input/event0).
func OpenKeyboard(device string) (*Keyboard, error) {
	dev, err := evdev.OpenFile(device)
	if err != nil {
		return nil, fmt.Errorf("keyboard: open evdev %s: %w", device, err)
	}
	slog.Debug("keyboard: opened reader", "device", device, "name", dev.Name())

	ctx, cancel := context.WithCancel(context.Background())
	k := &Keyboard{
		dev:    dev,
		lines:  make(chan string, 4),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go k.pump(ctx)
	return k, nil
}

func (k *Keyboard) pump(ctx context.Context) {
	defer close(k.done)
	line := keyLine{max: maxKeyLine}
	ch := k.dev.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if event == nil {
				return
			}
			if _, ok := event.Type.(evdev.KeyType); !ok || event.Value != 1 {
				continue
			}
			if event.Type == evdev.KeyEnter {
				if s, ok := line.enter(); ok {
					select {
					case k.lines <- s:
					default:
						slog.Debug("keyboard: dropping line, queue full", "line", s)
					}
				}
				continue
			}
			line.key(evdev.KeyType(event.Code).String())
		}
	}
}

// ReadTimeout waits up to d for a complete line.
func (k *Keyboard) ReadTimeout(d time.Duration) (RawTag, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case s := <-k.lines:
		return s, nil
	case <-k.done:
		return nil, fmt.Errorf("keyboard: device closed")
	case <-timer.C:
		return nil, ErrReadTimeout
	}
}

// Close stops the event pump and closes the device.
func (k *Keyboard) Close() error {
	k.cancel()
	err := k.dev.Close()
	<-k.done
	return err
}

// NewKeyboardOpener returns an Opener for a keyboard-wedge reader.
func NewKeyboardOpener(device string, pollTimeout time.Duration) Opener {
	return func() (TagReader, error) {
		k, err := OpenKeyboard(device)
		if err != nil {
			return nil, err
		}
		return Bounded(k, pollTimeout), nil
	}
}
