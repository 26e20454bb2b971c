//go:build linux

package hardware

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/mfrc522"
	"periph.io/x/host/v3"
)

// MFRC522 is an RC522 reader on SPI. Its ReadUID primitive blocks, so it is
// exposed as a BlockingReader and wrapped with Bounded by NewMFRC522Opener.
type MFRC522 struct {
	port spi.PortCloser
	dev  *mfrc522.Dev
}

// OpenMFRC522 opens the SPI port and initializes the chip.
func OpenMFRC522(spiPort, rstPin, irqPin string) (*MFRC522, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mfrc522: host init failed: %w", err)
	}
	rst := gpioreg.ByName(rstPin)
	if rst == nil {
		return nil, fmt.Errorf("mfrc522: failed to open %s (RST)", rstPin)
	}
	irq := gpioreg.ByName(irqPin)
	if irq == nil {
		return nil, fmt.Errorf("mfrc522: failed to open %s (IRQ)", irqPin)
	}
	p, err := spireg.Open(spiPort)
	if err != nil {
		return nil, fmt.Errorf("mfrc522: open %s: %w", spiPort, err)
	}
	dev, err := mfrc522.NewSPI(p, rst, irq, mfrc522.WithSync())
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("mfrc522: init: %w", err)
	}
	slog.Debug("mfrc522: reader initialized", "spi", spiPort, "rst_pin", rstPin)
	return &MFRC522{port: p, dev: dev}, nil
}

// ReadTimeout waits up to d for a card and returns its UID bytes.
func (m *MFRC522) ReadTimeout(d time.Duration) (RawTag, error) {
	uid, err := m.dev.ReadUID(d)
	if err != nil {
		// The driver reports "no card in time" as a plain error.
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return nil, ErrReadTimeout
		}
		return nil, fmt.Errorf("mfrc522: read uid: %w", err)
	}
	if len(uid) == 0 {
		return nil, ErrReadTimeout
	}
	return uid, nil
}

// Close halts the chip and releases the SPI port.
func (m *MFRC522) Close() error {
	herr := m.dev.Halt()
	cerr := m.port.Close()
	if herr != nil {
		return fmt.Errorf("mfrc522: halt: %w", herr)
	}
	return cerr
}

// NewMFRC522Opener returns an Opener for the configured RC522 wiring. Each
// poll waits at most pollTimeout for a card.
func NewMFRC522Opener(spiPort, rstPin, irqPin string, pollTimeout time.Duration) Opener {
	return func() (TagReader, error) {
		m, err := OpenMFRC522(spiPort, rstPin, irqPin)
		if err != nil {
			return nil, err
		}
		return Bounded(m, pollTimeout), nil
	}
}
