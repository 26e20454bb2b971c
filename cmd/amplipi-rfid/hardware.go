package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/micro-nova/amplipi-rfid/internal/config"
	"github.com/micro-nova/amplipi-rfid/internal/hardware"
	"github.com/micro-nova/amplipi-rfid/internal/player"
)

// devices holds everything opened from the hardware section of the config.
// strip, button and reset may be nil.
type devices struct {
	open       hardware.Opener
	reset      hardware.ResetLine
	strip      hardware.Strip
	button     hardware.Light
	mockReader *hardware.MockReader
}

func openHardware(cfg *config.Config, mock bool) (*devices, error) {
	if mock {
		slog.Info("using mock hardware")
		r := hardware.NewMockReader()
		d := &devices{
			open:       hardware.NewMockOpener(r).Open,
			reset:      &hardware.MockResetLine{},
			button:     &hardware.MockLight{},
			mockReader: r,
		}
		if cfg.LEDEnabled() {
			d.strip = hardware.NewMockStrip(cfg.LED.Count)
		}
		return d, nil
	}

	d := &devices{}
	poll := config.Ms(cfg.Reader.PollTimeoutMS)
	r := cfg.Reader
	switch r.Type {
	case config.ReaderMFRC522:
		d.open = hardware.NewMFRC522Opener(r.SPIPort, r.ResetPin, *r.IRQPin, poll)
		reset, err := hardware.NewGPIOResetLine(r.ResetPin)
		if err != nil {
			slog.Warn("reset line unavailable, recovery will only reopen the reader", "pin", r.ResetPin, "err", err)
		} else {
			d.reset = reset
		}
	case config.ReaderSerial:
		d.open = hardware.NewSerialOpener(r.SerialDevice, r.BaudRate, poll)
	case config.ReaderKeyboard:
		d.open = hardware.NewKeyboardOpener(r.KeyboardDevice, poll)
	case config.ReaderNone:
		slog.Warn("no reader configured; scans only arrive over MQTT")
		d.open = func() (hardware.TagReader, error) {
			return hardware.NewMockReader(), nil
		}
	default:
		return nil, fmt.Errorf("unknown reader type %q", r.Type)
	}

	if cfg.LEDEnabled() {
		strip, err := hardware.OpenNRZStrip(cfg.LED.SPIPort, cfg.LED.Count)
		if err != nil {
			slog.Warn("LED ring unavailable, continuing without it", "port", cfg.LED.SPIPort, "err", err)
		} else {
			d.strip = strip
		}
	}
	button, err := hardware.OpenButtonLight(cfg.LED.ButtonChip, cfg.LED.ButtonLine)
	if err != nil {
		slog.Warn("button light unavailable", "chip", cfg.LED.ButtonChip, "line", cfg.LED.ButtonLine, "err", err)
	} else {
		d.button = button
	}
	return d, nil
}

func openPlayer(cfg *config.Config) (player.Player, error) {
	switch cfg.Player.Backend {
	case player.BackendMopidy:
		return player.NewMopidy(cfg.Player.URL), nil
	case player.BackendMPRIS:
		return player.NewMPRIS(cfg.Player.MPRISName, cfg.Player.SystemBus), nil
	default:
		return nil, fmt.Errorf("unknown player backend %q", cfg.Player.Backend)
	}
}

// feedStdin turns each line typed on stdin into a mock reader scan.
func feedStdin(ctx context.Context, in io.Reader, r *hardware.MockReader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		r.Push(hardware.MockRead{Tag: line})
	}
}
