//go:build linux

package hardware

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// maxFramesPerSec caps how fast frames are pushed onto the SPI bus.
const maxFramesPerSec = 60

// NRZStrip drives a WS2812 ring through the SPI MOSI line using periph's
// NRZ encoder.
type NRZStrip struct {
	mu         sync.Mutex
	port       spi.PortCloser
	dev        *nrzled.Dev
	pixels     []RGB
	frame      []byte
	brightness uint8
	limiter    *rate.Limiter
}

// OpenNRZStrip opens spiPort (e.g. "/dev/spidev0.0") for count pixels.
func OpenNRZStrip(spiPort string, count int) (*NRZStrip, error) {
	if count <= 0 {
		return nil, fmt.Errorf("nrzled: invalid pixel count %d", count)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("nrzled: host init failed: %w", err)
	}
	p, err := spireg.Open(spiPort)
	if err != nil {
		return nil, fmt.Errorf("nrzled: open %s: %w", spiPort, err)
	}
	opts := nrzled.DefaultOpts
	opts.NumPixels = count
	opts.Channels = 3
	opts.Freq = 2500 * physic.KiloHertz
	dev, err := nrzled.NewSPI(p, &opts)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("nrzled: init: %w", err)
	}
	return &NRZStrip{
		port:       p,
		dev:        dev,
		pixels:     make([]RGB, count),
		frame:      make([]byte, count*3),
		brightness: 255,
		limiter:    rate.NewLimiter(rate.Limit(maxFramesPerSec), 2),
	}, nil
}

func (s *NRZStrip) Len() int { return len(s.pixels) }

func (s *NRZStrip) SetPixel(i int, c RGB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.pixels) {
		s.pixels[i] = c
	}
}

func (s *NRZStrip) SetBrightness(level uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brightness = level
}

// Show scales the buffer by the global brightness and writes one frame.
func (s *NRZStrip) Show() error {
	if err := s.limiter.Wait(context.Background()); err != nil {
		return fmt.Errorf("nrzled: rate limiter: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := float64(s.brightness) / 255
	for i, p := range s.pixels {
		c := p.Scale(f)
		s.frame[i*3] = c.R
		s.frame[i*3+1] = c.G
		s.frame[i*3+2] = c.B
	}
	if _, err := s.dev.Write(s.frame); err != nil {
		return fmt.Errorf("nrzled: write: %w", err)
	}
	return nil
}

// Close blanks the strip and releases the SPI port.
func (s *NRZStrip) Close() error {
	herr := s.dev.Halt()
	cerr := s.port.Close()
	if herr != nil {
		return fmt.Errorf("nrzled: halt: %w", herr)
	}
	return cerr
}
