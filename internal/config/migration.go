package config

import (
	"path/filepath"
	"strings"

	"github.com/micro-nova/amplipi-rfid/internal/models"
)

const (
	ledFileName    = "led.json"
	soundsFileName = "sounds.json"
)

// migrateLED clamps brightness values written by older versions or by hand.
func migrateLED(s *models.LEDSettings) {
	s.Brightness = models.ClampBrightness(s.Brightness)
	s.IdleBrightness = models.ClampBrightness(s.IdleBrightness)
}

// migrateSounds trims stray whitespace so a blank entry disables the sound.
func migrateSounds(s *models.Sounds) {
	s.Welcome = strings.TrimSpace(s.Welcome)
	s.Farewell = strings.TrimSpace(s.Farewell)
	s.Detected = strings.TrimSpace(s.Detected)
}

// NewLEDStore returns the led.json store in dir.
func NewLEDStore(dir string) *JSONStore[models.LEDSettings] {
	return NewJSONStore(filepath.Join(dir, ledFileName), models.DefaultLEDSettings, migrateLED)
}

// NewSoundsStore returns the sounds.json store in dir.
func NewSoundsStore(dir string) *JSONStore[models.Sounds] {
	return NewJSONStore(filepath.Join(dir, soundsFileName), models.DefaultSounds, migrateSounds)
}
