package models

// Default LED settings, matching the compiled-in values of led.json.
const (
	DefaultBrightness     = 60
	DefaultIdleBrightness = 10
	MaxBrightness         = 255
)

// LEDSettings is the content of led.json.
type LEDSettings struct {
	Welcome        bool `json:"welcome"`
	Farewell       bool `json:"farewell"`
	Remaining      bool `json:"remaining"`
	Brightness     int  `json:"brightness"`
	IdleBrightness int  `json:"idle_brightness"`
}

// DefaultLEDSettings returns the settings used when led.json is missing.
func DefaultLEDSettings() LEDSettings {
	return LEDSettings{
		Welcome:        true,
		Farewell:       true,
		Remaining:      true,
		Brightness:     DefaultBrightness,
		IdleBrightness: DefaultIdleBrightness,
	}
}

// ClampBrightness limits v to [0, MaxBrightness].
func ClampBrightness(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxBrightness {
		return MaxBrightness
	}
	return v
}

// Sounds is the content of sounds.json. Empty URIs disable a sound.
type Sounds struct {
	Welcome  string `json:"welcome"`
	Farewell string `json:"farewell"`
	Detected string `json:"detected"`
}

// DefaultSounds returns all sounds disabled.
func DefaultSounds() Sounds { return Sounds{} }
