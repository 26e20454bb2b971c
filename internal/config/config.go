// Package config loads the daemon's YAML configuration and persists the
// runtime settings files (led.json, sounds.json).
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reader backends.
const (
	ReaderMFRC522  = "mfrc522"
	ReaderSerial   = "serial"
	ReaderKeyboard = "keyboard"
	ReaderNone     = "none"
)

// Config is the daemon configuration file.
type Config struct {
	// ConfigDir holds led.json, sounds.json and the default mappings database.
	ConfigDir string            `yaml:"config_dir"`
	Reader    ReaderConfig      `yaml:"reader"`
	LED       LEDConfig         `yaml:"leds"`
	Progress  ProgressConfig    `yaml:"progress"`
	Player    PlayerConfig      `yaml:"player"`
	Store     StoreConfig       `yaml:"store"`
	MQTT      MQTTConfig        `yaml:"mqtt"`
	Mappings  map[string]string `yaml:"mappings"`
}

// ReaderConfig selects and tunes the RFID reader.
type ReaderConfig struct {
	Type           string  `yaml:"type"`
	SPIPort        string  `yaml:"spi_port"`
	ResetPin       string  `yaml:"reset_pin"`
	// IRQPin is required by the mfrc522 driver. An explicit empty value is
	// rejected by Load.
	IRQPin         *string `yaml:"irq_pin"`
	SerialDevice   string  `yaml:"serial_device"`
	BaudRate       int     `yaml:"baud_rate"`
	KeyboardDevice string  `yaml:"keyboard_device"`

	PollTimeoutMS   int `yaml:"poll_timeout_ms"`
	PollIntervalMS  int `yaml:"poll_interval_ms"`
	DebounceMS      int `yaml:"debounce_ms"`
	ErrorSleepMS    int `yaml:"error_sleep_ms"`
	RetryIntervalMS int `yaml:"retry_interval_ms"`
	// RepeatWindowMS may be set to 0 to turn repeat suppression off.
	RepeatWindowMS   *int `yaml:"repeat_window_ms"`
	ErrorThreshold   int  `yaml:"error_threshold"`
	SuccessTimeoutMS int  `yaml:"success_timeout_ms"`
}

// LEDConfig describes the ring and the button light.
type LEDConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	Count       int    `yaml:"count"`
	SPIPort     string `yaml:"spi_port"`
	ButtonChip  string `yaml:"button_chip"`
	ButtonLine  int    `yaml:"button_line"`
	FlashMS     int    `yaml:"flash_ms"`
	ScanDelayMS int    `yaml:"scan_delay_ms"`
	StandbyMS   int    `yaml:"standby_interval_ms"`
	SweepMS     int    `yaml:"sweep_interval_ms"`
}

// ProgressConfig tunes the playback tracker.
type ProgressConfig struct {
	IntervalMS     int `yaml:"interval_ms"`
	LengthCacheMin int `yaml:"length_cache_minutes"`
}

// PlayerConfig selects the playback backend.
type PlayerConfig struct {
	Backend   string `yaml:"backend"` // mopidy or mpris
	URL       string `yaml:"url"`
	MPRISName string `yaml:"mpris_name"`
	SystemBus bool   `yaml:"system_bus"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// StoreConfig selects the mapping database.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// MQTTConfig configures the optional event publisher. An empty Host
// disables it.
type MQTTConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
	ClientID string `yaml:"client_id"`
}

// DefaultConfigDir returns ~/.config/amplipi-rfid.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "amplipi-rfid")
	}
	return filepath.Join(home, ".config", "amplipi-rfid")
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path and fills in defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Info("config: no config file, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		default:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Reader.Type == ReaderMFRC522 && strings.TrimSpace(*c.Reader.IRQPin) == "" {
		return errors.New("reader.irq_pin must name a GPIO when reader.type is mfrc522")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir()
	}

	r := &c.Reader
	if r.Type == "" {
		r.Type = ReaderMFRC522
	}
	if r.SPIPort == "" {
		r.SPIPort = "SPI0.0"
	}
	if r.ResetPin == "" {
		r.ResetPin = "GPIO25"
	}
	if r.IRQPin == nil {
		pin := "GPIO24"
		r.IRQPin = &pin
	}
	if r.SerialDevice == "" {
		r.SerialDevice = "/dev/ttyAMA0"
	}
	if r.BaudRate <= 0 {
		r.BaudRate = 9600
	}
	defaultInt(&r.PollTimeoutMS, 50)
	defaultInt(&r.PollIntervalMS, 100)
	defaultInt(&r.DebounceMS, 1000)
	defaultInt(&r.ErrorSleepMS, 500)
	defaultInt(&r.RetryIntervalMS, 1000)
	if r.RepeatWindowMS == nil {
		v := 2000
		r.RepeatWindowMS = &v
	}
	defaultInt(&r.ErrorThreshold, 3)
	defaultInt(&r.SuccessTimeoutMS, 10000)

	l := &c.LED
	if l.Enabled == nil {
		on := true
		l.Enabled = &on
	}
	defaultInt(&l.Count, 16)
	if l.SPIPort == "" {
		l.SPIPort = "SPI1.0"
	}
	if l.ButtonChip == "" {
		l.ButtonChip = "gpiochip0"
	}
	defaultInt(&l.ButtonLine, 13)
	defaultInt(&l.FlashMS, 250)
	defaultInt(&l.ScanDelayMS, 50)
	defaultInt(&l.StandbyMS, 120)
	defaultInt(&l.SweepMS, 80)

	defaultInt(&c.Progress.IntervalMS, 200)
	defaultInt(&c.Progress.LengthCacheMin, 60)

	p := &c.Player
	if p.Backend == "" {
		p.Backend = "mopidy"
	}
	if p.MPRISName == "" {
		p.MPRISName = "mopidy"
	}
	defaultInt(&p.TimeoutMS, 5000)

	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.DSN == "" && c.Store.Driver == "sqlite" {
		c.Store.DSN = filepath.Join(c.ConfigDir, "mappings.db")
	}

	m := &c.MQTT
	defaultInt(&m.Port, 1883)
	if m.Prefix == "" {
		m.Prefix = "amplipi-rfid"
	}
	if c.Mappings == nil {
		c.Mappings = map[string]string{}
	}
}

func defaultInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// SetConfigDir moves the config directory, taking the default database
// path along with it.
func (c *Config) SetConfigDir(dir string) {
	if c.Store.DSN == filepath.Join(c.ConfigDir, "mappings.db") {
		c.Store.DSN = filepath.Join(dir, "mappings.db")
	}
	c.ConfigDir = dir
}

// Ms converts a millisecond setting to a duration.
func Ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// LEDEnabled reports whether the ring is configured.
func (c *Config) LEDEnabled() bool { return c.LED.Enabled == nil || *c.LED.Enabled }
