// Command amplipi-rfid connects an RFID reader and an LED ring to a media
// player. Run with --mock to use simulated hardware; tag ids typed on stdin
// are then treated as scans.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/micro-nova/amplipi-rfid/internal/bridge"
	"github.com/micro-nova/amplipi-rfid/internal/config"
	"github.com/micro-nova/amplipi-rfid/internal/events"
	"github.com/micro-nova/amplipi-rfid/internal/identity"
	"github.com/micro-nova/amplipi-rfid/internal/led"
	"github.com/micro-nova/amplipi-rfid/internal/mappings"
	"github.com/micro-nova/amplipi-rfid/internal/models"
	"github.com/micro-nova/amplipi-rfid/internal/mqtt"
	"github.com/micro-nova/amplipi-rfid/internal/progress"
	"github.com/micro-nova/amplipi-rfid/internal/reader"
)

func main() {
	var (
		cfgPath = flag.String("config", "/etc/amplipi-rfid/config.yaml", "YAML config file")
		cfgDir  = flag.String("config-dir", "", "settings directory (default: ~/.config/amplipi-rfid)")
		mock    = flag.Bool("mock", false, "use mock hardware (tags are read from stdin)")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("cannot load config", "path", *cfgPath, "err", err)
		os.Exit(1)
	}
	if *cfgDir != "" {
		cfg.SetConfigDir(*cfgDir)
	}
	if err := os.MkdirAll(cfg.ConfigDir, 0755); err != nil {
		slog.Error("cannot create config directory", "path", cfg.ConfigDir, "err", err)
		os.Exit(1)
	}
	slog.Info("amplipi-rfid starting",
		"version", identity.GetVersion(),
		"host", identity.GetHostname(),
		"config", cfg.ConfigDir,
		"reader", cfg.Reader.Type,
		"player", cfg.Player.Backend,
		"mock", *mock,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Settings files
	ledStore := config.NewLEDStore(cfg.ConfigDir)
	soundsStore := config.NewSoundsStore(cfg.ConfigDir)
	sounds, err := config.Watch[models.Sounds](soundsStore, nil)
	if err != nil {
		slog.Error("cannot load sounds", "path", soundsStore.Path(), "err", err)
		os.Exit(1)
	}
	defer sounds.Close()

	// Mapping store
	store, err := mappings.Open(mappings.Options{
		Driver:   cfg.Store.Driver,
		DSN:      cfg.Store.DSN,
		Fallback: cfg.Mappings,
	})
	if err != nil {
		slog.Error("mapping store initialization failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("mappings loaded", "count", len(store.ListAll()), "from_config", len(store.Fallback()))

	// Hardware
	hw, err := openHardware(cfg, *mock)
	if err != nil {
		slog.Error("hardware initialization failed", "err", err)
		os.Exit(1)
	}
	if hw.mockReader != nil {
		go feedStdin(ctx, os.Stdin, hw.mockReader)
	}

	ledOpts := led.DefaultOptions()
	ledOpts.StandbyInterval = config.Ms(cfg.LED.StandbyMS)
	ledOpts.SweepInterval = config.Ms(cfg.LED.SweepMS)
	animator := led.New(hw.strip, hw.button, ledOpts)

	pl, err := openPlayer(cfg)
	if err != nil {
		slog.Error("player initialization failed", "err", err)
		os.Exit(1)
	}
	if c, ok := pl.(io.Closer); ok {
		defer c.Close()
	}

	bus := events.NewBus()

	br, err := bridge.New(bridge.Deps{
		Open:     hw.open,
		Reset:    hw.reset,
		Animator: animator,
		Player:   pl,
		Store:    store,
		Bus:      bus,
		Sounds:   sounds.Current,
		Probe:    progress.FFProbe,
	}, bridgeOptions(cfg))
	if err != nil {
		slog.Error("bridge initialization failed", "err", err)
		os.Exit(1)
	}

	settings, err := config.Watch[models.LEDSettings](ledStore, br.ApplySettings)
	if err != nil {
		slog.Error("cannot load LED settings", "path", ledStore.Path(), "err", err)
		os.Exit(1)
	}
	defer settings.Close()
	current := settings.Current()
	br.ApplySettings(current)
	if _, err := os.Stat(ledStore.Path()); os.IsNotExist(err) {
		// Give users a file to edit.
		_ = ledStore.Save(&current)
	}

	// MQTT
	mq := mqtt.New(mqtt.Config{
		Host:     cfg.MQTT.Host,
		Port:     cfg.MQTT.Port,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Prefix:   cfg.MQTT.Prefix,
		ClientID: mqttClientID(cfg),
	}, br.HandleTag)
	if err := mq.Connect(); err != nil {
		slog.Warn("mqtt connect failed, retrying in background", "err", err)
	}
	go mq.Run(ctx, bus)

	br.Start(ctx)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	br.Stop(shutCtx)
	mq.Disconnect()

	if err := ledStore.Flush(); err != nil {
		slog.Warn("failed to flush LED settings", "err", err)
	}
	slog.Info("shutdown complete", "last_scan", lastScan(br))
}

func bridgeOptions(cfg *config.Config) bridge.Options {
	opts := bridge.DefaultOptions()
	r := cfg.Reader
	opts.Reader = reader.Config{
		PollInterval:   config.Ms(r.PollIntervalMS),
		Debounce:       config.Ms(r.DebounceMS),
		ErrorSleep:     config.Ms(r.ErrorSleepMS),
		RetryInterval:  config.Ms(r.RetryIntervalMS),
		RepeatWindow:   config.Ms(*r.RepeatWindowMS),
		ErrorThreshold: r.ErrorThreshold,
		SuccessTimeout: config.Ms(r.SuccessTimeoutMS),
		StopTimeout:    reader.DefaultConfig().StopTimeout,
	}
	opts.Progress.Interval = config.Ms(cfg.Progress.IntervalMS)
	opts.Progress.LengthTTL = time.Duration(cfg.Progress.LengthCacheMin) * time.Minute
	opts.FlashDuration = config.Ms(cfg.LED.FlashMS)
	opts.ScanDelay = config.Ms(cfg.LED.ScanDelayMS)
	opts.CallTimeout = config.Ms(cfg.Player.TimeoutMS)
	return opts
}

func mqttClientID(cfg *config.Config) string {
	if cfg.MQTT.ClientID != "" {
		return cfg.MQTT.ClientID
	}
	return "amplipi-rfid-" + identity.GetHostname()
}

func lastScan(br *bridge.Bridge) string {
	ev, ok := br.LastScan()
	if !ok {
		return "none"
	}
	return ev.Tag.Key()
}
