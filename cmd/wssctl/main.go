// wssctl runs a stimulation session against a wearable surface stimulator.
//
// It owns the full session stack: driver library resolution, device
// lifecycle, the periodic tick loop, session-event history, and the
// optional MQTT/InfluxDB telemetry surfaces. An interactive console is
// available for bench work and fitting sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hfi-neuro/wss-core/internal/driver"
	"github.com/hfi-neuro/wss-core/internal/history"
	"github.com/hfi-neuro/wss-core/internal/infrastructure/config"
	"github.com/hfi-neuro/wss-core/internal/infrastructure/database"
	"github.com/hfi-neuro/wss-core/internal/infrastructure/logging"
	"github.com/hfi-neuro/wss-core/internal/infrastructure/metrics"
	"github.com/hfi-neuro/wss-core/internal/infrastructure/mqtt"
	"github.com/hfi-neuro/wss-core/internal/stim"
	"github.com/hfi-neuro/wss-core/internal/telemetry"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// options holds the parsed command line.
type options struct {
	configPath  string
	configDir   string
	serialPort  string
	testMode    bool
	maxRetries  int
	tickMs      int
	interactive bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := parseFlags()

	if err := run(ctx, cancel, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config-file", "", "path to YAML config file (default configs/config.yaml)")
	flag.StringVar(&opts.configDir, "config", "", "device config directory override")
	flag.StringVar(&opts.serialPort, "serial", "", "serial port override (empty = auto-detect)")
	flag.BoolVar(&opts.testMode, "test", false, "use the simulated transport instead of hardware")
	flag.IntVar(&opts.maxRetries, "max-retries", 0, "device setup attempt limit override")
	flag.IntVar(&opts.tickMs, "tick", 0, "tick interval override in milliseconds")
	flag.BoolVar(&opts.interactive, "i", true, "run the interactive console")
	flag.Parse()
	return opts
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context, cancel context.CancelFunc, opts options) error {
	log := logging.Default()
	log.Info("starting wssctl", "version", version, "commit", commit)

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close()
	log.Info("logger initialised", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	// Session-event history (optional).
	var recorder stim.Recorder
	if cfg.History.Enabled {
		db, dbErr := database.Open(database.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening history database: %w", dbErr)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()

		store, storeErr := history.NewStore(db)
		if storeErr != nil {
			return fmt.Errorf("preparing history store: %w", storeErr)
		}
		recorder = store
		log.Info("session history enabled", "path", cfg.History.Path)
	} else {
		log.Info("session history disabled")
	}

	// MQTT telemetry (optional).
	var mqttClient *mqtt.Client
	if cfg.Telemetry.Enabled {
		mqttClient, err = mqtt.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Telemetry.Host, cfg.Telemetry.Port),
			"client_id", cfg.Telemetry.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT telemetry disabled")
	}

	// InfluxDB metrics (optional).
	var metricsClient *metrics.Client
	if cfg.Metrics.Enabled {
		metricsClient, err = metrics.Connect(cfg.Metrics, func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := metricsClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.Metrics.URL, "bucket", cfg.Metrics.Bucket)
	} else {
		log.Info("InfluxDB metrics disabled")
	}

	// Driver library and session controller.
	lib := driver.NewLibrary(cfg.Session.DriverDir)
	lib.SetLogger(log)

	ctrlOpts := stim.Options{
		Config: stim.Config{
			SerialPort:    cfg.Session.SerialPort,
			ConfigDir:     cfg.Session.ConfigDir,
			TestMode:      cfg.Session.TestMode,
			MaxSetupTries: cfg.Session.MaxSetupTries,
			TickInterval:  cfg.TickInterval(),
		},
		Library:  lib,
		Logger:   log,
		Recorder: recorder,
	}
	if metricsClient != nil {
		ctrlOpts.Metrics = metricsClient
	}

	ctrl, err := stim.New(ctrlOpts)
	if err != nil {
		return fmt.Errorf("creating session controller: %w", err)
	}

	if err := ctrl.Initialize(ctx); err != nil {
		return fmt.Errorf("initialising session: %w", err)
	}
	defer func() {
		log.Info("shutting down session")
		if stopErr := ctrl.StopStimulation(); stopErr != nil {
			log.Warn("error stopping stimulation during shutdown", "error", stopErr)
		}
		ctrl.Shutdown()
	}()
	log.Info("session initialised",
		"session_id", ctrl.SessionID(),
		"test_mode", cfg.Session.TestMode,
		"extended_commands", ctrl.BasicSupported(),
	)

	// Periodic health reporter (needs MQTT).
	if mqttClient != nil {
		var sink telemetry.StatusSink
		if metricsClient != nil {
			sink = metricsClient
		}
		reporter := telemetry.NewReporter(telemetry.Config{
			Topic:     mqttClient.Topics().Health(),
			QoS:       byte(cfg.Telemetry.QoS),
			Interval:  cfg.TelemetryInterval(),
			Publisher: mqttClient,
			Source:    ctrl,
			Sink:      sink,
			Logger:    log,
		})
		reporter.Start()
		defer reporter.Stop()
		log.Info("health reporter started", "interval", cfg.TelemetryInterval())
	}

	if opts.interactive {
		console, consoleErr := newConsole(ctrl, log)
		if consoleErr != nil {
			return fmt.Errorf("creating console: %w", consoleErr)
		}
		console.run(ctx, cancel)
		return nil
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// loadConfig resolves the configuration. An explicit --config path must
// exist; otherwise the default path is used when present and built-in
// defaults when not. Command-line overrides win over the file.
func loadConfig(opts options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		if env := os.Getenv("WSSCORE_CONFIG"); env != "" {
			path = env
		} else {
			path = defaultConfigPath
		}
	}

	var cfg *config.Config
	if _, statErr := os.Stat(path); statErr == nil {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if opts.configPath != "" {
		return nil, fmt.Errorf("config file not found: %s", opts.configPath)
	} else {
		cfg = config.Default()
	}

	if opts.serialPort != "" {
		cfg.Session.SerialPort = opts.serialPort
	}
	if opts.configDir != "" {
		cfg.Session.ConfigDir = opts.configDir
	}
	if opts.testMode {
		cfg.Session.TestMode = true
	}
	if opts.maxRetries > 0 {
		cfg.Session.MaxSetupTries = opts.maxRetries
	}
	if opts.tickMs > 0 {
		cfg.Session.TickIntervalMs = opts.tickMs
	}

	return cfg, nil
}
