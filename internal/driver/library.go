package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hfi-neuro/wss-core/internal/sim"
	"github.com/hfi-neuro/wss-core/internal/wss"
)

// Logger defines the logging interface for the driver library.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Factory constructs a device over a real serial transport. port is the
// fully qualified device name, or empty for auto-detect. emit is the
// driver-wide log callback the device must report through.
type Factory func(port, configDir string, maxSetupTries int, emit wss.LogFunc) (wss.Device, error)

// nativeFactory is set by the build that links the native serial transport.
var (
	nativeFactory   Factory
	nativeFactoryMu sync.Mutex
)

// RegisterNativeFactory installs the native transport constructor.
// Called from an init function in the transport's build-tagged file.
func RegisterNativeFactory(f Factory) {
	nativeFactoryMu.Lock()
	nativeFactory = f
	nativeFactoryMu.Unlock()
}

// Library resolves and tracks the stimulator driver set.
// All methods are safe for concurrent use.
type Library struct {
	dir    string
	logger Logger

	mu      sync.Mutex
	loaded  bool
	objects []string

	// Active log sink. Device handles created by this library report
	// through emit, which forwards to the sink when one is installed and
	// falls back to the logger otherwise.
	sink wss.LogFunc
}

// NewLibrary creates a library rooted at the given driver directory.
func NewLibrary(dir string) *Library {
	return &Library{
		dir:    dir,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the library.
func (l *Library) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Load resolves the driver objects under the library directory.
// Idempotent: a second call returns immediately once loaded.
func (l *Library) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return nil
	}

	info, err := os.Stat(l.dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrMissingDriverDir, l.dir)
	}

	var objects []string
	walkErr := filepath.WalkDir(l.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".so", ".dylib", ".dll":
			objects = append(objects, path)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("scanning driver directory: %w", walkErr)
	}
	sort.Strings(objects)

	l.objects = objects
	l.loaded = true
	l.logger.Info("driver library loaded", "dir", l.dir, "objects", len(objects))
	return nil
}

// Loaded reports whether Load has completed.
func (l *Library) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Objects returns the resolved driver object paths.
func (l *Library) Objects() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.objects))
	copy(out, l.objects)
	return out
}

// NewDevice constructs a device handle. port selects the serial transport
// (empty means auto-detect). testMode substitutes the simulated transport,
// which needs no native driver objects.
func (l *Library) NewDevice(port, configDir string, testMode bool, maxSetupTries int) (wss.Device, error) {
	l.mu.Lock()
	loaded := l.loaded
	objectCount := len(l.objects)
	l.mu.Unlock()

	if !loaded {
		return nil, ErrNotLoaded
	}

	if testMode {
		l.logger.Info("constructing simulated device", "config_dir", configDir)
		return sim.NewDevice(sim.Config{
			ConfigDir:     configDir,
			MaxSetupTries: maxSetupTries,
		}, l.emit), nil
	}

	nativeFactoryMu.Lock()
	factory := nativeFactory
	nativeFactoryMu.Unlock()

	if factory == nil || objectCount == 0 {
		return nil, ErrNoNativeTransport
	}

	l.logger.Info("constructing native device",
		"port", portLabel(port),
		"config_dir", configDir,
		"max_setup_tries", maxSetupTries,
	)
	dev, err := factory(port, configDir, maxSetupTries, l.emit)
	if err != nil {
		return nil, fmt.Errorf("constructing native device: %w", err)
	}
	return dev, nil
}

// InstallLogSink binds a host sink to driver-side logging and returns a
// reset callback that restores default logging. The reset must be invoked
// exactly once during teardown.
func (l *Library) InstallLogSink(sink wss.LogFunc) (func(), error) {
	if sink == nil {
		return nil, fmt.Errorf("driver: nil log sink")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink != nil {
		return nil, ErrSinkInstalled
	}
	l.sink = sink

	return func() {
		l.mu.Lock()
		l.sink = nil
		l.mu.Unlock()
	}, nil
}

// emit forwards a device log event to the installed sink, falling back to
// the library logger when no sink is bound.
func (l *Library) emit(level, message string) {
	l.mu.Lock()
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		sink(level, message)
		return
	}

	switch strings.ToUpper(level) {
	case "ERROR":
		l.logger.Error(message)
	case "WARN", "WARNING":
		l.logger.Warn(message)
	default:
		l.logger.Info(message)
	}
}

func portLabel(port string) string {
	if port == "" {
		return "auto-detect"
	}
	return port
}
