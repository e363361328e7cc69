package driver

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hfi-neuro/wss-core/internal/sim"
)

// newDriverDir creates a temp driver directory seeded with the given files.
func newDriverDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("creating subdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("stub"), 0o600); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMissingDirectory(t *testing.T) {
	lib := NewLibrary(filepath.Join(t.TempDir(), "does-not-exist"))

	err := lib.Load()
	if !errors.Is(err, ErrMissingDriverDir) {
		t.Fatalf("Load() = %v, want ErrMissingDriverDir", err)
	}
	if lib.Loaded() {
		t.Error("Loaded() should be false after failed Load")
	}
}

func TestLoadDiscoversDriverObjects(t *testing.T) {
	dir := newDriverDir(t,
		"libwss.so",
		"libwss.dylib",
		"wss.dll",
		"README.txt",
		filepath.Join("nested", "libradio.so"),
	)
	lib := NewLibrary(dir)

	if err := lib.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !lib.Loaded() {
		t.Error("Loaded() should be true after Load")
	}

	objects := lib.Objects()
	if len(objects) != 4 {
		t.Fatalf("Objects() returned %d paths, want 4: %v", len(objects), objects)
	}
	for _, obj := range objects {
		if filepath.Ext(obj) == ".txt" {
			t.Errorf("non-driver file discovered: %s", obj)
		}
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	dir := newDriverDir(t, "libwss.so")
	lib := NewLibrary(dir)

	if err := lib.Load(); err != nil {
		t.Fatalf("first Load() error = %v", err)
	}

	// A second Load must not rescan; deleting the directory proves it.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("removing driver dir: %v", err)
	}
	if err := lib.Load(); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
}

func TestNewDeviceRequiresLoad(t *testing.T) {
	lib := NewLibrary(t.TempDir())

	_, err := lib.NewDevice("", t.TempDir(), true, 3)
	if !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("NewDevice() = %v, want ErrNotLoaded", err)
	}
}

func TestNewDeviceTestModeUsesSimulator(t *testing.T) {
	lib := NewLibrary(newDriverDir(t))
	if err := lib.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	dev, err := lib.NewDevice("", t.TempDir(), true, 3)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	if _, ok := dev.(*sim.Device); !ok {
		t.Fatalf("NewDevice() in test mode returned %T, want *sim.Device", dev)
	}
}

func TestNewDeviceWithoutNativeTransport(t *testing.T) {
	lib := NewLibrary(newDriverDir(t, "libwss.so"))
	if err := lib.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// No native factory is registered in test builds.
	_, err := lib.NewDevice("/dev/ttyUSB0", t.TempDir(), false, 3)
	if !errors.Is(err, ErrNoNativeTransport) {
		t.Fatalf("NewDevice() = %v, want ErrNoNativeTransport", err)
	}
}

func TestInstallLogSink(t *testing.T) {
	lib := NewLibrary(newDriverDir(t))

	var mu sync.Mutex
	var got []string
	sink := func(level, message string) {
		mu.Lock()
		got = append(got, level+": "+message)
		mu.Unlock()
	}

	reset, err := lib.InstallLogSink(sink)
	if err != nil {
		t.Fatalf("InstallLogSink() error = %v", err)
	}

	lib.emit("WARN", "coil temperature high")

	mu.Lock()
	if len(got) != 1 || got[0] != "WARN: coil temperature high" {
		t.Errorf("sink received %v", got)
	}
	mu.Unlock()

	// A second install without reset must fail.
	if _, err := lib.InstallLogSink(sink); !errors.Is(err, ErrSinkInstalled) {
		t.Errorf("second InstallLogSink() = %v, want ErrSinkInstalled", err)
	}

	// After reset the sink is detached and reinstall succeeds.
	reset()
	lib.emit("INFO", "dropped")

	mu.Lock()
	if len(got) != 1 {
		t.Errorf("sink received events after reset: %v", got)
	}
	mu.Unlock()

	if _, err := lib.InstallLogSink(sink); err != nil {
		t.Errorf("InstallLogSink() after reset error = %v", err)
	}
}

func TestInstallLogSinkRejectsNil(t *testing.T) {
	lib := NewLibrary(t.TempDir())

	if _, err := lib.InstallLogSink(nil); err == nil {
		t.Fatal("InstallLogSink(nil) should return an error")
	}
}

func TestDeviceLogsFlowThroughSink(t *testing.T) {
	lib := NewLibrary(newDriverDir(t))
	if err := lib.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var mu sync.Mutex
	var levels []string
	reset, err := lib.InstallLogSink(func(level, _ string) {
		mu.Lock()
		levels = append(levels, level)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("InstallLogSink() error = %v", err)
	}
	defer reset()

	dev, err := lib.NewDevice("", t.TempDir(), true, 3)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	if err := dev.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(levels) == 0 {
		t.Error("expected device initialization to emit through the sink")
	}
}
