package driver

import "errors"

// Domain errors for the driver package.
var (
	// ErrNotLoaded is returned when a device is requested before Load.
	ErrNotLoaded = errors.New("driver: library not loaded")

	// ErrMissingDriverDir is returned when the driver directory does not exist.
	ErrMissingDriverDir = errors.New("driver: driver directory not found")

	// ErrNoNativeTransport is returned when a real (non test-mode) device is
	// requested but no native transport factory is registered in this build.
	ErrNoNativeTransport = errors.New("driver: native transport unavailable")

	// ErrSinkInstalled is returned when a log sink is installed twice without
	// an intervening reset.
	ErrSinkInstalled = errors.New("driver: log sink already installed")
)
