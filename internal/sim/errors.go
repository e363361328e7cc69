package sim

import "errors"

// Domain errors for the simulated transport.
var (
	// ErrNotInitialized is returned by operations issued before Initialize.
	ErrNotInitialized = errors.New("sim: device not initialized")

	// ErrChannelOutOfRange is returned when a channel index is outside the
	// range configured by the core config.
	ErrChannelOutOfRange = errors.New("sim: channel out of range")

	// ErrUnknownParam is returned when a stimulation parameter key is absent.
	ErrUnknownParam = errors.New("sim: unknown stimulation parameter")
)
