package stim

import "errors"

// Domain errors for the session controller.
var (
	// ErrNotInitialized is returned by command methods issued before
	// Initialize (or after Shutdown).
	ErrNotInitialized = errors.New("stim: controller not initialized")

	// ErrInvalidChannel is returned when a resolved channel is outside the
	// device's configured valid range.
	ErrInvalidChannel = errors.New("stim: invalid channel")

	// ErrUnsupportedCallShape is returned when a waveform update call shape
	// matches none of the accepted forms.
	ErrUnsupportedCallShape = errors.New("stim: unsupported call shape")
)
