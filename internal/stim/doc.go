// Package stim implements the stimulation session controller: it owns the
// device handle's lifecycle, runs the background tick loop that keeps the
// firmware state machine advancing, and exposes the channel-addressed
// command surface of the Wearable Surface Stimulator.
//
// Locking model: lifecycle transitions (Initialize, Shutdown, ResetRadio)
// hold the controller gate exclusively; command methods hold it shared for
// the duration of the device call, so commands never observe a device that
// is mid-teardown and lifecycle transitions wait out in-flight commands.
// The tick loop never touches the gate — it receives the device handle when
// started and is always joined before the handle is torn down.
package stim
