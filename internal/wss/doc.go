// Package wss defines the consumed contract of the Wearable Surface
// Stimulator device. The host never implements the stimulation firmware or
// the serial wire protocol; it talks to an opaque handle that satisfies
// Device, optionally extended by Basic on newer firmware revisions.
//
// Implementations live elsewhere: the simulated transport in internal/sim,
// and the native serial transport registered through internal/driver.
package wss
