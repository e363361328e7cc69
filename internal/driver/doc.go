// Package driver manages the stimulator driver library: locating the native
// transport objects on disk, constructing device handles, and owning the
// driver-wide log sink that device code calls back into.
//
// The original vendor tooling loaded its driver set through process-global
// side effects. Library makes that state explicit: Load is idempotent with
// an "already loaded" guard, and the log sink install returns a reset
// callback so teardown restores default driver logging exactly once.
package driver
