// Package history persists stimulation session events to SQLite.
//
// Every session lifecycle transition, successful command, and bridged
// device log event is stored as one row in the session_events table,
// keyed by the session identifier assigned at initialization. The store
// implements the controller's Recorder interface.
//
// Schema is applied idempotently at construction; there are no external
// migration files.
package history
