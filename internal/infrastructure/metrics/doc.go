// Package metrics records session measurements in InfluxDB.
//
// This package manages:
//   - Connection to an InfluxDB v2 server with token authentication
//   - Non-blocking, batched measurement writes
//   - Health monitoring
//
// Measurements written:
//   - session_ticks: tick loop iteration durations
//   - session_commands: per-command counters
//   - session_status: periodic session state snapshots
//
// Writes are fire-and-forget; async failures surface through the error
// callback given to Connect. A closed client drops writes silently so
// metrics can never stall a stimulation session.
package metrics
