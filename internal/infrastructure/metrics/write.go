package metrics

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// ObserveTick records one tick loop iteration duration.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Satisfies the controller's Metrics interface.
func (c *Client) ObserveTick(d time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"session_ticks",
		nil,
		map[string]interface{}{
			"duration_us": float64(d.Microseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// IncCommand records one successfully issued session command.
//
// Satisfies the controller's Metrics interface.
//
// Example:
//
//	client.IncCommand("stimulate_analog")
func (c *Client) IncCommand(name string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"session_commands",
		map[string]string{
			"command": name,
		},
		map[string]interface{}{
			"count": int64(1),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSessionStatus records a session state snapshot.
//
// Used by the periodic telemetry reporter alongside its MQTT publish.
func (c *Client) WriteSessionStatus(sessionID string, ready, started bool, ticks uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"session_status",
		map[string]string{
			"session_id": sessionID,
		},
		map[string]interface{}{
			"ready":      ready,
			"started":    started,
			"tick_count": int64(ticks), // #nosec G115 -- tick counts fit int64 for any realistic session
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
