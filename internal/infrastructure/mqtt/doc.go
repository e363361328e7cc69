// Package mqtt provides MQTT client connectivity for WSS session telemetry.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The session core publishes periodic health reports and per-session event
// notifications to the broker. External tooling (dashboards, experiment
// recorders) subscribes there; the core itself never subscribes.
//
//	WSS Session Core → MQTT Broker → Monitoring / Recording tools
//
// # Security Considerations
//
//   - TLS is required for production deployments (telemetry.tls=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Telemetry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(client.Topics().Health(), payload)
package mqtt
