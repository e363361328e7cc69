// Package telemetry publishes periodic session health reports over MQTT.
//
// The Reporter samples the session controller at a fixed interval and
// publishes a retained JSON snapshot to the health topic, so dashboards
// and experiment recorders always see the latest session state. It can
// also mirror each snapshot into InfluxDB when a metrics sink is
// configured.
package telemetry
