package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hfi-neuro/wss-core/internal/infrastructure/config"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.MetricsConfig {
	return config.MetricsConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "wss-dev-token",
		Org:           "hfi",
		Bucket:        "wss",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(cfg, nil)
	if err == nil {
		t.Fatal("Connect() should return error when disabled")
	}
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestWritesDropWhenDisconnected(t *testing.T) {
	// A zero client with connected=false must silently drop writes so
	// metrics never stall the session.
	c := &Client{}

	c.ObserveTick(5 * time.Millisecond)
	c.IncCommand("start_stim")
	c.WriteSessionStatus("s1", true, false, 42)
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1})
	c.Flush()

	if c.IsConnected() {
		t.Error("zero client should not report connected")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	c := &Client{}

	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
