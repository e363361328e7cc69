package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hfi-neuro/wss-core/internal/infrastructure/config"
)

// testConfig returns a valid telemetry configuration for testing.
func testConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		Host:        "127.0.0.1",
		Port:        1883,
		ClientID:    "wss-core-test",
		QoS:         1,
		TopicPrefix: "wss-test",
	}
}

func TestNewTopics(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{"configured prefix", "lab7", "lab7/status"},
		{"empty prefix uses default", "", "wss/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewTopics(tt.prefix).Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("wss")

	if got := topics.Health(); got != "wss/health" {
		t.Errorf("Health() = %q", got)
	}
	if got := topics.SessionEvents("abc123"); got != "wss/session/abc123/events" {
		t.Errorf("SessionEvents() = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Username = "labuser"
	cfg.Password = "labpass"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("servers = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q", got)
	}
	if opts.ClientID != "wss-core-test" {
		t.Errorf("client id = %q", opts.ClientID)
	}
	if opts.Username != "labuser" {
		t.Errorf("username = %q", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("auto-reconnect should be enabled")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.TLS = true

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config should enforce minimum version")
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("wss-core")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, `"client_id":"wss-core"`) {
		t.Errorf("online payload = %s", online)
	}

	offline := buildOfflinePayload("wss-core")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, "graceful_shutdown") {
		t.Errorf("offline payload = %s", offline)
	}
}

func TestPublishValidation(t *testing.T) {
	cfg := testConfig()
	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
		client: pahomqtt.NewClient(buildClientOptions(cfg)),
	}

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("wss/health", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v, want ErrInvalidQoS", err)
	}
	oversized := make([]byte, maxPayloadSize+1)
	if err := c.Publish("wss/health", oversized, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed", err)
	}
	if err := c.Publish("wss/health", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected publish error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	cfg := testConfig()
	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
		client: pahomqtt.NewClient(buildClientOptions(cfg)),
	}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}
