package metrics

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/hfi-neuro/wss-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize         = 100
	defaultFlushIntervalSecs = 10
)

// Client records session measurements in InfluxDB.
//
// Writes go through the non-blocking batched write API and are dropped
// silently once the client is closed, so instrumentation can never stall
// a stimulation session. All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	connected atomic.Bool
}

// Connect builds the InfluxDB client, verifies the server with a ping and
// starts draining async write errors into onError (nil discards them).
// Returns ErrDisabled when the metrics section is switched off.
func Connect(cfg config.MetricsConfig, onError func(err error)) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushSecs := cfg.FlushInterval
	if flushSecs <= 0 {
		flushSecs = defaultFlushIntervalSecs
	}

	// #nosec G115 -- both values clamped positive above
	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushSecs*1000)))

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := influx.Ping(ctx)
	if err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		influx.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:   influx,
		writeAPI: influx.WriteAPI(cfg.Org, cfg.Bucket),
	}
	c.connected.Store(true)

	// Writes are async; their failures surface on this channel.
	go func(errorsCh <-chan error) {
		for err := range errorsCh {
			if onError != nil {
				onError(err)
			}
		}
	}(c.writeAPI.Errors())

	return c, nil
}

// Close flushes pending writes and releases the client. Further writes
// are dropped.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.connected.Store(false)
	c.writeAPI.Flush()
	c.client.Close()

	return nil
}

// HealthCheck pings the InfluxDB server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("metrics health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("metrics health check failed: server not healthy")
	}

	return nil
}

// IsConnected reports whether the client accepts writes. This is the last
// known state; HealthCheck performs an active ping.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Flush blocks until all buffered points are written. No-op when closed.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
