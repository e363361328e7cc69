package telemetry

import (
	"encoding/json"
	"sync"
	"time"
)

// defaultInterval is used when no report interval is configured.
const defaultInterval = 10 * time.Second

// StatusSource provides the session state sampled into each report.
// Implemented by *stim.Controller.
type StatusSource interface {
	SessionID() string
	Ready() bool
	Started() bool
	BasicSupported() bool
	TickCount() uint64
}

// Publisher is the interface for publishing health reports.
// This is typically implemented by an MQTT client.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// StatusSink receives a copy of each snapshot, typically for InfluxDB.
// Optional.
type StatusSink interface {
	WriteSessionStatus(sessionID string, ready, started bool, ticks uint64)
}

// Logger is the optional logging interface for the reporter.
type Logger interface {
	Error(msg string, args ...any)
}

// Report is the JSON payload published to the health topic.
type Report struct {
	SessionID      string `json:"session_id"`
	Ready          bool   `json:"ready"`
	Started        bool   `json:"started"`
	BasicSupported bool   `json:"basic_supported"`
	TickCount      uint64 `json:"tick_count"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Timestamp      string `json:"ts"`
}

// Config holds construction settings for the reporter.
type Config struct {
	// Topic is the MQTT topic reports are published to.
	Topic string

	// QoS is the publish quality of service.
	QoS byte

	// Interval is how often to publish. Default: 10 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing reports. Required.
	Publisher Publisher

	// Source is the session controller being reported on. Required.
	Source StatusSource

	// Sink optionally mirrors snapshots into a metrics store.
	Sink StatusSink

	// Logger is optional.
	Logger Logger
}

// Reporter publishes periodic session health reports.
type Reporter struct {
	topic     string
	qos       byte
	interval  time.Duration
	publisher Publisher
	source    StatusSource
	sink      StatusSink
	startTime time.Time

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewReporter creates a health reporter.
// Call Start to begin reporting.
func NewReporter(cfg Config) *Reporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Reporter{
		topic:     cfg.Topic,
		qos:       cfg.QoS,
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting. Call Stop to shut down.
func (r *Reporter) Start() {
	r.wg.Add(1)
	go r.reportLoop()
}

// Stop gracefully stops reporting. A final snapshot is published so the
// retained report reflects the state at shutdown.
// Safe to call multiple times (uses sync.Once).
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()

		// Best-effort final snapshot during shutdown.
		if err := r.PublishNow(); err != nil {
			r.logError("failed to publish final health report", err)
		}
	})
}

// SetLogger sets the logger for this reporter.
func (r *Reporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// PublishNow publishes the current session snapshot immediately.
// Useful for forcing an update after a significant event.
func (r *Reporter) PublishNow() error {
	report := r.snapshot()

	if r.sink != nil {
		r.sink.WriteSessionStatus(report.SessionID, report.Ready, report.Started, report.TickCount)
	}

	if r.publisher == nil || !r.publisher.IsConnected() {
		return nil
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}

	return r.publisher.Publish(r.topic, payload, r.qos, true)
}

// reportLoop runs the periodic reporting.
func (r *Reporter) reportLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Publish initial snapshot
	if err := r.PublishNow(); err != nil {
		r.logError("failed to publish initial health report", err)
	}

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if err := r.PublishNow(); err != nil {
				r.logError("failed to publish health report", err)
			}
		}
	}
}

// snapshot samples the session controller into a report.
func (r *Reporter) snapshot() Report {
	return Report{
		SessionID:      r.source.SessionID(),
		Ready:          r.source.Ready(),
		Started:        r.source.Started(),
		BasicSupported: r.source.BasicSupported(),
		TickCount:      r.source.TickCount(),
		UptimeSeconds:  int64(time.Since(r.startTime).Seconds()),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}

// logError logs an error if logger is set.
func (r *Reporter) logError(msg string, err error) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
