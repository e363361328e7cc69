package stim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hfi-neuro/wss-core/internal/wss"
)

// Controller timing constants.
const (
	// minTickInterval is the floor for the tick loop period. Configured
	// values below it are clamped up.
	minTickInterval = time.Millisecond

	// tickJoinTimeout bounds how long Shutdown waits for the tick loop to
	// observe its stop signal. The loop is expected to exit within one
	// iteration; a timed-out handle is discarded.
	tickJoinTimeout = 2 * time.Second

	// recordTimeout bounds history writes issued from command methods.
	recordTimeout = time.Second
)

// Config holds the immutable session settings supplied at construction.
type Config struct {
	// SerialPort is the fully qualified serial device name. Empty enables
	// auto-detection in the driver.
	SerialPort string

	// ConfigDir is the directory holding the device's JSON config files.
	ConfigDir string

	// TestMode substitutes the simulated transport for the serial one.
	TestMode bool

	// MaxSetupTries is the device's setup retry budget.
	MaxSetupTries int

	// TickInterval is the tick loop period. Values below one millisecond
	// are clamped to one millisecond.
	TickInterval time.Duration
}

// DriverLibrary is the consumed surface of the stimulator driver library.
// Implemented by *driver.Library.
type DriverLibrary interface {
	// Load resolves the driver set. Idempotent.
	Load() error

	// NewDevice constructs a device handle. An empty port auto-detects.
	NewDevice(port, configDir string, testMode bool, maxSetupTries int) (wss.Device, error)

	// InstallLogSink binds a host log sink to driver-side logging and
	// returns the reset callback invoked during teardown.
	InstallLogSink(sink wss.LogFunc) (func(), error)
}

// Event is a session history record.
type Event struct {
	SessionID string
	Kind      string // lifecycle, command, device_log
	Name      string
	Channel   int
	Detail    string
}

// Recorder persists session events. Implemented by *history.Store.
// Optional; a nil recorder disables history.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Metrics receives tick and command measurements. Implemented by
// *metrics.Client. Optional.
type Metrics interface {
	ObserveTick(d time.Duration)
	IncCommand(name string)
}

// Logger defines the logging interface for the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds construction dependencies for the controller.
type Options struct {
	// Config is the immutable session configuration.
	Config Config

	// Library is the stimulator driver library. Required.
	Library DriverLibrary

	// Logger is optional structured logging.
	Logger Logger

	// Recorder is optional session history persistence.
	Recorder Recorder

	// Metrics is optional tick/command instrumentation.
	Metrics Metrics
}

// Controller owns the stimulator session: device handle lifecycle, tick
// loop, and the channel-addressed command surface.
//
// Lifecycle transitions hold the gate exclusively; command methods hold it
// shared across the device call.
type Controller struct {
	cfg      Config
	lib      DriverLibrary
	logger   Logger
	recorder Recorder
	metrics  Metrics

	gate           sync.RWMutex
	device         wss.Device
	basic          wss.Basic
	basicSupported bool
	logReset       func()

	// sessionID is read from the driver's log goroutine, so it lives
	// outside the gate.
	sessionID atomic.Value // string

	tickStop chan struct{}
	tickDone chan struct{}

	ticks   atomic.Uint64
	started atomic.Bool
}

// New creates a session controller. Call Initialize to begin a session.
func New(opts Options) (*Controller, error) {
	if opts.Library == nil {
		return nil, fmt.Errorf("stim: driver library is required")
	}

	cfg := opts.Config
	if cfg.TickInterval < minTickInterval {
		cfg.TickInterval = minTickInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Controller{
		cfg:      cfg,
		lib:      opts.Library,
		logger:   logger,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
	}, nil
}

// Initialize loads the driver library, constructs the device handle,
// installs the log bridge, discovers the extended command set, initializes
// the device and starts the tick loop. Idempotent: a second call while a
// session is live returns immediately.
//
// Failures here propagate to the caller; a half-initialized device must not
// be treated as usable.
func (c *Controller) Initialize(ctx context.Context) error {
	c.gate.Lock()
	defer c.gate.Unlock()

	if c.device != nil {
		return nil
	}

	if err := c.lib.Load(); err != nil {
		return fmt.Errorf("loading driver library: %w", err)
	}

	dev, err := c.lib.NewDevice(c.cfg.SerialPort, c.cfg.ConfigDir, c.cfg.TestMode, c.cfg.MaxSetupTries)
	if err != nil {
		return fmt.Errorf("constructing device: %w", err)
	}

	// Install the log bridge once per controller lifetime. The reset
	// callback is cleared by Shutdown, so a re-Initialize after Shutdown
	// reinstalls; within a single session this guard never fires.
	c.installLogSinkLocked()

	basic, basicSupported := dev.TryGetBasic()

	c.device = dev
	c.basic = basic
	c.basicSupported = basicSupported
	c.sessionID.Store(uuid.NewString())
	c.ticks.Store(0)

	if err := dev.Initialize(); err != nil {
		// Leave no half-initialized handle behind; a retry goes through the
		// full construction path again.
		if closeErr := dev.Close(); closeErr != nil {
			c.logger.Error("device close failed", "error", closeErr)
		}
		c.device = nil
		c.basic = nil
		c.basicSupported = false
		c.sessionID.Store("")
		return fmt.Errorf("initializing device: %w", err)
	}

	c.ensureTickLoopLocked(dev)

	c.logger.Info("session initialized",
		"session_id", c.currentSessionID(),
		"port", portLabel(c.cfg.SerialPort),
		"test_mode", c.cfg.TestMode,
		"basic_supported", basicSupported,
	)
	c.recordCtx(ctx, "lifecycle", "initialize", UnassignedChannel,
		fmt.Sprintf("port=%s test_mode=%t", portLabel(c.cfg.SerialPort), c.cfg.TestMode))
	return nil
}

// Shutdown stops the tick loop, tears the device down and clears all
// session state. Teardown is best-effort: device-side failures are logged
// and swallowed so Shutdown never fails. Safe to call any number of times,
// including when never initialized.
func (c *Controller) Shutdown() {
	c.gate.Lock()
	defer c.gate.Unlock()

	c.stopTickLoopLocked()

	if c.device != nil {
		if err := c.device.Shutdown(); err != nil {
			c.logger.Error("device shutdown failed", "error", err)
		}
		if err := c.device.Close(); err != nil {
			c.logger.Error("device close failed", "error", err)
		}
		c.recordCtx(context.Background(), "lifecycle", "shutdown", UnassignedChannel, "")
		c.logger.Info("session shut down", "session_id", c.currentSessionID())
	}

	if c.logReset != nil {
		c.logReset()
		c.logReset = nil
	}

	c.device = nil
	c.basic = nil
	c.basicSupported = false
	c.sessionID.Store("")
	c.started.Store(false)
}

// ReleaseRadio is the composite release operation: a full Shutdown.
func (c *Controller) ReleaseRadio() {
	c.Shutdown()
}

// ResetRadio stops the tick loop, cycles the device through Shutdown and
// Initialize, and restarts the loop. Unlike Shutdown, failures here
// propagate: a failed reset must surface rather than leave a half-reset
// device looking healthy. No-op when not initialized.
func (c *Controller) ResetRadio() error {
	c.gate.Lock()
	defer c.gate.Unlock()

	if c.device == nil {
		return nil
	}

	c.stopTickLoopLocked()

	if err := c.device.Shutdown(); err != nil {
		return fmt.Errorf("device shutdown: %w", err)
	}
	if err := c.device.Initialize(); err != nil {
		return fmt.Errorf("device initialize: %w", err)
	}

	c.ensureTickLoopLocked(c.device)

	c.logger.Info("device reset", "session_id", c.currentSessionID())
	c.recordCtx(context.Background(), "lifecycle", "reset", UnassignedChannel, "")
	return nil
}

// --- tick loop ---

// ensureTickLoopLocked starts the tick loop unless one is already alive.
// Caller holds the gate exclusively.
func (c *Controller) ensureTickLoopLocked(dev wss.Device) {
	if c.tickDone != nil {
		select {
		case <-c.tickDone:
			// Previous loop exited on its own; restart below.
		default:
			return
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.tickStop = stop
	c.tickDone = done
	go c.runTickLoop(dev, stop, done)
}

// stopTickLoopLocked signals the loop and joins it with a bounded wait.
// Caller holds the gate exclusively.
func (c *Controller) stopTickLoopLocked() {
	if c.tickStop == nil {
		return
	}

	close(c.tickStop)
	select {
	case <-c.tickDone:
	case <-time.After(tickJoinTimeout):
		c.logger.Warn("tick loop did not stop within join timeout")
	}

	c.tickStop = nil
	c.tickDone = nil
}

// runTickLoop drives the device state machine until stop is closed.
// Tick failures are logged and never stop the loop.
func (c *Controller) runTickLoop(dev wss.Device, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		start := time.Now()
		if err := dev.Tick(); err != nil {
			c.logger.Error("device tick failed", "error", err)
		}
		c.ticks.Add(1)
		if c.metrics != nil {
			c.metrics.ObserveTick(time.Since(start))
		}

		select {
		case <-stop:
			return
		case <-time.After(c.cfg.TickInterval):
		}
	}
}

// --- command surface: baseline ---

// StartStimulation broadcasts a stimulation start to all units.
func (c *Controller) StartStimulation() error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}
	if err := dev.StartStim(wss.Broadcast); err != nil {
		return err
	}
	c.started.Store(true)
	c.command("start_stim", UnassignedChannel, "")
	return nil
}

// StopStimulation broadcasts a stimulation stop to all units.
func (c *Controller) StopStimulation() error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}
	if err := dev.StopStim(wss.Broadcast); err != nil {
		return err
	}
	c.started.Store(false)
	c.command("stop_stim", UnassignedChannel, "")
	return nil
}

// StimulateAnalog issues a direct analog pulse request on the channel the
// locator resolves to.
func (c *Controller) StimulateAnalog(locator string, pulseWidth, amplitude, interPulseInterval int) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}
	ch := ChannelForLocator(locator)
	if err := dev.StimulateAnalog(ch, pulseWidth, amplitude, interPulseInterval); err != nil {
		return err
	}
	c.command("stimulate_analog", ch,
		fmt.Sprintf("pw=%d amp=%d ipi=%d", pulseWidth, amplitude, interPulseInterval))
	return nil
}

// StimulateNormalized stimulates with a normalized magnitude in [0,1].
func (c *Controller) StimulateNormalized(locator string, magnitude float64) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}
	ch := ChannelForLocator(locator)
	if err := dev.StimulateNormalized(ch, magnitude); err != nil {
		return err
	}
	c.command("stimulate_normalized", ch, fmt.Sprintf("magnitude=%.3f", magnitude))
	return nil
}

// StimWithMode stimulates through the currently configured stimulation mode.
func (c *Controller) StimWithMode(locator string, magnitude float64) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}
	ch := ChannelForLocator(locator)
	if err := dev.StimWithMode(ch, magnitude); err != nil {
		return err
	}
	c.command("stim_with_mode", ch, fmt.Sprintf("magnitude=%.3f", magnitude))
	return nil
}

// GetStimIntensity returns the last commanded intensity for the locator's
// channel.
func (c *Controller) GetStimIntensity(locator string) (int, error) {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return 0, ErrNotInitialized
	}
	return dev.GetStimIntensity(ChannelForLocator(locator))
}

// AddOrUpdateStimParam sets a string-keyed stimulation parameter.
func (c *Controller) AddOrUpdateStimParam(key string, value float64) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}
	if err := dev.AddOrUpdateStimParam(key, value); err != nil {
		return err
	}
	c.command("set_param", UnassignedChannel, fmt.Sprintf("key=%s value=%g", key, value))
	return nil
}

// GetStimParam reads a string-keyed stimulation parameter.
func (c *Controller) GetStimParam(key string) (float64, error) {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return 0, ErrNotInitialized
	}
	return dev.GetStimParam(key)
}

// TryGetStimParam reads a parameter without failing on absence.
func (c *Controller) TryGetStimParam(key string) (float64, bool, error) {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return 0, false, ErrNotInitialized
	}
	v, ok := dev.TryGetStimParam(key)
	return v, ok, nil
}

// AllStimParams returns a copy of the device's parameter set.
func (c *Controller) AllStimParams() (map[string]float64, error) {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return nil, ErrNotInitialized
	}
	return dev.AllStimParams(), nil
}

// SetChannelAmp sets the channel amplitude in milliamps.
func (c *Controller) SetChannelAmp(locator string, milliamps float64) error {
	return c.channelCommand(locator, "set_channel_amp", fmt.Sprintf("ma=%g", milliamps),
		func(dev wss.Device, ch int) error { return dev.SetChannelAmp(ch, milliamps) })
}

// SetChannelPWMin sets the channel minimum pulse width in microseconds.
func (c *Controller) SetChannelPWMin(locator string, micros int) error {
	return c.channelCommand(locator, "set_channel_pw_min", fmt.Sprintf("us=%d", micros),
		func(dev wss.Device, ch int) error { return dev.SetChannelPWMin(ch, micros) })
}

// SetChannelPWMax sets the channel maximum pulse width in microseconds.
func (c *Controller) SetChannelPWMax(locator string, micros int) error {
	return c.channelCommand(locator, "set_channel_pw_max", fmt.Sprintf("us=%d", micros),
		func(dev wss.Device, ch int) error { return dev.SetChannelPWMax(ch, micros) })
}

// SetChannelIPI sets the channel inter-pulse interval in milliseconds.
func (c *Controller) SetChannelIPI(locator string, millis int) error {
	return c.channelCommand(locator, "set_channel_ipi", fmt.Sprintf("ms=%d", millis),
		func(dev wss.Device, ch int) error { return dev.SetChannelIPI(ch, millis) })
}

// GetChannelAmp reads the channel amplitude in milliamps.
func (c *Controller) GetChannelAmp(locator string) (float64, error) {
	c.gate.RLock()
	defer c.gate.RUnlock()
	dev := c.device
	if dev == nil {
		return 0, ErrNotInitialized
	}
	return dev.GetChannelAmp(ChannelForLocator(locator))
}

// GetChannelPWMin reads the channel minimum pulse width in microseconds.
func (c *Controller) GetChannelPWMin(locator string) (int, error) {
	c.gate.RLock()
	defer c.gate.RUnlock()
	dev := c.device
	if dev == nil {
		return 0, ErrNotInitialized
	}
	return dev.GetChannelPWMin(ChannelForLocator(locator))
}

// GetChannelPWMax reads the channel maximum pulse width in microseconds.
func (c *Controller) GetChannelPWMax(locator string) (int, error) {
	c.gate.RLock()
	defer c.gate.RUnlock()
	dev := c.device
	if dev == nil {
		return 0, ErrNotInitialized
	}
	return dev.GetChannelPWMax(ChannelForLocator(locator))
}

// GetChannelIPI reads the channel inter-pulse interval in milliseconds.
func (c *Controller) GetChannelIPI(locator string) (int, error) {
	c.gate.RLock()
	defer c.gate.RUnlock()
	dev := c.device
	if dev == nil {
		return 0, ErrNotInitialized
	}
	return dev.GetChannelIPI(ChannelForLocator(locator))
}

// IsFingerValid reports whether the locator resolves to a channel within the
// device's configured valid range.
func (c *Controller) IsFingerValid(locator string) (bool, error) {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return false, ErrNotInitialized
	}
	return dev.IsChannelInRange(ChannelForLocator(locator)), nil
}

// UpdateChannelParams validates the locator's channel and writes its
// max/min pulse width and amplitude parameters. The range check happens
// before any write, so an invalid channel issues zero updates.
func (c *Controller) UpdateChannelParams(locator string, maxPW, minPW, amp int) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}

	ch := ChannelForLocator(locator)
	if !dev.IsChannelInRange(ch) {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}

	baseKey := fmt.Sprintf("stim.ch.%d", ch)
	if err := dev.AddOrUpdateStimParam(baseKey+".maxPW", float64(maxPW)); err != nil {
		return err
	}
	if err := dev.AddOrUpdateStimParam(baseKey+".minPW", float64(minPW)); err != nil {
		return err
	}
	if err := dev.AddOrUpdateStimParam(baseKey+".amp", float64(amp)); err != nil {
		return err
	}
	c.command("update_channel_params", ch,
		fmt.Sprintf("max_pw=%d min_pw=%d amp=%d", maxPW, minPW, amp))
	return nil
}

// LoadCoreConfigFile re-reads the device's core config JSON.
func (c *Controller) LoadCoreConfigFile() error {
	c.gate.RLock()
	defer c.gate.RUnlock()
	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}
	return dev.LoadCoreConfigFile()
}

// LoadParamsJson reloads the params JSON, optionally from an explicit path.
func (c *Controller) LoadParamsJson(path string) error {
	c.gate.RLock()
	defer c.gate.RUnlock()
	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}
	return dev.LoadParamsJson(path)
}

// SaveParamsJson persists the params JSON.
func (c *Controller) SaveParamsJson() error {
	c.gate.RLock()
	defer c.gate.RUnlock()
	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}
	return dev.SaveParamsJson()
}

// --- command surface: extended (soft-degrading) ---

// Save persists the device-side config on the addressed group. On devices
// without the extended command set this logs a warning and is a no-op.
func (c *Controller) Save(group int) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	basic := c.basicHandleLocked("save")
	if basic == nil {
		return nil
	}
	return basic.Save(TargetForGroup(group))
}

// Load restores the device-side config on the addressed group.
func (c *Controller) Load(group int) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	basic := c.basicHandleLocked("load")
	if basic == nil {
		return nil
	}
	return basic.Load(TargetForGroup(group))
}

// RequestConfigs asks the addressed group to report a config block.
func (c *Controller) RequestConfigs(group, command, id int) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	basic := c.basicHandleLocked("request_configs")
	if basic == nil {
		return nil
	}
	return basic.RequestConfigs(command, id, TargetForGroup(group))
}

// UpdateWaveform resolves a loosely-typed argument tuple (see
// parseWaveformArgs for the accepted shapes) and dispatches it to the
// matching extended operation. Prefer ApplyWaveformUpdate with a typed
// constructor where the call shape is known at compile time.
func (c *Controller) UpdateWaveform(args ...any) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	basic := c.basicHandleLocked("update_waveform")
	if basic == nil {
		return nil
	}

	update, err := parseWaveformArgs(args)
	if err != nil {
		return err
	}
	if err := update.apply(basic); err != nil {
		return err
	}
	c.command("update_waveform", UnassignedChannel,
		fmt.Sprintf("event=%d target=%s", update.eventID, update.target))
	return nil
}

// ApplyWaveformUpdate dispatches a typed waveform update.
func (c *Controller) ApplyWaveformUpdate(update WaveformUpdate) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	basic := c.basicHandleLocked("update_waveform")
	if basic == nil {
		return nil
	}
	if err := update.apply(basic); err != nil {
		return err
	}
	c.command("update_waveform", UnassignedChannel,
		fmt.Sprintf("event=%d target=%s", update.eventID, update.target))
	return nil
}

// LoadWaveform programs an event from a waveform file.
func (c *Controller) LoadWaveform(fileName string, eventID int) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	basic := c.basicHandleLocked("load_waveform")
	if basic == nil {
		return nil
	}
	return basic.LoadWaveform(fileName, eventID)
}

// WaveformSetup programs an event from raw samples on the addressed group.
func (c *Controller) WaveformSetup(wave []int, eventID, group int) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	basic := c.basicHandleLocked("waveform_setup")
	if basic == nil {
		return nil
	}
	return basic.WaveformSetup(wave, eventID, TargetForGroup(group))
}

// UpdateIPD sets the inter-phase delay of an event on the addressed group.
func (c *Controller) UpdateIPD(ipd, eventID, group int) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	basic := c.basicHandleLocked("update_ipd")
	if basic == nil {
		return nil
	}
	return basic.UpdateIPD(ipd, eventID, TargetForGroup(group))
}

// --- status ---

// Ready reports whether a device is present and ready.
func (c *Controller) Ready() bool {
	c.gate.RLock()
	defer c.gate.RUnlock()
	return c.device != nil && c.device.Ready()
}

// Started reports the device-side started state.
func (c *Controller) Started() bool {
	c.gate.RLock()
	defer c.gate.RUnlock()
	return c.device != nil && c.device.Started()
}

// IsModeValid reports whether the device's stimulation mode is configured.
func (c *Controller) IsModeValid() (bool, error) {
	c.gate.RLock()
	defer c.gate.RUnlock()
	if c.device == nil {
		return false, ErrNotInitialized
	}
	return c.device.IsModeValid(), nil
}

// BasicSupported reports whether the device exposes the extended command
// set. Derived once at Initialize.
func (c *Controller) BasicSupported() bool {
	c.gate.RLock()
	defer c.gate.RUnlock()
	return c.basicSupported
}

// StimActive reports whether a start command has been issued without a
// matching stop.
func (c *Controller) StimActive() bool {
	return c.started.Load()
}

// TickCount returns the number of tick loop iterations this session.
func (c *Controller) TickCount() uint64 {
	return c.ticks.Load()
}

// SessionID returns the identifier of the live session, or empty when shut
// down.
func (c *Controller) SessionID() string {
	return c.currentSessionID()
}

func (c *Controller) currentSessionID() string {
	if v, ok := c.sessionID.Load().(string); ok {
		return v
	}
	return ""
}

// --- internals ---

// installLogSinkLocked binds the controller's log sink to the driver unless
// a reset callback is already held. Caller holds the gate exclusively.
func (c *Controller) installLogSinkLocked() {
	if c.logReset != nil {
		return
	}

	reset, err := c.lib.InstallLogSink(c.deviceLog)
	if err != nil {
		c.logger.Warn("log sink install skipped", "error", err)
		return
	}
	c.logReset = reset
}

// deviceLog bridges driver-side log events into host logging and history.
func (c *Controller) deviceLog(level, message string) {
	switch level {
	case "ERROR", "error":
		c.logger.Error(message, "source", "device")
	case "WARN", "WARNING", "warn", "warning":
		c.logger.Warn(message, "source", "device")
	default:
		c.logger.Info(message, "source", "device")
	}

	if c.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := c.recorder.Record(ctx, Event{
			SessionID: c.currentSessionID(),
			Kind:      "device_log",
			Name:      level,
			Detail:    message,
		}); err != nil {
			c.logger.Debug("device log record skipped", "error", err)
		}
	}
}

// basicHandleLocked returns the extended handle, or nil with a warning when
// the device lacks the capability. Caller holds the gate shared.
func (c *Controller) basicHandleLocked(op string) wss.Basic {
	if !c.basicSupported || c.basic == nil {
		c.logger.Warn("extended command set not supported", "op", op)
		return nil
	}
	return c.basic
}

// channelCommand runs a per-channel mutation with shared locking, resolver
// translation and history recording.
func (c *Controller) channelCommand(locator, name, detail string, fn func(dev wss.Device, ch int) error) error {
	c.gate.RLock()
	defer c.gate.RUnlock()

	dev := c.device
	if dev == nil {
		return ErrNotInitialized
	}
	ch := ChannelForLocator(locator)
	if err := fn(dev, ch); err != nil {
		return err
	}
	c.command(name, ch, detail)
	return nil
}

// command records a successful command in metrics and history.
func (c *Controller) command(name string, channel int, detail string) {
	if c.metrics != nil {
		c.metrics.IncCommand(name)
	}
	if c.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.recorder.Record(ctx, Event{
		SessionID: c.currentSessionID(),
		Kind:      "command",
		Name:      name,
		Channel:   channel,
		Detail:    detail,
	}); err != nil {
		c.logger.Debug("command record skipped", "name", name, "error", err)
	}
}

// recordCtx records a lifecycle event with the caller's context.
func (c *Controller) recordCtx(ctx context.Context, kind, name string, channel int, detail string) {
	if c.recorder == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	recCtx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := c.recorder.Record(recCtx, Event{
		SessionID: c.currentSessionID(),
		Kind:      kind,
		Name:      name,
		Channel:   channel,
		Detail:    detail,
	}); err != nil {
		c.logger.Debug("lifecycle record skipped", "name", name, "error", err)
	}
}

func portLabel(port string) string {
	if port == "" {
		return "auto-detect"
	}
	return port
}
