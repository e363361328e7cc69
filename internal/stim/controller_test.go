package stim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hfi-neuro/wss-core/internal/wss"
)

// call records one device operation issued by the controller.
type call struct {
	name    string
	channel int
	target  wss.Target
	key     string
	value   float64
	ints    []int
}

// fakeDevice implements wss.Device and wss.Basic, recording every call.
type fakeDevice struct {
	mu    sync.Mutex
	calls []call

	initErr     error
	tickErr     error
	shutdownErr error
	closeErr    error

	basicOK      bool
	channelCount int
	ready        bool
	started      bool
	params       map[string]float64

	tickCh chan struct{}
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		basicOK:      true,
		channelCount: 5,
		params:       make(map[string]float64),
		tickCh:       make(chan struct{}, 64),
	}
}

func (d *fakeDevice) record(c call) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
}

func (d *fakeDevice) callNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, len(d.calls))
	for i, c := range d.calls {
		names[i] = c.name
	}
	return names
}

func (d *fakeDevice) countCalls(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

func (d *fakeDevice) lastCall(name string) call {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.calls) - 1; i >= 0; i-- {
		if d.calls[i].name == name {
			return d.calls[i]
		}
	}
	return call{}
}

func (d *fakeDevice) Initialize() error {
	d.record(call{name: "Initialize"})
	if d.initErr != nil {
		return d.initErr
	}
	d.mu.Lock()
	d.ready = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Tick() error {
	select {
	case d.tickCh <- struct{}{}:
	default:
	}
	return d.tickErr
}

func (d *fakeDevice) Shutdown() error {
	d.record(call{name: "Shutdown"})
	if d.shutdownErr != nil {
		return d.shutdownErr
	}
	d.mu.Lock()
	d.ready = false
	d.started = false
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Close() error {
	d.record(call{name: "Close"})
	return d.closeErr
}

func (d *fakeDevice) TryGetBasic() (wss.Basic, bool) {
	if !d.basicOK {
		return nil, false
	}
	return d, true
}

func (d *fakeDevice) StartStim(target wss.Target) error {
	d.record(call{name: "StartStim", target: target})
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) StopStim(target wss.Target) error {
	d.record(call{name: "StopStim", target: target})
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) StimulateAnalog(channel, pulseWidth, amplitude, interPulseInterval int) error {
	d.record(call{name: "StimulateAnalog", channel: channel, ints: []int{pulseWidth, amplitude, interPulseInterval}})
	return nil
}

func (d *fakeDevice) StimulateNormalized(channel int, magnitude float64) error {
	d.record(call{name: "StimulateNormalized", channel: channel, value: magnitude})
	return nil
}

func (d *fakeDevice) StimWithMode(channel int, magnitude float64) error {
	d.record(call{name: "StimWithMode", channel: channel, value: magnitude})
	return nil
}

func (d *fakeDevice) GetStimIntensity(channel int) (int, error) {
	d.record(call{name: "GetStimIntensity", channel: channel})
	return 0, nil
}

func (d *fakeDevice) AddOrUpdateStimParam(key string, value float64) error {
	d.record(call{name: "AddOrUpdateStimParam", key: key, value: value})
	d.mu.Lock()
	d.params[key] = value
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) GetStimParam(key string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params[key], nil
}

func (d *fakeDevice) TryGetStimParam(key string) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.params[key]
	return v, ok
}

func (d *fakeDevice) AllStimParams() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]float64, len(d.params))
	for k, v := range d.params {
		out[k] = v
	}
	return out
}

func (d *fakeDevice) SetChannelAmp(channel int, milliamps float64) error {
	d.record(call{name: "SetChannelAmp", channel: channel, value: milliamps})
	return nil
}

func (d *fakeDevice) GetChannelAmp(channel int) (float64, error) { return 3.0, nil }

func (d *fakeDevice) SetChannelPWMin(channel, micros int) error {
	d.record(call{name: "SetChannelPWMin", channel: channel, ints: []int{micros}})
	return nil
}

func (d *fakeDevice) GetChannelPWMin(channel int) (int, error) { return 50, nil }

func (d *fakeDevice) SetChannelPWMax(channel, micros int) error {
	d.record(call{name: "SetChannelPWMax", channel: channel, ints: []int{micros}})
	return nil
}

func (d *fakeDevice) GetChannelPWMax(channel int) (int, error) { return 500, nil }

func (d *fakeDevice) SetChannelIPI(channel, millis int) error {
	d.record(call{name: "SetChannelIPI", channel: channel, ints: []int{millis}})
	return nil
}

func (d *fakeDevice) GetChannelIPI(channel int) (int, error) { return 10, nil }

func (d *fakeDevice) IsChannelInRange(channel int) bool {
	return channel >= 1 && channel <= d.channelCount
}

func (d *fakeDevice) LoadCoreConfigFile() error {
	d.record(call{name: "LoadCoreConfigFile"})
	return nil
}

func (d *fakeDevice) LoadParamsJson(path string) error {
	d.record(call{name: "LoadParamsJson", key: path})
	return nil
}

func (d *fakeDevice) SaveParamsJson() error {
	d.record(call{name: "SaveParamsJson"})
	return nil
}

func (d *fakeDevice) IsModeValid() bool { return true }

func (d *fakeDevice) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *fakeDevice) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *fakeDevice) Save(target wss.Target) error {
	d.record(call{name: "Save", target: target})
	return nil
}

func (d *fakeDevice) Load(target wss.Target) error {
	d.record(call{name: "Load", target: target})
	return nil
}

func (d *fakeDevice) RequestConfigs(command, id int, target wss.Target) error {
	d.record(call{name: "RequestConfigs", target: target, ints: []int{command, id}})
	return nil
}

func (d *fakeDevice) UpdateWaveform(w *wss.WaveformBuilder, eventID int, target wss.Target) error {
	d.record(call{name: "UpdateWaveform", target: target, ints: []int{eventID}})
	return nil
}

func (d *fakeDevice) UpdateWaveformSamples(samples []int, eventID int, target wss.Target) error {
	d.record(call{name: "UpdateWaveformSamples", target: target, ints: append(append([]int{}, samples...), eventID)})
	return nil
}

func (d *fakeDevice) UpdateEventShape(cathodic, anodic, eventID int, target wss.Target) error {
	d.record(call{name: "UpdateEventShape", target: target, ints: []int{cathodic, anodic, eventID}})
	return nil
}

func (d *fakeDevice) LoadWaveform(fileName string, eventID int) error {
	d.record(call{name: "LoadWaveform", key: fileName, ints: []int{eventID}})
	return nil
}

func (d *fakeDevice) WaveformSetup(wave []int, eventID int, target wss.Target) error {
	d.record(call{name: "WaveformSetup", target: target, ints: append(append([]int{}, wave...), eventID)})
	return nil
}

func (d *fakeDevice) UpdateIPD(ipd, eventID int, target wss.Target) error {
	d.record(call{name: "UpdateIPD", target: target, ints: []int{ipd, eventID}})
	return nil
}

// fakeLibrary implements DriverLibrary.
type fakeLibrary struct {
	mu         sync.Mutex
	device     *fakeDevice
	loadErr    error
	newErr     error
	loadCalls  int
	newCalls   int
	sink       wss.LogFunc
	sinkErr    error
	resetCalls int
}

func newFakeLibrary(device *fakeDevice) *fakeLibrary {
	return &fakeLibrary{device: device}
}

func (l *fakeLibrary) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadCalls++
	return l.loadErr
}

func (l *fakeLibrary) NewDevice(port, configDir string, testMode bool, maxSetupTries int) (wss.Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.newCalls++
	if l.newErr != nil {
		return nil, l.newErr
	}
	return l.device, nil
}

func (l *fakeLibrary) InstallLogSink(sink wss.LogFunc) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sinkErr != nil {
		return nil, l.sinkErr
	}
	l.sink = sink
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.sink = nil
		l.resetCalls++
	}, nil
}

func (l *fakeLibrary) counts() (loads, news, resets int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadCalls, l.newCalls, l.resetCalls
}

// fakeRecorder implements Recorder.
type fakeRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *fakeRecorder) Record(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *fakeRecorder) byKind(kind string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// captureLogger implements Logger, counting messages per level.
type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Error(string, ...any) {}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *captureLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

func newTestController(t *testing.T, dev *fakeDevice) (*Controller, *fakeLibrary) {
	t.Helper()

	lib := newFakeLibrary(dev)
	ctrl, err := New(Options{
		Config: Config{
			ConfigDir:    t.TempDir(),
			TestMode:     true,
			TickInterval: time.Millisecond,
		},
		Library: lib,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(ctrl.Shutdown)
	return ctrl, lib
}

func TestNewRequiresLibrary(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New() without library should fail")
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	dev := newFakeDevice()
	ctrl, lib := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}

	if got := dev.countCalls("Initialize"); got != 1 {
		t.Errorf("device Initialize calls = %d, want 1", got)
	}
	if _, news, _ := lib.counts(); news != 1 {
		t.Errorf("device constructions = %d, want 1", news)
	}
	if ctrl.SessionID() == "" {
		t.Error("SessionID should be assigned after Initialize")
	}
}

func TestInitializePropagatesDeviceError(t *testing.T) {
	dev := newFakeDevice()
	dev.initErr = errors.New("setup retries exhausted")
	ctrl, _ := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize() should propagate device failure")
	}
}

func TestInitializePropagatesLoadError(t *testing.T) {
	dev := newFakeDevice()
	ctrl, lib := newTestController(t, dev)
	lib.loadErr = errors.New("no driver objects")

	if err := ctrl.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize() should propagate library load failure")
	}
	if _, news, _ := lib.counts(); news != 0 {
		t.Errorf("device constructions = %d, want 0", news)
	}
}

func TestShutdownIsIdempotentAndSwallowsErrors(t *testing.T) {
	dev := newFakeDevice()
	dev.shutdownErr = errors.New("radio hung")
	dev.closeErr = errors.New("port busy")
	ctrl, lib := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	ctrl.Shutdown()
	ctrl.Shutdown()

	if got := dev.countCalls("Shutdown"); got != 1 {
		t.Errorf("device Shutdown calls = %d, want 1", got)
	}
	if got := dev.countCalls("Close"); got != 1 {
		t.Errorf("device Close calls = %d, want 1", got)
	}
	if _, _, resets := lib.counts(); resets != 1 {
		t.Errorf("log sink resets = %d, want 1", resets)
	}
	if ctrl.SessionID() != "" {
		t.Error("SessionID should clear after Shutdown")
	}
	if err := ctrl.StartStimulation(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("command after Shutdown error = %v, want ErrNotInitialized", err)
	}
}

func TestShutdownWithoutInitializeIsNoOp(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	ctrl.Shutdown()

	if got := len(dev.callNames()); got != 0 {
		t.Errorf("device calls = %d, want 0", got)
	}
}

func TestTickLoopDrivesDevice(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-dev.tickCh:
		case <-time.After(2 * time.Second):
			t.Fatal("tick loop did not run")
		}
	}
	if ctrl.TickCount() == 0 {
		t.Error("TickCount should advance while running")
	}

	ctrl.Shutdown()

	// Drain, then confirm the loop stopped.
	for {
		select {
		case <-dev.tickCh:
			continue
		default:
		}
		break
	}
	select {
	case <-dev.tickCh:
		t.Error("tick loop still running after Shutdown")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTickErrorsDoNotStopLoop(t *testing.T) {
	dev := newFakeDevice()
	dev.tickErr = errors.New("frame desync")
	ctrl, _ := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-dev.tickCh:
		case <-time.After(2 * time.Second):
			t.Fatal("tick loop stopped on tick error")
		}
	}
}

func TestCommandsBeforeInitialize(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	if err := ctrl.StimulateAnalog("thumb", 200, 3, 10); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("StimulateAnalog error = %v, want ErrNotInitialized", err)
	}
	if _, err := ctrl.GetStimIntensity("index"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("GetStimIntensity error = %v, want ErrNotInitialized", err)
	}
	if err := ctrl.UpdateChannelParams("ring", 500, 50, 3); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("UpdateChannelParams error = %v, want ErrNotInitialized", err)
	}
	if got := len(dev.callNames()); got != 0 {
		t.Errorf("device calls before Initialize = %d, want 0", got)
	}
}

func TestStimulateAnalogResolvesLocator(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := ctrl.StimulateAnalog("thumb", 200, 3, 10); err != nil {
		t.Fatalf("StimulateAnalog() error = %v", err)
	}

	got := dev.lastCall("StimulateAnalog")
	if got.channel != 1 {
		t.Errorf("channel = %d, want 1", got.channel)
	}
	want := []int{200, 3, 10}
	for i, v := range want {
		if got.ints[i] != v {
			t.Errorf("arg %d = %d, want %d", i, got.ints[i], v)
		}
	}
}

func TestStartStopStimulationBroadcast(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := ctrl.StartStimulation(); err != nil {
		t.Fatalf("StartStimulation() error = %v", err)
	}
	if got := dev.lastCall("StartStim").target; got != wss.Broadcast {
		t.Errorf("StartStim target = %v, want Broadcast", got)
	}
	if !ctrl.StimActive() {
		t.Error("StimActive should be true after start")
	}

	if err := ctrl.StopStimulation(); err != nil {
		t.Fatalf("StopStimulation() error = %v", err)
	}
	if got := dev.lastCall("StopStim").target; got != wss.Broadcast {
		t.Errorf("StopStim target = %v, want Broadcast", got)
	}
	if ctrl.StimActive() {
		t.Error("StimActive should be false after stop")
	}
}

func TestUpdateChannelParams(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := ctrl.UpdateChannelParams("middle", 500, 50, 3); err != nil {
		t.Fatalf("UpdateChannelParams() error = %v", err)
	}

	wantKeys := map[string]float64{
		"stim.ch.3.maxPW": 500,
		"stim.ch.3.minPW": 50,
		"stim.ch.3.amp":   3,
	}
	params := dev.AllStimParams()
	for k, want := range wantKeys {
		if got, ok := params[k]; !ok || got != want {
			t.Errorf("param %s = %v (present %t), want %v", k, got, ok, want)
		}
	}
}

func TestUpdateChannelParamsRejectsInvalidChannel(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := ctrl.UpdateChannelParams("elbow", 500, 50, 3); !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("UpdateChannelParams() error = %v, want ErrInvalidChannel", err)
	}
	if got := dev.countCalls("AddOrUpdateStimParam"); got != 0 {
		t.Errorf("param writes after invalid channel = %d, want 0", got)
	}
}

func TestExtendedCommandsSoftDegrade(t *testing.T) {
	dev := newFakeDevice()
	dev.basicOK = false
	lib := newFakeLibrary(dev)
	logger := &captureLogger{}
	ctrl, err := New(Options{
		Config:  Config{TestMode: true, TickInterval: time.Millisecond},
		Library: lib,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(ctrl.Shutdown)

	// Even before Initialize the extended surface warns and no-ops rather
	// than failing.
	if err := ctrl.Save(BroadcastGroup); err != nil {
		t.Fatalf("Save() before Initialize error = %v", err)
	}

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := ctrl.Save(1); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := ctrl.UpdateWaveform([]int{1, 2, 3}, 1); err != nil {
		t.Fatalf("UpdateWaveform() error = %v", err)
	}
	if err := ctrl.UpdateIPD(100, 1, 2); err != nil {
		t.Fatalf("UpdateIPD() error = %v", err)
	}

	if got := dev.countCalls("Save"); got != 0 {
		t.Errorf("Save device calls = %d, want 0", got)
	}
	if got := dev.countCalls("UpdateWaveformSamples"); got != 0 {
		t.Errorf("UpdateWaveformSamples device calls = %d, want 0", got)
	}
	if logger.warnCount() < 4 {
		t.Errorf("degradation warnings = %d, want at least 4", logger.warnCount())
	}
	if ctrl.BasicSupported() {
		t.Error("BasicSupported should be false")
	}
}

func TestExtendedCommandsDispatch(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := ctrl.Save(2); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := dev.lastCall("Save").target; got != wss.Wss2 {
		t.Errorf("Save target = %v, want Wss2", got)
	}

	if err := ctrl.UpdateWaveform(200, 100, 1); err != nil {
		t.Fatalf("UpdateWaveform(shape) error = %v", err)
	}
	if got := dev.lastCall("UpdateEventShape").target; got != wss.Broadcast {
		t.Errorf("UpdateEventShape target = %v, want Broadcast", got)
	}

	if err := ctrl.UpdateWaveform("bad", "shape"); !errors.Is(err, ErrUnsupportedCallShape) {
		t.Errorf("UpdateWaveform(bad) error = %v, want ErrUnsupportedCallShape", err)
	}

	if err := ctrl.ApplyWaveformUpdate(SamplesUpdate([]int{1, 2}, 4).WithGroup(3)); err != nil {
		t.Fatalf("ApplyWaveformUpdate() error = %v", err)
	}
	if got := dev.lastCall("UpdateWaveformSamples").target; got != wss.Wss3 {
		t.Errorf("UpdateWaveformSamples target = %v, want Wss3", got)
	}

	if err := ctrl.WaveformSetup([]int{5, 6}, 2, 1); err != nil {
		t.Fatalf("WaveformSetup() error = %v", err)
	}
	if got := dev.lastCall("WaveformSetup").target; got != wss.Wss1 {
		t.Errorf("WaveformSetup target = %v, want Wss1", got)
	}
}

func TestResetRadio(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	// No device yet: reset is a no-op.
	if err := ctrl.ResetRadio(); err != nil {
		t.Fatalf("ResetRadio() before Initialize error = %v", err)
	}

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := ctrl.ResetRadio(); err != nil {
		t.Fatalf("ResetRadio() error = %v", err)
	}
	if got := dev.countCalls("Initialize"); got != 2 {
		t.Errorf("device Initialize calls = %d, want 2", got)
	}

	// Commands still work after a reset.
	if err := ctrl.StartStimulation(); err != nil {
		t.Errorf("StartStimulation() after reset error = %v", err)
	}
}

func TestResetRadioPropagatesErrors(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	dev.shutdownErr = errors.New("radio hung")
	if err := ctrl.ResetRadio(); err == nil {
		t.Fatal("ResetRadio() should propagate shutdown failure")
	}
}

func TestLogSinkBridgesDeviceEvents(t *testing.T) {
	dev := newFakeDevice()
	rec := &fakeRecorder{}
	lib := newFakeLibrary(dev)
	ctrl, err := New(Options{
		Config:   Config{TestMode: true, TickInterval: time.Millisecond},
		Library:  lib,
		Recorder: rec,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(ctrl.Shutdown)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	lib.mu.Lock()
	sink := lib.sink
	lib.mu.Unlock()
	if sink == nil {
		t.Fatal("log sink should be installed after Initialize")
	}
	sink("WARN", "coil temperature high")

	logs := rec.byKind("device_log")
	if len(logs) != 1 {
		t.Fatalf("device_log events = %d, want 1", len(logs))
	}
	if logs[0].Detail != "coil temperature high" {
		t.Errorf("device_log detail = %q", logs[0].Detail)
	}
	if logs[0].SessionID != ctrl.SessionID() {
		t.Errorf("device_log session = %q, want %q", logs[0].SessionID, ctrl.SessionID())
	}
}

func TestRecorderCapturesLifecycleAndCommands(t *testing.T) {
	dev := newFakeDevice()
	rec := &fakeRecorder{}
	lib := newFakeLibrary(dev)
	ctrl, err := New(Options{
		Config:   Config{TestMode: true, TickInterval: time.Millisecond},
		Library:  lib,
		Recorder: rec,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := ctrl.StimulateAnalog("index", 200, 3, 10); err != nil {
		t.Fatalf("StimulateAnalog() error = %v", err)
	}
	ctrl.Shutdown()

	lifecycle := rec.byKind("lifecycle")
	if len(lifecycle) != 2 {
		t.Fatalf("lifecycle events = %d, want 2", len(lifecycle))
	}
	if lifecycle[0].Name != "initialize" || lifecycle[1].Name != "shutdown" {
		t.Errorf("lifecycle names = %q, %q", lifecycle[0].Name, lifecycle[1].Name)
	}

	commands := rec.byKind("command")
	if len(commands) != 1 {
		t.Fatalf("command events = %d, want 1", len(commands))
	}
	if commands[0].Name != "stimulate_analog" || commands[0].Channel != 2 {
		t.Errorf("command event = %+v", commands[0])
	}
}

func TestStatusAccessors(t *testing.T) {
	dev := newFakeDevice()
	ctrl, _ := newTestController(t, dev)

	if ctrl.Ready() {
		t.Error("Ready should be false before Initialize")
	}
	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !ctrl.Ready() {
		t.Error("Ready should be true after Initialize")
	}
	if ok, err := ctrl.IsModeValid(); err != nil || !ok {
		t.Errorf("IsModeValid = %t, %v", ok, err)
	}
	if ok, err := ctrl.IsFingerValid("pinky"); err != nil || !ok {
		t.Errorf("IsFingerValid(pinky) = %t, %v", ok, err)
	}
	if ok, err := ctrl.IsFingerValid("ch9"); err != nil || ok {
		t.Errorf("IsFingerValid(ch9) = %t, %v", ok, err)
	}
}
