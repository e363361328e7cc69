package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hfi-neuro/wss-core/internal/wss"
)

// File names used inside the config directory.
const (
	coreConfigFile = "wss_core.json"
	paramsFile     = "stim_params.json"
)

// Default per-channel parameters, matching factory firmware settings.
const (
	defaultChannelCount = 5
	defaultAmp          = 3.0 // mA
	defaultPWMin        = 50  // µs
	defaultPWMax        = 500 // µs
	defaultIPI          = 10  // ms
)

// Config holds construction options for the simulated device.
type Config struct {
	// ConfigDir is the directory holding the core config and params JSON.
	ConfigDir string

	// MaxSetupTries mirrors the native constructor argument. The simulator
	// always succeeds on the first try; the value is kept for status output.
	MaxSetupTries int

	// LegacyFirmware emulates firmware without the extended command set:
	// TryGetBasic reports unsupported.
	LegacyFirmware bool
}

// coreConfig is the on-disk shape of the core config JSON.
type coreConfig struct {
	ChannelCount int    `json:"channel_count"`
	Mode         string `json:"mode"`
}

// Device is the simulated stimulator unit.
// All methods are safe for concurrent use.
type Device struct {
	cfg  Config
	emit wss.LogFunc

	mu           sync.Mutex
	initialized  bool
	started      bool
	ticks        uint64
	channelCount int
	mode         string
	params       map[string]float64
	intensity    map[int]int   // channel -> last commanded pulse width
	waveforms    map[int][]int // eventID -> raw samples
	saved        map[string]float64
}

// NewDevice constructs a simulated device. emit receives the device's log
// events; a nil emit discards them.
func NewDevice(cfg Config, emit wss.LogFunc) *Device {
	if emit == nil {
		emit = func(string, string) {}
	}
	return &Device{
		cfg:          cfg,
		emit:         emit,
		channelCount: defaultChannelCount,
		mode:         "analog",
		params:       make(map[string]float64),
		intensity:    make(map[int]int),
		waveforms:    make(map[int][]int),
	}
}

// Initialize brings the simulated unit to a ready state, loading the core
// config and params JSON when present.
func (d *Device) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	if err := d.loadCoreConfigLocked(); err != nil {
		return err
	}
	if err := d.loadParamsLocked(""); err != nil {
		return err
	}

	d.initialized = true
	d.emit("INFO", "simulated transport initialized")
	return nil
}

// Tick advances the simulated state machine.
func (d *Device) Tick() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.ticks++
	return nil
}

// Shutdown stops stimulation and leaves the ready state.
func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil
	}
	d.initialized = false
	d.started = false
	d.emit("INFO", "simulated transport shut down")
	return nil
}

// Close releases the (simulated) transport.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = false
	d.started = false
	return nil
}

// TryGetBasic reports the extended command surface unless the simulator was
// configured to emulate legacy firmware.
func (d *Device) TryGetBasic() (wss.Basic, bool) {
	if d.cfg.LegacyFirmware {
		return nil, false
	}
	return d, true
}

// Ticks returns the number of Tick calls since Initialize.
func (d *Device) Ticks() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticks
}

func (d *Device) StartStim(target wss.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.started = true
	d.emit("INFO", fmt.Sprintf("stimulation started target=%s", target))
	return nil
}

func (d *Device) StopStim(target wss.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.started = false
	d.emit("INFO", fmt.Sprintf("stimulation stopped target=%s", target))
	return nil
}

func (d *Device) StimulateAnalog(channel, pulseWidth, amplitude, interPulseInterval int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	if !d.channelInRangeLocked(channel) {
		return fmt.Errorf("%w: %d", ErrChannelOutOfRange, channel)
	}
	d.intensity[channel] = pulseWidth
	d.emit("INFO", fmt.Sprintf("analog stim ch=%d pw=%d amp=%d ipi=%d",
		channel, pulseWidth, amplitude, interPulseInterval))
	return nil
}

// StimulateNormalized maps magnitude in [0,1] onto the channel's pulse-width
// window [minPW, maxPW], the same transform applied by the params layer of
// the real firmware.
func (d *Device) StimulateNormalized(channel int, magnitude float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	if !d.channelInRangeLocked(channel) {
		return fmt.Errorf("%w: %d", ErrChannelOutOfRange, channel)
	}

	if magnitude < 0 {
		magnitude = 0
	}
	if magnitude > 1 {
		magnitude = 1
	}

	minPW := d.channelParamLocked(channel, "minPW", defaultPWMin)
	maxPW := d.channelParamLocked(channel, "maxPW", defaultPWMax)
	pw := int(minPW + magnitude*(maxPW-minPW))
	d.intensity[channel] = pw
	return nil
}

// StimWithMode is StimulateNormalized gated on a valid stimulation mode.
func (d *Device) StimWithMode(channel int, magnitude float64) error {
	d.mu.Lock()
	valid := d.mode != ""
	d.mu.Unlock()
	if !valid {
		return fmt.Errorf("sim: stimulation mode not configured")
	}
	return d.StimulateNormalized(channel, magnitude)
}

func (d *Device) GetStimIntensity(channel int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return 0, ErrNotInitialized
	}
	if !d.channelInRangeLocked(channel) {
		return 0, fmt.Errorf("%w: %d", ErrChannelOutOfRange, channel)
	}
	return d.intensity[channel], nil
}

func (d *Device) AddOrUpdateStimParam(key string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.params[key] = value
	return nil
}

func (d *Device) GetStimParam(key string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return 0, ErrNotInitialized
	}
	v, ok := d.params[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownParam, key)
	}
	return v, nil
}

func (d *Device) TryGetStimParam(key string) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.params[key]
	return v, ok
}

func (d *Device) AllStimParams() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]float64, len(d.params))
	for k, v := range d.params {
		out[k] = v
	}
	return out
}

func (d *Device) SetChannelAmp(channel int, milliamps float64) error {
	return d.setChannelParam(channel, "amp", milliamps)
}

func (d *Device) GetChannelAmp(channel int) (float64, error) {
	return d.getChannelParam(channel, "amp", defaultAmp)
}

func (d *Device) SetChannelPWMin(channel, micros int) error {
	return d.setChannelParam(channel, "minPW", float64(micros))
}

func (d *Device) GetChannelPWMin(channel int) (int, error) {
	v, err := d.getChannelParam(channel, "minPW", defaultPWMin)
	return int(v), err
}

func (d *Device) SetChannelPWMax(channel, micros int) error {
	return d.setChannelParam(channel, "maxPW", float64(micros))
}

func (d *Device) GetChannelPWMax(channel int) (int, error) {
	v, err := d.getChannelParam(channel, "maxPW", defaultPWMax)
	return int(v), err
}

func (d *Device) SetChannelIPI(channel, millis int) error {
	return d.setChannelParam(channel, "ipi", float64(millis))
}

func (d *Device) GetChannelIPI(channel int) (int, error) {
	v, err := d.getChannelParam(channel, "ipi", defaultIPI)
	return int(v), err
}

func (d *Device) IsChannelInRange(channel int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channelInRangeLocked(channel)
}

// LoadCoreConfigFile re-reads the core config JSON from the config directory.
func (d *Device) LoadCoreConfigFile() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	return d.loadCoreConfigLocked()
}

// LoadParamsJson reloads stimulation parameters. An empty path loads from
// the default location inside the config directory.
func (d *Device) LoadParamsJson(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	return d.loadParamsLocked(path)
}

// SaveParamsJson persists the current parameter set to the config directory.
func (d *Device) SaveParamsJson() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}

	data, err := json.MarshalIndent(d.params, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	path := filepath.Join(d.cfg.ConfigDir, paramsFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing params: %w", err)
	}
	d.emit("INFO", "params saved")
	return nil
}

func (d *Device) IsModeValid() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode != ""
}

func (d *Device) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

func (d *Device) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// --- extended command surface (wss.Basic) ---

func (d *Device) Save(target wss.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.saved = make(map[string]float64, len(d.params))
	for k, v := range d.params {
		d.saved[k] = v
	}
	d.emit("INFO", fmt.Sprintf("config saved target=%s", target))
	return nil
}

func (d *Device) Load(target wss.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	if d.saved != nil {
		d.params = make(map[string]float64, len(d.saved))
		for k, v := range d.saved {
			d.params[k] = v
		}
	}
	d.emit("INFO", fmt.Sprintf("config loaded target=%s", target))
	return nil
}

func (d *Device) RequestConfigs(command, id int, target wss.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.emit("INFO", fmt.Sprintf("config request command=%d id=%d target=%s", command, id, target))
	return nil
}

func (d *Device) UpdateWaveform(w *wss.WaveformBuilder, eventID int, target wss.Target) error {
	if w == nil {
		return fmt.Errorf("sim: nil waveform builder")
	}
	samples := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		samples[i] = int(s * 1000)
	}
	return d.UpdateWaveformSamples(samples, eventID, target)
}

func (d *Device) UpdateWaveformSamples(samples []int, eventID int, target wss.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	stored := make([]int, len(samples))
	copy(stored, samples)
	d.waveforms[eventID] = stored
	d.emit("INFO", fmt.Sprintf("waveform updated event=%d samples=%d target=%s",
		eventID, len(samples), target))
	return nil
}

func (d *Device) UpdateEventShape(cathodic, anodic, eventID int, target wss.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.params[fmt.Sprintf("stim.event.%d.cathodic", eventID)] = float64(cathodic)
	d.params[fmt.Sprintf("stim.event.%d.anodic", eventID)] = float64(anodic)
	d.emit("INFO", fmt.Sprintf("event shape updated event=%d target=%s", eventID, target))
	return nil
}

// LoadWaveform reads raw samples from a JSON file. Relative names resolve
// against the config directory.
func (d *Device) LoadWaveform(fileName string, eventID int) error {
	path := fileName
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.cfg.ConfigDir, fileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading waveform file: %w", err)
	}
	var samples []int
	if err := json.Unmarshal(data, &samples); err != nil {
		return fmt.Errorf("parsing waveform file: %w", err)
	}
	return d.UpdateWaveformSamples(samples, eventID, wss.Broadcast)
}

func (d *Device) WaveformSetup(wave []int, eventID int, target wss.Target) error {
	return d.UpdateWaveformSamples(wave, eventID, target)
}

func (d *Device) UpdateIPD(ipd, eventID int, target wss.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.params[fmt.Sprintf("stim.event.%d.ipd", eventID)] = float64(ipd)
	return nil
}

// Waveform returns the raw samples stored for an event, for tests and
// diagnostics.
func (d *Device) Waveform(eventID int) ([]int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.waveforms[eventID]
	if !ok {
		return nil, false
	}
	out := make([]int, len(w))
	copy(out, w)
	return out, true
}

// --- internal helpers ---

func (d *Device) channelInRangeLocked(channel int) bool {
	return channel >= 1 && channel <= d.channelCount
}

func (d *Device) channelKey(channel int, field string) string {
	return fmt.Sprintf("stim.ch.%d.%s", channel, field)
}

func (d *Device) channelParamLocked(channel int, field string, fallback float64) float64 {
	if v, ok := d.params[d.channelKey(channel, field)]; ok {
		return v
	}
	return fallback
}

func (d *Device) setChannelParam(channel int, field string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	if !d.channelInRangeLocked(channel) {
		return fmt.Errorf("%w: %d", ErrChannelOutOfRange, channel)
	}
	d.params[d.channelKey(channel, field)] = value
	return nil
}

func (d *Device) getChannelParam(channel int, field string, fallback float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return 0, ErrNotInitialized
	}
	if !d.channelInRangeLocked(channel) {
		return 0, fmt.Errorf("%w: %d", ErrChannelOutOfRange, channel)
	}
	return d.channelParamLocked(channel, field, fallback), nil
}

// loadCoreConfigLocked reads the core config JSON, keeping defaults when the
// file is absent.
func (d *Device) loadCoreConfigLocked() error {
	path := filepath.Join(d.cfg.ConfigDir, coreConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading core config: %w", err)
	}

	var cc coreConfig
	if err := json.Unmarshal(data, &cc); err != nil {
		return fmt.Errorf("parsing core config: %w", err)
	}
	if cc.ChannelCount > 0 {
		d.channelCount = cc.ChannelCount
	}
	if cc.Mode != "" {
		d.mode = cc.Mode
	}
	return nil
}

// loadParamsLocked reads a params JSON file. Missing default file is not an
// error; an explicit path must exist.
func (d *Device) loadParamsLocked(path string) error {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(d.cfg.ConfigDir, paramsFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("reading params: %w", err)
	}

	params := make(map[string]float64)
	if err := json.Unmarshal(data, &params); err != nil {
		return fmt.Errorf("parsing params: %w", err)
	}
	d.params = params
	return nil
}
