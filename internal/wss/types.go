package wss

// Target identifies which stimulator unit(s) in a multi-unit deployment a
// command addresses.
type Target int

// Device group selectors. Broadcast addresses every connected unit.
const (
	Broadcast Target = iota
	Wss1
	Wss2
	Wss3
)

// String returns the selector name used in logs and telemetry.
func (t Target) String() string {
	switch t {
	case Wss1:
		return "wss1"
	case Wss2:
		return "wss2"
	case Wss3:
		return "wss3"
	default:
		return "broadcast"
	}
}

// LogFunc receives log events emitted by the device driver.
// level is the driver-side severity text (INFO, WARN, ERROR).
type LogFunc func(level, message string)

// WaveformBuilder is a structured description of a stimulation waveform,
// programmed onto the device as a named event.
type WaveformBuilder struct {
	// Name labels the waveform in device-side configs.
	Name string

	// Samples are normalised amplitude samples in [-1, 1].
	Samples []float64

	// SampleRateHz is the playback rate of Samples.
	SampleRateHz int
}

// Device is the baseline command surface of a stimulator unit.
//
// Lifecycle: Initialize brings the unit to a ready state, Tick advances its
// internal state machine and must be called periodically, Shutdown stops the
// unit and Close releases the transport. All other operations require a
// prior successful Initialize.
type Device interface {
	Initialize() error
	Tick() error
	Shutdown() error
	Close() error

	// TryGetBasic reports whether the firmware exposes the extended command
	// set, returning the handle when it does.
	TryGetBasic() (Basic, bool)

	StartStim(target Target) error
	StopStim(target Target) error
	StimulateAnalog(channel, pulseWidth, amplitude, interPulseInterval int) error
	StimulateNormalized(channel int, magnitude float64) error
	StimWithMode(channel int, magnitude float64) error
	GetStimIntensity(channel int) (int, error)

	AddOrUpdateStimParam(key string, value float64) error
	GetStimParam(key string) (float64, error)
	TryGetStimParam(key string) (float64, bool)
	AllStimParams() map[string]float64

	SetChannelAmp(channel int, milliamps float64) error
	GetChannelAmp(channel int) (float64, error)
	SetChannelPWMin(channel, micros int) error
	GetChannelPWMin(channel int) (int, error)
	SetChannelPWMax(channel, micros int) error
	GetChannelPWMax(channel int) (int, error)
	SetChannelIPI(channel, millis int) error
	GetChannelIPI(channel int) (int, error)

	// IsChannelInRange reports whether channel is valid for the currently
	// loaded core config. Channel 0 is never valid.
	IsChannelInRange(channel int) bool

	LoadCoreConfigFile() error
	// LoadParamsJson reloads the stimulation parameter set. An empty path
	// loads from the configured default location.
	LoadParamsJson(path string) error
	SaveParamsJson() error

	IsModeValid() bool
	Ready() bool
	Started() bool
}

// Basic is the extended command surface exposed by newer firmware.
// Availability is discovered once via Device.TryGetBasic.
type Basic interface {
	Save(target Target) error
	Load(target Target) error
	RequestConfigs(command, id int, target Target) error

	UpdateWaveform(w *WaveformBuilder, eventID int, target Target) error
	UpdateWaveformSamples(samples []int, eventID int, target Target) error
	UpdateEventShape(cathodic, anodic, eventID int, target Target) error

	LoadWaveform(fileName string, eventID int) error
	WaveformSetup(wave []int, eventID int, target Target) error
	UpdateIPD(ipd, eventID int, target Target) error
}
