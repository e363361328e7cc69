package stim

import (
	"fmt"

	"github.com/hfi-neuro/wss-core/internal/wss"
)

// waveformKind selects which underlying device operation a WaveformUpdate
// resolves to.
type waveformKind int

const (
	waveformByBuilder waveformKind = iota
	waveformBySamples
	waveformByShape
)

// WaveformUpdate is a resolved waveform or event-shape programming command.
// The firmware overloads a single semantic operation ("program a stimulation
// event") across four call conventions; WaveformUpdate is the tagged form
// those conventions collapse into, so the four-way branch lives in exactly
// one place.
type WaveformUpdate struct {
	kind     waveformKind
	target   wss.Target
	builder  *wss.WaveformBuilder
	samples  []int
	cathodic int
	anodic   int
	eventID  int
}

// BuilderUpdate programs a waveform from a structured builder, broadcast.
func BuilderUpdate(w *wss.WaveformBuilder, eventID int) WaveformUpdate {
	return WaveformUpdate{kind: waveformByBuilder, target: wss.Broadcast, builder: w, eventID: eventID}
}

// SamplesUpdate programs a waveform from raw samples, broadcast.
func SamplesUpdate(samples []int, eventID int) WaveformUpdate {
	return WaveformUpdate{kind: waveformBySamples, target: wss.Broadcast, samples: samples, eventID: eventID}
}

// EventShapeUpdate programs an event shape from cathodic/anodic phase
// widths, broadcast.
func EventShapeUpdate(cathodic, anodic, eventID int) WaveformUpdate {
	return WaveformUpdate{
		kind:     waveformByShape,
		target:   wss.Broadcast,
		cathodic: cathodic,
		anodic:   anodic,
		eventID:  eventID,
	}
}

// WithGroup returns a copy of the update addressed to the given device
// group (see TargetForGroup).
func (u WaveformUpdate) WithGroup(group int) WaveformUpdate {
	u.target = TargetForGroup(group)
	return u
}

// apply dispatches the update to the matching extended operation.
func (u WaveformUpdate) apply(basic wss.Basic) error {
	switch u.kind {
	case waveformByBuilder:
		return basic.UpdateWaveform(u.builder, u.eventID, u.target)
	case waveformBySamples:
		return basic.UpdateWaveformSamples(u.samples, u.eventID, u.target)
	case waveformByShape:
		return basic.UpdateEventShape(u.cathodic, u.anodic, u.eventID, u.target)
	default:
		return fmt.Errorf("stim: unknown waveform update kind %d", u.kind)
	}
}

// parseWaveformArgs resolves a loosely-typed argument tuple into a
// WaveformUpdate. Accepted shapes, checked in order, first match wins:
//
//	(builder, eventID)                      waveform by builder, broadcast
//	(group, builder, eventID)               waveform by builder, explicit group
//	(samples, eventID)                      waveform by raw samples, broadcast
//	(group, samples, eventID)               waveform by raw samples, explicit group
//	(cathodic, anodic, eventID)             event shape, broadcast
//	(group, cathodic, anodic, eventID)      event shape, explicit group
//
// builder is *wss.WaveformBuilder, samples is []int, everything else is int.
// Any other shape fails with ErrUnsupportedCallShape.
func parseWaveformArgs(args []any) (WaveformUpdate, error) {
	switch len(args) {
	case 2:
		eventID, ok := asInt(args[1])
		if !ok {
			break
		}
		if w, ok := asBuilder(args[0]); ok {
			return BuilderUpdate(w, eventID), nil
		}
		if s, ok := asSamples(args[0]); ok {
			return SamplesUpdate(s, eventID), nil
		}

	case 3:
		if group, ok := asInt(args[0]); ok {
			if eventID, ok := asInt(args[2]); ok {
				if w, ok := asBuilder(args[1]); ok {
					return BuilderUpdate(w, eventID).WithGroup(group), nil
				}
				if s, ok := asSamples(args[1]); ok {
					return SamplesUpdate(s, eventID).WithGroup(group), nil
				}
			}
		}
		if cathodic, anodic, eventID, ok := threeInts(args); ok {
			return EventShapeUpdate(cathodic, anodic, eventID), nil
		}

	case 4:
		group, ok0 := asInt(args[0])
		cathodic, ok1 := asInt(args[1])
		anodic, ok2 := asInt(args[2])
		eventID, ok3 := asInt(args[3])
		if ok0 && ok1 && ok2 && ok3 {
			return EventShapeUpdate(cathodic, anodic, eventID).WithGroup(group), nil
		}
	}

	return WaveformUpdate{}, fmt.Errorf("%w: %d args", ErrUnsupportedCallShape, len(args))
}

func asInt(v any) (int, bool) {
	n, ok := v.(int)
	return n, ok
}

func asBuilder(v any) (*wss.WaveformBuilder, bool) {
	switch w := v.(type) {
	case *wss.WaveformBuilder:
		return w, w != nil
	case wss.WaveformBuilder:
		return &w, true
	default:
		return nil, false
	}
}

func asSamples(v any) ([]int, bool) {
	s, ok := v.([]int)
	return s, ok
}

func threeInts(args []any) (a, b, c int, ok bool) {
	a, ok0 := asInt(args[0])
	b, ok1 := asInt(args[1])
	c, ok2 := asInt(args[2])
	return a, b, c, ok0 && ok1 && ok2
}
