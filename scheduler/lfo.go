package scheduler

import "math"

// LFOTarget selects which outgoing message kind a ControllerLFO drives
//.
type LFOTarget int

const (
	TargetPitchBend LFOTarget = iota
	TargetModulationWheel
	TargetBreath
	TargetFootPedal
	TargetVolume
	TargetBalance
	TargetPan
	TargetExpression
	TargetEffect1
	TargetEffect2
	TargetVariation
	TargetTimbre
	TargetReleaseTime
	TargetAttackTime
	TargetBrightness
	TargetMilliBPM
	TargetCC // uses CCNumber
)

// standardCC maps the named continuous-controller targets to their MIDI CC
// numbers (pitch bend and milliBPM are not plain CCs and are handled
// specially by the scheduler).
var standardCC = map[LFOTarget]uint8{
	TargetModulationWheel: 1,
	TargetBreath:          2,
	TargetFootPedal:       4,
	TargetVolume:          7,
	TargetBalance:         8,
	TargetPan:             10,
	TargetExpression:      11,
	TargetEffect1:         12,
	TargetEffect2:         13,
	TargetVariation:       70,
	TargetTimbre:          71,
	TargetReleaseTime:     72,
	TargetAttackTime:      73,
	TargetBrightness:      74,
}

// RotationUnit selects the time base an LFO's period is measured in.
type RotationUnit int

const (
	RotateSong RotationUnit = iota
	RotateActivity
	RotateBeat
	RotateSecond
)

// Shape computes a waveform value in [-1,1] for a phase in [0,1).
type Shape func(phase float64) float64

// SineShape is the standard sinusoidal LFO shape.
func SineShape(phase float64) float64 { return math.Sin(2 * math.Pi * phase) }

// TriangleShape is a linear up/down waveform.
func TriangleShape(phase float64) float64 {
	return 4*math.Abs(phase-math.Floor(phase+0.5)) - 1
}

// ControllerLFO is one periodic controller/pitch-bend/milliBPM modulator
// bound to a device channel.
type ControllerLFO struct {
	Target       LFOTarget
	CCNumber     uint8
	Channel      DeviceChannel
	Shape        Shape
	Min, Max     int
	Period       float64 // in the rotation unit's native measure
	RotationUnit RotationUnit

	// ActivityStart/ActivityEnd bound the instrument's first/last active
	// tick, used only when RotationUnit is RotateActivity.
	ActivityStart, ActivityEnd int

	lastSent  int
	hasSent   bool
}

// phaseClock carries everything an LFO needs to compute its phase at a
// given tick, independent of any particular instrument.
type phaseClock struct {
	tick           int
	ticksPerBeat   int
	songTicks      int
	secondsElapsed float64
}

func (l *ControllerLFO) phase(clk phaseClock) float64 {
	period := l.Period
	if period <= 0 {
		period = 1
	}
	switch l.RotationUnit {
	case RotateBeat:
		beat := float64(clk.tick) / float64(clk.ticksPerBeat)
		return math.Mod(beat/period, 1.0)
	case RotateSecond:
		return math.Mod(clk.secondsElapsed/period, 1.0)
	case RotateActivity:
		span := l.ActivityEnd - l.ActivityStart
		if span <= 0 {
			return 0
		}
		frac := float64(clk.tick-l.ActivityStart) / float64(span)
		return math.Mod(frac/period, 1.0)
	default: // RotateSong
		if clk.songTicks <= 0 {
			return 0
		}
		frac := float64(clk.tick) / float64(clk.songTicks)
		return math.Mod(frac/period, 1.0)
	}
}

// ValueAt returns the LFO's current integer value at the given clock,
// linearly mapped from the shape's [-1,1] range into [Min,Max].
func (l *ControllerLFO) ValueAt(clk phaseClock) int {
	shape := l.Shape
	if shape == nil {
		shape = SineShape
	}
	v := shape(l.phase(clk))
	scaled := l.Min + int((v+1)/2*float64(l.Max-l.Min))
	if scaled < l.Min {
		scaled = l.Min
	}
	if scaled > l.Max {
		scaled = l.Max
	}
	return scaled
}

// changed reports whether value differs from the last value sent (or this
// is the very first evaluation / tick 0), and records it as sent.
func (l *ControllerLFO) changed(value int, tick int) bool {
	if !l.hasSent || tick == 0 || value != l.lastSent {
		l.lastSent = value
		l.hasSent = true
		return true
	}
	return false
}
