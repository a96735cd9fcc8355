package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSineShape_KeyPhases(t *testing.T) {
	assert.InDelta(t, 0, SineShape(0), 1e-9)
	assert.InDelta(t, 1, SineShape(0.25), 1e-9)
	assert.InDelta(t, 0, SineShape(0.5), 1e-9)
	assert.InDelta(t, -1, SineShape(0.75), 1e-9)
}

func TestTriangleShape_KeyPhases(t *testing.T) {
	assert.InDelta(t, -1, TriangleShape(0), 1e-9)
	assert.InDelta(t, 1, TriangleShape(0.5), 1e-9)
	assert.InDelta(t, -1, TriangleShape(1), 1e-9)
}

func TestControllerLFO_Phase_RotateBeat(t *testing.T) {
	l := &ControllerLFO{RotationUnit: RotateBeat, Period: 2}
	clk := phaseClock{tick: 4, ticksPerBeat: 4} // 1 beat elapsed, period 2 beats
	assert.InDelta(t, 0.5, l.phase(clk), 1e-9)
}

func TestControllerLFO_Phase_RotateSecond(t *testing.T) {
	l := &ControllerLFO{RotationUnit: RotateSecond, Period: 4}
	clk := phaseClock{secondsElapsed: 2}
	assert.InDelta(t, 0.5, l.phase(clk), 1e-9)
}

func TestControllerLFO_Phase_RotateActivity(t *testing.T) {
	l := &ControllerLFO{RotationUnit: RotateActivity, Period: 1, ActivityStart: 10, ActivityEnd: 20}
	assert.InDelta(t, 0, l.phase(phaseClock{tick: 10}), 1e-9)
	assert.InDelta(t, 0.5, l.phase(phaseClock{tick: 15}), 1e-9)
}

func TestControllerLFO_Phase_RotateActivity_EmptySpanIsZero(t *testing.T) {
	l := &ControllerLFO{RotationUnit: RotateActivity, Period: 1, ActivityStart: 10, ActivityEnd: 10}
	assert.Equal(t, 0.0, l.phase(phaseClock{tick: 10}))
}

func TestControllerLFO_Phase_RotateSong(t *testing.T) {
	l := &ControllerLFO{RotationUnit: RotateSong, Period: 1}
	assert.InDelta(t, 0.5, l.phase(phaseClock{tick: 50, songTicks: 100}), 1e-9)
	assert.Equal(t, 0.0, l.phase(phaseClock{tick: 50, songTicks: 0}))
}

func TestControllerLFO_Phase_NonPositivePeriodDefaultsToOne(t *testing.T) {
	l := &ControllerLFO{RotationUnit: RotateSong, Period: 0}
	assert.InDelta(t, 0.5, l.phase(phaseClock{tick: 50, songTicks: 100}), 1e-9)
}

func TestControllerLFO_ValueAt_MapsShapeRangeToMinMax(t *testing.T) {
	l := &ControllerLFO{RotationUnit: RotateSong, Period: 1, Min: 0, Max: 127, Shape: func(float64) float64 { return 1 }}
	assert.Equal(t, 127, l.ValueAt(phaseClock{tick: 0, songTicks: 1}))

	l.Shape = func(float64) float64 { return -1 }
	assert.Equal(t, 0, l.ValueAt(phaseClock{tick: 0, songTicks: 1}))
}

func TestControllerLFO_ValueAt_DefaultsToSineShapeWhenNil(t *testing.T) {
	l := &ControllerLFO{RotationUnit: RotateSong, Period: 1, Min: -8192, Max: 8191}
	v := l.ValueAt(phaseClock{tick: 25, songTicks: 100}) // phase 0.25 -> sine = 1
	assert.Equal(t, 8191, v)
}

func TestControllerLFO_ValueAt_ClampsOutOfRangeShapeOutput(t *testing.T) {
	l := &ControllerLFO{RotationUnit: RotateSong, Period: 1, Min: 0, Max: 10, Shape: func(float64) float64 { return 5 }}
	assert.Equal(t, 10, l.ValueAt(phaseClock{tick: 0, songTicks: 1}))
}

func TestControllerLFO_Changed_FirstEvaluationAndTickZeroAlwaysReport(t *testing.T) {
	l := &ControllerLFO{}
	assert.True(t, l.changed(5, 3), "first evaluation always reports")
	assert.False(t, l.changed(5, 3), "same value, non-zero tick: no change")
	assert.True(t, l.changed(5, 0), "tick 0 always reports regardless of value")
	assert.True(t, l.changed(6, 7), "value changed")
	assert.False(t, l.changed(6, 8), "settled at new value")
}

func TestControllerLFO_Changed_DistinctValuesNotConflated(t *testing.T) {
	l := &ControllerLFO{}
	_ = l.changed(1, 1)
	assert.True(t, l.changed(2, 2))
}
