package song

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructure_TotalTicks(t *testing.T) {
	s := Structure{Bars: 2, BeatsPerBar: 4, TicksPerBeat: 4}
	assert.Equal(t, 32, s.TotalTicks())
}

func TestArrangement_AudibleWithoutSolo(t *testing.T) {
	a := NewArrangement()
	a.Add("bass", Track{})
	a.Add("drums", Track{Mute: true})

	bass, _ := a.Get("bass")
	drums, _ := a.Get("drums")
	assert.True(t, a.Audible(InstrumentTrack{Instrument: "bass", Track: bass}))
	assert.False(t, a.Audible(InstrumentTrack{Instrument: "drums", Track: drums}))
}

func TestArrangement_SoloMutesOthers(t *testing.T) {
	a := NewArrangement()
	a.Add("bass", Track{Solo: true})
	a.Add("drums", Track{})

	assert.True(t, a.AnySolo())

	bass, _ := a.Get("bass")
	drums, _ := a.Get("drums")
	assert.True(t, a.Audible(InstrumentTrack{Instrument: "bass", Track: bass}))
	assert.False(t, a.Audible(InstrumentTrack{Instrument: "drums", Track: drums}))
}

func TestScaleVelocity_Monotone(t *testing.T) {
	assert.Equal(t, 0, ScaleVelocity(0, 32767))
	assert.Equal(t, 127, ScaleVelocity(32767, 32767))

	prev := -1
	for v := 0; v <= 32767; v += 512 {
		got := ScaleVelocity(v, 32767)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}
