package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soundhelix/soundhelix-go/soundhelixerr"
)

func TestDevice_Open_NoMatchingCandidateIsDeviceUnavailable(t *testing.T) {
	d := &Device{Name: "synth", Candidates: []string{"no-such-port"}}
	err := d.Open()
	assert.Error(t, err)
	assert.True(t, soundhelixerr.Is(err, soundhelixerr.DeviceUnavailable))
}

func TestDevice_Send_BeforeOpenErrors(t *testing.T) {
	d := &Device{Name: "synth"}
	err := d.Send(nil)
	assert.Error(t, err)
}

func TestDevice_Close_BeforeOpenIsNoop(t *testing.T) {
	d := &Device{Name: "synth"}
	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
}

func TestDevice_Mute_BeforeOpenDoesNotPanic(t *testing.T) {
	d := &Device{Name: "synth"}
	assert.NotPanics(t, func() { d.Mute() })
}

func TestDeviceChannel_ProgramMinusOneMeansUnchanged(t *testing.T) {
	ch := DeviceChannel{Program: -1, LegatoController: -1}
	assert.Equal(t, -1, ch.Program)
	assert.Equal(t, -1, ch.LegatoController)
}
