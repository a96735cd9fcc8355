package midiexport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundhelix/soundhelix-go/scheduler"
	"github.com/soundhelix/soundhelix-go/song"
)

func testContext() *song.Context {
	arrangement := song.NewArrangement()
	arrangement.Add("lead", song.Track{
		Type: song.Melodic,
		Sequences: []song.Sequence{{Entries: []song.SequenceEntry{
			{Pitch: 60, Velocity: 100, Ticks: 4},
			{IsPause: true, Ticks: 4},
			{Pitch: 64, Velocity: 90, Ticks: 4},
		}}},
	})
	arrangement.Add("muted", song.Track{
		Type: song.Rhythm,
		Mute: true,
		Sequences: []song.Sequence{{Entries: []song.SequenceEntry{
			{Pitch: 36, Velocity: 100, Ticks: 4},
		}}},
	})

	return &song.Context{
		Structure:   song.Structure{Bars: 1, BeatsPerBar: 3, TicksPerBeat: 4, MaxVelocity: 127},
		Arrangement: arrangement,
		MaxVelocity: 127,
	}
}

func TestExport_WritesNonEmptySMFFile(t *testing.T) {
	ctx := testContext()
	channels := map[string]scheduler.DeviceChannel{
		"lead": {Channel: 0, Program: 5},
	}

	path := filepath.Join(t.TempDir(), "out.mid")
	err := Export(ctx, channels, 120000, path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "MThd", string(data[:4]), "file must start with the standard MIDI file header chunk")
}

func TestExport_UnmappedInstrumentErrors(t *testing.T) {
	ctx := testContext()
	err := Export(ctx, map[string]scheduler.DeviceChannel{}, 120000, filepath.Join(t.TempDir(), "out.mid"))
	assert.Error(t, err)
}

func TestExport_UnwritablePathErrors(t *testing.T) {
	ctx := testContext()
	channels := map[string]scheduler.DeviceChannel{"lead": {Channel: 0, Program: -1}}
	err := Export(ctx, channels, 120000, filepath.Join(t.TempDir(), "missing-dir", "out.mid"))
	assert.Error(t, err)
}
