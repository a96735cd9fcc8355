// Package midiexport writes a generated song.Context to a Standard MIDI
// File, for the "Persisted output" (produced between generation and
// playback). Every audible instrument goes into the one file written to
// path; no separate file per device is written. Kept close to
// midi/generator.go's GenerateFromTrack: one smf.Track per instrument,
// events collected with absolute ticks then re-emitted as deltas, program
// change first — generalized from four fixed tracks
// (tempo/chords/bass/drums) to one track per arrangement instrument.
package midiexport

import (
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/soundhelix/soundhelix-go/scheduler"
	"github.com/soundhelix/soundhelix-go/song"
	"github.com/soundhelix/soundhelix-go/soundhelixerr"
)

type event struct {
	tick    uint32
	message midi.Message
}

// Export writes ctx's arrangement to path as a Standard MIDI File, using
// channels (instrument -> DeviceChannel) for program/channel assignment
// and milliBPM for the initial tempo meta event.
func Export(ctx *song.Context, channels map[string]scheduler.DeviceChannel, milliBPM int64, path string) error {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(uint16(ctx.Structure.TicksPerBeat))

	var tempoTrack smf.Track
	bpm := float64(milliBPM) / 1000
	tempoTrack.Add(0, smf.MetaTempo(bpm))
	tempoTrack.Close(0)
	s.Add(tempoTrack)

	for _, it := range ctx.Arrangement.Tracks {
		if !ctx.Arrangement.Audible(it) {
			continue
		}
		ch, ok := channels[it.Instrument]
		if !ok {
			return soundhelixerr.Wrap(soundhelixerr.ConfigError, "midiexport: no channel mapping for instrument %q", it.Instrument)
		}

		var track smf.Track
		if ch.Program >= 0 {
			track.Add(0, midi.ProgramChange(ch.Channel, uint8(ch.Program)))
		}

		var events []event
		for _, seq := range it.Track.Sequences {
			tick := uint32(0)
			for _, e := range seq.Entries {
				if !e.IsPause {
					pitch := e.Pitch
					if it.Track.Type == song.Melodic {
						pitch += it.Track.Transposition
					}
					events = append(events, event{tick, midi.NoteOn(ch.Channel, clampMIDI(pitch), clampMIDI(e.Velocity))})
					events = append(events, event{tick + uint32(e.Ticks), midi.NoteOff(ch.Channel, clampMIDI(pitch))})
				}
				tick += uint32(e.Ticks)
			}
		}
		sort.SliceStable(events, func(i, j int) bool { return events[i].tick < events[j].tick })

		var prev uint32
		for _, evt := range events {
			track.Add(evt.tick-prev, evt.message)
			prev = evt.tick
		}
		track.Close(0)
		s.Add(track)
	}

	f, err := os.Create(path)
	if err != nil {
		return soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "midiexport: creating %q", path)
	}
	defer f.Close()

	if _, err := s.WriteTo(f); err != nil {
		return soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "midiexport: writing %q", path)
	}
	return nil
}

func clampMIDI(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}
