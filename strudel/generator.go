// Package strudel renders a generated song.Context as Strudel.cc mini-
// notation source, for the "Persisted output" alternative to a Standard
// MIDI File. Adapted from the prior chord/bass/drum-symbol converter: the
// per-layer stack()/note()/s() shape and note-name conversion are kept,
// rebuilt around resolved song.SequenceEntry pitches (already concrete MIDI
// numbers) instead of chord-symbol strings.
package strudel

import (
	"fmt"
	"strings"

	"github.com/soundhelix/soundhelix-go/song"
)

var noteNames = []string{"c", "cs", "d", "ds", "e", "f", "fs", "g", "gs", "a", "as", "b"}

// Generate renders every audible track of ctx as a stacked Strudel pattern,
// at the given tempo (in whole cycles per minute, quarter-note based).
func Generate(ctx *song.Context, cyclesPerMinute float64) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("// %s\n", ctx.SongName))
	sb.WriteString("// generated by soundhelix-go\n\n")

	var layers []string
	for _, it := range ctx.Arrangement.Tracks {
		if !ctx.Arrangement.Audible(it) {
			continue
		}
		for _, seq := range it.Track.Sequences {
			layer := sequenceToStrudel(seq, it.Instrument, it.Track.Type, it.Track.Transposition)
			if layer != "" {
				layers = append(layers, layer)
			}
		}
	}

	switch len(layers) {
	case 0:
		// nothing audible
	case 1:
		sb.WriteString(layers[0])
	default:
		sb.WriteString("stack(\n")
		for i, layer := range layers {
			sb.WriteString("  " + layer)
			if i < len(layers)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(")")
	}

	sb.WriteString(fmt.Sprintf("\n  .cpm(%g)", cyclesPerMinute))
	return sb.String()
}

// sequenceToStrudel renders one voice's tick-complete timeline as a single
// note() pattern, one mini-notation token per entry.
func sequenceToStrudel(seq song.Sequence, instrument string, trackType song.TrackType, transposition int) string {
	if len(seq.Entries) == 0 {
		return ""
	}
	tokens := make([]string, 0, len(seq.Entries))
	for _, e := range seq.Entries {
		if e.IsPause {
			tokens = append(tokens, "~")
			continue
		}
		pitch := e.Pitch
		if trackType == song.Melodic {
			pitch += transposition
		}
		tokens = append(tokens, midiToNote(pitch))
	}
	return fmt.Sprintf("note(\"%s\").s(%q)", strings.Join(tokens, " "), instrument)
}

func midiToNote(pitch int) string {
	octave := pitch/12 - 1
	class := ((pitch % 12) + 12) % 12
	return fmt.Sprintf("%s%d", noteNames[class], octave)
}
