// Package theory carries the scale primitive the Melody sequence engine
// needs for its '+' (free pitch) wildcard: a named set of semitone
// intervals from a root, with a containment test.
//
// Trimmed from the teacher's theory.go, which also carried guitar-
// fretboard rendering, style-to-scale heuristics, jazz chord-to-scale
// lookup and note-name/chord-symbol parsing for a tablature display this
// module has no equivalent of; none of that surface is reachable from a
// MIDI arrangement, so only the scale table and NewScale/ContainsNote —
// what sequence.GenerateMelody actually calls — are kept.
package theory

// ScaleType names a scale's interval pattern.
type ScaleType string

const (
	ScalePentatonicMinor ScaleType = "pentatonic_minor"
	ScaleNaturalMinor    ScaleType = "natural_minor"
	ScaleNaturalMajor    ScaleType = "natural_major"
	ScaleDorian          ScaleType = "dorian"
	ScaleMixolydian      ScaleType = "mixolydian"
	ScaleHarmonicMinor   ScaleType = "harmonic_minor"
)

// ScaleIntervals maps scale types to their interval patterns (semitones from root)
var ScaleIntervals = map[ScaleType][]int{
	ScalePentatonicMinor: {0, 3, 5, 7, 10},       // R, b3, 4, 5, b7
	ScaleNaturalMinor:    {0, 2, 3, 5, 7, 8, 10}, // R, 2, b3, 4, 5, b6, b7
	ScaleNaturalMajor:    {0, 2, 4, 5, 7, 9, 11}, // R, 2, 3, 4, 5, 6, 7
	ScaleDorian:          {0, 2, 3, 5, 7, 9, 10}, // R, 2, b3, 4, 5, 6, b7
	ScaleMixolydian:      {0, 2, 4, 5, 7, 9, 10}, // R, 2, 3, 4, 5, 6, b7
	ScaleHarmonicMinor:   {0, 2, 3, 5, 7, 8, 11}, // R, 2, b3, 4, 5, b6, 7
}

// ScaleNames maps scale types to display names
var ScaleNames = map[ScaleType]string{
	ScalePentatonicMinor: "Minor Pentatonic",
	ScaleNaturalMinor:    "Natural Minor",
	ScaleNaturalMajor:    "Major",
	ScaleDorian:          "Dorian",
	ScaleMixolydian:      "Mixolydian",
	ScaleHarmonicMinor:   "Harmonic Minor",
}

// NoteNames for display (sharps)
var NoteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Scale represents a musical scale with intervals from root
type Scale struct {
	Name      string    // e.g., "A Minor Pentatonic"
	Type      ScaleType // The scale type
	Root      int       // MIDI note offset (0-11, where C=0)
	RootName  string    // Display name of root (e.g., "A", "Bb")
	Intervals []int     // Semitones from root
}

// NewScale creates a new scale with the given root and type
func NewScale(root int, scaleType ScaleType) *Scale {
	root = root % 12 // Normalize to 0-11
	intervals, ok := ScaleIntervals[scaleType]
	if !ok {
		intervals = ScaleIntervals[ScalePentatonicMinor] // Default
		scaleType = ScalePentatonicMinor
	}

	scaleName := ScaleNames[scaleType]
	rootName := NoteNames[root]

	return &Scale{
		Name:      rootName + " " + scaleName,
		Type:      scaleType,
		Root:      root,
		RootName:  rootName,
		Intervals: intervals,
	}
}

// ContainsNote checks if a MIDI note is in the scale
func (s *Scale) ContainsNote(midiNote int) bool {
	noteInOctave := midiNote % 12
	relativeToRoot := (noteInOctave - s.Root + 12) % 12

	for _, interval := range s.Intervals {
		if interval == relativeToRoot {
			return true
		}
	}
	return false
}
