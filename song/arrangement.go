package song

// TrackType distinguishes melodic (pitched) from rhythm (percussive)
// tracks, by design.
type TrackType int

const (
	Melodic TrackType = iota
	Rhythm
)

// Track is one instrument's rendered output: one or more Sequences (a
// drum track typically has one Sequence per drum voice).
type Track struct {
	Type        TrackType
	Sequences   []Sequence
	Transposition int
	Solo        bool
	Mute        bool
}

// InstrumentTrack pairs an instrument name with its Track.
type InstrumentTrack struct {
	Instrument string
	Track      Track
}

// Arrangement is the unordered collection of (instrumentName, Track) pairs
// produced by the orchestrator.
type Arrangement struct {
	Tracks []InstrumentTrack
}

// NewArrangement returns an empty Arrangement.
func NewArrangement() *Arrangement {
	return &Arrangement{}
}

// Add appends an instrument's track.
func (a *Arrangement) Add(instrument string, track Track) {
	a.Tracks = append(a.Tracks, InstrumentTrack{Instrument: instrument, Track: track})
}

// Get looks up a track by instrument name.
func (a *Arrangement) Get(instrument string) (Track, bool) {
	for _, it := range a.Tracks {
		if it.Instrument == instrument {
			return it.Track, true
		}
	}
	return Track{}, false
}

// AnySolo reports whether any track in the arrangement is soloed; when
// true, non-solo tracks are implicitly muted during playback.
func (a *Arrangement) AnySolo() bool {
	for _, it := range a.Tracks {
		if it.Track.Solo {
			return true
		}
	}
	return false
}

// Audible reports whether the given track should sound, honoring solo/mute
// semantics: if any track is soloed, only soloed tracks are audible;
// otherwise every non-muted track is audible.
func (a *Arrangement) Audible(it InstrumentTrack) bool {
	if it.Track.Mute {
		return false
	}
	if a.AnySolo() {
		return it.Track.Solo
	}
	return true
}

// Structure fixes the song's temporal grid.
type Structure struct {
	Bars         int
	BeatsPerBar  int
	TicksPerBeat int
	MaxVelocity  int
}

// TotalTicks returns bars * beatsPerBar * ticksPerBeat.
func (s Structure) TotalTicks() int {
	return s.Bars * s.BeatsPerBar * s.TicksPerBeat
}

// Context is the shared, read-only bundle passed to every component once
// generation has completed. All fields are immutable after
// construction; the scheduler owns its own transient playback state
// separately.
type Context struct {
	Structure      Structure
	Harmony        *Harmony
	ActivityMatrix *ActivityMatrix
	Arrangement    *Arrangement
	SongName       string
	MaxVelocity    int
}

// ScaleVelocity maps a pattern's absolute velocity v to a MIDI velocity in
// [0,127], by design: midiVel = 1 + (v-1)*126/(maxVelocity-126),
// clamped.
func (c Context) ScaleVelocity(v int) int {
	return ScaleVelocity(v, c.MaxVelocity)
}

// ScaleVelocity is the standalone form of Context.ScaleVelocity so sequence
// engines can use it without a full Context.
func ScaleVelocity(v, maxVelocity int) int {
	if maxVelocity <= 126 {
		maxVelocity = 127
	}
	scaled := 1 + floorDiv((v-1)*126, maxVelocity-126)
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 127 {
		scaled = 127
	}
	return scaled
}

// floorDiv divides a by b, rounding toward negative infinity (unlike Go's
// native "/" truncating toward zero), so that v=0 maps to midiVel=0 exactly
// rather than 1.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
