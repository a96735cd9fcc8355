// Package sequence implements the note sequence engines of the design:
// Arpeggio, Pad, Melody, Pattern and Drum. Each engine consumes a
// song.Context plus the ActivityVector(s) it requires; Arpeggio, Melody and
// Pattern produce a song.Sequence, Pad and Drum a song.Track.
//
// No teacher file plays this role directly — ako-backing-tracks renders
// bass/melody/rhythm/drums straight from its parsed YAML with no
// activity-vector gating or pattern-cursor abstraction — so the shared
// rendering helpers here are new, sharing a common core
// prose applied uniformly across engines. The per-style pitch
// selection in GenerateMelody and the GM percussion voice wiring in
// GenerateDrum are adapted from midi/melody.go's GenerateMelody and
// midi/drums.go's GenerateDrumPattern respectively.
package sequence

import (
	"math/rand"

	"github.com/soundhelix/soundhelix-go/song"
	"github.com/soundhelix/soundhelix-go/soundhelixerr"
	"github.com/soundhelix/soundhelix-go/theory"
)

// RestartMode controls when a sequence engine resets its pattern read
// cursor back to the start.
type RestartMode int

const (
	RestartNever RestartMode = iota
	RestartChordSection
	RestartChord
)

func boundaryKey(h *song.Harmony, restart RestartMode, tick int) int {
	switch restart {
	case RestartChordSection:
		return h.SectionIndexAt(tick)
	case RestartChord:
		_, chordTicksLeft, _ := h.ChordAt(tick)
		return tick + chordTicksLeft // end tick of the current chord run
	default:
		return 0
	}
}

// pitchResolver turns a pattern entry's raw offset into a sounding MIDI
// pitch at the given tick. Melody/Pad patterns already carry absolute
// pitches (identity resolver); Arpeggio/Pattern patterns carry chord-tone
// indices, resolved against whichever chord is active at tick.
type pitchResolver func(h *song.Harmony, tick int, offset int) int

func identityResolver(_ *song.Harmony, _ int, offset int) int { return offset }

func chordToneResolver(h *song.Harmony, tick int, offset int) int {
	chord, _, _ := h.ChordAt(tick)
	return chordTonePitch(chord, offset)
}

func chordTonePitch(c song.Chord, index int) int {
	n := len(c.Pitches)
	if n == 0 {
		return 0
	}
	wrapped := ((index % n) + n) % n
	octave := (index - wrapped) / n
	return c.Pitches[wrapped] + 12*octave
}

// render walks a pattern cyclically across totalTicks, gating each tick by
// activity (emitting a pause when inactive), resolving each note's pitch
// via resolve, and resetting the pattern cursor at restart boundaries.
func render(totalTicks int, pattern song.Pattern, activity *song.ActivityVector, restart RestartMode, h *song.Harmony, maxVelocity int, resolve pitchResolver) song.Sequence {
	var out song.Sequence
	if totalTicks <= 0 || len(pattern.Entries) == 0 {
		if totalTicks > 0 {
			out.Entries = append(out.Entries, song.SequenceEntry{IsPause: true, Ticks: totalTicks})
		}
		return out
	}

	idx := 0
	lastKey := boundaryKey(h, restart, 0) - 1 // force a reset check on the first tick
	t := 0
	for t < totalTicks {
		key := boundaryKey(h, restart, t)
		if key != lastKey {
			idx = 0
		}
		lastKey = key

		if idx >= len(pattern.Entries) {
			idx = 0
		}
		e := pattern.Entries[idx]
		ticks := e.Ticks
		if ticks <= 0 {
			ticks = 1
		}
		if t+ticks > totalTicks {
			ticks = totalTicks - t
		}

		active := activity == nil || activity.IsActive(t)
		if !active || e.IsPause {
			out.Entries = append(out.Entries, song.SequenceEntry{IsPause: true, Ticks: ticks})
		} else {
			out.Entries = append(out.Entries, song.SequenceEntry{
				Pitch:    resolve(h, t, e.Pitch),
				Velocity: song.ScaleVelocity(e.Velocity, maxVelocity),
				Ticks:    ticks,
				Legato:   e.Legato,
			})
		}
		t += ticks
		idx++
	}
	return out
}

// --- Arpeggio ----------------------------------------------------------------

// ArpeggioConfig configures the Arpeggio engine.
type ArpeggioConfig struct {
	Patterns    []song.Pattern
	Context     *song.Context
	Activity    *song.ActivityVector
	MaxVelocity int
}

// GenerateArpeggio chooses, per chord, the shortest candidate pattern whose
// tick length is at least the chord's length (falling back to the longest
// candidate otherwise), and loops it to fill the chord exactly.
func GenerateArpeggio(cfg ArpeggioConfig) (song.Sequence, error) {
	if len(cfg.Patterns) == 0 {
		return song.Sequence{}, soundhelixerr.Wrap(soundhelixerr.ConfigError, "sequence: arpeggio engine needs at least one pattern")
	}
	h := cfg.Context.Harmony
	var out song.Sequence
	for _, run := range h.Runs() {
		pat := chooseArpeggioPattern(cfg.Patterns, run.ChordTicks)
		sub := renderChordIndexed(run, pat, cfg.Activity, cfg.MaxVelocity)
		out.Entries = append(out.Entries, sub.Entries...)
	}
	return out, nil
}

func chooseArpeggioPattern(patterns []song.Pattern, chordTicks int) song.Pattern {
	best := patterns[0]
	bestLen := -1
	for _, p := range patterns {
		l := p.Length()
		if l >= chordTicks && (bestLen == -1 || l < bestLen) {
			bestLen = l
			best = p
		}
	}
	if bestLen != -1 {
		return best
	}
	longest := patterns[0]
	for _, p := range patterns {
		if p.Length() > longest.Length() {
			longest = p
		}
	}
	return longest
}

// renderChordIndexed loops pat to fill exactly run.ChordTicks ticks,
// resolving each note's offset as a chord-tone index into run.Chord.
func renderChordIndexed(run song.ChordRun, pat song.Pattern, activity *song.ActivityVector, maxVelocity int) song.Sequence {
	return renderRun(run, pat, activity, maxVelocity, chordTonePitch)
}

// renderRunAbsolute loops pat to fill exactly run.ChordTicks ticks,
// treating each note's offset as an already-concrete MIDI pitch (used by
// Melody, whose wildcard resolution happens before rendering).
func renderRunAbsolute(run song.ChordRun, pat song.Pattern, activity *song.ActivityVector, maxVelocity int) song.Sequence {
	return renderRun(run, pat, activity, maxVelocity, func(_ song.Chord, offset int) int { return offset })
}

func renderRun(run song.ChordRun, pat song.Pattern, activity *song.ActivityVector, maxVelocity int, resolveOffset func(song.Chord, int) int) song.Sequence {
	var out song.Sequence
	if pat.Length() == 0 {
		out.Entries = append(out.Entries, song.SequenceEntry{IsPause: true, Ticks: run.ChordTicks})
		return out
	}
	idx := 0
	t := 0
	for t < run.ChordTicks {
		if idx >= len(pat.Entries) {
			idx = 0
		}
		e := pat.Entries[idx]
		ticks := e.Ticks
		if ticks <= 0 {
			ticks = 1
		}
		if t+ticks > run.ChordTicks {
			ticks = run.ChordTicks - t
		}
		globalTick := run.StartTick + t
		active := activity == nil || activity.IsActive(globalTick)
		if !active || e.IsPause {
			out.Entries = append(out.Entries, song.SequenceEntry{IsPause: true, Ticks: ticks})
		} else {
			out.Entries = append(out.Entries, song.SequenceEntry{
				Pitch:    resolveOffset(run.Chord, e.Pitch),
				Velocity: song.ScaleVelocity(e.Velocity, maxVelocity),
				Ticks:    ticks,
				Legato:   e.Legato,
			})
		}
		t += ticks
		idx++
	}
	return out
}

// --- Pad -----------------------------------------------------------------

// PadConfig configures the Pad engine: one Sequence per configured chord-
// tone offset (the design example: {0,1,2} = root triad).
type PadConfig struct {
	Offsets           []int
	Velocity          int
	RetriggerPitches  bool
	Context           *song.Context
	Activity          *song.ActivityVector
	MaxVelocity       int
}

// GeneratePad plays each chord as sustained polyphony across its configured
// offsets. When RetriggerPitches is false, a pitch that is unchanged across
// a chord change is held rather than re-struck.
func GeneratePad(cfg PadConfig) (song.Track, error) {
	if len(cfg.Offsets) == 0 {
		return song.Track{}, soundhelixerr.Wrap(soundhelixerr.ConfigError, "sequence: pad engine needs at least one offset")
	}
	h := cfg.Context.Harmony
	track := song.Track{Type: song.Melodic}
	for _, offset := range cfg.Offsets {
		var seq song.Sequence
		for _, run := range h.Runs() {
			active := cfg.Activity == nil || cfg.Activity.IsActive(run.StartTick)
			if !active {
				appendPause(&seq, run.ChordTicks)
				continue
			}
			pitch := chordTonePitch(run.Chord, offset)
			if !cfg.RetriggerPitches && len(seq.Entries) > 0 {
				last := &seq.Entries[len(seq.Entries)-1]
				if !last.IsPause && last.Pitch == pitch {
					last.Ticks += run.ChordTicks
					continue
				}
			}
			seq.Entries = append(seq.Entries, song.SequenceEntry{
				Pitch:    pitch,
				Velocity: song.ScaleVelocity(cfg.Velocity, cfg.MaxVelocity),
				Ticks:    run.ChordTicks,
			})
		}
		track.Sequences = append(track.Sequences, seq)
	}
	return track, nil
}

func appendPause(seq *song.Sequence, ticks int) {
	if ticks <= 0 {
		return
	}
	if n := len(seq.Entries); n > 0 && seq.Entries[n-1].IsPause {
		seq.Entries[n-1].Ticks += ticks
		return
	}
	seq.Entries = append(seq.Entries, song.SequenceEntry{IsPause: true, Ticks: ticks})
}

// --- Pattern ---------------------------------------------------------------

// PatternEngineConfig configures the Pattern engine: a single fixed
// pattern played continuously, its offsets resolved as chord-tone indices
// with octave wrap.
type PatternEngineConfig struct {
	Pattern     song.Pattern
	Restart     RestartMode
	Context     *song.Context
	Activity    *song.ActivityVector
	MaxVelocity int
}

// GeneratePattern renders the fixed pattern across the whole song.
func GeneratePattern(cfg PatternEngineConfig) (song.Sequence, error) {
	h := cfg.Context.Harmony
	total := cfg.Context.Structure.TotalTicks()
	return render(total, cfg.Pattern, cfg.Activity, cfg.Restart, h, cfg.MaxVelocity, chordToneResolver), nil
}

// --- Melody ------------------------------------------------------------------

// MelodyConfig configures the Melody engine. Templates is one
// or more melody patterns whose entries use wildcards '+' (free pitch),
// '#' (chord tone) and '*' (repeat previous pitch); when more than one
// template is configured, they cycle round-robin across occurrences of
// each distinct chord.
type MelodyConfig struct {
	Templates      []song.Pattern
	PitchDistances []int
	MinPitch       int
	MaxPitch       int
	Context        *song.Context
	Activity       *song.ActivityVector
	MaxVelocity    int
	Rand           *rand.Rand
}

const maxPitchSearchIterations = 10000

// GenerateMelody resolves every template once per distinct chord (chord
// runs are keyed by their chord's name, so a chord section holding several
// chords gets one melody per chord, not one melody for the whole section)
// and replays the resolved templates round-robin on that chord's
// occurrences, using the C major / A minor natural scale as the "white
// key" constraint for free ('+') pitches.
func GenerateMelody(cfg MelodyConfig) (song.Sequence, error) {
	if len(cfg.Templates) == 0 {
		return song.Sequence{}, soundhelixerr.Wrap(soundhelixerr.ConfigError, "sequence: melody engine needs at least one template")
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	scale := theory.NewScale(0, theory.ScaleNaturalMajor)
	h := cfg.Context.Harmony

	resolved := make(map[string][]song.Pattern)
	roundRobin := make(map[string]int)
	lastPitch := cfg.MinPitch
	var out song.Sequence

	for _, run := range h.Runs() {
		key := run.Chord.Normalize().Name()
		pats, ok := resolved[key]
		if !ok {
			for _, tmpl := range cfg.Templates {
				pat, err := resolveMelodyTemplate(tmpl, run.Chord, scale, cfg, rng, &lastPitch)
				if err != nil {
					return song.Sequence{}, err
				}
				pats = append(pats, pat)
			}
			resolved[key] = pats
		}
		pat := pats[roundRobin[key]%len(pats)]
		roundRobin[key]++
		sub := renderRunAbsolute(run, pat, cfg.Activity, cfg.MaxVelocity)
		out.Entries = append(out.Entries, sub.Entries...)
	}
	return out, nil
}

func resolveMelodyTemplate(template song.Pattern, chord song.Chord, scale *theory.Scale, cfg MelodyConfig, rng *rand.Rand, lastPitch *int) (song.Pattern, error) {
	out := song.Pattern{TicksPerBeat: template.TicksPerBeat}
	for _, e := range template.Entries {
		if e.IsPause {
			out.Entries = append(out.Entries, e)
			continue
		}
		switch e.Wildcard {
		case '+':
			pitch, err := pickFreePitch(*lastPitch, cfg.PitchDistances, cfg.MinPitch, cfg.MaxPitch, scale, rng)
			if err != nil {
				return song.Pattern{}, err
			}
			e.Pitch = pitch
			e.Wildcard = 0
		case '#':
			e.Pitch = pickChordTonePitch(chord, cfg.MinPitch, cfg.MaxPitch, rng)
			e.Wildcard = 0
		case '*':
			e.Pitch = *lastPitch
			e.Wildcard = 0
		}
		*lastPitch = e.Pitch
		out.Entries = append(out.Entries, e)
	}
	return out, nil
}

func pickFreePitch(last int, distances []int, minPitch, maxPitch int, scale *theory.Scale, rng *rand.Rand) (int, error) {
	if len(distances) == 0 {
		return 0, soundhelixerr.Wrap(soundhelixerr.ConfigError, "sequence: melody engine needs at least one pitch distance")
	}
	for i := 0; i < maxPitchSearchIterations; i++ {
		d := distances[rng.Intn(len(distances))]
		sign := 1
		if rng.Intn(2) == 0 {
			sign = -1
		}
		candidate := last + sign*d
		if candidate < minPitch || candidate > maxPitch {
			continue
		}
		if scale.ContainsNote(candidate) {
			return candidate, nil
		}
	}
	return 0, soundhelixerr.Wrap(soundhelixerr.ConstraintUnsatisfiable,
		"sequence: could not find a free melody pitch within %d iterations", maxPitchSearchIterations)
}

func pickChordTonePitch(chord song.Chord, minPitch, maxPitch int, rng *rand.Rand) int {
	if len(chord.Pitches) == 0 {
		return minPitch
	}
	base := chord.Pitches[rng.Intn(len(chord.Pitches))]
	for base < minPitch {
		base += 12
	}
	for base > maxPitch {
		base -= 12
	}
	return base
}

// --- Drum --------------------------------------------------------------------

// DrumVoice is one drum instrument entry (the design: "(pattern, pitch,
// activityVector)").
type DrumVoice struct {
	Name     string
	Pattern  song.Pattern
	Pitch    int
	Activity *song.ActivityVector
}

// DrumConfig configures the Drum engine.
type DrumConfig struct {
	Voices      []DrumVoice
	Restart     RestartMode
	Context     *song.Context
	MaxVelocity int
}

// GenerateDrum renders each configured voice straightforwardly into one
// Sequence per voice (conditional rule post-processing is applied
// separately via ApplyConditionalRules once all base voices exist, since
// rules may target voices across the whole kit).
func GenerateDrum(cfg DrumConfig) (song.Track, map[string]int, error) {
	h := cfg.Context.Harmony
	total := cfg.Context.Structure.TotalTicks()
	track := song.Track{Type: song.Rhythm}
	index := make(map[string]int)
	for _, v := range cfg.Voices {
		fixedPitch := func(_ *song.Harmony, _ int, _ int) int { return v.Pitch }
		seq := render(total, v.Pattern, v.Activity, cfg.Restart, h, cfg.MaxVelocity, fixedPitch)
		index[v.Name] = len(track.Sequences)
		track.Sequences = append(track.Sequences, seq)
	}
	return track, index, nil
}

// RuleMode selects how a conditional rule rewrites its target voices.
type RuleMode int

const (
	RuleAdd RuleMode = iota
	RuleReplace
)

// ConditionFunc evaluates a boolean condition over the solved
// ActivityMatrix's per-voice state as of chord-section boundary
// sectionIdx.
type ConditionFunc func(matrix *song.ActivityMatrix, sectionIdx int) bool

// ConditionalRule is one drum conditional rule.
type ConditionalRule struct {
	Precondition        ConditionFunc
	Postcondition       ConditionFunc
	Pattern             song.Pattern
	Probability         float64
	Mode                RuleMode
	SkipWhenApplied      int
	SkipWhenNotApplied   int
	TargetVoices        []string
}

const maxRuleBoundaryVisits = 100000

// ApplyConditionalRules walks chord-section boundaries and, wherever a
// rule's precondition holds at the previous boundary and its
// postcondition holds at the current one, rewrites (with probability p)
// the last len(rule.Pattern) ticks of every target voice.
func ApplyConditionalRules(sequences []song.Sequence, index map[string]int, matrix *song.ActivityMatrix, h *song.Harmony, rules []ConditionalRule, maxVelocity int, rng *rand.Rand) {
	for ri := range rules {
		rule := &rules[ri]
		s := 1
		visits := 0
		for s < h.SectionCount() && visits < maxRuleBoundaryVisits {
			visits++
			applied := rule.Precondition != nil && rule.Postcondition != nil &&
				rule.Precondition(matrix, s-1) && rule.Postcondition(matrix, s) &&
				rng.Float64() < rule.Probability
			if applied {
				boundaryTick, _ := h.SectionBounds(s)
				applyRulePattern(sequences, index, rule, boundaryTick, maxVelocity)
				if rule.SkipWhenApplied != 0 {
					s += rule.SkipWhenApplied
					if s < 1 {
						s = 1
					}
					continue
				}
			} else if rule.SkipWhenNotApplied != 0 {
				s += rule.SkipWhenNotApplied
				if s < 1 {
					s = 1
				}
				continue
			}
			s++
		}
	}
}

func applyRulePattern(sequences []song.Sequence, index map[string]int, rule *ConditionalRule, boundaryTick int, maxVelocity int) {
	patchLen := rule.Pattern.Length()
	fromTick := boundaryTick - patchLen
	for _, name := range rule.TargetVoices {
		i, ok := index[name]
		if !ok {
			continue
		}
		sequences[i] = spliceSequence(sequences[i], fromTick, boundaryTick, rule.Pattern, rule.Mode, maxVelocity)
	}
}

func expandToTicks(seq song.Sequence) []song.SequenceEntry {
	var out []song.SequenceEntry
	for _, e := range seq.Entries {
		for i := 0; i < e.Ticks; i++ {
			one := e
			one.Ticks = 1
			out = append(out, one)
		}
	}
	return out
}

func coalesceTicks(ticks []song.SequenceEntry) song.Sequence {
	var out song.Sequence
	for _, t := range ticks {
		if n := len(out.Entries); n > 0 {
			last := &out.Entries[n-1]
			if last.IsPause == t.IsPause && last.Pitch == t.Pitch && last.Velocity == t.Velocity && last.Legato == t.Legato {
				last.Ticks++
				continue
			}
		}
		entry := t
		entry.Ticks = 1
		out.Entries = append(out.Entries, entry)
	}
	return out
}

func spliceSequence(seq song.Sequence, fromTick, toTick int, patch song.Pattern, mode RuleMode, maxVelocity int) song.Sequence {
	ticks := expandToTicks(seq)
	if fromTick < 0 {
		fromTick = 0
	}
	if toTick > len(ticks) {
		toTick = len(ticks)
	}
	if fromTick >= toTick {
		return seq
	}
	patchTicks := expandPatternToTicks(patch, maxVelocity)
	for i := 0; i < toTick-fromTick && i < len(patchTicks); i++ {
		pt := patchTicks[i]
		target := fromTick + i
		if mode == RuleReplace || !pt.IsPause {
			ticks[target] = pt
		}
	}
	return coalesceTicks(ticks)
}

func expandPatternToTicks(p song.Pattern, maxVelocity int) []song.SequenceEntry {
	var out []song.SequenceEntry
	for _, e := range p.Entries {
		ticks := e.Ticks
		if ticks <= 0 {
			ticks = 1
		}
		entry := song.SequenceEntry{IsPause: e.IsPause, Pitch: e.Pitch, Velocity: song.ScaleVelocity(e.Velocity, maxVelocity), Legato: e.Legato}
		for i := 0; i < ticks; i++ {
			one := entry
			one.Ticks = 1
			out = append(out, one)
		}
	}
	return out
}
