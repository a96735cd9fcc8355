// Package orchestrate wires a parsed config.Document into the full C1..C5
// generation pipeline (harmony, activity solving, sequence rendering) and
// produces the immutable song.Context the scheduler plays. Generalizes
// main.go's single flat call into parser.LoadTrack + generator.Generate
// into this multi-stage build, matching the "generation precedes,
// and is fully decoupled from, playback" model.
package orchestrate

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/soundhelix/soundhelix-go/config"
	"github.com/soundhelix/soundhelix-go/harmony"
	"github.com/soundhelix/soundhelix-go/pattern"
	"github.com/soundhelix/soundhelix-go/sequence"
	"github.com/soundhelix/soundhelix-go/solver"
	"github.com/soundhelix/soundhelix-go/song"
	"github.com/soundhelix/soundhelix-go/soundhelixerr"
)

// Build runs the full generation pipeline for doc and returns the
// resulting Context, ready to hand to a scheduler.Scheduler.
func Build(doc *config.Document) (*song.Context, error) {
	rootRand := doc.Seeding.Rand(1)

	structure := song.Structure{
		Bars:         doc.Structure.Bars.Resolve(rootRand),
		BeatsPerBar:  doc.Structure.BeatsPerBar.Resolve(rootRand),
		TicksPerBeat: doc.Structure.TicksPerBeat.Resolve(rootRand),
		MaxVelocity:  doc.Structure.MaxVelocity.Resolve(rootRand),
	}
	if structure.MaxVelocity <= 0 {
		structure.MaxVelocity = 127
	}

	h, err := buildHarmony(doc, structure, rootRand)
	if err != nil {
		return nil, err
	}

	matrix, err := buildActivityMatrix(doc, h, rootRand)
	if err != nil {
		return nil, err
	}

	arrangement, err := buildArrangement(doc, structure, h, matrix, rootRand)
	if err != nil {
		return nil, err
	}

	songName := doc.SongNameEngine.Name.Resolve(doc.SongNameEngine.Seeding.Rand(rootRand.Int63()))

	ctx := &song.Context{
		Structure:      structure,
		Harmony:        h,
		ActivityMatrix: matrix,
		Arrangement:    arrangement,
		SongName:       songName,
		MaxVelocity:    structure.MaxVelocity,
	}

	logrus.WithFields(logrus.Fields{
		"songName":    songName,
		"totalTicks":  h.TotalTicks(),
		"sections":    h.SectionCount(),
		"tracks":      len(arrangement.Tracks),
	}).Info("orchestrate: generation complete")

	return ctx, nil
}

func buildHarmony(doc *config.Document, structure song.Structure, rootRand *rand.Rand) (*song.Harmony, error) {
	hc := doc.HarmonyEngine
	rng := hc.Seeding.Rand(rootRand.Int63())

	tables := make(map[int][]harmony.ChordSpec)
	for idx, specs := range hc.RandomTables {
		var parsed []harmony.ChordSpec
		for _, s := range specs {
			parsed = append(parsed, harmony.ChordSpec{Kind: harmony.SpecChordName, Text: s})
		}
		tables[idx] = parsed
	}

	opts := harmony.Options{
		RandomTables:          tables,
		CrossoverPitch:        hc.CrossoverPitch.Resolve(rng),
		UseDefaultCrossover:    !hc.CrossoverPitch.IsSet(),
		MinimizeChordDistance:  hc.MinimizeChordDistance,
		TicksPerBeat:           structure.TicksPerBeat,
		Rand:                   rng,
	}

	h, err := harmony.Generate(hc.Grammar, opts)
	if err != nil {
		return nil, err
	}
	if err := h.CheckSanity(); err != nil {
		return nil, soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "orchestrate: harmony failed sanity check")
	}
	return h, nil
}

func buildActivityMatrix(doc *config.Document, h *song.Harmony, rootRand *rand.Rand) (*song.ActivityMatrix, error) {
	ac := doc.ArrangementEngine
	rng := ac.Seeding.Rand(rootRand.Int63())

	sectionTicks := make([]int, h.SectionCount())
	for i := range sectionTicks {
		start, end := h.SectionBounds(i)
		sectionTicks[i] = end - start
	}

	var vectors []solver.VectorConfig
	for _, vc := range ac.ActivityVectors {
		maxActive := 100.0
		if vc.MaxActivePercent.IsSet() {
			maxActive = float64(vc.MaxActivePercent.Resolve(rng))
		}
		vectors = append(vectors, solver.VectorConfig{
			Name:               vc.Name,
			MinActivePercent:   float64(vc.MinActivePercent.Resolve(rng)),
			MaxActivePercent:   maxActive,
			AllowInactive:      vc.AllowInactive,
			StartBeforeSection: vc.StartBeforeSection.Resolve(rng),
			StartAfterSection:  vc.StartAfterSection.Resolve(rng),
			StopBeforeSection:  vc.StopBeforeSection.Resolve(rng),
			StopAfterSection:   vc.StopAfterSection.Resolve(rng),
			MinSegmentCount:    vc.MinSegmentCount.Resolve(rng),
			MaxSegmentCount:    vc.MaxSegmentCount.Resolve(rng),
			MinSegmentLength:   vc.MinSegmentLength.Resolve(rng),
			MaxSegmentLength:   vc.MaxSegmentLength.Resolve(rng),
			MinPauseLength:     vc.MinPauseLength.Resolve(rng),
			MaxPauseLength:     vc.MaxPauseLength.Resolve(rng),
			StartShift:         vc.StartShift.Resolve(rng),
			StopShift:          vc.StopShift.Resolve(rng),
		})
	}

	mode := solver.EXACT
	if ac.ConstraintMode == "GREEDY" {
		mode = solver.GREEDY
	}
	maxIterations := ac.MaxIterations.Resolve(rng)
	if maxIterations <= 0 {
		maxIterations = 10000
	}

	cfg := solver.Config{
		SectionTicks:  sectionTicks,
		Vectors:       vectors,
		MaxIterations: maxIterations,
		Mode:          mode,
		Rand:          rng,
	}
	return solver.Solve(cfg)
}

func buildArrangement(doc *config.Document, structure song.Structure, h *song.Harmony, matrix *song.ActivityMatrix, rootRand *rand.Rand) (*song.Arrangement, error) {
	arrangement := song.NewArrangement()
	ctx := &song.Context{Structure: structure, Harmony: h, ActivityMatrix: matrix, MaxVelocity: structure.MaxVelocity}

	for _, tc := range doc.ArrangementEngine.Tracks {
		rng := tc.SequenceEngine.Seeding.Rand(rootRand.Int63())

		var activity *song.ActivityVector
		if tc.ActivityVector != "" {
			v, ok := matrix.Get(tc.ActivityVector)
			if !ok {
				return nil, soundhelixerr.Wrap(soundhelixerr.ConfigError, "orchestrate: track %q references unknown activity vector %q", tc.Instrument, tc.ActivityVector)
			}
			activity = v
		}

		track, err := buildTrack(tc, ctx, activity, rng)
		if err != nil {
			return nil, err
		}
		track.Transposition = tc.Transposition.Resolve(rng)
		track.Solo = tc.Solo
		track.Mute = tc.Mute
		arrangement.Add(tc.Instrument, track)
	}
	return arrangement, nil
}

func buildTrack(tc config.TrackConfig, ctx *song.Context, activity *song.ActivityVector, rng *rand.Rand) (song.Track, error) {
	sc := tc.SequenceEngine
	restart := parseRestart(sc.Restart)

	switch sc.Type {
	case "arpeggio":
		patterns, err := parsePatterns(sc.Patterns, ctx.Structure.TicksPerBeat, rng)
		if err != nil {
			return song.Track{}, err
		}
		seq, err := sequence.GenerateArpeggio(sequence.ArpeggioConfig{Patterns: patterns, Context: ctx, Activity: activity, MaxVelocity: ctx.MaxVelocity})
		if err != nil {
			return song.Track{}, err
		}
		return song.Track{Type: song.Melodic, Sequences: []song.Sequence{seq}}, nil

	case "pad":
		retrigger := true
		if sc.RetriggerPitches != nil {
			retrigger = *sc.RetriggerPitches
		}
		velocity := 100
		return sequence.GeneratePad(sequence.PadConfig{
			Offsets:          sc.Offsets,
			Velocity:         velocity,
			RetriggerPitches: retrigger,
			Context:          ctx,
			Activity:         activity,
			MaxVelocity:      ctx.MaxVelocity,
		})

	case "pattern":
		pat, err := pattern.ParseString(sc.Pattern.Resolve(rng), ctx.Structure.TicksPerBeat, "")
		if err != nil {
			return song.Track{}, err
		}
		seq, err := sequence.GeneratePattern(sequence.PatternEngineConfig{Pattern: pat, Restart: restart, Context: ctx, Activity: activity, MaxVelocity: ctx.MaxVelocity})
		if err != nil {
			return song.Track{}, err
		}
		return song.Track{Type: song.Melodic, Sequences: []song.Sequence{seq}}, nil

	case "melody":
		templates, err := parsePatterns(sc.Templates, ctx.Structure.TicksPerBeat, rng)
		if err != nil {
			return song.Track{}, err
		}
		minPitch := sc.MinPitch.Resolve(rng)
		maxPitch := sc.MaxPitch.Resolve(rng)
		if maxPitch == 0 {
			maxPitch = minPitch + 24
		}
		seq, err := sequence.GenerateMelody(sequence.MelodyConfig{
			Templates:   templates,
			MinPitch:    minPitch,
			MaxPitch:    maxPitch,
			Context:     ctx,
			Activity:    activity,
			MaxVelocity: ctx.MaxVelocity,
			Rand:        rng,
		})
		if err != nil {
			return song.Track{}, err
		}
		return song.Track{Type: song.Melodic, Sequences: []song.Sequence{seq}}, nil

	case "drum":
		return buildDrumTrack(sc, ctx, rng)

	default:
		return song.Track{}, soundhelixerr.Wrap(soundhelixerr.ConfigError, "orchestrate: unknown sequenceEngine type %q", sc.Type)
	}
}

func buildDrumTrack(sc config.SequenceEngineConfig, ctx *song.Context, rng *rand.Rand) (song.Track, error) {
	var voices []sequence.DrumVoice
	for _, vc := range sc.Voices {
		pat, err := pattern.ParseString(vc.Pattern.Resolve(rng), ctx.Structure.TicksPerBeat, "")
		if err != nil {
			return song.Track{}, err
		}
		var activity *song.ActivityVector
		if vc.ActivityVector != "" {
			v, ok := ctx.ActivityMatrix.Get(vc.ActivityVector)
			if !ok {
				return song.Track{}, soundhelixerr.Wrap(soundhelixerr.ConfigError, "orchestrate: drum voice %q references unknown activity vector %q", vc.Name, vc.ActivityVector)
			}
			activity = v
		}
		voices = append(voices, sequence.DrumVoice{Name: vc.Name, Pattern: pat, Pitch: vc.Pitch.Resolve(rng), Activity: activity})
	}

	track, index, err := sequence.GenerateDrum(sequence.DrumConfig{Voices: voices, Restart: parseRestart(sc.Restart), Context: ctx, MaxVelocity: ctx.MaxVelocity})
	if err != nil {
		return song.Track{}, err
	}

	if len(sc.Rules) > 0 {
		rules := make([]sequence.ConditionalRule, 0, len(sc.Rules))
		for _, rc := range sc.Rules {
			pat, err := pattern.ParseString(rc.Pattern.Resolve(rng), ctx.Structure.TicksPerBeat, "")
			if err != nil {
				return song.Track{}, err
			}
			mode := sequence.RuleAdd
			if rc.Mode == "replace" {
				mode = sequence.RuleReplace
			}
			rules = append(rules, sequence.ConditionalRule{
				Precondition:       parseCondition(rc.Precondition, ctx.Harmony),
				Postcondition:      parseCondition(rc.Postcondition, ctx.Harmony),
				Pattern:            pat,
				Probability:        rc.Probability,
				Mode:               mode,
				SkipWhenApplied:    rc.SkipWhenApplied,
				SkipWhenNotApplied: rc.SkipWhenNotApplied,
				TargetVoices:       rc.TargetVoices,
			})
		}
		sequence.ApplyConditionalRules(track.Sequences, index, ctx.ActivityMatrix, ctx.Harmony, rules, ctx.MaxVelocity, rng)
	}

	return track, nil
}

// parseCondition compiles a small precondition/postcondition grammar:
// "always", "never", or "active:<vectorName>" / "inactive:<vectorName>".
// No teacher precedent exists for this predicate language since the
// ConditionalRule mechanism itself has none; kept deliberately small since
// the design only requires it to gate on ActivityMatrix state.
func parseCondition(expr string, h *song.Harmony) sequence.ConditionFunc {
	switch {
	case expr == "" || expr == "always":
		return func(*song.ActivityMatrix, int) bool { return true }
	case expr == "never":
		return func(*song.ActivityMatrix, int) bool { return false }
	case len(expr) > 7 && expr[:7] == "active:":
		name := expr[7:]
		return func(m *song.ActivityMatrix, s int) bool {
			v, ok := m.Get(name)
			start, _ := h.SectionBounds(s)
			return ok && v.IsActive(start)
		}
	case len(expr) > 9 && expr[:9] == "inactive:":
		name := expr[9:]
		return func(m *song.ActivityMatrix, s int) bool {
			v, ok := m.Get(name)
			start, _ := h.SectionBounds(s)
			return ok && !v.IsActive(start)
		}
	default:
		return func(*song.ActivityMatrix, int) bool { return true }
	}
}

func parseRestart(s string) sequence.RestartMode {
	switch s {
	case "never":
		return sequence.RestartNever
	case "chord":
		return sequence.RestartChord
	default:
		return sequence.RestartChordSection
	}
}

func parsePatterns(values []config.StringValue, ticksPerBeat int, rng *rand.Rand) ([]song.Pattern, error) {
	out := make([]song.Pattern, 0, len(values))
	for _, v := range values {
		pat, err := pattern.ParseString(v.Resolve(rng), ticksPerBeat, "+#*")
		if err != nil {
			return nil, err
		}
		out = append(out, pat)
	}
	return out, nil
}
