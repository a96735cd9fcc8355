// Package harmony implements the SoundHelix chord-pattern grammar:
// comma-separated atoms, chord names, literal triples, random-table
// draws and back-references, parenthesized repetition/transposition
// groups, and the resolution policy that turns a parsed pattern into a
// song.Harmony.
//
// Grounded on the prior comma-tokenizing, inline-duration parsing style
// in parser/parser.go (GetChords/parseChordWithDuration), generalized from
// a flat "ChordSymbol*Bars" list into the full grammar and into a
// recursive-descent walk in the spirit of strudel/generator.go's pattern
// traversal.
package harmony

import (
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/soundhelix/soundhelix-go/song"
	"github.com/soundhelix/soundhelix-go/soundhelixerr"
)

// ChordSpecKind distinguishes the forms a random-table entry can take.
type ChordSpecKind int

const (
	SpecChordName ChordSpecKind = iota
	SpecLiteral
)

// ChordSpec is one entry of a random chord table.
type ChordSpec struct {
	Kind ChordSpecKind
	Text string
}

// Options configures harmony-engine resolution.
type Options struct {
	RandomTables          map[int][]ChordSpec
	CrossoverPitch         int // ignored when UseDefaultCrossover is set (song.DefaultCrossoverPitch is used instead)
	UseDefaultCrossover    bool
	MinimizeChordDistance  bool
	TicksPerBeat           int
	Rand                   *rand.Rand
}

const maxTableRetries = 1000
const maxPatternRestarts = 1000

// Generate parses patternText and resolves it into a song.Harmony
// according to the design.
func Generate(patternText string, opts Options) (*song.Harmony, error) {
	crossover := opts.CrossoverPitch
	if opts.UseDefaultCrossover {
		crossover = song.DefaultCrossoverPitch
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	atoms, err := parseAtoms(patternText, 0)
	if err != nil {
		return nil, soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "harmony: parsing pattern %q", patternText)
	}
	if len(atoms) == 0 {
		return nil, soundhelixerr.Wrap(soundhelixerr.ConfigError, "harmony: empty pattern")
	}

	var resolved []song.Chord
	var firstChord song.Chord
	haveFirst := false

	for restart := 0; restart < maxPatternRestarts; restart++ {
		resolved = resolved[:0]
		haveFirst = false
		ok := true
		for i, atom := range atoms {
			isLast := i == len(atoms)-1
			chord, err := resolveAtom(atom, resolved, opts.RandomTables, crossover, isLast, haveFirst, func() song.Chord { return firstChord }, rng)
			if err != nil {
				if err == errRetryExhausted {
					ok = false
					break
				}
				return nil, err
			}
			if opts.MinimizeChordDistance && haveFirst {
				chord = chord.FindClosestTo(firstChord)
			}
			if !haveFirst {
				firstChord = chord
				haveFirst = true
			}
			resolved = append(resolved, chord)
		}
		if ok {
			break
		}
		if restart == maxPatternRestarts-1 {
			return nil, soundhelixerr.Wrap(soundhelixerr.ConfigError,
				"harmony: could not resolve pattern %q within %d restarts", patternText, maxPatternRestarts)
		}
	}

	return assemble(atoms, resolved, opts.TicksPerBeat)
}

var errRetryExhausted = fmt.Errorf("harmony: random table retries exhausted")

func resolveAtom(atom rawAtom, history []song.Chord, tables map[int][]ChordSpec, crossover int,
	isLast bool, haveFirst bool, first func() song.Chord, rng *rand.Rand) (song.Chord, error) {

	switch atom.kind {
	case atomChordName:
		chord, err := song.ParseChordName(atom.text, crossover)
		if err != nil {
			return song.Chord{}, soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "harmony: chord name")
		}
		return chord.Transpose(atom.transposeDelta), nil

	case atomLiteral:
		chord, err := song.ParseLiteralTriple(atom.text)
		if err != nil {
			return song.Chord{}, soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "harmony: literal chord")
		}
		return chord.Transpose(atom.transposeDelta), nil

	case atomBackRef:
		if atom.backRef < 0 || atom.backRef >= len(history) {
			return song.Chord{}, soundhelixerr.Wrap(soundhelixerr.ConfigError,
				"harmony: back-reference $%d out of range (have %d resolved chords)", atom.backRef, len(history))
		}
		return history[atom.backRef].Transpose(atom.transposeDelta), nil

	case atomRandomTable, atomRandomTableExcl:
		table, ok := tables[atom.tableIndex]
		if !ok || len(table) == 0 {
			return song.Chord{}, soundhelixerr.Wrap(soundhelixerr.ConfigError,
				"harmony: unknown or empty random chord table %d", atom.tableIndex)
		}
		var exclChord *song.Chord
		if atom.kind == atomRandomTableExcl {
			if atom.exclRef < 0 || atom.exclRef >= len(history) {
				return song.Chord{}, soundhelixerr.Wrap(soundhelixerr.ConfigError,
					"harmony: table exclusion reference !%d out of range", atom.exclRef)
			}
			exclChord = &history[atom.exclRef]
		}
		var prevChord *song.Chord
		if len(history) > 0 {
			prevChord = &history[len(history)-1]
		}
		for attempt := 0; attempt < maxTableRetries; attempt++ {
			spec := table[rng.Intn(len(table))]
			var chord song.Chord
			var err error
			if spec.Kind == SpecChordName {
				chord, err = song.ParseChordName(spec.Text, crossover)
			} else {
				chord, err = song.ParseLiteralTriple(spec.Text)
			}
			if err != nil {
				return song.Chord{}, soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "harmony: random table entry")
			}
			chord = chord.Transpose(atom.transposeDelta)
			if prevChord != nil && chord.EqualNormalized(*prevChord) {
				continue
			}
			if isLast && haveFirst && chord.EqualNormalized(first()) {
				continue
			}
			if exclChord != nil && chord.EqualNormalized(*exclChord) {
				continue
			}
			return chord, nil
		}
		return song.Chord{}, errRetryExhausted
	}
	return song.Chord{}, soundhelixerr.Wrap(soundhelixerr.ConfigError, "harmony: unknown atom kind")
}

// assemble replicates each resolved chord across its tick length, tracks
// running section-tick counters reset on each '+', and merges adjacent
// equal-normalized chord runs (the design Section assembly).
func assemble(atoms []rawAtom, resolved []song.Chord, ticksPerBeat int) (*song.Harmony, error) {
	if ticksPerBeat <= 0 {
		return nil, soundhelixerr.Wrap(soundhelixerr.ConfigError, "harmony: ticksPerBeat must be positive")
	}

	var runs []song.ChordRun
	var sections []song.SectionRun
	tick := 0
	sectionStartTick := 0
	sectionIdx := 0

	for i, atom := range atoms {
		ticks := int(math.Round(atom.beats * float64(ticksPerBeat)))
		if ticks < 1 {
			ticks = 1
		}
		if i > 0 && atom.newSection {
			sections = append(sections, song.SectionRun{StartTick: sectionStartTick, SectionTicks: tick - sectionStartTick})
			sectionStartTick = tick
			sectionIdx++
		}
		runs = append(runs, song.ChordRun{Chord: resolved[i], StartTick: tick, ChordTicks: ticks, Section: sectionIdx})
		tick += ticks
	}
	sections = append(sections, song.SectionRun{StartTick: sectionStartTick, SectionTicks: tick - sectionStartTick})

	merged := mergeRuns(runs)
	h := song.NewHarmony(tick, merged, sections)
	if err := h.CheckSanity(); err != nil {
		return nil, soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "harmony: resolved pattern failed sanity check")
	}
	return h, nil
}

// mergeRuns merges consecutive chord runs that are equal-normalized into a
// single run, keeping chord-section boundaries (tracked separately in
// song.Harmony) intact.
func mergeRuns(runs []song.ChordRun) []song.ChordRun {
	if len(runs) == 0 {
		return runs
	}
	out := []song.ChordRun{runs[0]}
	for _, r := range runs[1:] {
		last := &out[len(out)-1]
		if last.Chord.EqualNormalized(r.Chord) {
			last.ChordTicks += r.ChordTicks
			continue
		}
		out = append(out, r)
	}
	return out
}

// --- grammar parsing ---

type atomKind int

const (
	atomChordName atomKind = iota
	atomLiteral
	atomRandomTable
	atomRandomTableExcl
	atomBackRef
)

type rawAtom struct {
	kind           atomKind
	text           string
	tableIndex     int
	exclRef        int
	backRef        int
	beats          float64
	newSection     bool
	transposeDelta int
}

var modifierRe = regexp.MustCompile(`[*+-]\d+`)

// parseAtoms parses a comma-separated, paren-group-aware chord pattern
// string into a flat list of rawAtom, applying repeat/transpose group
// modifiers as it goes.
func parseAtoms(s string, transposeDelta int) ([]rawAtom, error) {
	tokens, err := splitTopLevel(s)
	if err != nil {
		return nil, err
	}
	var atoms []rawAtom
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, "(") {
			depth := 0
			closeIdx := -1
			for i, c := range tok {
				switch c {
				case '(':
					depth++
				case ')':
					depth--
					if depth == 0 {
						closeIdx = i
						goto found
					}
				}
			}
		found:
			if closeIdx == -1 {
				return nil, fmt.Errorf("harmony: unbalanced parentheses in %q", tok)
			}
			inner := tok[1:closeIdx]
			suffix := tok[closeIdx+1:]
			repeat, groupTranspose, err := parseModifiers(suffix)
			if err != nil {
				return nil, err
			}
			innerAtoms, err := parseAtoms(inner, transposeDelta+groupTranspose)
			if err != nil {
				return nil, err
			}
			for i := 0; i < repeat; i++ {
				atoms = append(atoms, innerAtoms...)
			}
			continue
		}
		atom, err := parseAtomText(tok)
		if err != nil {
			return nil, err
		}
		atom.transposeDelta += transposeDelta
		atoms = append(atoms, atom)
	}
	return atoms, nil
}

// parseModifiers parses the "*n", "+d", "-d" suffixes following a
// parenthesized group, in any combination.
func parseModifiers(suffix string) (repeat int, transpose int, err error) {
	repeat = 1
	for _, m := range modifierRe.FindAllString(suffix, -1) {
		switch m[0] {
		case '*':
			n, err := strconv.Atoi(m[1:])
			if err != nil || n < 1 {
				return 0, 0, fmt.Errorf("harmony: bad repeat modifier %q", m)
			}
			repeat = n
		case '+':
			n, err := strconv.Atoi(m[1:])
			if err != nil {
				return 0, 0, fmt.Errorf("harmony: bad transpose modifier %q", m)
			}
			transpose += n
		case '-':
			n, err := strconv.Atoi(m[1:])
			if err != nil {
				return 0, 0, fmt.Errorf("harmony: bad transpose modifier %q", m)
			}
			transpose -= n
		}
	}
	return repeat, transpose, nil
}

// splitTopLevel splits s on commas that are not nested inside parentheses.
func splitTopLevel(s string) ([]string, error) {
	var out []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("harmony: unbalanced parentheses in %q", s)
			}
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("harmony: unbalanced parentheses in %q", s)
	}
	out = append(out, s[start:])
	return out, nil
}

var chordNameRe = regexp.MustCompile(`^[A-Ga-g]`)

// parseAtomText parses a single "chordspec/len" atom, optionally prefixed
// with '+' to start a new chord section.
func parseAtomText(tok string) (rawAtom, error) {
	var atom rawAtom
	if strings.HasPrefix(tok, "+") {
		atom.newSection = true
		tok = tok[1:]
	}
	slash := strings.LastIndex(tok, "/")
	if slash == -1 {
		return atom, fmt.Errorf("harmony: atom %q missing /len", tok)
	}
	spec := tok[:slash]
	lenStr := tok[slash+1:]
	beats, err := strconv.ParseFloat(lenStr, 64)
	if err != nil || beats <= 0 {
		return atom, fmt.Errorf("harmony: atom %q has invalid length %q", tok, lenStr)
	}
	atom.beats = beats

	switch {
	case strings.HasPrefix(spec, "$"):
		n, err := strconv.Atoi(spec[1:])
		if err != nil {
			return atom, fmt.Errorf("harmony: bad back-reference %q", spec)
		}
		atom.kind = atomBackRef
		atom.backRef = n
	case strings.Contains(spec, "!"):
		parts := strings.SplitN(spec, "!", 2)
		idx, err1 := strconv.Atoi(parts[0])
		ref, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return atom, fmt.Errorf("harmony: bad random-table exclusion %q", spec)
		}
		atom.kind = atomRandomTableExcl
		atom.tableIndex = idx
		atom.exclRef = ref
	case strings.Contains(spec, ":"):
		atom.kind = atomLiteral
		atom.text = spec
	case chordNameRe.MatchString(spec):
		atom.kind = atomChordName
		atom.text = spec
	default:
		idx, err := strconv.Atoi(spec)
		if err != nil {
			return atom, fmt.Errorf("harmony: unrecognized chord spec %q", spec)
		}
		atom.kind = atomRandomTable
		atom.tableIndex = idx
	}
	return atom, nil
}
