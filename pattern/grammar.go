// Package pattern implements the common pattern grammar shared by note
// sequence generators: literal pattern strings, the Euclidean
// rhythm function, and the String/Random/RandomFragment/Crescendo pattern
// engine variants.
//
// Grounded on the prior ad hoc pattern string ("D.DU.UDU",
// midi/rhythm.go's generateCustomPattern) and on midi/drums.go's Euclidean
// implementation, generalized into the shared grammar used by every
// sequence engine in package sequence.
package pattern

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/soundhelix/soundhelix-go/song"
	"github.com/soundhelix/soundhelix-go/soundhelixerr"
)

// ParseString parses a literal pattern string against the shared grammar:
// comma-separated `offset[:velocity][~][/ticks]` notes, `-[/ticks]`
// pauses, wildcard characters (from allowedWildcards) in place of an
// offset, parenthesized `(...)* n` / `(...)+d` / `(...)-d` groups, Euclidean
// `E(p,s,on,off)` calls, and a trailing `@tpb`.
func ParseString(s string, defaultTicksPerBeat int, allowedWildcards string) (song.Pattern, error) {
	text, tpb := splitTicksPerBeatSuffix(s, defaultTicksPerBeat)
	entries, err := parseEntries(text, 0, tpb, allowedWildcards)
	if err != nil {
		return song.Pattern{}, soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "pattern: parsing %q", s)
	}
	return song.Pattern{Entries: entries, TicksPerBeat: tpb}, nil
}

func splitTicksPerBeatSuffix(s string, defaultTPB int) (string, int) {
	if idx := strings.LastIndex(s, "@"); idx != -1 {
		if n, err := strconv.Atoi(s[idx+1:]); err == nil {
			return s[:idx], n
		}
	}
	return s, defaultTPB
}

func parseEntries(s string, transposeDelta int, ticksPerBeat int, wildcards string) ([]song.PatternEntry, error) {
	tokens, err := splitTopLevel(s)
	if err != nil {
		return nil, err
	}
	var out []song.PatternEntry
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, "E(") {
			entries, err := parseEuclideanCall(tok, ticksPerBeat)
			if err != nil {
				return nil, err
			}
			out = append(out, transposeEntries(entries, transposeDelta)...)
			continue
		}
		if strings.HasPrefix(tok, "(") {
			closeIdx, err := matchParen(tok)
			if err != nil {
				return nil, err
			}
			inner := tok[1:closeIdx]
			suffix := tok[closeIdx+1:]
			repeat, groupTranspose, err := parseModifiers(suffix)
			if err != nil {
				return nil, err
			}
			innerEntries, err := parseEntries(inner, transposeDelta+groupTranspose, ticksPerBeat, wildcards)
			if err != nil {
				return nil, err
			}
			for i := 0; i < repeat; i++ {
				out = append(out, innerEntries...)
			}
			continue
		}
		entry, err := parseEntryText(tok, ticksPerBeat, wildcards)
		if err != nil {
			return nil, err
		}
		if entry.Wildcard == 0 && !entry.IsPause {
			entry.Pitch += transposeDelta
		}
		out = append(out, entry)
	}
	return out, nil
}

func transposeEntries(entries []song.PatternEntry, delta int) []song.PatternEntry {
	if delta == 0 {
		return entries
	}
	out := make([]song.PatternEntry, len(entries))
	for i, e := range entries {
		if !e.IsPause && e.Wildcard == 0 {
			e.Pitch += delta
		}
		out[i] = e
	}
	return out
}

// parseEuclideanCall parses `E(p,s,on,off)` where `on`/`off` are each
// either a note offset or `-` for a pause, expanding to s entries of one
// ticksPerBeat-unit length each.
func parseEuclideanCall(tok string, ticksPerBeat int) ([]song.PatternEntry, error) {
	if !strings.HasSuffix(tok, ")") {
		return nil, fmt.Errorf("pattern: malformed Euclidean call %q", tok)
	}
	args := strings.Split(tok[2:len(tok)-1], ",")
	if len(args) != 4 {
		return nil, fmt.Errorf("pattern: E(...) requires exactly 4 arguments, got %q", tok)
	}
	p, err1 := strconv.Atoi(strings.TrimSpace(args[0]))
	s, err2 := strconv.Atoi(strings.TrimSpace(args[1]))
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("pattern: E(...) pulses/steps must be integers: %q", tok)
	}
	on := strings.TrimSpace(args[2])
	off := strings.TrimSpace(args[3])
	rhythm := Euclidean(p, s)
	entries := make([]song.PatternEntry, len(rhythm))
	for i, hit := range rhythm {
		spec := off
		if hit {
			spec = on
		}
		entry, err := parseEntryText(spec+"/"+strconv.Itoa(ticksPerBeat), ticksPerBeat, "")
		if err != nil {
			return nil, err
		}
		entries[i] = entry
	}
	return entries, nil
}

func parseEntryText(s string, ticksPerBeat int, wildcards string) (song.PatternEntry, error) {
	ticks := ticksPerBeat
	if idx := strings.LastIndex(s, "/"); idx != -1 {
		if n, err := strconv.Atoi(s[idx+1:]); err == nil {
			ticks = n
			s = s[:idx]
		}
	}
	legato := false
	if strings.HasSuffix(s, "~") {
		legato = true
		s = s[:len(s)-1]
	}
	if s == "-" {
		return song.PatternEntry{IsPause: true, Ticks: ticks}, nil
	}
	if len(s) == 1 && wildcards != "" && strings.ContainsRune(wildcards, rune(s[0])) {
		return song.PatternEntry{Wildcard: s[0], Ticks: ticks, Legato: legato}, nil
	}
	parts := strings.SplitN(s, ":", 2)
	offset, err := strconv.Atoi(parts[0])
	if err != nil {
		return song.PatternEntry{}, fmt.Errorf("pattern: bad note offset %q", s)
	}
	velocity := 1
	if len(parts) == 2 {
		velocity, err = strconv.Atoi(parts[1])
		if err != nil {
			return song.PatternEntry{}, fmt.Errorf("pattern: bad velocity in %q", s)
		}
	}
	return song.PatternEntry{Pitch: offset, Velocity: velocity, Ticks: ticks, Legato: legato}, nil
}

var modifierTokens = []byte{'*', '+', '-'}

func parseModifiers(suffix string) (repeat int, transpose int, err error) {
	repeat = 1
	i := 0
	for i < len(suffix) {
		op := suffix[i]
		if !containsByte(modifierTokens, op) {
			return 0, 0, fmt.Errorf("pattern: unexpected modifier character %q", suffix)
		}
		j := i + 1
		for j < len(suffix) && (suffix[j] >= '0' && suffix[j] <= '9') {
			j++
		}
		if j == i+1 {
			return 0, 0, fmt.Errorf("pattern: modifier %q missing digits", suffix[i:])
		}
		n, err := strconv.Atoi(suffix[i+1 : j])
		if err != nil {
			return 0, 0, err
		}
		switch op {
		case '*':
			repeat = n
		case '+':
			transpose += n
		case '-':
			transpose -= n
		}
		i = j
	}
	return repeat, transpose, nil
}

func containsByte(set []byte, b byte) bool {
	for _, x := range set {
		if x == b {
			return true
		}
	}
	return false
}

func matchParen(tok string) (int, error) {
	depth := 0
	for i, c := range tok {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("pattern: unbalanced parentheses in %q", tok)
}

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
				return nil, fmt.Errorf("pattern: unbalanced parentheses in %q", s)
			}
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("pattern: unbalanced parentheses in %q", s)
	}
	out = append(out, s[start:])
	return out, nil
}

// WeightedOffset is one weighted choice for the Random pattern engine.
type WeightedOffset struct {
	Value  int
	Weight float64
}

// RandomConfig configures the Random pattern engine.
type RandomConfig struct {
	Length             int // number of entries to generate
	Offsets            []WeightedOffset
	Velocities         []WeightedOffset
	Lengths            []WeightedOffset // tick lengths
	TicksPerBeat       int
	UniquePatternParts bool // regenerate until entries within a group are distinct
	Rand               *rand.Rand
}

// GenerateRandom implements the Random pattern engine variant.
func GenerateRandom(cfg RandomConfig) (song.Pattern, error) {
	if len(cfg.Offsets) == 0 || len(cfg.Lengths) == 0 {
		return song.Pattern{}, soundhelixerr.Wrap(soundhelixerr.ConfigError, "pattern: random engine needs offsets and lengths")
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	const maxRegenerations = 1000
	for attempt := 0; attempt < maxRegenerations; attempt++ {
		entries := make([]song.PatternEntry, cfg.Length)
		for i := range entries {
			offset := weightedChoice(cfg.Offsets, rng)
			length := int(weightedChoice(cfg.Lengths, rng))
			velocity := 1
			if len(cfg.Velocities) > 0 {
				velocity = int(weightedChoice(cfg.Velocities, rng))
			}
			if length < 1 {
				length = 1
			}
			entries[i] = song.PatternEntry{Pitch: offset, Velocity: velocity, Ticks: length}
		}
		if !cfg.UniquePatternParts || allDistinct(entries) {
			return song.Pattern{Entries: entries, TicksPerBeat: cfg.TicksPerBeat}, nil
		}
	}
	return song.Pattern{}, soundhelixerr.Wrap(soundhelixerr.ConfigError,
		"pattern: could not generate unique random pattern parts within %d attempts", maxRegenerations)
}

func allDistinct(entries []song.PatternEntry) bool {
	seen := make(map[int]bool)
	for _, e := range entries {
		if seen[e.Pitch] {
			return false
		}
		seen[e.Pitch] = true
	}
	return true
}

func weightedChoice(choices []WeightedOffset, rng *rand.Rand) int {
	total := 0.0
	for _, c := range choices {
		total += c.Weight
	}
	if total <= 0 {
		return choices[0].Value
	}
	r := rng.Float64() * total
	for _, c := range choices {
		if r < c.Weight {
			return c.Value
		}
		r -= c.Weight
	}
	return choices[len(choices)-1].Value
}

// RandomFragmentConfig configures the RandomFragment pattern engine: it
// concatenates supplied fragments to reach a target length.
type RandomFragmentConfig struct {
	Fragments    []song.Pattern
	TargetTicks  int
	TicksPerBeat int
	Rand         *rand.Rand
}

// GenerateRandomFragment implements the RandomFragment engine variant: it
// concatenates fragments (in random order, with replacement) until the
// target length is reached exactly, regenerating up to 1000 times if a
// combination can't reach it exactly.
func GenerateRandomFragment(cfg RandomFragmentConfig) (song.Pattern, error) {
	if len(cfg.Fragments) == 0 {
		return song.Pattern{}, soundhelixerr.Wrap(soundhelixerr.ConfigError, "pattern: random-fragment engine needs fragments")
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	minFragLen := cfg.Fragments[0].Length()
	for _, f := range cfg.Fragments[1:] {
		if l := f.Length(); l < minFragLen {
			minFragLen = l
		}
	}
	if minFragLen <= 0 {
		return song.Pattern{}, soundhelixerr.Wrap(soundhelixerr.ConfigError, "pattern: random-fragment engine needs fragments with positive length")
	}

	const maxRegenerations = 1000
	for attempt := 0; attempt < maxRegenerations; attempt++ {
		var entries []song.PatternEntry
		total := 0
		for total < cfg.TargetTicks {
			remaining := cfg.TargetTicks - total
			if remaining < minFragLen {
				break // no fragment can fit; regenerate from scratch
			}
			frag := cfg.Fragments[rng.Intn(len(cfg.Fragments))]
			if frag.Length() > remaining {
				continue
			}
			entries = append(entries, frag.Entries...)
			total += frag.Length()
			if total == cfg.TargetTicks {
				return song.Pattern{Entries: entries, TicksPerBeat: cfg.TicksPerBeat}, nil
			}
		}
	}
	return song.Pattern{}, soundhelixerr.Wrap(soundhelixerr.ConfigError,
		"pattern: could not assemble random fragments to reach %d ticks within %d attempts",
		cfg.TargetTicks, maxRegenerations)
}

// CrescendoConfig configures the Crescendo pattern engine: repeat a base
// pattern N times, linearly scaling velocity between start and end values.
type CrescendoConfig struct {
	Base           song.Pattern
	Repeats        int
	StartVelocity  int
	EndVelocity    int
}

// GenerateCrescendo implements the Crescendo engine variant.
func GenerateCrescendo(cfg CrescendoConfig) song.Pattern {
	out := song.Pattern{TicksPerBeat: cfg.Base.TicksPerBeat}
	totalNotes := 0
	for _, e := range cfg.Base.Entries {
		if !e.IsPause {
			totalNotes++
		}
	}
	totalSteps := totalNotes * cfg.Repeats
	if totalSteps == 0 {
		totalSteps = 1
	}
	step := 0
	for r := 0; r < cfg.Repeats; r++ {
		for _, e := range cfg.Base.Entries {
			if !e.IsPause {
				frac := float64(step) / float64(maxInt(totalSteps-1, 1))
				e.Velocity = cfg.StartVelocity + int(frac*float64(cfg.EndVelocity-cfg.StartVelocity))
				step++
			}
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
