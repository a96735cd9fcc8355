// Package solver implements the Song Activity Solver: given a
// chord section count and a per-voice constraint configuration, it decides
// which voices are active in which sections, in EXACT (randomized
// backtracking) or GREEDY (scored-candidate) mode.
//
// There is no direct precedent for this component — nothing upstream has
// a constraint solver of any kind — so this package is new code, grounded
// only in the shape of the constraint-solving algorithm itself. Its
// random-draw-with-retry control flow mirrors harmony.Generate's retry/
// restart bookkeeping (harmony/engine.go), which is the nearest analogue
// elsewhere in this module.
package solver

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/soundhelix/soundhelix-go/song"
	"github.com/soundhelix/soundhelix-go/soundhelixerr"
)

// ConstraintMode selects the solving strategy.
type ConstraintMode int

const (
	EXACT ConstraintMode = iota
	GREEDY
)

// unconstrained marks a start/stop window field as not in effect.
const unconstrained = -1

// VectorConfig is one voice's ActivityVectorConfiguration.
type VectorConfig struct {
	Name string

	MinActivePercent float64
	MaxActivePercent float64
	AllowInactive    bool

	StartBeforeSection int
	StartAfterSection  int
	StopBeforeSection  int
	StopAfterSection   int

	MinSegmentCount  int
	MaxSegmentCount  int
	MinSegmentLength int
	MaxSegmentLength int
	MinPauseLength   int
	MaxPauseLength   int

	StartShift int
	StopShift  int
}

// ShapeConfig describes the wanted-activity-count curve.
type ShapeConfig struct {
	StartActivityCounts   []int
	StopActivityCounts    []int
	MinActivityCount      int
	MaxActivityCount      int // 0 => computed via the exponential cap
	MaxActivityChangeCount int
}

// Config bundles every solver input.
type Config struct {
	SectionTicks  []int // tick length of each chord section; len == Sections
	Vectors       []VectorConfig
	Shape         ShapeConfig
	MaxIterations int
	Mode          ConstraintMode
	Rand          *rand.Rand
}

func (c Config) sections() int { return len(c.SectionTicks) }

// voiceState tracks one voice's running solve state across sections.
type voiceState struct {
	activeCount      int
	segments         int
	curSegmentLen    int
	curPauseLen      int
	firstActive      int // section index, -1 if never active yet
	lastActive       int // section index, -1 if never active yet
	everActive       bool
	activeInStopWin  bool
}

type branch struct {
	bitset []bool
	states []voiceState
}

// Solve runs the configured solver mode and returns the resulting
// per-tick ActivityMatrix (one ActivityVector per configured voice,
// shifted and post-processed by design — callers apply
// ApplyOperation for the optional modification operators afterward).
func Solve(cfg Config) (*song.ActivityMatrix, error) {
	if len(cfg.Vectors) == 0 {
		return song.NewActivityMatrix(), nil
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	wanted := precomputeWantedCounts(cfg, rng)

	var history []branch
	var err error
	switch cfg.Mode {
	case GREEDY:
		history, err = solveGreedy(cfg, wanted, rng)
	default:
		history, err = solveExact(cfg, wanted, rng)
	}
	if err != nil {
		return nil, err
	}
	return buildMatrix(cfg, history), nil
}

// --- 4.3.1 wanted-count curve ---------------------------------------------

func computeMaxCap(nVoices int, shape ShapeConfig) int {
	if shape.MaxActivityCount > 0 {
		return shape.MaxActivityCount
	}
	const f = 0.4
	const lambda = 0.2
	return int(math.Round(float64(nVoices) * (f + (1-f)*math.Exp(-lambda*float64(nVoices-1)))))
}

// precomputeWantedCounts materializes the wanted-activity-count sequence
// for every section up front. The curve only depends on the sequence of
// prior *targets*, not on how a solve attempt plays out, so computing it
// once keeps retries/backtracking from perturbing the random stream used
// to pick it.
func precomputeWantedCounts(cfg Config, rng *rand.Rand) []int {
	S := cfg.sections()
	n := len(cfg.Vectors)
	maxCap := computeMaxCap(n, cfg.Shape)
	fadeInLen := minInt(S/2, len(cfg.Shape.StartActivityCounts))
	fadeOutLen := minInt(S/2, len(cfg.Shape.StopActivityCounts)+1)
	decreaseFrom := S - fadeOutLen

	out := make([]int, S)
	prev := -1
	for s := 0; s < S; s++ {
		var w int
		switch {
		case s <= fadeInLen-1 && s < len(cfg.Shape.StartActivityCounts):
			w = clampInt(cfg.Shape.StartActivityCounts[s], 0, maxCap)
		case s >= decreaseFrom+1:
			idx := s - decreaseFrom - 1
			if idx >= 0 && idx < len(cfg.Shape.StopActivityCounts) {
				w = clampInt(cfg.Shape.StopActivityCounts[idx], 0, maxCap)
			} else if prev >= 0 {
				w = prev
			}
		case s == decreaseFrom:
			firstStop := 0
			if len(cfg.Shape.StopActivityCounts) > 0 {
				firstStop = cfg.Shape.StopActivityCounts[0]
			}
			last := prev
			if last < 0 {
				last = maxCap
			}
			bridge := (last + firstStop) / 2
			for (bridge == last || bridge == firstStop) && bridge < maxCap {
				bridge++
			}
			w = bridge
		default:
			lo := minInt(maxCap, cfg.Shape.MinActivityCount)
			if lo > maxCap {
				lo = maxCap
			}
			for {
				span := maxCap - lo + 1
				if span < 1 {
					span = 1
				}
				cand := lo + rng.Intn(span)
				if prev >= 0 {
					if absInt(cand-prev) > cfg.Shape.MaxActivityChangeCount {
						continue
					}
					if cand == prev && rng.Float64() >= 0.1 {
						continue
					}
				}
				w = cand
				break
			}
		}
		out[s] = w
		prev = w
	}
	return out
}

// --- 4.3.2 EXACT mode -------------------------------------------------------

func solveExact(cfg Config, wanted []int, rng *rand.Rand) ([]branch, error) {
	n := len(cfg.Vectors)
	S := cfg.sections()
	tries := make([]int, S)
	history := make([]branch, 0, S)
	iterations := 0
	s := 0

	for s < S {
		iterations++
		if iterations > cfg.MaxIterations {
			return nil, soundhelixerr.Wrap(soundhelixerr.ConstraintUnsatisfiable,
				"solver: EXACT mode exceeded %d iterations at section %d", cfg.MaxIterations, s)
		}

		prevBitset, prevStates := prevBranch(history, n)
		diff := wanted[s] - countTrue(prevBitset)
		bitset := append([]bool(nil), prevBitset...)
		ok := true

		switch {
		case diff > 0:
			for i := 0; i < diff && ok; i++ {
				idx, found := pickRandomFalse(bitset, rng)
				if !found {
					ok = false
					break
				}
				if prevStates[idx].activeCount > 0 && prevStates[idx].curPauseLen < cfg.Vectors[idx].MinPauseLength {
					ok = false
					break
				}
				bitset[idx] = true
			}
		case diff < 0:
			for i := 0; i < -diff && ok; i++ {
				idx, found := pickRandomTrue(bitset, rng)
				if !found {
					ok = false
					break
				}
				if prevStates[idx].curSegmentLen < cfg.Vectors[idx].MinSegmentLength {
					ok = false
					break
				}
				bitset[idx] = false
			}
		default:
			if rng.Float64() < 0.5 && !allTrue(bitset) {
				setIdx, sFound := pickRandomFalse(bitset, rng)
				clearIdx, cFound := pickRandomTrue(bitset, rng)
				if sFound && cFound && setIdx != clearIdx {
					bitset[setIdx] = true
					bitset[clearIdx] = false
				}
			}
		}

		var states []voiceState
		if ok {
			states = deriveStates(prevBitset, prevStates, bitset, s)
			ok = checkHardConstraints(cfg, s, S, bitset, states)
		}

		if ok {
			history = append(history, branch{bitset: bitset, states: states})
			s++
			continue
		}

		tries[s]++
		limit := 2
		if s == 0 {
			limit = math.MaxInt32
		}
		if tries[s] < limit {
			continue
		}
		tries[s] = 0
		if s == 0 {
			return nil, soundhelixerr.Wrap(soundhelixerr.ConstraintUnsatisfiable,
				"solver: EXACT mode exhausted section 0")
		}
		s--
		history = history[:s]
	}
	return history, nil
}

// --- 4.3.3 GREEDY mode -------------------------------------------------------

func solveGreedy(cfg Config, wanted []int, rng *rand.Rand) ([]branch, error) {
	n := len(cfg.Vectors)
	S := cfg.sections()
	history := make([]branch, 0, S)

	for s := 0; s < S; s++ {
		prevBitset, prevStates := prevBranch(history, n)

		type candidate struct {
			bitset []bool
			states []voiceState
		}
		var best []candidate
		bestScore := math.Inf(1)
		seen := make(map[string]bool)

		for iter := 0; iter < cfg.MaxIterations; iter++ {
			bitset := randomBitsetToCount(prevBitset, wanted[s], rng)
			key := bitsetKey(bitset)
			if seen[key] {
				continue
			}
			seen[key] = true
			states := deriveStates(prevBitset, prevStates, bitset, s)
			score := scoreCandidate(cfg, s, S, bitset, states)
			switch {
			case score < bestScore:
				bestScore = score
				best = []candidate{{bitset, states}}
			case score == bestScore:
				best = append(best, candidate{bitset, states})
			}
		}
		if len(best) == 0 {
			return nil, soundhelixerr.Wrap(soundhelixerr.ConstraintUnsatisfiable,
				"solver: GREEDY mode produced no candidates at section %d", s)
		}
		chosen := best[rng.Intn(len(best))]
		history = append(history, branch{bitset: chosen.bitset, states: chosen.states})
	}
	return history, nil
}

// --- shared helpers ----------------------------------------------------------

func prevBranch(history []branch, n int) ([]bool, []voiceState) {
	if len(history) == 0 {
		bitset := make([]bool, n)
		states := make([]voiceState, n)
		for i := range states {
			states[i] = voiceState{firstActive: -1, lastActive: -1}
		}
		return bitset, states
	}
	last := history[len(history)-1]
	return last.bitset, last.states
}

func deriveStates(prevBitset []bool, prevStates []voiceState, bitset []bool, section int) []voiceState {
	states := make([]voiceState, len(bitset))
	for i := range bitset {
		st := prevStates[i]
		wasActive := prevBitset[i]
		nowActive := bitset[i]
		if nowActive {
			if !wasActive {
				st.segments++
				st.curSegmentLen = 0
				if st.firstActive < 0 {
					st.firstActive = section
				}
			}
			st.curSegmentLen++
			st.activeCount++
			st.curPauseLen = 0
			st.lastActive = section
			st.everActive = true
		} else {
			if wasActive {
				st.curPauseLen = 0
			}
			st.curPauseLen++
			st.curSegmentLen = 0
		}
		states[i] = st
	}
	return states
}

func countTrue(b []bool) int {
	n := 0
	for _, v := range b {
		if v {
			n++
		}
	}
	return n
}

func allTrue(b []bool) bool {
	for _, v := range b {
		if !v {
			return false
		}
	}
	return true
}

func pickRandomFalse(b []bool, rng *rand.Rand) (int, bool) {
	var candidates []int
	for i, v := range b {
		if !v {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rng.Intn(len(candidates))], true
}

func pickRandomTrue(b []bool, rng *rand.Rand) (int, bool) {
	var candidates []int
	for i, v := range b {
		if v {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rng.Intn(len(candidates))], true
}

func randomBitsetToCount(prev []bool, wanted int, rng *rand.Rand) []bool {
	n := len(prev)
	wanted = clampInt(wanted, 0, n)
	bitset := append([]bool(nil), prev...)
	for countTrue(bitset) < wanted {
		idx, found := pickRandomFalse(bitset, rng)
		if !found {
			break
		}
		bitset[idx] = true
	}
	for countTrue(bitset) > wanted {
		idx, found := pickRandomTrue(bitset, rng)
		if !found {
			break
		}
		bitset[idx] = false
	}
	return bitset
}

func bitsetKey(b []bool) string {
	buf := make([]byte, len(b))
	for i, v := range b {
		if v {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// --- constraint checking -----------------------------------------------------

// violationCounts tallies how many voices breach each constraint kind at
// the current section, plus an activity-percentage violation magnitude
// (in percentage points) used only by GREEDY scoring.
type violationCounts struct {
	segmentPause       int
	segmentCount       int
	startStop          int
	activityInfeasible int
	activityPct        float64
}

func evaluate(cfg Config, s, S int, bitset []bool, states []voiceState) violationCounts {
	var v violationCounts
	remaining := S - s - 1

	for i, vc := range cfg.Vectors {
		st := states[i]
		active := bitset[i]

		if active && st.curSegmentLen > vc.MaxSegmentLength && vc.MaxSegmentLength > 0 {
			v.segmentPause++
		}
		if !active && st.everActive && vc.MaxPauseLength > 0 && st.curPauseLen > vc.MaxPauseLength {
			v.segmentPause++
		}

		if vc.MaxSegmentCount > 0 && st.segments > vc.MaxSegmentCount {
			v.segmentCount++
		}
		if vc.MinSegmentCount > 0 {
			feasible := st.segments + (remaining+1)/2
			if feasible < vc.MinSegmentCount {
				v.segmentCount++
			}
		}

		// Start window: only evaluated the section a voice first activates.
		if active && st.firstActive == s {
			if vc.StartAfterSection != unconstrained && s < vc.StartAfterSection+1 {
				v.startStop++
			}
			if vc.StartBeforeSection != unconstrained && s > vc.StartBeforeSection {
				v.startStop++
			}
		}
		// Stop window: evaluated the section a voice becomes inactive after
		// having been active (counted from the end of the song).
		wasActive := false
		if s > 0 {
			wasActive = st.lastActive == s-1
		}
		if !active && wasActive {
			if vc.StopBeforeSection != unconstrained && s > S-2-vc.StopBeforeSection {
				v.startStop++
			}
			if vc.StopAfterSection != unconstrained && s < S-1-vc.StopAfterSection {
				v.startStop++
			}
		}

		// Hard feasibility check (spec §4.3.2 step 6): can activeCount still
		// land in [minActive%, maxActive%] of the full S-section song given
		// what's already active and how many sections remain? A voice with
		// AllowInactive set may still end up wholly inactive (activeCount==0
		// at song end), which satisfies the constraint regardless of
		// minActive%, so that escape hatch suppresses only the min-side
		// failure while it's still possible (activeCount is still 0).
		finalMax := st.activeCount + remaining
		finalMin := st.activeCount
		requiredMin := int(math.Ceil(vc.MinActivePercent / 100 * float64(S)))
		requiredMax := int(math.Floor(vc.MaxActivePercent / 100 * float64(S)))
		skipMinFeasibility := vc.AllowInactive && st.activeCount == 0
		if !skipMinFeasibility && finalMax < requiredMin {
			v.activityInfeasible++
		}
		if finalMin > requiredMax {
			v.activityInfeasible++
		}

		if s >= 5 {
			minAllowed := vc.MinActivePercent
			maxAllowed := vc.MaxActivePercent
			if vc.AllowInactive && st.activeCount == 0 {
				continue
			}
			pct := 100 * float64(st.activeCount) / float64(s+1)
			switch {
			case pct < minAllowed:
				v.activityPct += minAllowed - pct
			case pct > maxAllowed:
				v.activityPct += pct - maxAllowed
			}
		}
	}
	return v
}

func checkHardConstraints(cfg Config, s, S int, bitset []bool, states []voiceState) bool {
	v := evaluate(cfg, s, S, bitset, states)
	return v.segmentPause == 0 && v.segmentCount == 0 && v.startStop == 0 && v.activityInfeasible == 0
}

func scoreCandidate(cfg Config, s, S int, bitset []bool, states []voiceState) float64 {
	v := evaluate(cfg, s, S, bitset, states)
	score := 250*float64(v.segmentPause) + 400*float64(v.segmentCount) + 100*float64(v.startStop)
	if s >= 5 {
		score += 15 * v.activityPct
	}
	return score
}

// --- 4.3.4 post-processing ---------------------------------------------------

// buildMatrix inflates each section's bitset into a per-tick
// ActivityVector and applies each voice's startShift/stopShift.
func buildMatrix(cfg Config, history []branch) *song.ActivityMatrix {
	matrix := song.NewActivityMatrix()
	totalTicks := 0
	for _, t := range cfg.SectionTicks {
		totalTicks += t
	}

	for i, vc := range cfg.Vectors {
		vec := song.NewActivityVector(totalTicks)
		tick := 0
		for s, sectionLen := range cfg.SectionTicks {
			if s < len(history) && history[s].bitset[i] {
				vec.SetActivityState(tick, tick+sectionLen, true)
			}
			tick += sectionLen
		}
		vec.ShiftIntervalBoundaries(vc.StartShift, vc.StopShift)
		_ = matrix.Add(vc.Name, vec)
	}
	return matrix
}

// OpKind is an activity-vector modification operator.
type OpKind int

const (
	OpSet OpKind = iota
	OpClear
	OpFlip
	OpNot
	OpAnd
	OpOr
	OpXor
	OpAndNot
)

// Operation is one post-processing step applied to the solved matrix.
type Operation struct {
	Kind   OpKind
	Target string
	Source string // second operand, for binary ops
	From   int    // chord-section index, inclusive; may be negative (from end)
	To     int    // chord-section index, inclusive
}

// ApplyOperation executes one post-processing operator over the section
// range [From,To] (resolved against h), by design.
func ApplyOperation(matrix *song.ActivityMatrix, h *song.Harmony, op Operation) error {
	target, ok := matrix.Get(op.Target)
	if !ok {
		return fmt.Errorf("solver: unknown target voice %q", op.Target)
	}
	from := resolveSectionIndex(h.SectionCount(), op.From)
	to := resolveSectionIndex(h.SectionCount(), op.To)
	fromTick, _ := h.SectionBounds(from)
	_, toTick := h.SectionBounds(to)

	switch op.Kind {
	case OpSet:
		target.SetActivityState(fromTick, toTick, true)
	case OpClear:
		target.SetActivityState(fromTick, toTick, false)
	case OpFlip:
		target.FlipActivityState(fromTick, toTick)
	case OpNot:
		target.ApplyLogicalNot(fromTick, toTick)
	case OpAnd, OpOr, OpXor, OpAndNot:
		source, ok := matrix.Get(op.Source)
		if !ok {
			return fmt.Errorf("solver: unknown source voice %q", op.Source)
		}
		switch op.Kind {
		case OpAnd:
			target.ApplyLogicalAnd(source, fromTick, toTick)
		case OpOr:
			target.ApplyLogicalOr(source, fromTick, toTick)
		case OpXor:
			target.ApplyLogicalXor(source, fromTick, toTick)
		case OpAndNot:
			target.ApplyLogicalAndNot(source, fromTick, toTick)
		}
	}
	return nil
}

func resolveSectionIndex(sectionCount, idx int) int {
	if idx < 0 {
		idx = sectionCount + idx
	}
	return clampInt(idx, 0, sectionCount-1)
}

// ResolvePercentSection maps a percent-of-total-ticks value (e.g. 50 for
// "50%") to the chord section containing that tick, for callers parsing
// `fromSection`/`toSection` percent literals.
func ResolvePercentSection(h *song.Harmony, percent float64) int {
	tick := int(percent / 100 * float64(h.TotalTicks()))
	if tick >= h.TotalTicks() {
		tick = h.TotalTicks() - 1
	}
	return h.SectionIndexAt(tick)
}
