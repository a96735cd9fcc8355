package song

import "fmt"

// PatternEntry is one element of a Pattern: either a Note or a Pause.
type PatternEntry struct {
	IsPause  bool
	Pitch    int  // offset or absolute pitch, meaning owned by the consumer
	Wildcard byte // 0 if not a wildcard; otherwise '+', '*', '#', etc.
	Velocity int  // absolute velocity, consumer-scaled
	Ticks    int
	Legato   bool
}

// Pattern is an ordered sequence of PatternEntry values, carrying its own
// ticksPerBeat. Consumers scale pattern lengths to their own
// ticksPerBeat by an exact integer ratio; ScaleTo reports an error if the
// ratio does not divide evenly.
type Pattern struct {
	Entries      []PatternEntry
	TicksPerBeat int
}

// Length returns the pattern's total duration in its own ticks.
func (p Pattern) Length() int {
	total := 0
	for _, e := range p.Entries {
		total += e.Ticks
	}
	return total
}

// ScaleTo rescales the pattern to a consumer's ticksPerBeat. The ratio
// target/p.TicksPerBeat must be a positive integer; the design makes any
// other ratio a fatal configuration error.
func (p Pattern) ScaleTo(targetTicksPerBeat int) (Pattern, error) {
	if p.TicksPerBeat <= 0 {
		return Pattern{}, fmt.Errorf("song: pattern has non-positive ticksPerBeat %d", p.TicksPerBeat)
	}
	if targetTicksPerBeat == p.TicksPerBeat {
		return p, nil
	}
	if targetTicksPerBeat%p.TicksPerBeat != 0 {
		return Pattern{}, fmt.Errorf("song: pattern ticksPerBeat %d does not divide target %d",
			p.TicksPerBeat, targetTicksPerBeat)
	}
	ratio := targetTicksPerBeat / p.TicksPerBeat
	out := Pattern{Entries: make([]PatternEntry, len(p.Entries)), TicksPerBeat: targetTicksPerBeat}
	for i, e := range p.Entries {
		e.Ticks *= ratio
		out.Entries[i] = e
	}
	return out, nil
}

// Transpose shifts every note entry's pitch by delta semitones, preserving
// pause entries and lengths (the design: "(p)+d/(p)-d preserves len(p)").
func (p Pattern) Transpose(delta int) Pattern {
	out := Pattern{Entries: make([]PatternEntry, len(p.Entries)), TicksPerBeat: p.TicksPerBeat}
	for i, e := range p.Entries {
		if !e.IsPause && e.Wildcard == 0 {
			e.Pitch += delta
		}
		out.Entries[i] = e
	}
	return out
}

// Repeat concatenates the pattern with itself n times (the design:
// "(p)*n yields exactly n*len(p) ticks").
func (p Pattern) Repeat(n int) Pattern {
	out := Pattern{TicksPerBeat: p.TicksPerBeat}
	for i := 0; i < n; i++ {
		out.Entries = append(out.Entries, p.Entries...)
	}
	return out
}

// SequenceEntry is one element of a per-voice Sequence timeline.
type SequenceEntry struct {
	IsPause  bool
	Pitch    int
	Velocity int
	Ticks    int
	Legato   bool
}

// Sequence is the ordered, tick-complete timeline for one voice.
type Sequence struct {
	Entries []SequenceEntry
}

// Length returns the sequence's total duration in ticks.
func (s Sequence) Length() int {
	total := 0
	for _, e := range s.Entries {
		total += e.Ticks
	}
	return total
}

// EntryAt returns the index of the entry covering tick t and the tick
// offset within that entry, or (-1, 0) if t is out of range.
func (s Sequence) EntryAt(t int) (index int, offset int) {
	cursor := 0
	for i, e := range s.Entries {
		if t >= cursor && t < cursor+e.Ticks {
			return i, t - cursor
		}
		cursor += e.Ticks
	}
	return -1, 0
}

// IsLegatoAt reports whether the entry at tick t is legato into the next
// note: the next entry is a note and starts exactly where this entry ends
//.
func (s Sequence) IsLegatoAt(t int) bool {
	idx, offset := s.EntryAt(t)
	if idx < 0 {
		return false
	}
	e := s.Entries[idx]
	if offset != e.Ticks-1 {
		return false
	}
	if !e.Legato {
		return false
	}
	if idx+1 >= len(s.Entries) {
		return false
	}
	return !s.Entries[idx+1].IsPause
}
