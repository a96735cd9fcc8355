package song

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPattern_Length(t *testing.T) {
	p := Pattern{Entries: []PatternEntry{{Ticks: 2}, {IsPause: true, Ticks: 3}}}
	assert.Equal(t, 5, p.Length())
}

func TestPattern_ScaleTo_ExactMultiple(t *testing.T) {
	p := Pattern{Entries: []PatternEntry{{Pitch: 0, Ticks: 1}}, TicksPerBeat: 4}
	scaled, err := p.ScaleTo(8)
	require.NoError(t, err)
	assert.Equal(t, 2, scaled.Entries[0].Ticks)
	assert.Equal(t, 8, scaled.TicksPerBeat)
}

func TestPattern_ScaleTo_NonMultipleIsFatal(t *testing.T) {
	p := Pattern{Entries: []PatternEntry{{Pitch: 0, Ticks: 1}}, TicksPerBeat: 3}
	_, err := p.ScaleTo(8)
	assert.Error(t, err)
}

func TestPattern_ScaleTo_SameRateIsIdentity(t *testing.T) {
	p := Pattern{Entries: []PatternEntry{{Pitch: 0, Ticks: 1}}, TicksPerBeat: 4}
	scaled, err := p.ScaleTo(4)
	require.NoError(t, err)
	assert.Equal(t, p, scaled)
}

func TestPattern_Transpose_SkipsPausesAndWildcards(t *testing.T) {
	p := Pattern{Entries: []PatternEntry{
		{Pitch: 0, Ticks: 1},
		{IsPause: true, Ticks: 1},
		{Wildcard: '+', Ticks: 1},
	}}
	out := p.Transpose(12)
	assert.Equal(t, 12, out.Entries[0].Pitch)
	assert.True(t, out.Entries[1].IsPause)
	assert.Equal(t, 0, out.Entries[2].Pitch)
}

func TestPattern_Repeat_PreservesLength(t *testing.T) {
	p := Pattern{Entries: []PatternEntry{{Pitch: 0, Ticks: 2}, {Pitch: 1, Ticks: 3}}}
	out := p.Repeat(3)
	assert.Equal(t, 3*p.Length(), out.Length())
	assert.Len(t, out.Entries, 6)
}

func TestSequence_EntryAt(t *testing.T) {
	s := Sequence{Entries: []SequenceEntry{{Pitch: 1, Ticks: 2}, {Pitch: 2, Ticks: 3}}}
	idx, off := s.EntryAt(0)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, off)

	idx, off = s.EntryAt(3)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, off)

	idx, _ = s.EntryAt(100)
	assert.Equal(t, -1, idx)
}

func TestSequence_IsLegatoAt(t *testing.T) {
	s := Sequence{Entries: []SequenceEntry{
		{Pitch: 1, Ticks: 2, Legato: true},
		{Pitch: 2, Ticks: 2},
	}}
	assert.True(t, s.IsLegatoAt(1))
	assert.False(t, s.IsLegatoAt(0))

	nonLegato := Sequence{Entries: []SequenceEntry{
		{Pitch: 1, Ticks: 2},
		{Pitch: 2, Ticks: 2},
	}}
	assert.False(t, nonLegato.IsLegatoAt(1))

	intoPause := Sequence{Entries: []SequenceEntry{
		{Pitch: 1, Ticks: 2, Legato: true},
		{IsPause: true, Ticks: 2},
	}}
	assert.False(t, intoPause.IsLegatoAt(1))
}
