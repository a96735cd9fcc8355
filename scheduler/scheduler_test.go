package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundhelix/soundhelix-go/song"
)

func entries(ticks ...int) []song.SequenceEntry {
	out := make([]song.SequenceEntry, len(ticks))
	for i, n := range ticks {
		out[i] = song.SequenceEntry{Pitch: 60 + i, Ticks: n}
	}
	return out
}

func TestVoiceState_AdvanceAndBoundaries(t *testing.T) {
	v := newVoiceState("lead", DeviceChannel{}, song.Melodic, song.Sequence{Entries: entries(4, 4, 4)})

	b, ok := v.nextBoundary()
	require.True(t, ok)
	assert.Equal(t, 4, b)

	v.advance()
	b, ok = v.nextBoundary()
	require.True(t, ok)
	assert.Equal(t, 8, b)

	v.advance()
	v.advance()
	_, ok = v.currentEntry()
	assert.False(t, ok, "advancing past the last entry exhausts the voice")
	_, ok = v.nextBoundary()
	assert.False(t, ok)
}

func TestVoiceState_SeekTo_LandsOnContainingEntry(t *testing.T) {
	v := newVoiceState("lead", DeviceChannel{}, song.Melodic, song.Sequence{Entries: entries(4, 4, 4)})
	v.seekTo(10)
	assert.Equal(t, 2, v.entryIdx)
	assert.Equal(t, 8, v.tickCursor)
}

func TestVoiceState_SeekTo_ZeroResetsToStart(t *testing.T) {
	v := newVoiceState("lead", DeviceChannel{}, song.Melodic, song.Sequence{Entries: entries(4, 4, 4)})
	v.advance()
	v.advance()
	v.seekTo(0)
	assert.Equal(t, 0, v.entryIdx)
	assert.Equal(t, 0, v.tickCursor)
}

func TestVoiceState_SeekTo_PastEndExhausts(t *testing.T) {
	v := newVoiceState("lead", DeviceChannel{}, song.Melodic, song.Sequence{Entries: entries(4, 4)})
	v.seekTo(100)
	_, ok := v.currentEntry()
	assert.False(t, ok)
}

func TestMinNextBoundary_PicksEarliestAcrossVoices(t *testing.T) {
	a := newVoiceState("a", DeviceChannel{}, song.Melodic, song.Sequence{Entries: entries(8)})
	b := newVoiceState("b", DeviceChannel{}, song.Melodic, song.Sequence{Entries: entries(3)})

	boundary, ok := minNextBoundary([]*voiceState{a, b})
	require.True(t, ok)
	assert.Equal(t, 3, boundary)
}

func TestMinNextBoundary_NoVoicesReportsNotFound(t *testing.T) {
	_, ok := minNextBoundary(nil)
	assert.False(t, ok)
}

func TestMinNextBoundary_ExhaustedVoiceIsSkipped(t *testing.T) {
	done := newVoiceState("done", DeviceChannel{}, song.Melodic, song.Sequence{Entries: entries(2)})
	done.advance()
	live := newVoiceState("live", DeviceChannel{}, song.Melodic, song.Sequence{Entries: entries(9)})

	boundary, ok := minNextBoundary([]*voiceState{done, live})
	require.True(t, ok)
	assert.Equal(t, 9, boundary)
}

func TestClampMIDI(t *testing.T) {
	assert.Equal(t, uint8(0), clampMIDI(-1))
	assert.Equal(t, uint8(0), clampMIDI(0))
	assert.Equal(t, uint8(127), clampMIDI(127))
	assert.Equal(t, uint8(127), clampMIDI(200))
	assert.Equal(t, uint8(60), clampMIDI(60))
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 0, clampInt(-5, 0, 10))
	assert.Equal(t, 10, clampInt(15, 0, 10))
	assert.Equal(t, 5, clampInt(5, 0, 10))
}

func TestScheduler_ClockTickInterval(t *testing.T) {
	s := &Scheduler{TicksPerBeat: 24}
	assert.Equal(t, 1, s.clockTickInterval())

	s = &Scheduler{TicksPerBeat: 48}
	assert.Equal(t, 2, s.clockTickInterval())

	s = &Scheduler{TicksPerBeat: 0}
	assert.Equal(t, 1, s.clockTickInterval())

	s = &Scheduler{TicksPerBeat: 12}
	assert.Equal(t, 1, s.clockTickInterval(), "sub-24 PPQN still clamps to at least 1")
}

func fakeSkipHarmony() *song.Harmony {
	return song.NewHarmony(40,
		[]song.ChordRun{{StartTick: 0, ChordTicks: 40, Section: 0}},
		[]song.SectionRun{
			{StartTick: 0, SectionTicks: 10},
			{StartTick: 10, SectionTicks: 10},
			{StartTick: 20, SectionTicks: 10},
			{StartTick: 30, SectionTicks: 10},
		})
}

func TestResolveSkipTick_Tick(t *testing.T) {
	s := &Scheduler{}
	h := fakeSkipHarmony()
	assert.Equal(t, 15, s.resolveSkipTick(&SkipTarget{Kind: SkipTick, Tick: 15}, 0, 40, h))
	assert.Equal(t, 40, s.resolveSkipTick(&SkipTarget{Kind: SkipTick, Tick: 999}, 0, 40, h), "clamped to totalTicks")
}

func TestResolveSkipTick_Percent(t *testing.T) {
	s := &Scheduler{}
	h := fakeSkipHarmony()
	assert.Equal(t, 20, s.resolveSkipTick(&SkipTarget{Kind: SkipPercent, Percent: 50}, 0, 40, h))
}

func TestResolveSkipTick_Section(t *testing.T) {
	s := &Scheduler{}
	h := fakeSkipHarmony()
	assert.Equal(t, 10, s.resolveSkipTick(&SkipTarget{Kind: SkipSection, Section: 1}, 0, 40, h))
	assert.Equal(t, 15, s.resolveSkipTick(&SkipTarget{Kind: SkipSection, Section: 1.5}, 0, 40, h))
}

func TestResolveSkipTick_SectionNegativeIndexesFromEnd(t *testing.T) {
	s := &Scheduler{}
	h := fakeSkipHarmony()
	assert.Equal(t, 30, s.resolveSkipTick(&SkipTarget{Kind: SkipSection, Section: -1}, 0, 40, h))
}

func TestResolveSkipTick_Next(t *testing.T) {
	s := &Scheduler{}
	h := fakeSkipHarmony()
	assert.Equal(t, 10, s.resolveSkipTick(&SkipTarget{Kind: SkipNext}, 5, 40, h))
	assert.Equal(t, 40, s.resolveSkipTick(&SkipTarget{Kind: SkipNext}, 35, 40, h), "next from the final section lands at the end")
}

func TestScheduler_TempoAndTranspositionRoundTrip(t *testing.T) {
	s := newTestScheduler()
	s.SetMilliBPM(95000)
	assert.Equal(t, int64(95000), s.GetMilliBPM())

	s.SetTransposition(-3)
	assert.Equal(t, Status{TotalTicks: 0, MilliBPM: 95000, Transposition: -3}, s.Status())
}

func TestScheduler_AbortPlay_SetsAborted(t *testing.T) {
	s := newTestScheduler()
	assert.False(t, s.isAborted())
	s.AbortPlay()
	assert.True(t, s.isAborted())
}

func TestScheduler_SkipQueueRoundTrips(t *testing.T) {
	s := newTestScheduler()
	assert.Nil(t, s.takeSkip())

	s.Skip(SkipTarget{Kind: SkipTick, Tick: 7})
	got := s.takeSkip()
	require.NotNil(t, got)
	assert.Equal(t, 7, got.Tick)
	assert.Nil(t, s.takeSkip(), "the queued skip is consumed exactly once")
}
