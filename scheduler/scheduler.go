package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/soundhelix/soundhelix-go/song"
	"github.com/soundhelix/soundhelix-go/soundhelixerr"
)

// SkipTarget describes a requested jump, per the skip grammar
// (absolute tick, percentage, chord-section index, or "next").
type SkipTarget struct {
	Kind    SkipKind
	Tick    int
	Percent float64
	Section float64 // fractional section index allowed
}

type SkipKind int

const (
	SkipTick SkipKind = iota
	SkipPercent
	SkipSection
	SkipNext
)

type voiceState struct {
	instrument string
	channel    DeviceChannel
	trackType  song.TrackType
	entries    []song.SequenceEntry
	entryIdx   int
	tickCursor int

	playingPitch      int // -1 when nothing sounding
	legatoPending     bool
	legatoPendingPitch int
}

func newVoiceState(instrument string, ch DeviceChannel, trackType song.TrackType, seq song.Sequence) *voiceState {
	return &voiceState{instrument: instrument, channel: ch, trackType: trackType, entries: seq.Entries, playingPitch: -1, legatoPendingPitch: -1}
}

func (v *voiceState) currentEntry() (song.SequenceEntry, bool) {
	if v.entryIdx >= len(v.entries) {
		return song.SequenceEntry{}, false
	}
	return v.entries[v.entryIdx], true
}

func (v *voiceState) nextBoundary() (int, bool) {
	e, ok := v.currentEntry()
	if !ok {
		return 0, false
	}
	return v.tickCursor + e.Ticks, true
}

func (v *voiceState) advance() {
	if _, ok := v.currentEntry(); ok {
		v.tickCursor += v.entries[v.entryIdx].Ticks
		v.entryIdx++
	}
}

func (v *voiceState) seekTo(tick int) {
	v.entryIdx = 0
	v.tickCursor = 0
	for {
		e, ok := v.currentEntry()
		if !ok || v.tickCursor+e.Ticks > tick {
			return
		}
		v.advance()
	}
}

// Scheduler drives real-time MIDI playback of a solved Arrangement across
// a set of Devices. It is single-threaded and cooperative:
// Play runs the entire song on the calling goroutine, sleeping between
// events; AbortPlay, Skip, SetMilliBPM, GetMilliBPM, SetTransposition,
// Status and Groove.SetWeights are the entry points that are safe to call
// concurrently while Play is running.
type Scheduler struct {
	Devices             map[string]*Device
	InstrumentChannels  map[string]DeviceChannel
	Groove              *Groove
	TicksPerBeat        int
	BeforePlayWaitTicks int
	AfterPlayWaitTicks  int
	LFOs                []*ControllerLFO
	Transposition       int32 // atomic; semitones added to MELODIC tracks at send time

	milliBPM int64 // atomic, thousandths of BPM

	aborted    int32 // atomic bool
	skipMu     sync.Mutex
	skipQueued *SkipTarget

	currentTick int64 // atomic, updated as Play advances
	totalTicks  int64 // atomic, set once at the start of Play
}

// Status is a point-in-time snapshot of a running (or finished) Play call,
// safe to read from another goroutine (e.g. a display.Dashboard polling it).
type Status struct {
	Tick          int
	TotalTicks    int
	MilliBPM      int64
	Transposition int
	Aborted       bool
}

// Status reports the scheduler's current playback position and tempo.
// Safe to call concurrently with Play.
func (s *Scheduler) Status() Status {
	return Status{
		Tick:          int(atomic.LoadInt64(&s.currentTick)),
		TotalTicks:    int(atomic.LoadInt64(&s.totalTicks)),
		MilliBPM:      s.GetMilliBPM(),
		Transposition: int(atomic.LoadInt32(&s.Transposition)),
		Aborted:       s.isAborted(),
	}
}

// NewScheduler returns a Scheduler with the given initial tempo.
func NewScheduler(devices map[string]*Device, channels map[string]DeviceChannel, groove *Groove, ticksPerBeat int, initialMilliBPM int64) *Scheduler {
	return &Scheduler{
		Devices:            devices,
		InstrumentChannels: channels,
		Groove:             groove,
		TicksPerBeat:       ticksPerBeat,
		milliBPM:           initialMilliBPM,
	}
}

// Open instantiates every configured device's receiver.
func (s *Scheduler) Open() error {
	for name, d := range s.Devices {
		if err := d.Open(); err != nil {
			return fmt.Errorf("scheduler: opening device %q: %w", name, err)
		}
	}
	return nil
}

// Close mutes and releases every device. Safe to call more than once.
func (s *Scheduler) Close() error {
	var firstErr error
	for _, d := range s.Devices {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AbortPlay requests Play to stop at the next cooperative check point,
// muting every device before returning.
func (s *Scheduler) AbortPlay() { atomic.StoreInt32(&s.aborted, 1) }

func (s *Scheduler) isAborted() bool { return atomic.LoadInt32(&s.aborted) != 0 }

// SetMilliBPM updates the scheduler's tempo; safe to call from any
// goroutine while Play is running.
func (s *Scheduler) SetMilliBPM(v int64) { atomic.StoreInt64(&s.milliBPM, v) }

// GetMilliBPM returns the current tempo.
func (s *Scheduler) GetMilliBPM() int64 { return atomic.LoadInt64(&s.milliBPM) }

// SetTransposition updates the live semitone transposition applied to
// MELODIC tracks.
func (s *Scheduler) SetTransposition(semitones int) { atomic.StoreInt32(&s.Transposition, int32(semitones)) }

// Skip requests a jump to the given target; it takes effect at the next
// cooperative check point.
func (s *Scheduler) Skip(target SkipTarget) {
	s.skipMu.Lock()
	s.skipQueued = &target
	s.skipMu.Unlock()
}

func (s *Scheduler) takeSkip() *SkipTarget {
	s.skipMu.Lock()
	defer s.skipMu.Unlock()
	t := s.skipQueued
	s.skipQueued = nil
	return t
}

// Play runs one song to completion (or until AbortPlay is called),
// implementing the two-deadline cooperative loop of the design.
func (s *Scheduler) Play(ctx *song.Context, arrangement *song.Arrangement) error {
	if 24%s.TicksPerBeat != 0 {
		for _, d := range s.Devices {
			if d.UseClockSynchronization {
				return soundhelixerr.Wrap(soundhelixerr.ConfigError, "scheduler: ticksPerBeat %d is not a divisor of 24, required for clock sync", s.TicksPerBeat)
			}
		}
	}

	totalTicks := ctx.Structure.TotalTicks()
	atomic.StoreInt64(&s.totalTicks, int64(totalTicks))
	voices, err := s.buildVoices(arrangement)
	if err != nil {
		return err
	}
	if err := s.setPrograms(voices); err != nil {
		return err
	}

	needsClock := s.anyClockSyncDevice()
	if needsClock {
		s.sendToClockDevices(midi.Start())
	}
	defer func() {
		if needsClock {
			s.sendToClockDevices(midi.Stop())
		}
	}()

	playStart := time.Now()
	tick := 0

	s.waitTicks(s.BeforePlayWaitTicks, &tick, needsClock)

	clockTickCounter := 0
	nextClockTick := s.clockTickInterval()

	for tick < totalTicks {
		atomic.StoreInt64(&s.currentTick, int64(tick))
		if s.isAborted() {
			s.muteAll()
			return nil
		}
		if skip := s.takeSkip(); skip != nil {
			tick = s.resolveSkipTick(skip, tick, totalTicks, ctx.Harmony)
			s.muteAll()
			for _, v := range voices {
				v.seekTo(tick)
			}
		}

		noteDeadline, anyVoice := minNextBoundary(voices)
		if !anyVoice {
			break
		}
		timingDeadline := nextClockTick

		if needsClock && timingDeadline <= noteDeadline {
			s.sleepForTicks(tick, timingDeadline, &playStart)
			clockTickCounter++
			s.sendToClockDevices(midi.TimingClock())
			nextClockTick = timingDeadline + s.clockTickInterval()
			if timingDeadline == noteDeadline {
				s.emitTickEvents(voices, tick, ctx, totalTicks, playStart)
				tick = noteDeadline
			}
			continue
		}

		s.sleepForTicks(tick, noteDeadline, &playStart)
		s.emitTickEvents(voices, tick, ctx, totalTicks, playStart)
		tick = noteDeadline
	}

	atomic.StoreInt64(&s.currentTick, int64(tick))
	s.flushLegato(voices)
	s.waitTicks(s.AfterPlayWaitTicks, &tick, needsClock)
	return nil
}

func (s *Scheduler) buildVoices(arrangement *song.Arrangement) ([]*voiceState, error) {
	var voices []*voiceState
	for _, it := range arrangement.Tracks {
		if !arrangement.Audible(it) {
			continue
		}
		ch, ok := s.InstrumentChannels[it.Instrument]
		if !ok {
			return nil, soundhelixerr.Wrap(soundhelixerr.ConfigError, "scheduler: no device/channel mapping for instrument %q", it.Instrument)
		}
		for _, seq := range it.Track.Sequences {
			voices = append(voices, newVoiceState(it.Instrument, ch, it.Track.Type, seq))
		}
	}
	return voices, nil
}

func (s *Scheduler) setPrograms(voices []*voiceState) error {
	seen := make(map[string]bool)
	for _, v := range voices {
		key := fmt.Sprintf("%s:%d", v.channel.Device, v.channel.Channel)
		if seen[key] || v.channel.Program < 0 {
			continue
		}
		seen[key] = true
		d, ok := s.Devices[v.channel.Device]
		if !ok {
			return soundhelixerr.Wrap(soundhelixerr.ConfigError, "scheduler: unknown device %q", v.channel.Device)
		}
		if err := d.Send(midi.ProgramChange(v.channel.Channel, uint8(v.channel.Program))); err != nil {
			return err
		}
	}
	return nil
}

func minNextBoundary(voices []*voiceState) (int, bool) {
	best := -1
	found := false
	for _, v := range voices {
		b, ok := v.nextBoundary()
		if !ok {
			continue
		}
		if !found || b < best {
			best = b
			found = true
		}
	}
	return best, found
}

// emitTickEvents processes every voice whose current entry boundary is
// exactly `boundary`: NOTE_OFFs first, then the controller LFOs for that
// tick, then NOTE_ONs, so both offs and LFO values precede the tick's notes.
func (s *Scheduler) emitTickEvents(voices []*voiceState, boundary int, ctx *song.Context, totalTicks int, playStart time.Time) {
	for _, v := range voices {
		b, ok := v.nextBoundary()
		if !ok || b != boundary {
			continue
		}
		if v.playingPitch >= 0 && !entryIsLegatoInto(v) {
			s.noteOff(v, v.playingPitch)
			v.playingPitch = -1
		}
	}

	s.evaluateLFOs(boundary, totalTicks, time.Since(playStart).Seconds())

	for _, v := range voices {
		b, ok := v.nextBoundary()
		if !ok || b != boundary {
			continue
		}
		e, _ := v.currentEntry()
		v.advance()
		_, hasNext := v.currentEntry()
		if e.IsPause {
			continue
		}
		pitch := e.Pitch
		if v.trackType == song.Melodic {
			pitch += int(atomic.LoadInt32(&s.Transposition))
		}
		if v.legatoPending {
			s.noteOff(v, v.legatoPendingPitch)
			v.legatoPending = false
		}
		s.noteOn(v, pitch, e.Velocity)
		v.playingPitch = pitch
		if e.Legato && hasNext {
			v.legatoPending = true
			v.legatoPendingPitch = pitch
		}
	}
}

func entryIsLegatoInto(v *voiceState) bool {
	e, ok := v.currentEntry()
	if !ok || !e.Legato {
		return false
	}
	if v.entryIdx+1 >= len(v.entries) {
		return false
	}
	return !v.entries[v.entryIdx+1].IsPause
}

func (s *Scheduler) noteOn(v *voiceState, pitch, velocity int) {
	d, ok := s.Devices[v.channel.Device]
	if !ok {
		return
	}
	if v.channel.LegatoController >= 0 && v.legatoPending {
		d.Send(midi.ControlChange(v.channel.Channel, uint8(v.channel.LegatoController), uint8(v.channel.LegatoControllerValueOn)))
	}
	d.Send(midi.NoteOn(v.channel.Channel, clampMIDI(pitch), clampMIDI(velocity)))
}

func (s *Scheduler) noteOff(v *voiceState, pitch int) {
	d, ok := s.Devices[v.channel.Device]
	if !ok {
		return
	}
	d.Send(midi.NoteOff(v.channel.Channel, clampMIDI(pitch)))
	if v.channel.LegatoController >= 0 {
		d.Send(midi.ControlChange(v.channel.Channel, uint8(v.channel.LegatoController), uint8(v.channel.LegatoControllerValueOff)))
	}
}

func clampMIDI(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

func (s *Scheduler) flushLegato(voices []*voiceState) {
	for _, v := range voices {
		if v.legatoPending {
			s.noteOff(v, v.legatoPendingPitch)
			v.legatoPending = false
		} else if v.playingPitch >= 0 {
			s.noteOff(v, v.playingPitch)
			v.playingPitch = -1
		}
	}
}

func (s *Scheduler) muteAll() {
	for _, d := range s.Devices {
		d.Mute()
	}
	time.Sleep(460 * time.Millisecond)
}

func (s *Scheduler) evaluateLFOs(tick int, songTicks int, secondsElapsed float64) {
	clk := phaseClock{tick: tick, ticksPerBeat: s.TicksPerBeat, songTicks: songTicks, secondsElapsed: secondsElapsed}
	for _, lfo := range s.LFOs {
		value := lfo.ValueAt(clk)
		if !lfo.changed(value, tick) {
			continue
		}
		if lfo.Target == TargetMilliBPM {
			s.SetMilliBPM(int64(value))
			continue
		}
		d, ok := s.Devices[lfo.Channel.Device]
		if !ok {
			continue
		}
		switch lfo.Target {
		case TargetPitchBend:
			d.Send(midi.Pitchbend(lfo.Channel.Channel, int16(value)))
		case TargetCC:
			d.Send(midi.ControlChange(lfo.Channel.Channel, lfo.CCNumber, clampMIDI(value)))
		default:
			if cc, ok := standardCC[lfo.Target]; ok {
				d.Send(midi.ControlChange(lfo.Channel.Channel, cc, clampMIDI(value)))
			}
		}
	}
}

func (s *Scheduler) anyClockSyncDevice() bool {
	for _, d := range s.Devices {
		if d.UseClockSynchronization {
			return true
		}
	}
	return false
}

func (s *Scheduler) clockTickInterval() int {
	if s.TicksPerBeat == 0 {
		return 1
	}
	interval := s.TicksPerBeat / 24
	if interval < 1 {
		interval = 1
	}
	return interval
}

func (s *Scheduler) sendToClockDevices(msg midi.Message) {
	for _, d := range s.Devices {
		if d.UseClockSynchronization {
			d.Send(msg)
		}
	}
}

// sleepForTicks sleeps for the groove-weighted wall-clock duration
// spanning [fromTick, toTick) as one relative time.Sleep. playStart is not
// consulted, so scheduling error is not corrected against it and can
// accumulate over a long song.
func (s *Scheduler) sleepForTicks(fromTick, toTick int, playStart *time.Time) {
	if toTick <= fromTick {
		return
	}
	var total time.Duration
	milliBPM := s.GetMilliBPM()
	for t := fromTick; t < toTick; t++ {
		total += s.Groove.Duration(t, milliBPM)
	}
	time.Sleep(total)
}

func (s *Scheduler) waitTicks(n int, tick *int, needsClock bool) {
	if n <= 0 {
		return
	}
	milliBPM := s.GetMilliBPM()
	var total time.Duration
	for i := 0; i < n; i++ {
		total += s.Groove.Duration(*tick+i, milliBPM)
	}
	time.Sleep(total)
}

// resolveSkipTick maps a SkipTarget to an absolute tick.
func (s *Scheduler) resolveSkipTick(target *SkipTarget, currentTick, totalTicks int, h *song.Harmony) int {
	switch target.Kind {
	case SkipTick:
		return clampInt(target.Tick, 0, totalTicks)
	case SkipPercent:
		return clampInt(int(target.Percent/100*float64(totalTicks)), 0, totalTicks)
	case SkipSection:
		idx := int(target.Section)
		if idx < 0 {
			idx = h.SectionCount() + idx
		}
		idx = clampInt(idx, 0, h.SectionCount()-1)
		start, end := h.SectionBounds(idx)
		frac := target.Section - float64(int(target.Section))
		return start + int(frac*float64(end-start))
	case SkipNext:
		sec := h.SectionIndexAt(currentTick)
		if sec+1 >= h.SectionCount() {
			return totalTicks
		}
		start, _ := h.SectionBounds(sec + 1)
		return start
	default:
		return currentTick
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
