package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRemoteCommand(t *testing.T) {
	assert.Equal(t, RemoteCommand{}, ParseRemoteCommand(""))
	assert.Equal(t, RemoteCommand{}, ParseRemoteCommand("   "))
	assert.Equal(t, RemoteCommand{Verb: "bpm", Args: []string{"120"}}, ParseRemoteCommand("BPM 120"))
	assert.Equal(t, RemoteCommand{Verb: "groove", Args: []string{"5,3"}}, ParseRemoteCommand("groove 5,3"))
}

func newTestScheduler() *Scheduler {
	return NewScheduler(map[string]*Device{}, map[string]DeviceChannel{}, NewGroove(nil, 4), 4, 120000)
}

func TestApply_Bpm(t *testing.T) {
	s := newTestScheduler()
	msg, quit, err := s.Apply(RemoteCommand{Verb: "bpm", Args: []string{"90"}})
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, msg, "90")
	assert.Equal(t, int64(90000), s.GetMilliBPM())
}

func TestApply_Bpm_BadArgErrors(t *testing.T) {
	s := newTestScheduler()
	_, _, err := s.Apply(RemoteCommand{Verb: "bpm", Args: []string{"fast"}})
	assert.Error(t, err)
	_, _, err = s.Apply(RemoteCommand{Verb: "bpm"})
	assert.Error(t, err)
}

func TestApply_Transposition(t *testing.T) {
	s := newTestScheduler()
	_, _, err := s.Apply(RemoteCommand{Verb: "transposition", Args: []string{"-5"}})
	require.NoError(t, err)
	assert.Equal(t, -5, int(s.Transposition))
}

func TestApply_Groove(t *testing.T) {
	s := newTestScheduler()
	msg, _, err := s.Apply(RemoteCommand{Verb: "groove", Args: []string{"5, 3"}})
	require.NoError(t, err)
	assert.Contains(t, msg, "[5 3]")
}

func TestApply_Groove_BadArgErrors(t *testing.T) {
	s := newTestScheduler()
	_, _, err := s.Apply(RemoteCommand{Verb: "groove", Args: []string{"a,b"}})
	assert.Error(t, err)
}

func TestApply_Quit(t *testing.T) {
	s := newTestScheduler()
	msg, quit, err := s.Apply(RemoteCommand{Verb: "quit"})
	require.NoError(t, err)
	assert.True(t, quit)
	assert.NotEmpty(t, msg)
	assert.True(t, s.isAborted())
}

func TestApply_Help(t *testing.T) {
	s := newTestScheduler()
	msg, quit, err := s.Apply(RemoteCommand{Verb: "help"})
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, msg, "bpm")
}

func TestApply_Empty(t *testing.T) {
	s := newTestScheduler()
	msg, quit, err := s.Apply(RemoteCommand{})
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Empty(t, msg)
}

func TestApply_UnknownVerbErrors(t *testing.T) {
	s := newTestScheduler()
	_, _, err := s.Apply(RemoteCommand{Verb: "frobnicate"})
	assert.Error(t, err)
}

func TestApply_Skip_Tick(t *testing.T) {
	s := newTestScheduler()
	_, _, err := s.Apply(RemoteCommand{Verb: "skip", Args: []string{"32"}})
	require.NoError(t, err)
}

func TestApply_Skip_Percent(t *testing.T) {
	s := newTestScheduler()
	_, _, err := s.Apply(RemoteCommand{Verb: "skip", Args: []string{"50%"}})
	require.NoError(t, err)
}

func TestApply_Skip_Section(t *testing.T) {
	s := newTestScheduler()
	_, _, err := s.Apply(RemoteCommand{Verb: "skip", Args: []string{"s2.5"}})
	require.NoError(t, err)
}

func TestApply_Skip_Next(t *testing.T) {
	s := newTestScheduler()
	_, _, err := s.Apply(RemoteCommand{Verb: "skip", Args: []string{"next"}})
	require.NoError(t, err)
}

func TestApply_Skip_BadArgErrors(t *testing.T) {
	s := newTestScheduler()
	_, _, err := s.Apply(RemoteCommand{Verb: "skip", Args: []string{"bogus"}})
	assert.Error(t, err)
}

func TestParseSkipArg_Variants(t *testing.T) {
	tgt, err := parseSkipArg("next")
	require.NoError(t, err)
	assert.Equal(t, SkipNext, tgt.Kind)

	tgt, err = parseSkipArg("25%")
	require.NoError(t, err)
	assert.Equal(t, SkipPercent, tgt.Kind)
	assert.Equal(t, 25.0, tgt.Percent)

	tgt, err = parseSkipArg("s1.5")
	require.NoError(t, err)
	assert.Equal(t, SkipSection, tgt.Kind)
	assert.Equal(t, 1.5, tgt.Section)

	tgt, err = parseSkipArg("64")
	require.NoError(t, err)
	assert.Equal(t, SkipTick, tgt.Kind)
	assert.Equal(t, 64, tgt.Tick)

	_, err = parseSkipArg("nope")
	assert.Error(t, err)
}
