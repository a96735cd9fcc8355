// Package scheduler implements the MIDI Scheduler (C6): the
// device model, groove/tempo timing, clock synchronization, controller
// LFOs, and the cooperative single-threaded playback loop.
//
// Grounded on player/realtime.go's RealtimePlayer (sync.Mutex-guarded
// playback state, a stop channel, a ticking goroutine loop) generalized
// from its FluidSynth-subprocess transport to real gomidi/midi/v2 device
// I/O — the API shape (midi.NoteOn/NoteOff/ProgramChange building
// midi.Message values) is the same one midi/generator.go already uses for
// file export, so the scheduler and the exporter share one MIDI vocabulary.
package scheduler

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/soundhelix/soundhelix-go/soundhelixerr"
)

// Device is one named MIDI output: a list of backend candidate names (the
// first one that opens wins) plus whether it needs 24-PPQN clock sync.
type Device struct {
	Name                 string
	Candidates           []string
	UseClockSynchronization bool

	mu   sync.Mutex
	out  drivers.Out
	send func(midi.Message) error
}

// Open instantiates the device's receiver, trying each candidate name in
// order. Calling Open twice is an error.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.send != nil {
		return fmt.Errorf("scheduler: device %q already open", d.Name)
	}
	var lastErr error
	for _, candidate := range d.Candidates {
		out, err := midi.FindOutPort(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		send, err := midi.SendTo(out)
		if err != nil {
			lastErr = err
			continue
		}
		d.out = out
		d.send = send
		return nil
	}
	return soundhelixerr.WrapErr(soundhelixerr.DeviceUnavailable, lastErr,
		"scheduler: no candidate output available for device %q", d.Name)
}

// Close releases the device's receiver after silencing it. A second Close
// is a no-op.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.send == nil {
		return nil
	}
	d.muteAllLocked()
	d.send = nil
	d.out = nil
	return nil
}

// Send transmits one MIDI message, wrapping any transport failure as a
// TransientPlaybackError.
func (d *Device) Send(msg midi.Message) error {
	d.mu.Lock()
	send := d.send
	d.mu.Unlock()
	if send == nil {
		return fmt.Errorf("scheduler: device %q not open", d.Name)
	}
	if err := send(msg); err != nil {
		return soundhelixerr.WrapErr(soundhelixerr.TransientPlaybackError, err, "scheduler: send to device %q failed", d.Name)
	}
	return nil
}

// Mute sends ALL SOUND OFF, ALL NOTES OFF and an explicit NOTE_OFF for
// every pitch on every channel, per the abort sequence.
func (d *Device) Mute() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muteAllLocked()
}

func (d *Device) muteAllLocked() {
	if d.send == nil {
		return
	}
	for ch := uint8(0); ch < 16; ch++ {
		d.send(midi.ControlChange(ch, 120, 0)) // all sound off
		d.send(midi.ControlChange(ch, 123, 0)) // all notes off
		for note := uint8(0); note < 128; note++ {
			d.send(midi.NoteOff(ch, note))
		}
	}
}

// DeviceChannel binds an instrument to an output device, channel and
// program. Program -1 means "leave the channel's current
// program unchanged". LegatoController -1 disables controller-based
// legato for this mapping.
type DeviceChannel struct {
	Device  string
	Channel uint8
	Program int

	LegatoController         int
	LegatoControllerValueOn  int
	LegatoControllerValueOff int
}
