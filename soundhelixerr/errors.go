// Package soundhelixerr defines the error kinds distinguished by the
// SoundHelix core: configuration errors, unsatisfiable solver
// constraints, unavailable MIDI devices, transient playback errors, and
// cooperative abort. Callers use errors.Is against the sentinel Kind
// values; wrapped errors still carry the original cause via %w.
package soundhelixerr

import (
	"errors"
	"fmt"
)

// Kind classifies a SoundHelix error for callers that want to branch on
// failure category (e.g. the CLI exit code, or whether a retry makes sense).
type Kind error

var (
	// ConfigError covers unknown chords, bad back-references, wrong
	// operand counts, version mismatches, missing instrument mappings,
	// and clock-sync tick alignment failures. Fatal at load.
	ConfigError Kind = errors.New("config error")

	// ConstraintUnsatisfiable is raised when the EXACT activity solver
	// exceeds maxIterations without finding a feasible activity matrix.
	ConstraintUnsatisfiable Kind = errors.New("activity constraints unsatisfiable")

	// DeviceUnavailable is raised when none of a MIDI device's backend
	// candidates could be instantiated.
	DeviceUnavailable Kind = errors.New("midi device unavailable")

	// TransientPlaybackError wraps an individual failed MIDI send during
	// playback; the mute sequence still runs in Close().
	TransientPlaybackError Kind = errors.New("transient playback error")

	// Aborted is returned (not logged as a failure) when AbortPlay has
	// stopped the scheduler loop cleanly.
	Aborted Kind = errors.New("playback aborted")
)

// Wrap builds an error of the given kind with a formatted message, keeping
// kind as an errors.Is-matchable sentinel. It carries no underlying cause;
// WrapErr chains one.
func Wrap(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// WrapErr is like Wrap but also chains an underlying cause.
func WrapErr(kind Kind, cause error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

type kindError struct {
	kind  Kind
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *kindError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// Is reports whether err (or a wrapped kindError) matches kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
