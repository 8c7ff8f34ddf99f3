package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSlot         = errors.New("unknown slot")
	ErrExecutableNotFound  = errors.New("executable not found")
	ErrMissingPrerequisite = errors.New("missing prerequisite")
	ErrSinkUnavailable     = errors.New("sink unavailable")
	ErrSuperseded          = errors.New("start superseded")
)

// SpawnError reports that the process for a slot could not be launched.
type SpawnError struct {
	Slot Slot
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s (%s): %v", e.Slot, e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TerminationError reports a failed kill. It is logged, never returned to
// callers of Stop.
type TerminationError struct {
	Slot Slot
	PID  int
	Err  error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("terminate %s pid %d: %v", e.Slot, e.PID, e.Err)
}

func (e *TerminationError) Unwrap() error { return e.Err }

// DecodeError reports a tailed line that is not well-formed JSON.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode line at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
