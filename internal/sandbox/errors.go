package sandbox

import (
	"errors"
	"fmt"
)

// -- Sentinels --

var (
	ErrNotConnected  = errors.New("sandbox is not connected")
	ErrSandboxReset  = errors.New("sandbox reset")
	ErrQueueFull     = errors.New("sandbox operation queue is full")
	ErrWriteRejected = errors.New("sandbox rejected the operation")
)

// MirrorError is returned when a file could not be mirrored into the sandbox.
type MirrorError struct {
	Path  string
	Stage string // "mkdir" or "write"
	Cause error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("failed to mirror %s (%s): %v", e.Path, e.Stage, e.Cause)
}

func (e *MirrorError) Unwrap() error {
	return e.Cause
}
