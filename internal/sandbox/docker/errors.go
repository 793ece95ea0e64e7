package docker

import (
	"errors"
	"fmt"
	"strings"
)

// -- Sentinels --

var (
	// ErrTimeout is returned when a command exceeds its timeout.
	ErrTimeout = errors.New("command timeout")
	// ErrNoSandbox is returned when an operation needs a container that was never created.
	ErrNoSandbox = errors.New("no sandbox container")
	// ErrUnknownTerminal is returned for input addressed to a terminal that is not open.
	ErrUnknownTerminal = errors.New("unknown terminal")
)

// CommandError is returned when a command cannot be started.
type CommandError struct {
	Cmd   string
	Cause error
	Stage string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("failed to %s command %s: %v", e.Stage, e.Cmd, e.Cause)
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

// ExitError is returned when a command inside the container exits non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, stderr)
}
