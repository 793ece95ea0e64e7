package docker

import (
	"context"
	"io"
	"os/exec"
)

// terminalProcess is a long-lived interactive shell inside the container.
type terminalProcess interface {
	io.Writer
	Close() error
}

// processStarter starts interactive processes.
type processStarter interface {
	Start(ctx context.Context, command []string) (terminalProcess, error)
}

// osProcessStarter starts real processes with a stdin pipe.
type osProcessStarter struct{}

func (osProcessStarter) Start(ctx context.Context, command []string) (terminalProcess, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &CommandError{Cmd: command[0], Cause: err, Stage: "start"}
	}
	if err := cmd.Start(); err != nil {
		return nil, &CommandError{Cmd: command[0], Cause: err, Stage: "start"}
	}
	return &osTerminal{cmd: cmd, stdin: stdin}, nil
}

type osTerminal struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (t *osTerminal) Write(p []byte) (int, error) {
	return t.stdin.Write(p)
}

// Close ends the shell by closing its stdin and waits for it to exit.
func (t *osTerminal) Close() error {
	_ = t.stdin.Close()
	return t.cmd.Wait()
}
