package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/Cyclone1070/artifactsync/internal/config"
)

const defaultGracePeriod = 2 * time.Second

// Result is the outcome of one host command.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
}

// runOptions tunes a single invocation. Zero values mean no timeout and no output cap.
type runOptions struct {
	Timeout     time.Duration
	OutputLimit int64
}

// commandRunner runs docker CLI invocations on the host. A non-zero exit is
// reported in Result.ExitCode, not as an error.
type commandRunner interface {
	Run(ctx context.Context, command []string, stdin io.Reader, opts runOptions) (*Result, error)
}

// hostRunner runs commands with os/exec. On timeout or cancellation the
// process gets an interrupt and is killed if it is still alive after grace.
type hostRunner struct {
	grace time.Duration
}

func newHostRunner(cfg config.SandboxConfig) *hostRunner {
	grace := time.Duration(cfg.DockerGracefulShutdownMs) * time.Millisecond
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	return &hostRunner{grace: grace}
}

func (r *hostRunner) Run(ctx context.Context, command []string, stdin io.Reader, opts runOptions) (*Result, error) {
	if len(command) == 0 {
		return nil, os.ErrInvalid
	}

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	stdout := &cappedBuffer{limit: opts.OutputLimit}
	stderr := &cappedBuffer{limit: opts.OutputLimit}

	cmd := exec.CommandContext(runCtx, command[0], command[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.grace

	err := cmd.Run()
	res := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case runCtx.Err() != nil:
		res.ExitCode = -1
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, ErrTimeout
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return nil, &CommandError{Cmd: command[0], Cause: err, Stage: "start"}
	}
}

// cappedBuffer keeps at most limit bytes and drops the rest. limit <= 0 keeps everything.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}

	room := b.limit - int64(b.buf.Len())
	if int64(len(p)) > room {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
