package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cyclone1070/artifactsync/internal/config"
)

type call struct {
	cmd   []string
	stdin string
	opts  runOptions
}

// mockRunner records every command and answers via runFunc.
type mockRunner struct {
	mu      sync.Mutex
	calls   []call
	runFunc func(cmd []string) (*Result, error)
}

func (m *mockRunner) Run(_ context.Context, cmd []string, stdin io.Reader, opts runOptions) (*Result, error) {
	var in string
	if stdin != nil {
		b, _ := io.ReadAll(stdin)
		in = string(b)
	}
	m.mu.Lock()
	m.calls = append(m.calls, call{cmd: cmd, stdin: in, opts: opts})
	m.mu.Unlock()

	if m.runFunc != nil {
		return m.runFunc(cmd)
	}
	return &Result{}, nil
}

func (m *mockRunner) last() call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

type fakeTerminal struct {
	bytes.Buffer
	closed bool
}

func (f *fakeTerminal) Close() error {
	f.closed = true
	return nil
}

type fakeStarter struct {
	started []*fakeTerminal
	cmds    [][]string
}

func (s *fakeStarter) Start(_ context.Context, cmd []string) (terminalProcess, error) {
	t := &fakeTerminal{}
	s.started = append(s.started, t)
	s.cmds = append(s.cmds, cmd)
	return t, nil
}

func testConfig() config.SandboxConfig {
	cfg := config.DefaultConfig().Sandbox
	cfg.CommandTimeoutSeconds = 5
	return cfg
}

func startedDriver(t *testing.T, runner *mockRunner) *Driver {
	t.Helper()
	d := newDriver(testConfig(), runner, &fakeStarter{}, nil)
	runner.runFunc = func(cmd []string) (*Result, error) {
		if cmd[1] == "run" {
			return &Result{Stdout: "abc123\n"}, nil
		}
		return &Result{}, nil
	}
	id, err := d.CreateSandbox(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc123", id)
	return d
}

func TestCreateSandbox(t *testing.T) {
	runner := &mockRunner{}
	d := startedDriver(t, runner)

	c := runner.last()
	assert.Equal(t, []string{"docker", "run", "-d", "--rm", "--name"}, c.cmd[:5])
	assert.True(t, strings.HasPrefix(c.cmd[5], "artifactsync-"))
	assert.Contains(t, c.cmd, "/home/user")
	assert.Contains(t, c.cmd, testConfig().Image)
	assert.Equal(t, "abc123", d.containerID)
}

func TestCreateSandboxFailure(t *testing.T) {
	runner := &mockRunner{runFunc: func([]string) (*Result, error) {
		return &Result{ExitCode: 125, Stderr: "no such image"}, nil
	}}
	d := newDriver(testConfig(), runner, &fakeStarter{}, nil)

	_, err := d.CreateSandbox(context.Background())
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 125, exitErr.ExitCode)
	assert.Contains(t, err.Error(), "no such image")
}

func TestOperationsWithoutSandbox(t *testing.T) {
	d := newDriver(testConfig(), &mockRunner{}, &fakeStarter{}, nil)
	ctx := context.Background()

	_, err := d.WriteFile(ctx, "/home/user/a.txt", "x")
	assert.ErrorIs(t, err, ErrNoSandbox)
	_, err = d.MakeDirectory(ctx, "/home/user/src")
	assert.ErrorIs(t, err, ErrNoSandbox)
	assert.ErrorIs(t, d.RunCommand(ctx, "ls"), ErrNoSandbox)
	_, err = d.OpenTerminal(ctx)
	assert.ErrorIs(t, err, ErrNoSandbox)
}

func TestWriteFile(t *testing.T) {
	runner := &mockRunner{}
	d := startedDriver(t, runner)

	ok, err := d.WriteFile(context.Background(), "/home/user/src/a.ts", "export {}")
	require.NoError(t, err)
	assert.True(t, ok)

	c := runner.last()
	assert.Equal(t, []string{"docker", "exec", "-i", "abc123", "sh", "-c", `cat > "$1"`, "sh", "/home/user/src/a.ts"}, c.cmd)
	assert.Equal(t, "export {}", c.stdin)
	assert.Zero(t, c.opts.OutputLimit)
}

func TestWriteFileNonZeroExit(t *testing.T) {
	runner := &mockRunner{}
	d := startedDriver(t, runner)
	runner.runFunc = func([]string) (*Result, error) {
		return &Result{ExitCode: 1, Stderr: "read-only file system"}, nil
	}

	ok, err := d.WriteFile(context.Background(), "/home/user/a.txt", "x")
	assert.False(t, ok)
	var exitErr *ExitError
	assert.ErrorAs(t, err, &exitErr)
}

func TestMakeDirectory(t *testing.T) {
	runner := &mockRunner{}
	d := startedDriver(t, runner)

	ok, err := d.MakeDirectory(context.Background(), "/home/user/src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"docker", "exec", "abc123", "mkdir", "-p", "/home/user/src"}, runner.last().cmd)
}

func TestRunCommand(t *testing.T) {
	runner := &mockRunner{}
	d := startedDriver(t, runner)

	require.NoError(t, d.RunCommand(context.Background(), "npm install"))
	c := runner.last()
	assert.Equal(t, []string{"docker", "exec", "-w", "/home/user", "abc123", "sh", "-lc", "npm install"}, c.cmd)
	assert.Equal(t, 5*time.Second, c.opts.Timeout)
	assert.Equal(t, testConfig().MaxCommandOutputSize, c.opts.OutputLimit)

	runner.runFunc = func([]string) (*Result, error) {
		return &Result{ExitCode: 127, Stderr: "npx: not found"}, nil
	}
	err := d.RunCommand(context.Background(), "npx vite")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 127, exitErr.ExitCode)

	runner.runFunc = func([]string) (*Result, error) {
		return nil, ErrTimeout
	}
	assert.ErrorIs(t, d.RunCommand(context.Background(), "sleep 99"), ErrTimeout)
}

func TestTerminals(t *testing.T) {
	runner := &mockRunner{}
	d := startedDriver(t, runner)
	starter := d.starter.(*fakeStarter)
	ctx := context.Background()

	assert.Equal(t, "", d.ActiveTerminalID())
	assert.ErrorIs(t, d.SendTerminalInput(ctx, "nope", "ls\n"), ErrUnknownTerminal)

	first, err := d.OpenTerminal(ctx)
	require.NoError(t, err)
	second, err := d.OpenTerminal(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, d.ActiveTerminalID())
	assert.Equal(t, []string{"docker", "exec", "-i", "-w", "/home/user", "abc123", "sh"}, starter.cmds[0])

	require.NoError(t, d.SendTerminalInput(ctx, first, "ls\n"))
	assert.Equal(t, "ls\n", starter.started[0].String())
	assert.Empty(t, starter.started[1].String())

	require.NoError(t, d.Close(ctx))
	assert.True(t, starter.started[0].closed)
	assert.True(t, starter.started[1].closed)
	assert.Equal(t, "", d.ActiveTerminalID())
	assert.Equal(t, []string{"docker", "rm", "-f", "abc123"}, runner.last().cmd)
}

func TestCloseWithoutSandbox(t *testing.T) {
	runner := &mockRunner{}
	d := newDriver(testConfig(), runner, &fakeStarter{}, nil)
	require.NoError(t, d.Close(context.Background()))
	assert.Empty(t, runner.calls)
}

func TestEnsureReady(t *testing.T) {
	cfg := ReadyConfig{
		CheckCommand: []string{"docker", "info"},
		StartCommand: []string{"systemctl", "start", "docker"},
	}

	t.Run("ready immediately", func(t *testing.T) {
		runner := &mockRunner{}
		require.NoError(t, EnsureReady(context.Background(), runner, cfg, 3, 1))
		assert.Len(t, runner.calls, 1)
	})

	t.Run("started then ready", func(t *testing.T) {
		checks := 0
		runner := &mockRunner{runFunc: func(cmd []string) (*Result, error) {
			if cmd[0] == "docker" {
				checks++
				if checks == 1 {
					return &Result{ExitCode: 1}, errors.New("daemon not running")
				}
			}
			return &Result{}, nil
		}}
		require.NoError(t, EnsureReady(context.Background(), runner, cfg, 3, 1))
		assert.Equal(t, 2, checks)
	})

	t.Run("start exits non-zero", func(t *testing.T) {
		runner := &mockRunner{runFunc: func([]string) (*Result, error) {
			return &Result{ExitCode: 5, Stderr: "unit docker.service not found"}, nil
		}}
		var exitErr *ExitError
		require.ErrorAs(t, EnsureReady(context.Background(), runner, cfg, 3, 1), &exitErr)
		assert.Equal(t, 5, exitErr.ExitCode)
	})

	t.Run("start fails", func(t *testing.T) {
		runner := &mockRunner{runFunc: func([]string) (*Result, error) {
			return &Result{ExitCode: 1}, errors.New("command failed")
		}}
		assert.Error(t, EnsureReady(context.Background(), runner, cfg, 3, 1))
	})

	t.Run("never ready", func(t *testing.T) {
		runner := &mockRunner{runFunc: func(cmd []string) (*Result, error) {
			if cmd[0] == "docker" {
				return &Result{ExitCode: 1}, nil
			}
			return &Result{}, nil
		}}
		err := EnsureReady(context.Background(), runner, cfg, 2, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 attempts")
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		runner := &mockRunner{runFunc: func([]string) (*Result, error) {
			return &Result{ExitCode: 1}, nil
		}}
		assert.ErrorIs(t, EnsureReady(ctx, runner, ReadyConfig{CheckCommand: cfg.CheckCommand}, 5, 1000), context.Canceled)
	})
}
