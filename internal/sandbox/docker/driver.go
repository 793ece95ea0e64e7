// Package docker implements a sandbox driver on top of the docker CLI.
package docker

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Cyclone1070/artifactsync/internal/config"
	"github.com/Cyclone1070/artifactsync/internal/logging"
	"github.com/Cyclone1070/artifactsync/internal/sandbox"
)

// Driver runs a disposable container and implements sandbox.Driver against it.
type Driver struct {
	cfg     config.SandboxConfig
	runner  commandRunner
	starter processStarter
	logger  *zap.Logger

	mu          sync.Mutex
	containerID string
	terminals   map[string]terminalProcess
	active      string
}

var _ sandbox.Driver = (*Driver)(nil)

// New creates a Driver that shells out to the real docker binary.
func New(cfg config.SandboxConfig, logger *zap.Logger) *Driver {
	return newDriver(cfg, newHostRunner(cfg), osProcessStarter{}, logger)
}

func newDriver(cfg config.SandboxConfig, runner commandRunner, starter processStarter, logger *zap.Logger) *Driver {
	return &Driver{
		cfg:       cfg,
		runner:    runner,
		starter:   starter,
		logger:    logging.OrNop(logger).Named("docker"),
		terminals: make(map[string]terminalProcess),
	}
}

// EnsureReady waits for the docker daemon using the configured retry policy.
func (d *Driver) EnsureReady(ctx context.Context) error {
	return EnsureReady(ctx, d.runner, DefaultReadyConfig(), d.cfg.DockerRetryAttempts, d.cfg.DockerRetryIntervalMs)
}

// CreateSandbox starts a detached container that idles until removed.
func (d *Driver) CreateSandbox(ctx context.Context) (string, error) {
	name := "artifactsync-" + uuid.NewString()
	cmd := []string{
		"docker", "run", "-d", "--rm",
		"--name", name,
		"-w", sandbox.RemoteHome,
		d.cfg.Image,
		"sleep", "infinity",
	}

	res, err := d.runner.Run(ctx, cmd, nil, runOptions{})
	if err := checkResult("docker run", res, err); err != nil {
		return "", err
	}

	id := strings.TrimSpace(res.Stdout)
	d.mu.Lock()
	d.containerID = id
	d.mu.Unlock()

	d.logger.Info("sandbox container started", zap.String("container", id), zap.String("name", name))
	return id, nil
}

// checkResult turns a positive exit code into an ExitError. Timeouts and start
// failures pass through unchanged.
func checkResult(label string, res *Result, err error) error {
	if res != nil && res.ExitCode > 0 {
		return &ExitError{Command: label, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return err
}

func (d *Driver) container() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.containerID == "" {
		return "", ErrNoSandbox
	}
	return d.containerID, nil
}

// WriteFile streams content into path inside the container.
func (d *Driver) WriteFile(ctx context.Context, path, content string) (bool, error) {
	id, err := d.container()
	if err != nil {
		return false, err
	}

	cmd := []string{"docker", "exec", "-i", id, "sh", "-c", `cat > "$1"`, "sh", path}
	res, err := d.runner.Run(ctx, cmd, strings.NewReader(content), runOptions{})
	if err := checkResult("write "+path, res, err); err != nil {
		return false, err
	}
	return true, nil
}

// MakeDirectory creates path and its parents inside the container.
func (d *Driver) MakeDirectory(ctx context.Context, path string) (bool, error) {
	id, err := d.container()
	if err != nil {
		return false, err
	}

	res, err := d.runner.Run(ctx, []string{"docker", "exec", id, "mkdir", "-p", path}, nil, runOptions{})
	if err := checkResult("mkdir "+path, res, err); err != nil {
		return false, err
	}
	return true, nil
}

// RunCommand runs command with a login shell in RemoteHome. A non-zero exit is an error.
func (d *Driver) RunCommand(ctx context.Context, command string) error {
	id, err := d.container()
	if err != nil {
		return err
	}

	cmd := []string{"docker", "exec", "-w", sandbox.RemoteHome, id, "sh", "-lc", command}
	res, err := d.runner.Run(ctx, cmd, nil, runOptions{
		Timeout:     time.Duration(d.cfg.CommandTimeoutSeconds) * time.Second,
		OutputLimit: d.cfg.MaxCommandOutputSize,
	})
	if err := checkResult(command, res, err); err != nil {
		return err
	}

	d.logger.Debug("command finished",
		zap.String("command", command),
		zap.Bool("truncated", res.Truncated))
	return nil
}

// OpenTerminal starts an interactive shell in the container and makes it the active terminal.
func (d *Driver) OpenTerminal(ctx context.Context) (string, error) {
	id, err := d.container()
	if err != nil {
		return "", err
	}

	proc, err := d.starter.Start(ctx, []string{"docker", "exec", "-i", "-w", sandbox.RemoteHome, id, "sh"})
	if err != nil {
		return "", err
	}

	terminalID := uuid.NewString()
	d.mu.Lock()
	d.terminals[terminalID] = proc
	d.active = terminalID
	d.mu.Unlock()
	return terminalID, nil
}

// SendTerminalInput writes data to the terminal's stdin.
func (d *Driver) SendTerminalInput(_ context.Context, terminalID, data string) error {
	d.mu.Lock()
	proc, ok := d.terminals[terminalID]
	d.mu.Unlock()

	if !ok {
		return ErrUnknownTerminal
	}
	_, err := io.WriteString(proc, data)
	return err
}

// ActiveTerminalID returns the most recently opened terminal, or "".
func (d *Driver) ActiveTerminalID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Close ends every terminal and removes the container.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	terminals := d.terminals
	d.terminals = make(map[string]terminalProcess)
	d.active = ""
	id := d.containerID
	d.containerID = ""
	d.mu.Unlock()

	for terminalID, proc := range terminals {
		if err := proc.Close(); err != nil {
			d.logger.Debug("terminal exited", zap.String("terminal", terminalID), zap.Error(err))
		}
	}

	if id == "" {
		return nil
	}
	_, err := d.runner.Run(ctx, []string{"docker", "rm", "-f", id}, nil, runOptions{})
	return err
}
