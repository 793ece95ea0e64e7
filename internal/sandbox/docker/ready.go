package docker

import (
	"context"
	"fmt"
	"time"
)

// ReadyConfig holds the commands used to probe and start the docker daemon.
type ReadyConfig struct {
	CheckCommand []string
	StartCommand []string
}

// DefaultReadyConfig probes with `docker info` and has no start command.
func DefaultReadyConfig() ReadyConfig {
	return ReadyConfig{
		CheckCommand: []string{"docker", "info"},
	}
}

// EnsureReady checks if Docker is running and attempts to start it if not.
// It retries the check up to retryAttempts times, retryIntervalMs apart, after starting Docker.
func EnsureReady(ctx context.Context, runner commandRunner, config ReadyConfig, retryAttempts int, retryIntervalMs int) error {
	if res, err := runner.Run(ctx, config.CheckCommand, nil, runOptions{}); err == nil && res.ExitCode == 0 {
		return nil
	}

	if len(config.StartCommand) > 0 {
		res, err := runner.Run(ctx, config.StartCommand, nil, runOptions{})
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return &ExitError{Command: config.StartCommand[0], ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
	}

	ticker := time.NewTicker(time.Duration(retryIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range retryAttempts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if res, err := runner.Run(ctx, config.CheckCommand, nil, runOptions{}); err == nil && res.ExitCode == 0 {
				return nil
			}
		}
	}

	return fmt.Errorf("docker failed to become ready after %d attempts", retryAttempts)
}
