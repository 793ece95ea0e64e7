package config

import (
	"fmt"
)

// Validate checks config values for correctness.
// Returns an error if any values are invalid.
func (c *Config) Validate() error {
	var errs []string

	// Logging validation
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, "logging.format must be one of json, console")
	}

	// Store validation
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite backend")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			errs = append(errs, "store.s3.bucket is required for the s3 backend")
		}
	default:
		errs = append(errs, "store.backend must be one of memory, sqlite, s3")
	}

	// Sandbox validation
	if c.Sandbox.MaxPendingOperations < 0 {
		errs = append(errs, "sandbox.max_pending_operations must be >= 0")
	}
	if c.Sandbox.Image == "" {
		errs = append(errs, "sandbox.image must not be empty")
	}
	if c.Sandbox.DockerRetryAttempts < 1 {
		errs = append(errs, "sandbox.docker_retry_attempts must be >= 1")
	}
	if c.Sandbox.DockerRetryIntervalMs < 1 {
		errs = append(errs, "sandbox.docker_retry_interval_ms must be >= 1")
	}
	if c.Sandbox.DockerGracefulShutdownMs < 1 {
		errs = append(errs, "sandbox.docker_graceful_shutdown_ms must be >= 1")
	}
	if c.Sandbox.CommandTimeoutSeconds < 1 {
		errs = append(errs, "sandbox.command_timeout_seconds must be >= 1")
	}
	if c.Sandbox.MaxCommandOutputSize < 1 {
		errs = append(errs, "sandbox.max_command_output_size must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
