package config

// Config holds all application configuration values.
// Defaults are set in DefaultConfig() and can be overridden via dotfile.
// NOTE: Values in config files override defaults, including explicit zero values.
// Missing keys are left at their default values.
type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Sandbox SandboxConfig `json:"sandbox" yaml:"sandbox"`
}

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`             // Default: "info"
	Format     string `json:"format" yaml:"format"`           // Default: "json" (or "console")
	OutputPath string `json:"output_path" yaml:"output_path"` // Default: "stderr"
}

type StoreConfig struct {
	// Backend selects the blob store: "memory", "sqlite" or "s3".
	Backend    string   `json:"backend" yaml:"backend"`         // Default: "sqlite"
	SQLitePath string   `json:"sqlite_path" yaml:"sqlite_path"` // Default: "artifactsync.db"
	S3         S3Config `json:"s3" yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	Region    string `json:"region" yaml:"region"` // Default: "us-east-1"
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	Prefix    string `json:"prefix" yaml:"prefix"` // Default: "conversations/"
}

type SandboxConfig struct {
	// Queue bound while connecting. 0 means unbounded.
	MaxPendingOperations int `json:"max_pending_operations" yaml:"max_pending_operations"` // Default: 1024

	// Docker
	Image                    string `json:"image" yaml:"image"`                                             // Default: "node:20-bookworm"
	DockerRetryAttempts      int    `json:"docker_retry_attempts" yaml:"docker_retry_attempts"`             // Default: 10
	DockerRetryIntervalMs    int    `json:"docker_retry_interval_ms" yaml:"docker_retry_interval_ms"`       // Default: 1000
	DockerGracefulShutdownMs int    `json:"docker_graceful_shutdown_ms" yaml:"docker_graceful_shutdown_ms"` // Default: 2000

	// Command Execution
	CommandTimeoutSeconds int   `json:"command_timeout_seconds" yaml:"command_timeout_seconds"` // Default: 600 (10 minutes)
	MaxCommandOutputSize  int64 `json:"max_command_output_size" yaml:"max_command_output_size"` // Default: 10 * 1024 * 1024 (10MB)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stderr",
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			SQLitePath: "artifactsync.db",
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "conversations/",
			},
		},
		Sandbox: SandboxConfig{
			MaxPendingOperations:     1024,
			Image:                    "node:20-bookworm",
			DockerRetryAttempts:      10,
			DockerRetryIntervalMs:    1000,
			DockerGracefulShutdownMs: 2000,
			CommandTimeoutSeconds:    600,
			MaxCommandOutputSize:     10 * 1024 * 1024,
		},
	}
}
