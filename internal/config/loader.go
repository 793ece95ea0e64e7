package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name under ~/.config
	ConfigDir = "artifactsync"
	// ConfigFileYAML is checked first
	ConfigFileYAML = "config.yaml"
	// ConfigFileJSON is the fallback config file name
	ConfigFileJSON = "config.json"
)

// FileSystem abstracts file operations for testability
type FileSystem interface {
	UserHomeDir() (string, error)
	ReadFile(path string) ([]byte, error)
}

// ConfigFileReader implements FileSystem using the real OS for config loading
type ConfigFileReader struct{}

func (ConfigFileReader) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

func (ConfigFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Loader handles configuration loading with injected dependencies
type Loader struct {
	fs FileSystem
}

// NewLoader creates a production Loader using the real filesystem
func NewLoader() *Loader {
	return &Loader{fs: ConfigFileReader{}}
}

// NewLoaderWithFS creates a Loader with a custom filesystem (for testing)
func NewLoaderWithFS(fs FileSystem) *Loader {
	return &Loader{fs: fs}
}

// Load reads configuration from ~/.config/artifactsync/config.yaml, falling back
// to config.json, and merges it with defaults. Dotfile values override defaults.
// Returns default config if neither dotfile exists.
// Returns error only for parse errors, permission issues, or validation failures.
//
// NOTE: The file is decoded directly over the default configuration.
// This allows explicit zero values (e.g., 0, false, "") in the config file to override defaults.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := l.fs.UserHomeDir()
	if err != nil {
		return cfg, nil // Use defaults if can't get home dir
	}

	dir := filepath.Join(homeDir, ".config", ConfigDir)
	for _, name := range []string{ConfigFileYAML, ConfigFileJSON} {
		data, err := l.fs.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err // Return error for permission issues
		}
		return decode(cfg, name, data)
	}

	return cfg, nil
}

// LoadFile reads an explicit config file. The format is chosen by extension.
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decode(DefaultConfig(), path, data)
}

func decode(cfg *Config, name string, data []byte) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err // Return error for malformed JSON
	}

	// Validate the merged configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is a convenience function using the default loader
func Load() (*Config, error) {
	return NewLoader().Load()
}
