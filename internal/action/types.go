// Package action runs the file and shell actions a model emits, one strictly
// ordered pipeline per generation turn.
package action

import "fmt"

// Kind selects the action variant.
type Kind string

const (
	KindFile  Kind = "file"
	KindShell Kind = "shell"
)

// Action is a FileAction (FilePath, Content) or a ShellAction (Command).
type Action struct {
	Kind     Kind   `mapstructure:"type" json:"type"`
	FilePath string `mapstructure:"file_path" json:"file_path,omitempty"`
	Content  string `mapstructure:"content" json:"content,omitempty"`
	Command  string `mapstructure:"command" json:"command,omitempty"`
}

// Validate checks that the fields required by the variant are present.
func (a Action) Validate() error {
	switch a.Kind {
	case KindFile:
		if a.FilePath == "" {
			return fmt.Errorf("%w: file action without file_path", ErrInvalidAction)
		}
	case KindShell:
		if a.Command == "" {
			return fmt.Errorf("%w: shell action without command", ErrInvalidAction)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
	}
	return nil
}

// Status is the lifecycle stage of an action.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusAborted  Status = "aborted"
	StatusFailed   Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusAborted || s == StatusFailed
}

// State is a snapshot of one recorded action.
type State struct {
	TurnID   string
	ID       string
	Action   Action
	Status   Status
	Executed bool
	// Error is set only when Status is StatusFailed.
	Error string
}
