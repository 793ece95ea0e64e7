package workspace

import (
	"errors"
	"fmt"
)

// -- Sentinels --

var (
	ErrNotAFolder = errors.New("path component is not a folder")
	ErrNotAFile   = errors.New("path is not a file")
)

// PersistError is returned when the file map could not be written to the blob store.
// The in-memory state has already been updated when this is returned.
type PersistError struct {
	Conversation string
	Cause        error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist conversation %s: %v", e.Conversation, e.Cause)
}

func (e *PersistError) Unwrap() error {
	return e.Cause
}

// LoadError is returned when a stored conversation cannot be decoded.
type LoadError struct {
	Conversation string
	Cause        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load conversation %s: %v", e.Conversation, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// TempFileError is returned when creating a temp file fails during export.
type TempFileError struct {
	Dir   string
	Cause error
}

func (e *TempFileError) Error() string {
	return fmt.Sprintf("failed to create temp file in %s: %v", e.Dir, e.Cause)
}

func (e *TempFileError) Unwrap() error {
	return e.Cause
}

// TempWriteError is returned when writing to a temp file fails.
type TempWriteError struct {
	Path  string
	Cause error
}

func (e *TempWriteError) Error() string {
	return fmt.Sprintf("failed to write to temp file %s: %v", e.Path, e.Cause)
}

func (e *TempWriteError) Unwrap() error {
	return e.Cause
}

// RenameError is returned when renaming a file fails.
type RenameError struct {
	Old   string
	New   string
	Cause error
}

func (e *RenameError) Error() string {
	return fmt.Sprintf("failed to rename %s to %s: %v", e.Old, e.New, e.Cause)
}

func (e *RenameError) Unwrap() error {
	return e.Cause
}
