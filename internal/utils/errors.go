package utils

import (
	"errors"
	"fmt"
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// ValidationError reports a caller-supplied value the engine refuses to work with.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError constructs a ValidationError.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidEventError identifies a state event that breaks the event contract.
type InvalidEventError struct {
	MachineID string
	EventID   string
	Index     int
	Reason    string
}

func (e *InvalidEventError) Error() string {
	ref := e.EventID
	if ref == "" {
		ref = fmt.Sprintf("#%d", e.Index)
	}
	if e.MachineID == "" {
		return fmt.Sprintf("invalid state event %s: %s", ref, e.Reason)
	}
	return fmt.Sprintf("invalid state event %s for machine %s: %s", ref, e.MachineID, e.Reason)
}

// DependencyError marks a failure returned by an upstream collaborator.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// NewDependencyError wraps err unless it is nil or already a DependencyError.
func NewDependencyError(dependency string, err error) error {
	if err == nil {
		return nil
	}
	var depErr *DependencyError
	if errors.As(err, &depErr) {
		return err
	}
	return &DependencyError{Dependency: dependency, Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsInvalidEvent reports whether err carries an InvalidEventError.
func IsInvalidEvent(err error) bool {
	var target *InvalidEventError
	return errors.As(err, &target)
}

// IsDependency reports whether err carries a DependencyError.
func IsDependency(err error) bool {
	var target *DependencyError
	return errors.As(err, &target)
}
