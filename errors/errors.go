package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", callerRef(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", callerRef(), fmt.Sprintf(format, a...), err)
}

// LabeledError tags an error with the component it came from, so a failed
// backend call surfaces as "anthropic: connection refused" instead of a bare
// transport error.
type LabeledError struct {
	Label string
	Err   error
}

func (e *LabeledError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

func (e *LabeledError) Unwrap() error {
	return e.Err
}

// Labelf wraps err with a component label and optional context.
// Returns nil for a nil err.
func Labelf(label string, err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	if format != "" {
		err = fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), err)
	}
	return &LabeledError{Label: label, Err: err}
}

// LabelOf returns the label attached to err, if any.
func LabelOf(err error) (string, bool) {
	var le *LabeledError
	if errors.As(err, &le) {
		return le.Label, true
	}
	return "", false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func callerRef() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
