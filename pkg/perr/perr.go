// Package perr implements the error taxonomy that every per-request
// handler failure is translated into before it becomes a protocol Error
// result. See spec.md §7 for the closed set of kinds.
package perr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Kind is the closed set of error categories a handler can report.
type Kind string

// The closed set of error kinds, per spec.md §7.
const (
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindInvalidInput     Kind = "invalid_input"
	KindInvalidData      Kind = "invalid_data"
	KindUnsupported      Kind = "unsupported"
	KindBrokenPipe       Kind = "broken_pipe"
	KindIo               Kind = "io"
	KindCancelled        Kind = "cancelled"
)

// Error is a short kind plus a human-readable description, matching the
// wire-level Error result shape in spec.md §6.
type Error struct {
	Kind        Kind
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// New constructs an Error with the given kind and formatted description.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Description: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Unsupported builds a KindUnsupported error.
func Unsupported(format string, args ...any) *Error {
	return New(KindUnsupported, format, args...)
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, format, args...)
}

// InvalidData builds a KindInvalidData error.
func InvalidData(format string, args ...any) *Error {
	return New(KindInvalidData, format, args...)
}

// Cancelled builds a KindCancelled error.
func Cancelled(format string, args ...any) *Error {
	return New(KindCancelled, format, args...)
}

// FromOS translates a host OS error (typically from the os/io packages)
// into the closed taxonomy. A nil input returns nil.
func FromOS(err error) *Error {
	if err == nil {
		return nil
	}

	var perrErr *Error
	if errors.As(err, &perrErr) {
		return perrErr
	}

	switch {
	case errors.Is(err, fs.ErrNotExist), os.IsNotExist(err):
		return New(KindNotFound, "%s", err.Error())
	case errors.Is(err, fs.ErrPermission), os.IsPermission(err):
		return New(KindPermissionDenied, "%s", err.Error())
	case errors.Is(err, os.ErrClosed):
		return New(KindBrokenPipe, "%s", err.Error())
	default:
		if isBrokenPipe(err) {
			return New(KindBrokenPipe, "%s", err.Error())
		}
		return New(KindIo, "%s", err.Error())
	}
}
