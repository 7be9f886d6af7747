package core

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied   = errors.New("sensor access denied")
	ErrRecordingNotFound  = errors.New("recording not found")
	ErrInvalidSceneFile   = errors.New("invalid scene file")
	ErrJobSystemClosed    = errors.New("job system is shut down")
	ErrDispatcherStopped  = errors.New("dispatcher is stopped")
	ErrSessionUnavailable = errors.New("sensor session unavailable")
)

// DecodeError reports a geometry buffer that does not hold what its descriptor claims.
type DecodeError struct {
	// Buffer names the offending buffer: "vertices", "normals" or "faces".
	Buffer string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Buffer, e.Reason)
}

func NewDecodeError(buffer, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Buffer: buffer, Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedFormatError reports a per-vertex format or primitive type the converter cannot read.
type UnsupportedFormatError struct {
	Buffer string
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported %s format %s", e.Buffer, e.Format)
}

// IOError wraps a filesystem failure with the operation and path that caused it.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}
